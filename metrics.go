package willowmap

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/phanxgames/willowmap"

func meter(mp metric.MeterProvider) metric.Meter {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	return mp.Meter(instrumentationName)
}

// mapMetrics holds a Map's instruments. A nil provider means the global
// OTel meter provider, a no-op unless the host installs one.
type mapMetrics struct {
	framesRendered metric.Int64Counter
	framesSkipped  metric.Int64Counter
	tilesStarted   metric.Int64Counter
	tilesFailed    metric.Int64Counter
	tilesDropped   metric.Int64Counter
	tilesLoading   metric.Int64ObservableGauge

	registration metric.Registration
	mapID        string
	mapAttr      metric.MeasurementOption
}

func newMapMetrics(mp metric.MeterProvider, mapID string, queue *TileQueue) (*mapMetrics, error) {
	m := meter(mp)
	mm := &mapMetrics{
		mapID:   mapID,
		mapAttr: metric.WithAttributes(attribute.String("map", mapID)),
	}

	var err error
	mm.framesRendered, err = m.Int64Counter(
		"willowmap.frames.rendered",
		metric.WithDescription("Frames built and handed to the renderer"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating frames rendered counter: %w", err)
	}

	mm.framesSkipped, err = m.Int64Counter(
		"willowmap.frames.skipped",
		metric.WithDescription("Frame ticks with no renderable frame"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating frames skipped counter: %w", err)
	}

	mm.tilesStarted, err = m.Int64Counter(
		"willowmap.tiles.started",
		metric.WithDescription("Tile loads started"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating tiles started counter: %w", err)
	}

	mm.tilesFailed, err = m.Int64Counter(
		"willowmap.tiles.failed",
		metric.WithDescription("Tile loads that finished with an error"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating tiles failed counter: %w", err)
	}

	mm.tilesDropped, err = m.Int64Counter(
		"willowmap.tiles.dropped",
		metric.WithDescription("Queued tiles dropped because no frame wanted them"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating tiles dropped counter: %w", err)
	}

	mm.tilesLoading, err = m.Int64ObservableGauge(
		"willowmap.tiles.loading",
		metric.WithDescription("Tile loads currently in flight"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating tiles loading gauge: %w", err)
	}

	mm.registration, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			o.ObserveInt64(mm.tilesLoading, int64(queue.TilesLoading()), mm.mapAttr)
			return nil
		},
		mm.tilesLoading,
	)
	if err != nil {
		return nil, fmt.Errorf("registering tiles loading callback: %w", err)
	}

	return mm, nil
}

func (mm *mapMetrics) frame(rendered bool) {
	if rendered {
		mm.framesRendered.Add(context.Background(), 1, mm.mapAttr)
		return
	}
	mm.framesSkipped.Add(context.Background(), 1, mm.mapAttr)
}

func (mm *mapMetrics) tile(c metric.Int64Counter, source string) {
	c.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("map", mm.mapID),
		attribute.String("source", source),
	))
}

func (mm *mapMetrics) close() error {
	if mm.registration == nil {
		return nil
	}
	if err := mm.registration.Unregister(); err != nil {
		return fmt.Errorf("unregistering tiles loading callback: %w", err)
	}
	return nil
}
