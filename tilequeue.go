package willowmap

import (
	"container/heap"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// TileState is the load status of a queued tile. Transitions are monotonic:
// TileIdle → TileLoading → TileLoaded | TileError, or TileIdle → TileDropped.
type TileState uint8

const (
	TileIdle TileState = iota
	TileLoading
	TileLoaded
	TileError
	TileDropped
)

// String returns the state name.
func (s TileState) String() string {
	switch s {
	case TileIdle:
		return "idle"
	case TileLoading:
		return "loading"
	case TileLoaded:
		return "loaded"
	case TileError:
		return "error"
	case TileDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// TileLoader fetches one tile. done must be called exactly once per call,
// on the goroutine driving the Map; extra calls are ignored.
type TileLoader interface {
	LoadTile(t maptile.Tile, done func(err error))
}

// TileRequest describes a pending tile load.
type TileRequest struct {
	SourceKey string
	Tile      maptile.Tile
	// Center is the tile center in view coordinates.
	Center orb.Point
	// Resolution is the tile's resolution in view units per pixel.
	Resolution float64
	// TieBreak is added to the computed priority.
	TieBreak float64
	Loader   TileLoader
}

// PriorityFunc scores a request. Lower priorities load first. wanted false
// means the current frame does not need the tile.
type PriorityFunc func(req TileRequest) (priority float64, wanted bool)

type tileKey struct {
	source string
	tile   maptile.Tile
}

type tileEntry struct {
	req      TileRequest
	key      tileKey
	priority float64
	seq      uint64
	misses   int
	state    TileState
	index    int
}

// tileHeap orders entries by priority, then insertion sequence.
type tileHeap []*tileEntry

func (h tileHeap) Len() int { return len(h) }
func (h tileHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h tileHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *tileHeap) Push(x any) {
	e := x.(*tileEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *tileHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// maxTileMisses is how many consecutive reprioritizations a queued tile may
// be unwanted before it is dropped.
const maxTileMisses = 2

// TileQueueHooks are optional notifications from a TileQueue.
type TileQueueHooks struct {
	// OnStart runs when a load is started.
	OnStart func(TileRequest)
	// OnDone runs when a load finishes, err is nil on success. It runs on
	// the goroutine that called done.
	OnDone func(TileRequest, error)
	// OnDrop runs when a queued tile is dropped as unwanted.
	OnDrop func(TileRequest)
}

// TileQueue is a priority queue of pending tile loads with bounded
// concurrency. Queue operations run on the Map goroutine; completion
// callbacks may race with them and are serialized by an internal lock.
type TileQueue struct {
	mu sync.Mutex

	priority PriorityFunc
	hooks    TileQueueHooks

	heap     tileHeap
	entries  map[tileKey]*tileEntry
	loading  int
	seq      uint64
	detached bool
}

// NewTileQueue creates a queue scoring requests with priority.
func NewTileQueue(priority PriorityFunc, hooks TileQueueHooks) *TileQueue {
	return &TileQueue{
		priority: priority,
		hooks:    hooks,
		entries:  make(map[tileKey]*tileEntry),
	}
}

// Enqueue adds req. It returns false if the tile is already queued or
// loading, or if it is not wanted.
func (q *TileQueue) Enqueue(req TileRequest) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	k := tileKey{req.SourceKey, req.Tile}
	if _, ok := q.entries[k]; ok {
		return false
	}
	p, wanted := q.priority(req)
	if !wanted {
		return false
	}
	q.seq++
	e := &tileEntry{req: req, key: k, priority: p, seq: q.seq}
	q.entries[k] = e
	heap.Push(&q.heap, e)
	return true
}

// IsKeyQueued reports whether the tile is queued or loading.
func (q *TileQueue) IsKeyQueued(source string, t maptile.Tile) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.entries[tileKey{source, t}]
	return ok
}

// Count returns the number of queued tiles not yet loading.
func (q *TileQueue) Count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap)
}

// IsEmpty reports whether no tiles are queued.
func (q *TileQueue) IsEmpty() bool {
	return q.Count() == 0
}

// TilesLoading returns the number of loads in flight.
func (q *TileQueue) TilesLoading() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.loading
}

// Reprioritize rescores every queued tile. A tile unwanted for
// maxTileMisses consecutive calls is dropped.
func (q *TileQueue) Reprioritize() {
	q.mu.Lock()
	var dropped []TileRequest
	kept := q.heap[:0]
	for _, e := range q.heap {
		p, wanted := q.priority(e.req)
		if !wanted {
			e.misses++
			if e.misses >= maxTileMisses {
				e.state = TileDropped
				delete(q.entries, e.key)
				dropped = append(dropped, e.req)
				continue
			}
		} else {
			e.misses = 0
			e.priority = p
		}
		kept = append(kept, e)
	}
	for i := len(kept); i < len(q.heap); i++ {
		q.heap[i] = nil
	}
	q.heap = kept
	for i, e := range q.heap {
		e.index = i
	}
	heap.Init(&q.heap)
	q.mu.Unlock()

	if q.hooks.OnDrop != nil {
		for _, r := range dropped {
			q.hooks.OnDrop(r)
		}
	}
}

// LoadMoreTiles starts up to maxNewLoads loads, highest priority first,
// without letting the number of loads in flight exceed maxTotalLoading.
func (q *TileQueue) LoadMoreTiles(maxTotalLoading, maxNewLoads int) {
	newLoads := 0
	for {
		q.mu.Lock()
		if q.loading >= maxTotalLoading || newLoads >= maxNewLoads || len(q.heap) == 0 {
			q.mu.Unlock()
			return
		}
		e := heap.Pop(&q.heap).(*tileEntry)
		e.state = TileLoading
		q.loading++
		newLoads++
		q.mu.Unlock()

		if q.hooks.OnStart != nil {
			q.hooks.OnStart(e.req)
		}
		e.req.Loader.LoadTile(e.req.Tile, func(err error) { q.finish(e, err) })
	}
}

// finish records the end of a load. Repeated calls for the same entry are
// ignored.
func (q *TileQueue) finish(e *tileEntry, err error) {
	q.mu.Lock()
	if e.state != TileLoading {
		q.mu.Unlock()
		return
	}
	if err != nil {
		e.state = TileError
	} else {
		e.state = TileLoaded
	}
	q.loading--
	if q.entries[e.key] == e {
		delete(q.entries, e.key)
	}
	detached := q.detached
	q.mu.Unlock()

	if !detached && q.hooks.OnDone != nil {
		q.hooks.OnDone(e.req, err)
	}
}

// Clear drops every queued tile. Loads in flight are unaffected.
func (q *TileQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range q.heap {
		e.state = TileDropped
		delete(q.entries, e.key)
	}
	q.heap = q.heap[:0]
}

// Detach clears the queue and silences notifications for loads still in
// flight. Their completions still update the loading count.
func (q *TileQueue) Detach() {
	q.Clear()
	q.mu.Lock()
	q.detached = true
	q.mu.Unlock()
}
