package geotile

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/paulmach/orb"
	"github.com/zeebo/xxh3"
	"golang.org/x/sync/semaphore"
)

type resultBatch struct {
	features []Feature
	err      error
}

// Query is the streaming iterator returned by Store.Query (spec §4.7).
type Query struct {
	store   *Store
	bbox    orb.Bound
	types   FeatureTypes
	matcher Matcher
	filter  SpatialFilter

	batchSize int
	sem       *semaphore.Weighted
	ctx       context.Context
	stop      context.CancelFunc

	results chan resultBatch

	mu           sync.Mutex
	missingTiles bool

	dedup   map[uint64]struct{}
	current []Feature
	pos     int
	err     error
	closed  bool
}

func newQuery(s *Store, bbox orb.Bound, types FeatureTypes, m Matcher, f SpatialFilter) *Query {
	if m == nil {
		m = AcceptAll{}
	}
	if types == 0 {
		types = TypeAll
	}
	cfg := s.cfg
	ctx, cancel := context.WithCancel(context.Background())
	q := &Query{
		store:     s,
		bbox:      bbox,
		types:     types,
		matcher:   m,
		filter:    f,
		batchSize: cfg.ResultBatchSize,
		sem:       semaphore.NewWeighted(int64(cfg.WorkerPoolSize)),
		ctx:       ctx,
		stop:      cancel,
		results:   make(chan resultBatch, cfg.WorkerPoolSize),
		dedup:     make(map[uint64]struct{}),
	}
	q.start()
	return q
}

func (q *Query) start() {
	s := q.store
	s.mu.RLock()
	idx := s.tileIdx
	s.mu.RUnlock()

	tiles := newWalker(idx, q.bbox, q.filter).enumerate(RootTIP)
	go q.run(tiles)
}

// run primes one task per tile up to the pool's free capacity,
// falling back to inline execution on saturation, exactly as spec
// §4.7's construction-time priming and post-take reposting describe
// (here collapsed into a single pass since the walk is already fully
// enumerated rather than incremental).
func (q *Query) run(tiles []walkTile) {
	defer close(q.results)
	var wg sync.WaitGroup
	for _, wt := range tiles {
		if q.ctx.Err() != nil {
			break
		}
		wt := wt
		if q.sem.TryAcquire(1) {
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer q.sem.Release(1)
				q.processTile(wt)
			}()
		} else {
			q.processTile(wt)
		}
	}
	wg.Wait()
}

func (q *Query) processTile(wt walkTile) {
	if q.ctx.Err() != nil {
		return
	}
	ptr, ok := q.store.FetchTile(wt.tip)
	if !ok {
		q.mu.Lock()
		q.missingTiles = true
		q.mu.Unlock()
		return
	}
	tb, err := DecodeTileBlob(ptr.Bytes())
	if err != nil {
		q.emit(resultBatch{err: err})
		return
	}

	features := searchTile(tb, wt.tip, q.types, q.matcher, q.bbox, q.filter, wt.turbo, wt.northwest)
	for start := 0; start < len(features); start += q.batchSize {
		end := start + q.batchSize
		if end > len(features) {
			end = len(features)
		}
		if !q.emit(resultBatch{features: features[start:end]}) {
			return
		}
	}
}

func (q *Query) emit(b resultBatch) bool {
	select {
	case q.results <- b:
		return true
	case <-q.ctx.Done():
		return false
	}
}

// Next advances the iterator, deduplicating multi-tile features by
// their 64-bit identity (spec §4.7).
func (q *Query) Next() (Feature, bool) {
	for {
		for q.pos < len(q.current) {
			f := q.current[q.pos]
			q.pos++
			if f.Flags&(FlagMultitileNorth|FlagMultitileWest) != 0 {
				var idBuf [8]byte
				binary.LittleEndian.PutUint64(idBuf[:], f.ID)
				key := xxh3.Hash(idBuf[:])
				if _, seen := q.dedup[key]; seen {
					continue
				}
				q.dedup[key] = struct{}{}
			}
			return f, true
		}
		batch, ok := <-q.results
		if !ok {
			return Feature{}, false
		}
		if batch.err != nil {
			q.mu.Lock()
			q.err = batch.err
			q.mu.Unlock()
			continue
		}
		q.current = batch.features
		q.pos = 0
	}
}

// Err returns the first per-tile search error encountered, if any.
func (q *Query) Err() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.err
}

// MissingTiles reports whether any tile the walker expected to find
// was absent from the store (spec §4.4's fetch_tile "missing" case).
func (q *Query) MissingTiles() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.missingTiles
}

// Cancel stops posting further tile tasks; in-flight tiles run to
// completion but their results are discarded (spec §4.7).
func (q *Query) Cancel() {
	q.stop()
}

// Close releases the query's resources, draining any pending results.
func (q *Query) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()
	q.stop()
	for range q.results {
	}
}
