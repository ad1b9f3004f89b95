package geotile

import "testing"

// TestQueryMissingTilesReportsAbsentTile checks that a TIP the tile
// index references (because put() created a routing ancestor for some
// other leaf) but whose own leaf was never committed is surfaced via
// MissingTiles rather than silently skipped.
func TestQueryMissingTilesReportsAbsentTile(t *testing.T) {
	s := openTestStore(t, Config{})

	txn, err := s.BeginTransaction(LockAppend)
	if err != nil {
		t.Fatalf("BeginTransaction: %v", err)
	}
	data := EncodeTileBlob(NewTileBlob([]FeatureRecord{{ID: 1, Category: CategoryNode, X: 1, Y: 1}}))
	tip := tipChild(RootTIP, 0)
	if err := txn.PutTile(tip, data); err != nil {
		t.Fatalf("PutTile: %v", err)
	}
	if err := txn.Commit(true); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	txn.End()

	s.mu.Lock()
	s.tileIdx.entries[tip].Page = InvalidPageNum
	s.tileIdx.entries[tip].Current = false
	s.mu.Unlock()

	q := s.Query(worldBound, TypeAll, nil, nil)
	defer q.Close()
	for {
		if _, ok := q.Next(); !ok {
			break
		}
	}
	if !q.MissingTiles() {
		t.Fatalf("MissingTiles() = false, want true for a routing entry with no committed leaf")
	}
}

// TestQueryCancelStopsIteration verifies that Cancel makes a
// subsequent Next drain to completion without hanging or panicking.
func TestQueryCancelStopsIteration(t *testing.T) {
	s := openTestStore(t, Config{})
	txn, _ := s.BeginTransaction(LockAppend)
	for slot := uint(0); slot < 8; slot++ {
		tip := tipChild(RootTIP, slot)
		data := EncodeTileBlob(NewTileBlob([]FeatureRecord{{ID: uint64(slot + 1), Category: CategoryNode, X: 1, Y: 1}}))
		if err := txn.PutTile(tip, data); err != nil {
			t.Fatalf("PutTile: %v", err)
		}
	}
	if err := txn.Commit(true); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	txn.End()

	q := s.Query(worldBound, TypeAll, nil, nil)
	q.Cancel()
	for {
		if _, ok := q.Next(); !ok {
			break
		}
	}
	q.Close()
}

// TestQueryCloseIsIdempotent checks that calling Close twice does not
// panic (e.g. double-close on q.results).
func TestQueryCloseIsIdempotent(t *testing.T) {
	s := openTestStore(t, Config{})
	q := s.Query(worldBound, TypeAll, nil, nil)
	q.Close()
	q.Close()
}

// TestQueryNextOnEmptyStoreReturnsNoResults checks the zero-tile case.
func TestQueryNextOnEmptyStoreReturnsNoResults(t *testing.T) {
	s := openTestStore(t, Config{})
	q := s.Query(worldBound, TypeAll, nil, nil)
	defer q.Close()
	if _, ok := q.Next(); ok {
		t.Fatalf("Next() on an empty store should report no results")
	}
}
