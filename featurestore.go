package geotile

import "encoding/binary"

// TilePtr is a handle to a tile's decompressed payload bytes (spec
// §4.4's fetch_tile result), ready for DecodeTileBlob.
type TilePtr struct {
	TIP  TIP
	Page PageNum
	raw  []byte
}

// Bytes returns the tile's encoded payload (EncodeTileBlob format).
func (p TilePtr) Bytes() []byte { return p.raw }

// tileBlobPages returns the page count a stored tile blob at page
// occupies, by reading its 4-byte length prefix.
func tileBlobPages(ps *pageStore, page PageNum) (uint32, error) {
	head, err := ps.block(page, 1)
	if err != nil {
		return 0, err
	}
	length := binary.LittleEndian.Uint32(head[:4])
	return ps.pagesFor(int(length) + 4), nil
}

// PutTile stores data (the output of EncodeTileBlob) under tip,
// replacing and freeing any previous tile at the same TIP, and linking
// tip into the transaction's working tile index along with every
// ancestor needed to reach it (spec §4.4).
func (t *Transaction) PutTile(tip TIP, data []byte) error {
	if t.readOnly() {
		return ErrReadOnlyTransaction
	}
	if tip == 0 {
		return ErrInvalidTIP
	}

	payload := data
	if t.store.cfg.CompressTiles {
		compressed, err := compressTile(data)
		if err != nil {
			return err
		}
		payload = compressed
	}

	if prev, ok := t.tileIdx.get(tip); ok && prev.ChildMask == 0 && prev.Page != InvalidPageNum {
		prevPages, err := tileBlobPages(t.store.pages, prev.Page)
		if err == nil {
			if err := t.FreePages(prev.Page, prevPages); err != nil {
				return err
			}
		}
	}

	pages := t.store.pages.pagesFor(len(payload) + 4)
	page, err := t.AllocPages(pages)
	if err != nil {
		return err
	}
	buf, err := t.stageBlock(page, pages, false)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(buf[:4], uint32(len(payload)))
	copy(buf[4:], payload)

	t.tileIdx.put(tip, page)
	return nil
}

// FetchTile returns the current, committed tile at tip, if any (spec
// §4.4). It reads from the store's live (post-commit) tile index, not
// any in-progress transaction's working copy.
func (s *Store) FetchTile(tip TIP) (TilePtr, bool) {
	s.mu.RLock()
	e, ok := s.tileIdx.get(tip)
	if !ok || e.ChildMask != 0 || e.Page == InvalidPageNum || !e.Current {
		s.mu.RUnlock()
		return TilePtr{}, false
	}
	page := e.Page
	ps := s.pages
	compress := s.cfg.CompressTiles
	s.mu.RUnlock()

	pages, err := tileBlobPages(ps, page)
	if err != nil {
		return TilePtr{}, false
	}
	full, err := ps.block(page, pages)
	if err != nil {
		return TilePtr{}, false
	}
	length := binary.LittleEndian.Uint32(full[:4])
	payload := full[4 : 4+length]
	if compress {
		decoded, err := decompressTile(payload)
		if err != nil {
			return TilePtr{}, false
		}
		payload = decoded
	}
	return TilePtr{TIP: tip, Page: page, raw: payload}, true
}
