package heap

import (
	"coredb/dberr"
	"coredb/types"
)

// External entry points lock the target HeapFile before delegating to the
// lock-free internal implementation below. Internal methods must never lock
// on their own, so that updateRow can call insertRow/deleteRow without
// deadlocking against itself.

// InsertLogicalRow applies defaults, NOT NULL, type coercion, and CHECK
// constraints (spec.md §4.6 point 2) before encoding row and inserting it.
func (hfm *HeapFileManager) InsertLogicalRow(fileID uint32, schema *types.TableSchema, row *types.Row, evaluator CheckEvaluator, opLSN uint64) (*types.RowPointer, error) {
	if err := ApplyDefaults(schema, row); err != nil {
		return nil, err
	}
	if err := CoerceTypes(schema, row); err != nil {
		return nil, err
	}
	if err := ValidateNotNull(schema, row); err != nil {
		return nil, err
	}
	if err := ValidateChecks(schema, row, evaluator); err != nil {
		return nil, err
	}

	data, err := EncodeRow(schema, row)
	if err != nil {
		return nil, err
	}
	return hfm.InsertRow(fileID, data, opLSN)
}

// InsertRow inserts an already-encoded record.
func (hfm *HeapFileManager) InsertRow(fileID uint32, rowData []byte, opLSN uint64) (*types.RowPointer, error) {
	hfm.mu.RLock()
	hf, exists := hfm.files[fileID]
	hfm.mu.RUnlock()
	if !exists {
		return nil, dberr.New(dberr.NotFound, "heap file %d not found", fileID)
	}
	hf.mu.Lock()
	defer hf.mu.Unlock()
	return hf.insertRow(rowData, opLSN)
}

// InsertRowAtPointer writes rowData at an exact, previously-allocated
// RowPointer. Used by recovery redo to reproduce a past insert verbatim.
func (hfm *HeapFileManager) InsertRowAtPointer(fileID uint32, rp *types.RowPointer, rowData []byte, lsn uint64) error {
	hfm.mu.RLock()
	hf, exists := hfm.files[fileID]
	hfm.mu.RUnlock()
	if !exists {
		return dberr.New(dberr.NotFound, "heap file %d not found", fileID)
	}

	globalPageID, err := hf.disk.GetGlobalPageID(fileID, int64(rp.PageNumber))
	if err != nil {
		return dberr.Wrap(dberr.IOError, err, "resolve page %d", rp.PageNumber)
	}
	pg, err := hf.pool.FetchPage(globalPageID)
	if err != nil {
		return dberr.Wrap(dberr.IOError, err, "fetch page")
	}

	pg.Lock()
	if err := InsertRecordAtSlot(pg, rp.SlotIndex, rowData); err != nil {
		pg.Unlock()
		hf.pool.UnpinPage(pg.ID, false)
		return dberr.Wrap(dberr.IOError, err, "insert at slot %d", rp.SlotIndex)
	}
	SetLastAppliedLSN(pg, lsn)
	pg.Unlock()
	hf.pool.UnpinPage(pg.ID, true)
	return nil
}

func (hfm *HeapFileManager) GetRow(rp *types.RowPointer) ([]byte, error) {
	if rp == nil {
		return nil, dberr.New(dberr.NotFound, "row pointer is nil")
	}
	hfm.mu.RLock()
	hf, exists := hfm.files[rp.FileID]
	hfm.mu.RUnlock()
	if !exists {
		return nil, dberr.New(dberr.NotFound, "heap file %d not found", rp.FileID)
	}
	hf.mu.RLock()
	defer hf.mu.RUnlock()
	return hf.getRow(rp)
}

// GetLogicalRow fetches and decodes a row per schema.
func (hfm *HeapFileManager) GetLogicalRow(rp *types.RowPointer, schema *types.TableSchema) (*types.Row, error) {
	data, err := hfm.GetRow(rp)
	if err != nil {
		return nil, err
	}
	return DecodeRow(data, schema)
}

func (hfm *HeapFileManager) UpdateRow(rp *types.RowPointer, newRowData []byte, opLSN uint64) error {
	if rp == nil {
		return dberr.New(dberr.NotFound, "row pointer is nil")
	}
	hfm.mu.RLock()
	hf, exists := hfm.files[rp.FileID]
	hfm.mu.RUnlock()
	if !exists {
		return dberr.New(dberr.NotFound, "heap file %d not found", rp.FileID)
	}
	hf.mu.Lock()
	defer hf.mu.Unlock()
	return hf.updateRow(rp, newRowData, opLSN)
}

// UpdateLogicalRow re-validates constraints on the merged row before
// re-encoding and updating in place (or relocating, on overflow).
func (hfm *HeapFileManager) UpdateLogicalRow(rp *types.RowPointer, schema *types.TableSchema, row *types.Row, evaluator CheckEvaluator, opLSN uint64) error {
	if err := CoerceTypes(schema, row); err != nil {
		return err
	}
	if err := ValidateNotNull(schema, row); err != nil {
		return err
	}
	if err := ValidateChecks(schema, row, evaluator); err != nil {
		return err
	}
	data, err := EncodeRow(schema, row)
	if err != nil {
		return err
	}
	return hfm.UpdateRow(rp, data, opLSN)
}

func (hfm *HeapFileManager) DeleteRow(rp *types.RowPointer, opLSN uint64) error {
	if rp == nil {
		return dberr.New(dberr.NotFound, "row pointer is nil")
	}
	hfm.mu.RLock()
	hf, exists := hfm.files[rp.FileID]
	hfm.mu.RUnlock()
	if !exists {
		return dberr.New(dberr.NotFound, "heap file %d not found", rp.FileID)
	}
	hf.mu.Lock()
	defer hf.mu.Unlock()
	return hf.deleteRow(rp, opLSN)
}

// --- internal, lock-free implementation ---

func (hf *HeapFile) insertRow(rowData []byte, opLSN uint64) (*types.RowPointer, error) {
	rowLen := uint16(len(rowData))
	maxRowSize := uint16(types.PageSize - types.HeapPageHeaderSize - types.SlotSize)
	if rowLen > maxRowSize {
		return nil, dberr.New(dberr.IOError, "row too large: %d bytes (max %d)", rowLen, maxRowSize)
	}

	for {
		pg, localPageNum, err := hf.findSuitablePage(rowLen)
		if err != nil {
			return nil, dberr.Wrap(dberr.IOError, err, "find suitable page")
		}

		pg.Lock()
		if FreeSpace(pg) < int(rowLen) {
			pg.Unlock()
			hf.pool.UnpinPage(pg.ID, false)
			delete(hf.freePages, localPageNum)
			continue
		}

		slotIndex, err := InsertRecord(pg, rowData)
		if err != nil {
			pg.Unlock()
			hf.pool.UnpinPage(pg.ID, false)
			return nil, dberr.Wrap(dberr.IOError, err, "insert record")
		}
		SetLastAppliedLSN(pg, opLSN)
		hf.noteFreeSpace(localPageNum, pg)
		pg.Unlock()
		hf.pool.UnpinPage(pg.ID, true)

		return &types.RowPointer{FileID: hf.fileID, PageNumber: localPageNum, SlotIndex: slotIndex}, nil
	}
}

func (hf *HeapFile) getRow(ptr *types.RowPointer) ([]byte, error) {
	globalPageID, err := hf.disk.GetGlobalPageID(hf.fileID, int64(ptr.PageNumber))
	if err != nil {
		return nil, dberr.Wrap(dberr.IOError, err, "resolve page %d", ptr.PageNumber)
	}
	pg, err := hf.pool.FetchPage(globalPageID)
	if err != nil {
		return nil, dberr.Wrap(dberr.IOError, err, "fetch page %d", globalPageID)
	}
	defer hf.pool.UnpinPage(pg.ID, false)

	pg.RLock()
	defer pg.RUnlock()
	return GetRecord(pg, ptr.SlotIndex)
}

func (hf *HeapFile) deleteRow(ptr *types.RowPointer, opLSN uint64) error {
	globalPageID, err := hf.disk.GetGlobalPageID(hf.fileID, int64(ptr.PageNumber))
	if err != nil {
		return dberr.Wrap(dberr.IOError, err, "resolve page %d", ptr.PageNumber)
	}
	pg, err := hf.pool.FetchPage(globalPageID)
	if err != nil {
		return dberr.Wrap(dberr.IOError, err, "fetch page %d", globalPageID)
	}
	defer hf.pool.UnpinPage(pg.ID, true)

	pg.Lock()
	defer pg.Unlock()
	if err := DeleteRecord(pg, ptr.SlotIndex); err != nil {
		return err
	}
	SetLastAppliedLSN(pg, opLSN)
	hf.noteFreeSpace(ptr.PageNumber, pg)
	return nil
}

func (hf *HeapFile) updateRow(ptr *types.RowPointer, newRowData []byte, opLSN uint64) error {
	globalPageID, err := hf.disk.GetGlobalPageID(hf.fileID, int64(ptr.PageNumber))
	if err != nil {
		return dberr.Wrap(dberr.IOError, err, "resolve page %d", ptr.PageNumber)
	}
	pg, err := hf.pool.FetchPage(globalPageID)
	if err != nil {
		return dberr.Wrap(dberr.IOError, err, "fetch page %d", globalPageID)
	}

	pg.Lock()
	updated, err := UpdateRecord(pg, ptr.SlotIndex, newRowData)
	if err != nil {
		pg.Unlock()
		hf.pool.UnpinPage(pg.ID, false)
		return dberr.Wrap(dberr.IOError, err, "update record")
	}
	SetLastAppliedLSN(pg, opLSN)
	hf.noteFreeSpace(ptr.PageNumber, pg)
	pg.Unlock()
	hf.pool.UnpinPage(pg.ID, true)

	if !updated {
		newRP, err := hf.insertRow(newRowData, opLSN)
		if err != nil {
			return dberr.Wrap(dberr.IOError, err, "re-insert updated row")
		}
		*ptr = *newRP
	}
	return nil
}
