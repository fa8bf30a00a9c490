package engine

import "go.uber.org/zap"

// maybeCheckpointLocked runs every checkpointEvery committed transactions:
// flush covered dirty pages, then record the checkpoint LSN and the set of
// still in-flight transactions so recovery's Analysis pass can start later
// in the log instead of at LSN 0.
func (e *StorageEngine) maybeCheckpointLocked() {
	e.opsSinceCheckpoint++
	if e.opsSinceCheckpoint < checkpointEvery {
		return
	}
	e.opsSinceCheckpoint = 0

	lsn := e.wal.GetFlushedLSN()
	if err := e.pool.Checkpoint(lsn); err != nil {
		e.log.Warn("checkpoint page flush failed", zap.Error(err))
		return
	}

	var inFlight []uint64
	for _, t := range e.txns.ActiveTransactions() {
		inFlight = append(inFlight, t.ID)
	}
	if err := e.ckpt.Save(lsn, e.currDbName, inFlight); err != nil {
		e.log.Warn("checkpoint save failed", zap.Error(err))
	}
}
