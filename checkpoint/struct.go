package checkpoint

import (
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Manager owns the single most-recent checkpoint file for a database.
type Manager struct {
	dir  string
	path string
	fs   afero.Fs
	log  *zap.Logger
	mu   sync.RWMutex
}

// Checkpoint is a recovery point: every dirty page with LSN <= LSN has
// already been flushed, and every txn id in InFlightTxns was still active
// when the checkpoint was taken (spec.md §4.8's "CHECKPOINT record listing
// in-flight transactions").
type Checkpoint struct {
	ID           uuid.UUID `json:"id"`
	LSN          uint64    `json:"lsn"`
	Timestamp    int64     `json:"timestamp"`
	Database     string    `json:"database"`
	InFlightTxns []uint64  `json:"in_flight_txns,omitempty"`
}
