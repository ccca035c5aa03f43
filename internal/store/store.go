// Package store keeps compression runs so later calls can continue them.
//
// DESIGN: A Run is published as an immutable value. Writers clone the
// current run, apply their change and swap it in; readers always get a
// private copy. Writes to one run id are serialized by a run-scoped lock,
// writes to different ids proceed in parallel.
//
// Backends:
//   - MemoryStore: process-local map with an optional retention TTL
//   - SQLiteStore: durable runs in a SQLite file, logs as JSON columns
package store

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/compresr/prompt-pruner/internal/compression"
)

// Run is everything recorded for one compression run.
type Run struct {
	RunID          string                          `json:"run_id"`
	OriginalPrompt string                          `json:"original_prompt"`
	Compressed     *string                         `json:"compressed,omitempty"`
	Hybrid         *string                         `json:"hybrid,omitempty"`
	Log            []compression.IterationLogEntry `json:"log"`
	HybridLog      []compression.IterationLogEntry `json:"hybrid_log,omitempty"`
	Config         *compression.Config             `json:"config,omitempty"` // config of the prune that produced Compressed
	CreatedAt      time.Time                       `json:"created_at"`
	UpdatedAt      time.Time                       `json:"updated_at"`
}

// Clone returns a deep copy of r.
func (r *Run) Clone() *Run {
	if r == nil {
		return nil
	}
	c := *r
	c.Compressed = clonePtr(r.Compressed)
	c.Hybrid = clonePtr(r.Hybrid)
	c.Config = clonePtr(r.Config)
	c.Log = slices.Clone(r.Log)
	c.HybridLog = slices.Clone(r.HybridLog)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Store defines run storage.
type Store interface {
	// CreateOrGet returns the run with runID, or creates a fresh run for
	// original when runID is empty. An unknown runID is ErrRunNotFound.
	CreateOrGet(ctx context.Context, runID, original string) (*Run, error)

	// PutCompressed records a phrase-pruning result on an existing run.
	PutCompressed(ctx context.Context, runID, text string, log []compression.IterationLogEntry, cfg compression.Config) error

	// PutHybrid records a hybrid result on an existing run.
	PutHybrid(ctx context.Context, runID, text string, log []compression.IterationLogEntry) error

	// Get returns a copy of the run, or ErrRunNotFound.
	Get(ctx context.Context, runID string) (*Run, error)

	// Delete evicts the run. Deleting an unknown id is ErrRunNotFound.
	Delete(ctx context.Context, runID string) error

	// Close releases resources.
	Close() error
}

// NewRunID returns a fresh run id.
func NewRunID() string {
	return uuid.NewString()
}

func newRun(original string, now time.Time) *Run {
	return &Run{
		RunID:          NewRunID(),
		OriginalPrompt: original,
		Log:            []compression.IterationLogEntry{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func notFound(runID string) error {
	return compression.Errorf(compression.StageStore, compression.ErrRunNotFound, nil, "run %q not found", runID)
}

func storeErr(cause error, format string, args ...any) error {
	return compression.Errorf(compression.StageStore, nil, cause, format, args...)
}

func applyCompressed(r *Run, text string, log []compression.IterationLogEntry, cfg compression.Config, now time.Time) {
	r.Compressed = &text
	r.Log = slices.Clone(log)
	if r.Log == nil {
		r.Log = []compression.IterationLogEntry{}
	}
	r.Config = &cfg
	r.UpdatedAt = now
}

func applyHybrid(r *Run, text string, log []compression.IterationLogEntry, now time.Time) {
	r.Hybrid = &text
	r.HybridLog = slices.Clone(log)
	r.UpdatedAt = now
}

// Options selects and configures a backend.
type Options struct {
	Type string        // "memory" or "sqlite"
	TTL  time.Duration // memory retention, 0 = unbounded
	Path string        // sqlite file
}

// Open creates the backend named by opts.Type.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Type {
	case "memory":
		return NewMemoryStore(opts.TTL), nil
	case "sqlite":
		s, err := OpenSQLite(ctx, opts.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store type: %q", opts.Type)
	}
}
