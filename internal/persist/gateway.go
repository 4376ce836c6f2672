// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EmberMUD Contributors

package persist

import (
	"context"
	"log/slog"

	"github.com/samber/oops"

	"github.com/embermud/embermud/internal/player"
)

// Mode selects which backends the gateway uses. Resolved once at startup.
type Mode string

// Backend modes.
const (
	// ModeFile reads and writes only the flat file.
	ModeFile Mode = "file"
	// ModeDatabase reads and writes only the relational backend. Loads do
	// not fall back on failure; saves are asynchronous.
	ModeDatabase Mode = "database"
	// ModeAuto loads from the relational backend with flat-file fallback,
	// and saves to both: relational asynchronously, flat file synchronously.
	ModeAuto Mode = "auto"
)

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeFile, ModeDatabase, ModeAuto:
		return Mode(s), nil
	default:
		return "", oops.Code("PERSIST_INVALID_MODE").
			With("mode", s).
			Errorf("storage mode must be %q, %q or %q", ModeFile, ModeDatabase, ModeAuto)
	}
}

// FileBackend is the flat-file store the gateway writes synchronously.
type FileBackend interface {
	Exists() bool
	LoadAll() ([]*player.Record, error)
	SaveAll(records []*player.Record) error
}

// DatabaseBackend is the relational store. UpsertOne replaces the full row
// keyed by username.
type DatabaseBackend interface {
	LoadAll(ctx context.Context) ([]*player.Record, error)
	UpsertOne(ctx context.Context, rec *player.Record) error
}

// Options configures a Gateway.
type Options struct {
	Mode Mode
	File FileBackend
	DB   DatabaseBackend

	// TestMode suppresses all writes; reads are unaffected.
	TestMode bool

	// Fixtures, when non-nil, short-circuits Load entirely and becomes the
	// loaded collection (test fixtures/snapshots).
	Fixtures []*player.Record

	// QueueSize bounds the write-behind queue for relational saves.
	QueueSize int
}

const defaultQueueSize = 64

type saveJob struct {
	records []*player.Record
	done    chan struct{} // non-nil only for flush barriers
}

// Gateway routes loads and saves to the configured backends.
//
// Relational saves go through a write-behind queue serviced by a single
// worker goroutine: callers never block on the database and must not assume
// durability on return. Flush provides an opt-in barrier for callers that
// need one. Flat-file saves are synchronous, so in auto mode a crash right
// after a mutation still leaves a durable backup copy.
type Gateway struct {
	mode     Mode
	file     FileBackend
	db       DatabaseBackend
	testMode bool
	fixtures []*player.Record

	queue  chan saveJob
	stop   chan struct{}
	doneCh chan struct{}
}

// NewGateway creates a gateway and, when a database backend is configured,
// starts its write-behind worker. Callers own Close.
func NewGateway(opts Options) (*Gateway, error) {
	switch opts.Mode {
	case ModeFile:
		if opts.File == nil {
			return nil, oops.Code("PERSIST_MISCONFIGURED").Errorf("file mode requires a file backend")
		}
	case ModeDatabase:
		if opts.DB == nil {
			return nil, oops.Code("PERSIST_MISCONFIGURED").Errorf("database mode requires a database backend")
		}
	case ModeAuto:
		if opts.File == nil || opts.DB == nil {
			return nil, oops.Code("PERSIST_MISCONFIGURED").Errorf("auto mode requires both backends")
		}
	default:
		return nil, oops.Code("PERSIST_INVALID_MODE").Errorf("unknown storage mode %q", opts.Mode)
	}

	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	g := &Gateway{
		mode:     opts.Mode,
		file:     opts.File,
		db:       opts.DB,
		testMode: opts.TestMode,
		fixtures: opts.Fixtures,
		queue:    make(chan saveJob, queueSize),
		stop:     make(chan struct{}),
		doneCh:   make(chan struct{}),
	}

	if g.db != nil && g.mode != ModeFile {
		go g.worker()
	} else {
		close(g.doneCh)
	}
	return g, nil
}

// Mode returns the resolved backend mode.
func (g *Gateway) Mode() Mode {
	return g.mode
}

// Load reads the full record collection per the mode's rules. Load errors
// are absorbed: database-only failures leave the collection empty (logged),
// auto mode falls back to the flat file.
func (g *Gateway) Load(ctx context.Context) []*player.Record {
	if g.fixtures != nil {
		slog.Info("loading players from fixture records", "players", len(g.fixtures))
		out := make([]*player.Record, len(g.fixtures))
		for i, rec := range g.fixtures {
			out[i] = rec.Clone()
		}
		return out
	}

	switch g.mode {
	case ModeFile:
		return g.loadFile()

	case ModeDatabase:
		records, err := g.db.LoadAll(ctx)
		if err != nil {
			slog.Error("database load failed, starting with empty player collection", "error", err)
			return nil
		}
		slog.Info("players loaded from database", "players", len(records))
		return records

	case ModeAuto:
		records, err := g.db.LoadAll(ctx)
		if err != nil {
			slog.Warn("database load failed, falling back to flat file", "error", err)
			return g.loadFile()
		}
		slog.Info("players loaded from database", "players", len(records))
		return records
	}
	return nil
}

func (g *Gateway) loadFile() []*player.Record {
	if !g.file.Exists() {
		slog.Info("no save file, starting with empty player collection")
		return nil
	}
	records, err := g.file.LoadAll()
	if err != nil {
		slog.Error("save file load failed, starting with empty player collection", "error", err)
		return nil
	}
	slog.Info("players loaded from save file", "players", len(records))
	return records
}

// SaveAll persists the full record collection. Flat-file writes happen
// synchronously; relational writes are queued for the worker. Failures are
// logged, never retried, and never surfaced to the caller: the in-memory
// mutation that triggered the save has already succeeded.
func (g *Gateway) SaveAll(records []*player.Record) {
	if g.testMode {
		return
	}

	if g.db != nil && g.mode != ModeFile {
		select {
		case g.queue <- saveJob{records: records}:
		case <-g.stop:
		default:
			saveDropped.Inc()
			slog.Warn("write-behind queue full, dropping database save", "players", len(records))
		}
	}

	if g.file != nil && g.mode != ModeDatabase {
		if err := g.file.SaveAll(records); err != nil {
			saveFailures.WithLabelValues("file").Inc()
			slog.Error("save file write failed", "error", err)
		}
	}
}

// Flush blocks until every save queued before the call has been attempted
// against the database. Callers that need a durability guarantee before
// acknowledging an irreversible action opt in here.
func (g *Gateway) Flush(ctx context.Context) error {
	if g.db == nil || g.mode == ModeFile {
		return nil
	}
	barrier := saveJob{done: make(chan struct{})}
	select {
	case g.queue <- barrier:
	case <-g.stop:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-barrier.done:
		return nil
	case <-g.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the write-behind worker after draining queued saves.
func (g *Gateway) Close() {
	select {
	case <-g.stop:
		return
	default:
	}
	close(g.stop)
	<-g.doneCh
}

func (g *Gateway) worker() {
	defer close(g.doneCh)
	for {
		select {
		case job := <-g.queue:
			g.runJob(job)
		case <-g.stop:
			// Drain what was queued before shutdown.
			for {
				select {
				case job := <-g.queue:
					g.runJob(job)
				default:
					return
				}
			}
		}
	}
}

func (g *Gateway) runJob(job saveJob) {
	if job.done != nil {
		close(job.done)
		return
	}
	ctx := context.Background()
	for _, rec := range job.records {
		if err := g.db.UpsertOne(ctx, rec); err != nil {
			saveFailures.WithLabelValues("database").Inc()
			slog.Error("database upsert failed",
				"username", rec.Username,
				"error", err,
			)
		}
	}
}
