// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EmberMUD Contributors

package persist_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/embermud/embermud/internal/persist"
	"github.com/embermud/embermud/internal/player"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeFile is an in-memory FileBackend.
type fakeFile struct {
	mu      sync.Mutex
	records []*player.Record
	present bool
	loadErr error
	saveErr error
	saves   int
}

func (f *fakeFile) Exists() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.present
}

func (f *fakeFile) LoadAll() ([]*player.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.records, nil
}

func (f *fakeFile) SaveAll(records []*player.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if f.saveErr != nil {
		return f.saveErr
	}
	f.records = records
	f.present = true
	return nil
}

func (f *fakeFile) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves
}

// fakeDB is an in-memory DatabaseBackend keyed by username.
type fakeDB struct {
	mu      sync.Mutex
	rows    map[string]*player.Record
	loadErr error
	upserts int
}

func newFakeDB() *fakeDB {
	return &fakeDB{rows: make(map[string]*player.Record)}
}

func (d *fakeDB) LoadAll(ctx context.Context) ([]*player.Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loadErr != nil {
		return nil, d.loadErr
	}
	out := make([]*player.Record, 0, len(d.rows))
	for _, rec := range d.rows {
		out = append(out, rec)
	}
	return out, nil
}

func (d *fakeDB) UpsertOne(ctx context.Context, rec *player.Record) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rows[rec.Username] = rec
	d.upserts++
	return nil
}

func (d *fakeDB) upsertCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.upserts
}

func TestParseMode(t *testing.T) {
	for _, valid := range []string{"file", "database", "auto"} {
		mode, err := persist.ParseMode(valid)
		require.NoError(t, err)
		assert.Equal(t, persist.Mode(valid), mode)
	}

	_, err := persist.ParseMode("cloud")
	assert.Error(t, err)
}

func TestNewGateway_Validation(t *testing.T) {
	file := &fakeFile{}
	db := newFakeDB()

	tests := []struct {
		name    string
		opts    persist.Options
		wantErr bool
	}{
		{"file mode needs file backend", persist.Options{Mode: persist.ModeFile}, true},
		{"database mode needs db backend", persist.Options{Mode: persist.ModeDatabase}, true},
		{"auto mode needs both", persist.Options{Mode: persist.ModeAuto, File: file}, true},
		{"unknown mode", persist.Options{Mode: "cloud", File: file, DB: db}, true},
		{"valid file mode", persist.Options{Mode: persist.ModeFile, File: file}, false},
		{"valid database mode", persist.Options{Mode: persist.ModeDatabase, DB: db}, false},
		{"valid auto mode", persist.Options{Mode: persist.ModeAuto, File: file, DB: db}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := persist.NewGateway(tt.opts)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			g.Close()
		})
	}
}

func TestGateway_FileMode(t *testing.T) {
	file := &fakeFile{}
	g, err := persist.NewGateway(persist.Options{Mode: persist.ModeFile, File: file})
	require.NoError(t, err)
	defer g.Close()

	assert.Empty(t, g.Load(context.Background()))

	g.SaveAll([]*player.Record{player.NewRecord("alice")})

	loaded := g.Load(context.Background())
	require.Len(t, loaded, 1)
	assert.Equal(t, "alice", loaded[0].Username)
}

func TestGateway_DatabaseMode(t *testing.T) {
	t.Run("saves are written behind", func(t *testing.T) {
		db := newFakeDB()
		g, err := persist.NewGateway(persist.Options{Mode: persist.ModeDatabase, DB: db})
		require.NoError(t, err)
		defer g.Close()

		g.SaveAll([]*player.Record{player.NewRecord("alice"), player.NewRecord("bob")})
		require.NoError(t, g.Flush(context.Background()))

		assert.Equal(t, 2, db.upsertCount())

		loaded := g.Load(context.Background())
		assert.Len(t, loaded, 2)
	})

	t.Run("load failure yields empty collection", func(t *testing.T) {
		db := newFakeDB()
		db.loadErr = errors.New("connection refused")
		g, err := persist.NewGateway(persist.Options{Mode: persist.ModeDatabase, DB: db})
		require.NoError(t, err)
		defer g.Close()

		assert.Empty(t, g.Load(context.Background()))
	})
}

func TestGateway_AutoMode(t *testing.T) {
	t.Run("prefers the database", func(t *testing.T) {
		db := newFakeDB()
		db.rows["alice"] = player.NewRecord("alice")
		file := &fakeFile{present: true, records: []*player.Record{player.NewRecord("stale")}}

		g, err := persist.NewGateway(persist.Options{Mode: persist.ModeAuto, File: file, DB: db})
		require.NoError(t, err)
		defer g.Close()

		loaded := g.Load(context.Background())
		require.Len(t, loaded, 1)
		assert.Equal(t, "alice", loaded[0].Username)
	})

	t.Run("falls back to the flat file on database failure", func(t *testing.T) {
		db := newFakeDB()
		db.loadErr = errors.New("connection refused")
		file := &fakeFile{present: true, records: []*player.Record{player.NewRecord("backup")}}

		g, err := persist.NewGateway(persist.Options{Mode: persist.ModeAuto, File: file, DB: db})
		require.NoError(t, err)
		defer g.Close()

		loaded := g.Load(context.Background())
		require.Len(t, loaded, 1)
		assert.Equal(t, "backup", loaded[0].Username)
	})

	t.Run("saves hit both backends", func(t *testing.T) {
		db := newFakeDB()
		file := &fakeFile{}

		g, err := persist.NewGateway(persist.Options{Mode: persist.ModeAuto, File: file, DB: db})
		require.NoError(t, err)
		defer g.Close()

		g.SaveAll([]*player.Record{player.NewRecord("alice")})
		require.NoError(t, g.Flush(context.Background()))

		assert.Equal(t, 1, file.saveCount())
		assert.Equal(t, 1, db.upsertCount())
	})
}

func TestGateway_TestMode(t *testing.T) {
	db := newFakeDB()
	file := &fakeFile{}

	g, err := persist.NewGateway(persist.Options{
		Mode:     persist.ModeAuto,
		File:     file,
		DB:       db,
		TestMode: true,
	})
	require.NoError(t, err)
	defer g.Close()

	g.SaveAll([]*player.Record{player.NewRecord("alice")})
	require.NoError(t, g.Flush(context.Background()))

	assert.Zero(t, file.saveCount())
	assert.Zero(t, db.upsertCount())
}

func TestGateway_Fixtures(t *testing.T) {
	file := &fakeFile{present: true, records: []*player.Record{player.NewRecord("ignored")}}
	fixtures := []*player.Record{player.NewRecord("fixture_one")}

	g, err := persist.NewGateway(persist.Options{
		Mode:     persist.ModeFile,
		File:     file,
		Fixtures: fixtures,
	})
	require.NoError(t, err)
	defer g.Close()

	loaded := g.Load(context.Background())
	require.Len(t, loaded, 1)
	assert.Equal(t, "fixture_one", loaded[0].Username)

	// Fixtures are cloned on the way out.
	loaded[0].Stats.Health = 1
	again := g.Load(context.Background())
	assert.NotEqual(t, 1, again[0].Stats.Health)
}

func TestGateway_FlushContextCancelled(t *testing.T) {
	db := newFakeDB()
	g, err := persist.NewGateway(persist.Options{Mode: persist.ModeDatabase, DB: db})
	require.NoError(t, err)
	defer g.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Either the barrier already drained or the cancelled context won; both
	// are acceptable, the call just must not hang.
	done := make(chan error, 1)
	go func() { done <- g.Flush(ctx) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Flush did not return with a cancelled context")
	}
}

func TestGateway_CloseDrainsQueue(t *testing.T) {
	db := newFakeDB()
	g, err := persist.NewGateway(persist.Options{Mode: persist.ModeDatabase, DB: db})
	require.NoError(t, err)

	g.SaveAll([]*player.Record{player.NewRecord("alice")})
	g.Close()

	assert.Equal(t, 1, db.upsertCount())

	// Close is idempotent.
	g.Close()
}
