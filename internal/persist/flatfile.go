// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EmberMUD Contributors

// Package persist is the dual-backend persistence gateway keeping the
// player record collection durable across restarts.
package persist

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/samber/oops"

	"github.com/embermud/embermud/internal/player"
)

// FlatFile stores the whole collection as a single JSON array of player
// records, dates as RFC 3339 strings.
type FlatFile struct {
	path string
}

// NewFlatFile creates a flat-file backend for the given path.
func NewFlatFile(path string) *FlatFile {
	return &FlatFile{path: path}
}

// Exists reports whether the save file is present.
func (f *FlatFile) Exists() bool {
	_, err := os.Stat(f.path)
	return err == nil
}

// LoadAll reads every record from the save file.
func (f *FlatFile) LoadAll() ([]*player.Record, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, oops.Code("PERSIST_FILE_READ_FAILED").
			With("path", f.path).
			Wrap(err)
	}

	var records []*player.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, oops.Code("PERSIST_FILE_CORRUPT").
			With("path", f.path).
			Wrap(err)
	}
	return records, nil
}

// SaveAll writes every record to the save file. The write goes through a
// temp file and rename so a crash mid-write cannot corrupt the previous
// save.
func (f *FlatFile) SaveAll(records []*player.Record) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return oops.Code("PERSIST_FILE_MARSHAL_FAILED").Wrap(err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return oops.Code("PERSIST_FILE_WRITE_FAILED").
			With("path", f.path).
			Wrap(err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return oops.Code("PERSIST_FILE_WRITE_FAILED").
			With("path", f.path).
			Wrap(err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return oops.Code("PERSIST_FILE_WRITE_FAILED").
			With("path", f.path).
			Wrap(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return oops.Code("PERSIST_FILE_WRITE_FAILED").
			With("path", f.path).
			Wrap(err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return oops.Code("PERSIST_FILE_WRITE_FAILED").
			With("path", f.path).
			Wrap(err)
	}
	return nil
}
