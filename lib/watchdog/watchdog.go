// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package watchdog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Envelope wraps persisted state with its provenance.
type Envelope[T any] struct {
	// Component names the writer ("supervisor").
	Component string `json:"component"`

	// Timestamp is when the state was written. Check compares it with
	// the caller's notion of now.
	Timestamp time.Time `json:"timestamp"`

	State T `json:"state"`
}

// Write atomically replaces the file at path with envelope. The parent
// directory must exist; the file is created with mode 0600.
func Write[T any](path string, envelope Envelope[T]) error {
	data, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return fmt.Errorf("watchdog: marshaling %s state: %w", envelope.Component, err)
	}
	data = append(data, '\n')

	temporaryPath := path + ".tmp"
	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("watchdog: creating temporary file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("watchdog: writing temporary file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("watchdog: syncing temporary file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("watchdog: closing temporary file: %w", err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("watchdog: renaming into place: %w", err)
	}

	// The rename is only durable once the directory entry is flushed.
	if directory, err := os.Open(filepath.Dir(path)); err == nil {
		directory.Sync()
		directory.Close()
	}
	return nil
}

// Read parses the file at path. A missing file yields an error
// wrapping os.ErrNotExist.
func Read[T any](path string) (Envelope[T], error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Envelope[T]{}, err
	}
	var envelope Envelope[T]
	if err := json.Unmarshal(data, &envelope); err != nil {
		return Envelope[T]{}, fmt.Errorf("watchdog: parsing %s: %w", path, err)
	}
	return envelope, nil
}

// Check returns the envelope at path and true when it exists and was
// written within maxAge of now. A missing or stale file returns false
// and no error; any other failure is returned so that "no state" and
// "unreadable state" stay distinguishable.
func Check[T any](path string, maxAge time.Duration, now time.Time) (Envelope[T], bool, error) {
	envelope, err := Read[T](path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Envelope[T]{}, false, nil
		}
		return Envelope[T]{}, false, err
	}
	if now.Sub(envelope.Timestamp) > maxAge {
		return Envelope[T]{}, false, nil
	}
	return envelope, true, nil
}

// Clear removes the file at path. A missing file is not an error.
func Clear(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("watchdog: removing %s: %w", path, err)
	}
	return nil
}
