// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package watchdog keeps small pieces of process state in files that
// survive a crash and the restart that follows it.
//
// The recovery supervisor writes its restart counters here before it
// exits so that the relaunched process can tell a rapid crash loop
// from an isolated failure. Each file holds an [Envelope]: the owning
// component, the time it was written, and the caller's state as JSON.
//
// Files are written atomically (temporary file, fsync, rename, fsync of
// the parent directory) so a reader never sees a partial write. [Check]
// ignores files older than a maximum age so state left behind by an
// unrelated, long-past run is not mistaken for a crash loop.
package watchdog
