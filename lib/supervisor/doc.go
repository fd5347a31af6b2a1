// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package supervisor is the process-wide destination for failures that
// nothing else handled: panics in goroutines and fatal errors reported
// by long-running loops.
//
// [Supervisor.Handle] classifies the fault, writes a crash report to
// the log and to an append-only JSON-lines file, and consults the
// [RestartState] to decide whether to restart. The restart state is
// persisted through lib/watchdog so it survives the exit it causes. A
// restart closes the registered resources, waits out the backoff, and
// exits with status 1 for the service manager to relaunch.
//
// Restarts are suppressed once [Policy.MaxAttemptsPerHour] is reached
// within the current hour window, and when the process is crashing
// rapidly with the backoff already at its cap. Rapid crashes double the
// backoff; a crash long after the previous restart resets it.
//
// Handle never panics. Failures inside it (an unwritable crash log, a
// resource that fails to close) are logged and skipped.
package supervisor
