// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool is the SQLite connection pool behind the ticket
// store and the earnings ledger.
//
// It wraps zombiezen.com/go/sqlite's sqlitex.Pool and applies one set of
// pragmas to every connection: WAL journaling, synchronous=NORMAL,
// a 5 second busy timeout, an 8 MB page cache and in-memory temp
// storage. Foreign keys stay off; ledger rows deliberately outlive the
// tickets they reference.
//
// Callers either Take/Put connections directly or go through [Pool.Do],
// which retries work that failed with a transient SQLite condition
// (busy, locked, I/O error, cannot open) using capped exponential
// backoff with full jitter. Constraint violations and every other error
// are returned on the first attempt. When retries are exhausted the
// error matches [ErrStorageConnectivity].
//
//	err := pool.Do(ctx, func(conn *sqlite.Conn) (err error) {
//	    endTransaction, err := sqlitex.ImmediateTransaction(conn)
//	    if err != nil {
//	        return err
//	    }
//	    defer endTransaction(&err)
//	    return sqlitex.Execute(conn, query, &sqlitex.ExecOptions{Args: args})
//	})
package sqlitepool
