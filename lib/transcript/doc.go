// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transcript archives a ticket's conversation when the ticket
// enters the transcript status.
//
// The archive is a standalone HTML document rendered from Markdown
// with goldmark (GFM tables and autolinks, raw HTML in message bodies
// dropped), compressed with zstd, and stored in the transcripts table.
// Rendering and compression failures are media failures: they satisfy
// the MediaFailure interface the recovery supervisor classifies by.
package transcript
