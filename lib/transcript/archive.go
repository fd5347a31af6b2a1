// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transcript

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/klauspost/compress/zstd"

	"github.com/bureau-foundation/ticketbridge/lib/store"
	"github.com/bureau-foundation/ticketbridge/lib/ticket"
)

// Encoding is the value stored in transcripts.encoding.
const Encoding = "zstd+html"

// Error is a rendering or compression failure.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("transcript: %s: %v", e.Op, e.Err) }

func (e *Error) Unwrap() error { return e.Err }

// MediaFailure marks the error for the recovery supervisor.
func (e *Error) MediaFailure() bool { return true }

// zstd encoders and decoders are safe for concurrent EncodeAll and
// DecodeAll calls.
var (
	encoder *zstd.Encoder
	decoder *zstd.Decoder
)

func init() {
	var err error
	encoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		panic("transcript: zstd encoder initialization failed: " + err.Error())
	}
	decoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(64<<20))
	if err != nil {
		panic("transcript: zstd decoder initialization failed: " + err.Error())
	}
}

// Compress returns data compressed with zstd.
func Compress(data []byte) []byte {
	return encoder.EncodeAll(data, make([]byte, 0, len(data)/3))
}

// Decompress reverses Compress. rawSize is the expected length.
func Decompress(compressed []byte, rawSize int64) ([]byte, error) {
	result, err := decoder.DecodeAll(compressed, make([]byte, 0, rawSize))
	if err != nil {
		return nil, &Error{Op: "decompress", Err: err}
	}
	if int64(len(result)) != rawSize {
		return nil, &Error{Op: "decompress", Err: fmt.Errorf("got %d bytes, expected %d", len(result), rawSize)}
	}
	return result, nil
}

// Archiver renders and stores ticket transcripts.
type Archiver struct {
	store  *store.Store
	logger *slog.Logger
}

// NewArchiver creates an Archiver writing to s.
func NewArchiver(s *store.Store, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{store: s, logger: logger}
}

// Archive renders t's conversation and stores it, replacing any
// previous transcript of the ticket.
func (a *Archiver) Archive(ctx context.Context, t ticket.Ticket) (store.Transcript, error) {
	messages, err := a.store.Messages(ctx, t.ID)
	if err != nil {
		return store.Transcript{}, fmt.Errorf("transcript: ticket %d: %w", t.ID, err)
	}
	document, err := HTML(fmt.Sprintf("Ticket #%d", t.ID), Markdown(t, messages))
	if err != nil {
		return store.Transcript{}, fmt.Errorf("transcript: ticket %d: %w", t.ID, err)
	}

	transcript := store.Transcript{
		TicketID:     t.ID,
		Encoding:     Encoding,
		Body:         Compress(document),
		RawSize:      int64(len(document)),
		MessageCount: len(messages),
	}
	if err := a.store.SaveTranscript(ctx, transcript); err != nil {
		return store.Transcript{}, fmt.Errorf("transcript: ticket %d: %w", t.ID, err)
	}
	a.logger.Info("transcript archived",
		"ticket_id", t.ID,
		"messages", len(messages),
		"raw_size", transcript.RawSize,
		"stored_size", len(transcript.Body),
	)
	return transcript, nil
}

// Load returns the HTML document archived for a ticket.
func (a *Archiver) Load(ctx context.Context, ticketID int64) ([]byte, error) {
	transcript, err := a.store.GetTranscript(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("transcript: ticket %d: %w", ticketID, err)
	}
	if transcript.Encoding != Encoding {
		return nil, &Error{Op: "load", Err: fmt.Errorf("ticket %d has unsupported encoding %q", ticketID, transcript.Encoding)}
	}
	return Decompress(transcript.Body, transcript.RawSize)
}
