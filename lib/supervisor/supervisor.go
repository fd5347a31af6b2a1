// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/ticketbridge/lib/clock"
	"github.com/bureau-foundation/ticketbridge/lib/process"
	"github.com/bureau-foundation/ticketbridge/lib/watchdog"
)

const component = "supervisor"

// Config holds the parameters for New.
type Config struct {
	Policy Policy

	// StatePath is the watchdog file holding RestartState. Empty keeps
	// the state in memory only.
	StatePath string

	// CrashLogPath receives one JSON crash report per line. Empty
	// disables the file; reports are still logged.
	CrashLogPath string

	// Exit defaults to process.Exit.
	Exit process.ExitFunc

	Clock  clock.Clock
	Logger *slog.Logger
}

// CrashReport is the record written for every handled fault.
type CrashReport struct {
	ID             string         `json:"id"`
	Timestamp      time.Time      `json:"timestamp"`
	Source         string         `json:"source"`
	Classification Classification `json:"classification"`
	Message        string         `json:"message"`
	Stack          string         `json:"stack,omitempty"`
	Uptime         time.Duration  `json:"uptime"`
	HeapAlloc      uint64         `json:"heap_alloc"`
	Goroutines     int            `json:"goroutines"`
	Decision       Decision       `json:"decision"`
}

type resource struct {
	name   string
	closer io.Closer
}

// Supervisor funnels unhandled faults into the restart policy. It is
// safe for concurrent use.
type Supervisor struct {
	policy       Policy
	statePath    string
	crashLogPath string
	exit         process.ExitFunc
	clock        clock.Clock
	logger       *slog.Logger
	startedAt    time.Time

	mu         sync.Mutex
	state      RestartState
	resources  []resource
	restarting bool
}

// New creates a Supervisor, loading restart state left by a previous
// run if it is recent enough to matter.
func New(cfg Config) (*Supervisor, error) {
	s := &Supervisor{
		policy:       cfg.Policy.withDefaults(),
		statePath:    cfg.StatePath,
		crashLogPath: cfg.CrashLogPath,
		exit:         cfg.Exit,
		clock:        cfg.Clock,
		logger:       cfg.Logger,
	}
	if s.exit == nil {
		s.exit = process.Exit
	}
	if s.clock == nil {
		s.clock = clock.Real()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.startedAt = s.clock.Now()

	if s.statePath != "" {
		// State older than an hour cannot affect any decision: the hour
		// window has reset and no restart is rapid.
		envelope, ok, err := watchdog.Check[RestartState](s.statePath, hourWindow+s.policy.RapidWindow, s.startedAt)
		if err != nil {
			return nil, fmt.Errorf("supervisor: loading restart state: %w", err)
		}
		if ok {
			s.state = envelope.State
			s.logger.Info("restart state loaded",
				"attempt_count", s.state.AttemptCount,
				"attempts_this_hour", s.state.AttemptsThisHour,
				"current_backoff", s.state.CurrentBackoff,
			)
		}
	}
	return s, nil
}

// State returns the current restart state.
func (s *Supervisor) State() RestartState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Register adds a resource closed, in reverse registration order,
// before a restart.
func (s *Supervisor) Register(name string, closer io.Closer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resources = append(s.resources, resource{name: name, closer: closer})
}

// Guard runs fn and hands any panic to Handle.
func (s *Supervisor) Guard(source string, fn func()) {
	defer func() {
		if value := recover(); value != nil {
			s.Handle(&Fault{Source: source, Err: &PanicError{Value: value}, Stack: debug.Stack()})
		}
	}()
	fn()
}

// Go runs fn on a new goroutine. A panic, or an error other than the
// context ending, is handed to Handle.
func (s *Supervisor) Go(ctx context.Context, source string, fn func(context.Context) error) {
	go s.Guard(source, func() {
		err := fn(ctx)
		if err == nil || (errors.Is(err, context.Canceled) && ctx.Err() != nil) {
			return
		}
		s.Report(source, err)
	})
}

// Report hands a fatal error to Handle.
func (s *Supervisor) Report(source string, err error) Decision {
	return s.Handle(&Fault{Source: source, Err: err})
}

// Handle records fault and, unless the policy suppresses it, restarts
// the process. It returns the decision for callers that survive it:
// tests with an injected Exit, and suppressed restarts.
func (s *Supervisor) Handle(fault *Fault) (decision Decision) {
	defer func() {
		if value := recover(); value != nil {
			s.logger.Error("supervisor failed while handling a fault",
				"panic", fmt.Sprint(value),
				"source", fault.Source,
			)
		}
	}()

	now := s.clock.Now()
	classification := Classify(fault.Err)

	s.mu.Lock()
	if s.restarting {
		s.mu.Unlock()
		s.logger.Error("fault during restart",
			"source", fault.Source,
			"classification", string(classification),
			"error", fault.Err,
		)
		return Decision{Reason: "restart already in progress"}
	}
	next, decision := s.state.Next(s.policy, now)
	s.state = next
	if decision.Restart {
		s.restarting = true
	}
	resources := append([]resource(nil), s.resources...)
	s.mu.Unlock()

	report := s.crashReport(fault, classification, now, decision)
	s.logger.Error("unhandled fault",
		"crash_id", report.ID,
		"source", report.Source,
		"classification", string(report.Classification),
		"error", report.Message,
		"uptime", report.Uptime,
		"restart", decision.Restart,
		"backoff", decision.Backoff,
		"reason", decision.Reason,
	)
	s.appendCrashLog(report)
	s.persistState(next, now)

	if !decision.Restart {
		s.logger.Error("restart suppressed", "reason", decision.Reason, "attempts_this_hour", next.AttemptsThisHour)
		return decision
	}

	for i := len(resources) - 1; i >= 0; i-- {
		s.closeResource(resources[i])
	}
	<-s.clock.After(decision.Backoff)
	s.logger.Warn("exiting for restart", "attempt", next.AttemptCount)
	s.exit(1)
	return decision
}

func (s *Supervisor) crashReport(fault *Fault, classification Classification, now time.Time, decision Decision) CrashReport {
	var memory runtime.MemStats
	runtime.ReadMemStats(&memory)
	report := CrashReport{
		ID:             uuid.NewString(),
		Timestamp:      now.UTC(),
		Source:         fault.Source,
		Classification: classification,
		Uptime:         now.Sub(s.startedAt),
		HeapAlloc:      memory.HeapAlloc,
		Goroutines:     runtime.NumGoroutine(),
		Decision:       decision,
	}
	if fault.Err != nil {
		report.Message = fault.Err.Error()
	}
	if len(fault.Stack) > 0 {
		report.Stack = string(fault.Stack)
	}
	return report
}

func (s *Supervisor) appendCrashLog(report CrashReport) {
	if s.crashLogPath == "" {
		return
	}
	line, err := json.Marshal(report)
	if err != nil {
		s.logger.Error("encoding crash report", "crash_id", report.ID, "error", err)
		return
	}
	file, err := os.OpenFile(s.crashLogPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		s.logger.Error("opening crash log", "path", s.crashLogPath, "error", err)
		return
	}
	defer file.Close()
	if _, err := file.Write(append(line, '\n')); err != nil {
		s.logger.Error("writing crash log", "path", s.crashLogPath, "error", err)
	}
}

func (s *Supervisor) persistState(state RestartState, now time.Time) {
	if s.statePath == "" {
		return
	}
	err := watchdog.Write(s.statePath, watchdog.Envelope[RestartState]{
		Component: component,
		Timestamp: now.UTC(),
		State:     state,
	})
	if err != nil {
		s.logger.Error("persisting restart state", "path", s.statePath, "error", err)
	}
}

func (s *Supervisor) closeResource(r resource) {
	defer func() {
		if value := recover(); value != nil {
			s.logger.Error("resource panicked while closing", "resource", r.name, "panic", fmt.Sprint(value))
		}
	}()
	if err := r.closer.Close(); err != nil {
		s.logger.Warn("closing resource before restart", "resource", r.name, "error", err)
	}
}
