// Package session ties the transcript, gate, and backend client into one
// conversation session and enforces the single-exchange rule: while a stream
// is open or a gate transition is running, new submissions are rejected.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lidahealth/lida/internal/assistant"
	"github.com/lidahealth/lida/internal/gate"
	"github.com/lidahealth/lida/internal/store"
	"github.com/lidahealth/lida/internal/stream"
	"github.com/lidahealth/lida/internal/transcript"
)

// ErrBusy is returned while an exchange or gate transition is in flight.
var ErrBusy = errors.New("an exchange is already in flight")

// Notifier surfaces dismissible banners outside the transcript (registration
// failures, stream errors). A nil notifier drops them.
type Notifier func(message string)

// Config wires a session's collaborators.
type Config struct {
	SessionID   string
	Transcript  *transcript.Transcript
	Gate        *gate.Gate
	Client      *assistant.Client
	Tools       stream.ToolHandler
	Credentials store.CredentialStore
	Notify      Notifier
}

// Session is one conversation with the assistant.
type Session struct {
	mu   sync.Mutex
	busy bool

	sessionID string
	threadID  string
	tr        *transcript.Transcript
	gate      *gate.Gate
	client    *assistant.Client
	interp    *stream.Interpreter
	creds     store.CredentialStore
	notify    Notifier
}

// New creates a session and pre-authenticates it from the persisted
// credential when one exists for the session id.
func New(ctx context.Context, cfg Config) (*Session, error) {
	s := &Session{
		sessionID: cfg.SessionID,
		tr:        cfg.Transcript,
		gate:      cfg.Gate,
		client:    cfg.Client,
		creds:     cfg.Credentials,
		notify:    cfg.Notify,
	}
	s.interp = stream.NewInterpreter(cfg.Client, cfg.Transcript, cfg.Tools)

	if s.creds != nil {
		token, err := s.creds.Credential(ctx, s.sessionID)
		if err != nil {
			return nil, fmt.Errorf("load credential: %w", err)
		}
		if token != "" {
			s.client.SetCredential(token)
			s.gate.SetAuthenticated()
			slog.Info("session pre-authenticated from stored credential", "session_id", s.sessionID)
		}
	}

	return s, nil
}

// Transcript returns the session's transcript.
func (s *Session) Transcript() *transcript.Transcript { return s.tr }

// Gate returns the session's gate.
func (s *Session) Gate() *gate.Gate { return s.gate }

// Submit handles one user submission end to end: the gate transition,
// credential persistence, and the backend exchange when the gate forwards.
// Returns ErrBusy while a previous submission is still running; validation
// errors from the gate are safe to show inline.
func (s *Session) Submit(ctx context.Context, input string) error {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return ErrBusy
	}
	s.busy = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
	}()

	res, err := s.gate.Submit(ctx, input)
	if err != nil {
		return err
	}

	if res.Token != "" {
		s.adoptToken(ctx, res.Token)
	}
	if res.Notice != "" && s.notify != nil {
		s.notify(res.Notice)
	}
	if !res.HasForward {
		return nil
	}

	return s.exchange(ctx, res.Forward)
}

// Authenticate adopts a token obtained outside the gate (login) and opens
// the gate permanently.
func (s *Session) Authenticate(ctx context.Context, token string) {
	s.adoptToken(ctx, token)
	s.gate.SetAuthenticated()
}

func (s *Session) adoptToken(ctx context.Context, token string) {
	s.client.SetCredential(token)
	if s.creds == nil {
		return
	}
	if err := s.creds.SaveCredential(ctx, s.sessionID, token); err != nil {
		// The session stays authenticated in memory; only persistence
		// across restarts is lost.
		slog.Error("failed to persist credential", "session_id", s.sessionID, "error", err)
	}
}

// exchange runs one backend exchange. On failure the transcript keeps its
// partial content and input is re-enabled by the deferred busy reset.
func (s *Session) exchange(ctx context.Context, content string) error {
	if s.threadID == "" {
		threadID, err := s.client.CreateThread(ctx)
		if err != nil {
			slog.Error("create thread failed", "error", err)
			return fmt.Errorf("could not reach the assistant: %w", err)
		}
		s.threadID = threadID
		slog.Info("conversation thread created", "thread_id", threadID)
	}

	if err := s.interp.Exchange(ctx, s.threadID, content); err != nil {
		var runErr *stream.RunError
		if errors.As(err, &runErr) {
			slog.Error("assistant run failed", "thread_id", s.threadID, "reason", runErr.Reason)
			return fmt.Errorf("the assistant could not finish its reply: %w", err)
		}
		slog.Error("exchange stream failed", "thread_id", s.threadID, "error", err)
		return fmt.Errorf("connection to the assistant was interrupted: %w", err)
	}
	return nil
}
