// Package sync implements the mail synchronization engine: one
// connection supervisor per account driving a fetch, parse, classify,
// index pipeline off IMAP IDLE notifications.
package sync

import (
	"context"
	"errors"
	"log/slog"
	gosync "sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/mailindex/internal/imap"
	"github.com/nhle/mailindex/internal/model"
)

// State is the connection supervisor's lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticating
	StateReady
	StateReconnecting
)

// String returns the state name for logs.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateReady:
		return "ready"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// errSessionDead reports a session that silently left the selected
// state without surfacing an error.
var errSessionDead = errors.New("session no longer selected")

// Session is one live connection to the mail server. The supervisor
// owns it exclusively and replaces it wholesale on every reconnect;
// no other component ever holds a reference to it.
type Session interface {
	// Authenticate logs the session in.
	Authenticate(ctx context.Context) error

	// Open selects the watched mailbox and primes the new-message
	// baseline.
	Open(ctx context.Context) (*imap.MailboxStatus, error)

	// IdleStart begins waiting for server notifications; the returned
	// stop function ends the wait.
	IdleStart() (func() error, error)

	// Noop issues a protocol no-op; failure means the connection is dead.
	Noop() error

	// Alive reports whether the mailbox is still selected.
	Alive() bool

	// FetchNew returns messages that arrived since the baseline, in
	// ascending UID order, advancing the baseline past them.
	FetchNew(ctx context.Context, limit int) ([]imap.RawMessage, error)

	Close() error
}

// Dialer opens a new transport connection. New-mail notifications for
// the eventual session are delivered as non-blocking sends on events.
type Dialer func(ctx context.Context, events chan<- struct{}) (Session, error)

// ProcessFunc runs the fetch pipeline for one raw message. An error
// fails only that message, never the connection.
type ProcessFunc func(ctx context.Context, msg imap.RawMessage) error

// Supervisor owns the connection lifecycle for one account: connect,
// authenticate, open mailbox, idle, and reconnect with a fixed backoff
// on any error or session end. Reconnect attempts never stop; there is
// no terminal failure state.
type Supervisor struct {
	account string
	dial    Dialer
	watcher *Watcher
	process ProcessFunc
	cfg     model.SyncConfig
	logger  *slog.Logger

	state atomic.Int32

	// OnTransition, when set before Start, observes every state change.
	// It is for logging and tests only, not part of the correctness
	// contract.
	OnTransition func(old, new State)

	mu      gosync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewSupervisor creates a supervisor for one account.
func NewSupervisor(
	account string,
	dial Dialer,
	watcher *Watcher,
	process ProcessFunc,
	cfg model.SyncConfig,
	logger *slog.Logger,
) *Supervisor {
	return &Supervisor{
		account: account,
		dial:    dial,
		watcher: watcher,
		process: process,
		cfg:     cfg,
		logger:  logger.With("component", "supervisor", "account", account),
	}
}

// Start launches the supervision loop. If a previous run is still
// active it is terminated first, so at most one connection per account
// is ever live.
func (s *Supervisor) Start(ctx context.Context) {
	s.Stop()

	s.mu.Lock()
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true
	done := s.done
	s.mu.Unlock()

	go s.run(runCtx, done)
}

// Stop terminates the supervision loop and waits for it to release the
// connection. Idempotent; the supervisor can be started again after.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	done := s.done
	s.running = false
	s.mu.Unlock()

	cancel()
	<-done
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// transition records a state change and notifies observers.
func (s *Supervisor) transition(next State) {
	old := State(s.state.Swap(int32(next)))
	if old == next {
		return
	}
	s.logger.Info("state transition", "from", old.String(), "to", next.String())
	if s.OnTransition != nil {
		s.OnTransition(old, next)
	}
}

// run drives connection episodes until the context is canceled. Every
// episode ends in an error (or cancellation); errors schedule the next
// attempt after the configured backoff.
func (s *Supervisor) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer s.transition(StateDisconnected)

	for {
		err := s.episode(ctx)
		if ctx.Err() != nil {
			return
		}

		s.transition(StateReconnecting)
		s.logger.Warn("connection lost, scheduling reconnect",
			"error", err, "delay", s.cfg.ReconnectDelay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.ReconnectDelay):
		}
	}
}

// episode runs one connection lifetime: dial, authenticate, open,
// then idle until something goes wrong. The session never outlives
// the episode.
func (s *Supervisor) episode(ctx context.Context) error {
	log := s.logger.With("conn", uuid.NewString()[:8])

	s.transition(StateConnecting)

	events := s.watcher.Install()
	defer s.watcher.Release()

	sess, err := s.dial(ctx, events)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := sess.Close(); closeErr != nil {
			log.Debug("closing session", "error", closeErr)
		}
	}()

	s.transition(StateAuthenticating)
	if err := sess.Authenticate(ctx); err != nil {
		return err
	}

	status, err := sess.Open(ctx)
	if err != nil {
		return err
	}

	s.transition(StateReady)
	log.Info("mailbox opened",
		"mailbox", status.Name, "messages", status.NumMessages)

	keepalive := time.NewTicker(s.cfg.KeepaliveInterval)
	defer keepalive.Stop()
	liveness := time.NewTicker(s.cfg.LivenessInterval)
	defer liveness.Stop()

	for {
		stopIdle, err := sess.IdleStart()
		if err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			_ = stopIdle()
			return ctx.Err()

		case <-s.watcher.Events():
			if err := stopIdle(); err != nil {
				return err
			}
			if err := s.drainNew(ctx, sess, log); err != nil {
				return err
			}

		case <-keepalive.C:
			if err := stopIdle(); err != nil {
				return err
			}
			if err := sess.Noop(); err != nil {
				return err
			}

		case <-liveness.C:
			if err := stopIdle(); err != nil {
				return err
			}
			if !sess.Alive() {
				return errSessionDead
			}
		}
	}
}

// drainNew fetches every message that arrived since the baseline and
// runs the pipeline on each in sequence order. Pipeline failures skip
// only the affected message; fetch failures kill the connection.
func (s *Supervisor) drainNew(ctx context.Context, sess Session, log *slog.Logger) error {
	msgs, err := sess.FetchNew(ctx, s.cfg.FetchBatchLimit)
	if err != nil {
		return err
	}

	for _, msg := range msgs {
		if err := s.process(ctx, msg); err != nil {
			log.Warn("message processing failed, skipping",
				"uid", msg.UID, "error", err)
		}
	}

	if len(msgs) > 0 {
		log.Info("processed new messages", "count", len(msgs))
	}
	return nil
}
