package sync

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	gosync "sync"
	"time"

	"github.com/nhle/mailindex/internal/classify"
	"github.com/nhle/mailindex/internal/imap"
	"github.com/nhle/mailindex/internal/model"
	"github.com/nhle/mailindex/internal/store"
)

// Engine wires the connection supervisors, parser, classifier, and
// index writer into one pipeline with an explicit, ordered startup
// sequence: ensure schema, warm the classifier, start supervisors.
type Engine struct {
	cfg        *model.AppConfig
	store      store.Store
	classifier *classify.Classifier
	logger     *slog.Logger

	schemaOnce gosync.Once
	schemaErr  error

	mu          gosync.Mutex
	supervisors []*Supervisor
	running     bool
}

// NewEngine creates an engine over the given store and classifier.
func NewEngine(
	cfg *model.AppConfig,
	s store.Store,
	classifier *classify.Classifier,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		cfg:        cfg,
		store:      s,
		classifier: classifier,
		logger:     logger.With("component", "engine"),
	}
}

// Start runs the initialization sequence and launches one supervisor
// per configured account. A schema failure refuses startup; a
// classifier warm-up failure is logged and retried lazily per message.
// Idempotent: a running engine is left untouched.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return nil
	}

	if err := e.ensureSchema(ctx); err != nil {
		return fmt.Errorf("ensuring index schema: %w", err)
	}

	if err := e.classifier.Warm(ctx); err != nil {
		e.logger.Warn("classifier warm-up failed, will retry lazily", "error", err)
	}

	if len(e.supervisors) == 0 {
		for _, account := range e.cfg.Accounts {
			e.supervisors = append(e.supervisors, e.newSupervisor(account))
		}
	}

	for _, sup := range e.supervisors {
		sup.Start(ctx)
	}
	e.running = true

	e.logger.Info("engine started", "accounts", len(e.supervisors))
	return nil
}

// Stop tears down every supervisor and its watcher subscription,
// releasing all connections. Idempotent; Start may be called again.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return
	}

	for _, sup := range e.supervisors {
		sup.Stop()
	}
	e.running = false

	e.logger.Info("engine stopped")
}

// Supervisors exposes the per-account supervisors for status reporting.
func (e *Engine) Supervisors() []*Supervisor {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Supervisor(nil), e.supervisors...)
}

// ensureSchema creates the index schema at most once per engine.
func (e *Engine) ensureSchema(ctx context.Context) error {
	e.schemaOnce.Do(func() {
		e.schemaErr = e.store.EnsureSchema(ctx)
	})
	return e.schemaErr
}

// newSupervisor builds the supervisor, watcher, and pipeline closure
// for one account.
func (e *Engine) newSupervisor(account model.AccountConfig) *Supervisor {
	client := imap.NewClient(account)
	watcher := NewWatcher()

	dial := func(ctx context.Context, events chan<- struct{}) (Session, error) {
		return client.Dial(ctx, events)
	}

	process := func(ctx context.Context, msg imap.RawMessage) error {
		return e.processMessage(ctx, account, msg)
	}

	return NewSupervisor(
		account.Name, dial, watcher, process, e.cfg.Sync, e.logger,
	)
}

// processMessage runs one message through parse, classify, and index.
// A failure at any stage aborts only this message.
func (e *Engine) processMessage(
	ctx context.Context,
	account model.AccountConfig,
	msg imap.RawMessage,
) error {
	parsed, err := imap.ParseMessage(msg.Raw)
	if err != nil {
		return fmt.Errorf("parsing message uid %d: %w", msg.UID, err)
	}

	date := parsed.Date
	if date.IsZero() {
		date = msg.Date
	}
	if date.IsZero() {
		date = time.Now()
	}

	category := e.classifier.Classify(ctx, parsed.Body)

	doc := model.EmailDocument{
		ID:        model.DocumentID(account.Username, account.Mailbox, msg.UID),
		Subject:   parsed.Subject,
		From:      parsed.From,
		To:        joinAddresses(parsed.To),
		Date:      date,
		Body:      parsed.Body,
		Folder:    account.Mailbox,
		Account:   account.Username,
		Category:  category,
		IndexedAt: time.Now(),
	}

	if err := e.store.Upsert(ctx, doc); err != nil {
		return fmt.Errorf("indexing message uid %d: %w", msg.UID, err)
	}

	e.logger.Info("indexed message",
		"account", account.Name,
		"uid", msg.UID,
		"subject", parsed.Subject,
		"category", string(category))
	return nil
}

// joinAddresses flattens a recipient list for storage.
func joinAddresses(addrs []string) string {
	return strings.Join(addrs, ", ")
}
