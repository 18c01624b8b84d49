package resolution

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/chatform/chatform/internal/errors"
	"github.com/chatform/chatform/internal/models"
)

// Session owns the engines of one application, one per red flag. Engines
// are created on first open and kept when their view is closed, so
// reopening a flag resumes its conversation.
type Session struct {
	ledger *Ledger
	deps   Deps
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	engines map[models.RuleID]*Engine
	open    map[models.RuleID]bool
}

// NewSession creates a session whose engines commit to ledger
func NewSession(ledger *Ledger, deps Deps, opts Options) *Session {
	if deps.Builder == nil {
		deps.Builder = NewContextBuilder(deps.Tools)
	}
	return &Session{
		ledger:  ledger,
		deps:    deps,
		opts:    opts,
		logger:  slog.Default().With("component", "session"),
		engines: make(map[models.RuleID]*Engine),
		open:    make(map[models.RuleID]bool),
	}
}

// Ledger returns the ledger shared by every engine of the session
func (s *Session) Ledger() *Ledger { return s.ledger }

// Open returns the engine for flag, creating it when the flag has not been
// opened before, and marks its view open.
func (s *Session) Open(flag models.RedFlag) (*Engine, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open[flag.Rule] = true
	if e, ok := s.engines[flag.Rule]; ok {
		return e, false
	}
	e := NewEngine(flag, s.ledger, s.deps, s.opts)
	s.engines[flag.Rule] = e
	s.logger.Debug("engine created", "rule", flag.Rule)
	return e, true
}

// Lookup returns the engine for rule, open or not
func (s *Session) Lookup(rule models.RuleID) (*Engine, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.engines[rule]
	return e, ok
}

// Close hides the view of rule. The engine and its transcript are kept and
// a turn in flight still completes.
func (s *Session) Close(rule models.RuleID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.open, rule)
}

// IsOpen reports whether the view of rule is open
func (s *Session) IsOpen(rule models.RuleID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open[rule]
}

// Evict drops the engine of rule. It reports whether one existed.
func (s *Session) Evict(rule models.RuleID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.engines[rule]
	delete(s.engines, rule)
	delete(s.open, rule)
	return ok
}

// Rules lists the rules that have an engine, sorted
func (s *Session) Rules() []models.RuleID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.RuleID, 0, len(s.engines))
	for r := range s.engines {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Initialize starts the conversation of rule
func (s *Session) Initialize(ctx context.Context, rule models.RuleID) (models.ChatMessage, error) {
	e, ok := s.Lookup(rule)
	if !ok {
		return models.ChatMessage{}, errors.ValidationErrorf("no conversation for rule %s", rule)
	}
	return e.Initialize(context.WithoutCancel(ctx))
}

// Send delivers text to the conversation of rule. The turn runs detached
// from ctx cancellation so that closing the view never discards a reply.
func (s *Session) Send(ctx context.Context, rule models.RuleID, text string) (*Turn, error) {
	e, ok := s.Lookup(rule)
	if !ok {
		return nil, errors.ValidationErrorf("no conversation for rule %s", rule)
	}
	return e.SendMessage(context.WithoutCancel(ctx), text)
}
