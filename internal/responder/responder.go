// Package responder defines the conversational capability the negotiation
// engine consumes: given an ordered, role-tagged conversation it produces the
// next free-form reply. Back-ends bind a Persona (who is speaking, with which
// instructions) to a concrete model; the Factory hands out one bound responder
// per supplier profile plus the buyer and auditor personas, wrapped with the
// per-call timeout and instrumentation.
package responder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/KaioH3/negotiation-agent/internal/catalog"
	"github.com/KaioH3/negotiation-agent/internal/metrics"
)

// Role tags which side of the negotiation authored a turn.
type Role string

const (
	RoleBuyer    Role = "buyer"
	RoleSupplier Role = "supplier"
)

// Turn is one entry of the conversation handed to a responder.
type Turn struct {
	Role    Role
	Content string
}

// Prompt wraps a single instruction prompt as a conversation.
func Prompt(text string) []Turn {
	return []Turn{{Content: text}}
}

// Responder generates the next reply of a conversation.
type Responder interface {
	Generate(ctx context.Context, turns []Turn) (string, error)
}

// Func adapts a function into a Responder.
type Func func(ctx context.Context, turns []Turn) (string, error)

// Generate executes f(ctx, turns).
func (f Func) Generate(ctx context.Context, turns []Turn) (string, error) {
	if f == nil {
		return "", errors.New("responder: nil func")
	}
	return f(ctx, turns)
}

// Backend binds personas to a concrete model provider.
type Backend interface {
	Bind(p Persona) (Responder, error)
}

// BackendFunc adapts a function into a Backend.
type BackendFunc func(p Persona) (Responder, error)

// Bind executes f(p).
func (f BackendFunc) Bind(p Persona) (Responder, error) {
	return f(p)
}

// Factory hands out responders bound to the catalog personas.
type Factory struct {
	backend Backend
	catalog *catalog.Catalog
	timeout time.Duration
	metrics *metrics.Collectors
}

// Option customizes Factory construction.
type Option func(*Factory)

// WithTimeout bounds every responder call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(f *Factory) {
		if d >= 0 {
			f.timeout = d
		}
	}
}

// WithMetrics records call counts and latency per persona kind.
func WithMetrics(m *metrics.Collectors) Option {
	return func(f *Factory) {
		f.metrics = m
	}
}

// NewFactory wires a backend to the catalog personas.
func NewFactory(backend Backend, cat *catalog.Catalog, opts ...Option) (*Factory, error) {
	if backend == nil {
		return nil, fmt.Errorf("responder: backend is required")
	}
	if cat == nil {
		return nil, fmt.Errorf("responder: catalog is required")
	}
	f := &Factory{backend: backend, catalog: cat}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f, nil
}

// Supplier returns a responder speaking as the given supplier.
func (f *Factory) Supplier(profile catalog.SupplierProfile) (Responder, error) {
	return f.bind(SupplierPersona(profile, f.catalog.Codes()))
}

// Buyer returns a responder speaking as the buyer's sourcing manager.
func (f *Factory) Buyer() (Responder, error) {
	return f.bind(BuyerPersona(f.catalog.Suppliers()))
}

// Auditor returns a responder speaking as the independent decision auditor.
func (f *Factory) Auditor() (Responder, error) {
	return f.bind(AuditorPersona())
}

func (f *Factory) bind(p Persona) (Responder, error) {
	r, err := f.backend.Bind(p)
	if err != nil {
		return nil, fmt.Errorf("responder: bind %s: %w", p.ID, err)
	}
	return &guarded{next: r, persona: p, timeout: f.timeout, metrics: f.metrics}, nil
}

// guarded applies the per-call timeout and records metrics.
type guarded struct {
	next    Responder
	persona Persona
	timeout time.Duration
	metrics *metrics.Collectors
}

func (g *guarded) Generate(ctx context.Context, turns []Turn) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	started := time.Now()
	text, err := g.call(ctx, turns)
	g.metrics.ObserveResponder(string(g.persona.Kind), time.Since(started), err)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && g.timeout > 0 {
			return "", fmt.Errorf("responder: %s timed out after %s: %w", g.persona.ID, g.timeout, err)
		}
		return "", fmt.Errorf("responder: %s: %w", g.persona.ID, err)
	}
	return text, nil
}

type generated struct {
	text string
	err  error
}

// call returns as soon as ctx is done even if the backend ignores ctx; the
// abandoned call finishes in the background.
func (g *guarded) call(ctx context.Context, turns []Turn) (string, error) {
	done := make(chan generated, 1)
	go func() {
		text, err := g.next.Generate(ctx, turns)
		done <- generated{text: text, err: err}
	}()
	select {
	case res := <-done:
		return res.text, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
