package router

import (
	"context"
	"fmt"
	"sort"

	"github.com/cgast/agdesk/pkg/intent"
)

// Handler performs one intent type. It must honor the intent's dry_run
// option by describing the effect instead of performing it.
type Handler interface {
	Handle(ctx context.Context, in intent.Intent) (Outcome, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, in intent.Intent) (Outcome, error)

func (f HandlerFunc) Handle(ctx context.Context, in intent.Intent) (Outcome, error) {
	return f(ctx, in)
}

// Table maps intent types to handlers. It is filled before the router is
// built and read-only afterwards.
type Table struct {
	handlers map[intent.Type]Handler
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{handlers: make(map[intent.Type]Handler)}
}

// Register binds h to t. Only members of the closed intent set can be bound,
// and each only once.
func (t *Table) Register(typ intent.Type, h Handler) error {
	if !typ.Valid() {
		return fmt.Errorf("router: %w: %s", intent.ErrUnknownType, typ)
	}
	if _, exists := t.handlers[typ]; exists {
		return fmt.Errorf("router: handler already registered: %s", typ)
	}
	t.handlers[typ] = h
	return nil
}

// MustRegister is Register that panics on error.
func (t *Table) MustRegister(typ intent.Type, h Handler) {
	if err := t.Register(typ, h); err != nil {
		panic(err)
	}
}

// Resolve returns the handler for typ.
func (t *Table) Resolve(typ intent.Type) (Handler, bool) {
	h, ok := t.handlers[typ]
	return h, ok
}

// Types returns the bound intent types, sorted.
func (t *Table) Types() []intent.Type {
	out := make([]intent.Type, 0, len(t.handlers))
	for typ := range t.handlers {
		out = append(out, typ)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (t *Table) clone() *Table {
	c := NewTable()
	for k, v := range t.handlers {
		c.handlers[k] = v
	}
	return c
}
