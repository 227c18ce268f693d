// Package confirm defines how the assistant asks the operator for permission
// before a sensitive action. A Prompt answers one Request with exactly one
// of four outcomes; running out of time is reported as cancelled, which is
// never the same as a denial and is never remembered as consent.
package confirm

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultTimeout bounds a request that does not set its own timeout.
const DefaultTimeout = 30 * time.Second

// PasswordToken is the literal an operator must type for requests that
// require a password.
const PasswordToken = "CONFIRM"

// Request describes the action awaiting permission.
type Request struct {
	Action           string        `json:"action"`
	Target           string        `json:"target"`
	Description      string        `json:"description"`
	Timeout          time.Duration `json:"timeout"`
	RequiresPassword bool          `json:"requires_password"`
}

// Result is the operator's answer. Use the constructors; each outcome has
// exactly one combination of fields.
type Result struct {
	Allowed   bool `json:"allowed"`
	Permanent bool `json:"permanent"`
	Cancelled bool `json:"cancelled"`
}

func AllowedOnce() Result      { return Result{Allowed: true} }
func AllowedPermanent() Result { return Result{Allowed: true, Permanent: true} }
func Denied() Result           { return Result{} }
func Cancelled() Result        { return Result{Cancelled: true} }

// Outcome names a result.
type Outcome string

const (
	OutcomeAllowedOnce      Outcome = "allowed_once"
	OutcomeAllowedPermanent Outcome = "allowed_permanent"
	OutcomeDenied           Outcome = "denied"
	OutcomeCancelled        Outcome = "cancelled"
)

func (r Result) Outcome() Outcome {
	switch {
	case r.Cancelled:
		return OutcomeCancelled
	case r.Allowed && r.Permanent:
		return OutcomeAllowedPermanent
	case r.Allowed:
		return OutcomeAllowedOnce
	default:
		return OutcomeDenied
	}
}

func (r Result) String() string { return string(r.Outcome()) }

// Prompt asks the operator. Implementations must return once ctx is done.
type Prompt interface {
	Confirm(ctx context.Context, req Request) Result
}

// PromptFunc adapts a function to Prompt.
type PromptFunc func(ctx context.Context, req Request) Result

func (f PromptFunc) Confirm(ctx context.Context, req Request) Result { return f(ctx, req) }

// Deny refuses everything. It is used where no operator is present.
type Deny struct{}

func (Deny) Confirm(context.Context, Request) Result { return Denied() }

// Scripted answers from a fixed list, then denies. It records every request.
type Scripted struct {
	mu      sync.Mutex
	answers []Result
	calls   []Request
}

// NewScripted returns a prompt that gives answers in order.
func NewScripted(answers ...Result) *Scripted {
	return &Scripted{answers: answers}
}

func (s *Scripted) Confirm(_ context.Context, req Request) Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)
	if len(s.answers) == 0 {
		return Denied()
	}
	r := s.answers[0]
	s.answers = s.answers[1:]
	return r
}

// Calls returns the requests seen so far.
func (s *Scripted) Calls() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.calls))
	copy(out, s.calls)
	return out
}

// DefaultDescription is used when a caller gives no description.
func DefaultDescription(action, target string) string {
	return fmt.Sprintf("Execute %s on %s", action, target)
}
