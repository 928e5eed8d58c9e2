// Package gate implements the usage-gated identity-capture state machine.
// After a configured number of user exchanges the gate pauses the
// conversation, captures an identifier and secret through its own prompts,
// registers the account, and replays the deferred user input so the
// conversation resumes without retyping.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lidahealth/lida/internal/auth"
	"github.com/lidahealth/lida/internal/transcript"
)

// State is the gate's position in the capture flow.
type State int

const (
	// Open forwards user input freely while counting exchanges.
	Open State = iota
	// AwaitingIdentifier holds the conversation until a valid identifier
	// is submitted.
	AwaitingIdentifier
	// AwaitingSecret holds the conversation until a valid secret is
	// submitted and registration succeeds.
	AwaitingSecret
	// Authenticated forwards freely and never re-applies the threshold.
	Authenticated
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case AwaitingIdentifier:
		return "awaiting_identifier"
	case AwaitingSecret:
		return "awaiting_secret"
	case Authenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Registrar performs the external registration call. Implemented by
// auth.Client.
type Registrar interface {
	Register(ctx context.Context, identifier, secret string) (string, error)
}

// Result tells the session what to do after a submission.
type Result struct {
	// Forward, when HasForward is set, is content to submit to the backend
	// as a fresh exchange.
	Forward    string
	HasForward bool
	// Token is a freshly acquired credential to persist and attach.
	Token string
	// Notice is a dismissible banner, set on registration failure alongside
	// the System transcript message.
	Notice string
}

// Gate mediates every user submission. It appends System prompts and the
// captured User messages itself; it never mutates existing messages.
type Gate struct {
	state             State
	exchangeCount     int
	deferred          string
	pendingIdentifier string

	threshold int
	policy    auth.Policy
	registrar Registrar
	tr        *transcript.Transcript
}

// New creates a gate in the Open state. threshold is the user exchange on
// which the gate trips (the observed deployment trips on the 5th).
func New(tr *transcript.Transcript, registrar Registrar, policy auth.Policy, threshold int) *Gate {
	return &Gate{
		threshold: threshold,
		policy:    policy,
		registrar: registrar,
		tr:        tr,
	}
}

// State returns the current state.
func (g *Gate) State() State { return g.state }

// ExchangeCount returns the number of user-originated exchanges counted so
// far. It only grows, and a registration failure never resets it.
func (g *Gate) ExchangeCount() int { return g.exchangeCount }

// SetAuthenticated opens the gate permanently, used when a persisted
// credential pre-authenticates the session at startup or after login.
func (g *Gate) SetAuthenticated() {
	g.state = Authenticated
}

// Submit runs one state transition for a user submission. A non-nil error is
// always a validation error: state is unchanged, no network call was made,
// and the message is safe to surface inline.
func (g *Gate) Submit(ctx context.Context, input string) (Result, error) {
	switch g.state {
	case Open:
		g.exchangeCount++
		if g.exchangeCount >= g.threshold {
			g.trip(input)
			return Result{}, nil
		}
		g.tr.Append(transcript.RoleUser, input)
		return Result{Forward: input, HasForward: true}, nil

	case Authenticated:
		g.exchangeCount++
		g.tr.Append(transcript.RoleUser, input)
		return Result{Forward: input, HasForward: true}, nil

	case AwaitingIdentifier:
		id, err := g.policy.ValidateIdentifier(input)
		if err != nil {
			return Result{}, err
		}
		g.pendingIdentifier = id
		g.state = AwaitingSecret
		g.tr.Append(transcript.RoleUser, input)
		g.tr.Append(transcript.RoleSystem, g.secretPrompt())
		return Result{}, nil

	case AwaitingSecret:
		if err := g.policy.ValidateSecret(input); err != nil {
			return Result{}, err
		}
		return g.register(ctx, input), nil
	}
	return Result{}, fmt.Errorf("gate in unexpected state %s", g.state)
}

// trip pauses the conversation at the threshold: the submission is shown and
// deferred, and the gate starts capturing an identifier in its place.
func (g *Gate) trip(input string) {
	g.deferred = input
	g.state = AwaitingIdentifier
	g.tr.Append(transcript.RoleUser, input)
	g.tr.Append(transcript.RoleSystem,
		"You've used up the free questions for this session. Create a free "+
			"account to keep the conversation going — "+g.identifierPrompt())
	slog.Info("gate tripped", "exchange_count", g.exchangeCount)
}

func (g *Gate) register(ctx context.Context, secret string) Result {
	token, err := g.registrar.Register(ctx, g.pendingIdentifier, secret)
	if err != nil {
		// Revert one step; the identifier must be re-entered but the
		// exchange count is preserved so the gate does not reset.
		g.state = AwaitingIdentifier
		g.pendingIdentifier = ""

		detail := registrationDetail(err)
		slog.Error("registration failed", "error", err)
		g.tr.Append(transcript.RoleSystem,
			"We couldn't create your account: "+detail+" "+g.identifierPrompt())
		return Result{Notice: detail}
	}

	g.state = Authenticated
	g.tr.AppendSensitive(transcript.RoleUser, secret)
	g.tr.Append(transcript.RoleSystem,
		"Your account is ready. Picking the conversation back up where you left off.")
	slog.Info("gate authenticated", "exchange_count", g.exchangeCount)

	res := Result{Token: token, Forward: g.deferred, HasForward: true}
	g.deferred = ""
	return res
}

func (g *Gate) identifierPrompt() string {
	return fmt.Sprintf("please enter your %d-digit phone number.", g.policy.IdentifierDigits)
}

func (g *Gate) secretPrompt() string {
	return fmt.Sprintf("Thanks! Now choose a password of at least %d characters.", g.policy.SecretMinLength)
}

// registrationDetail extracts the human-readable failure message. Transport
// errors are logged raw but displayed generically.
func registrationDetail(err error) string {
	var apiErr *auth.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message + "."
	}
	return "something went wrong, please try again."
}
