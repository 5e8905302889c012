// Package joinflow models a participant joining an interview room as a finite state
// machine. Transition is pure; Runner performs the token fetch, the only network edge.
package joinflow

import (
	"errors"
	"fmt"
	"strings"
)

type Phase string

const (
	PhaseAwaitingIdentity Phase = "awaiting_identity"
	PhaseFetchingToken    Phase = "fetching_token"
	PhaseConnected        Phase = "connected"
	PhaseDisconnected     Phase = "disconnected"
	PhaseError            Phase = "error"
)

var (
	ErrInvalidTransition = errors.New("invalid transition")
	ErrEmptyIdentity     = errors.New("identity is required")
	ErrEmptyToken        = errors.New("token is empty")
	ErrRejoinRefused     = errors.New("rejoin refused")
)

// State is a value; transitions return a new State and never mutate the input.
type State struct {
	Phase    Phase
	Room     string
	Identity string
	IsAdmin  bool
	Token    string
	Reason   DisconnectReason
	Cause    string
}

type EventKind string

const (
	EventIdentitySubmitted EventKind = "identity_submitted"
	EventTokenReceived     EventKind = "token_received"
	EventTokenFailed       EventKind = "token_failed"
	EventConnectFailed     EventKind = "connect_failed"
	EventDisconnected      EventKind = "disconnected"
	EventReset             EventKind = "reset"
	EventRejoin            EventKind = "rejoin"
)

type Event struct {
	Kind     EventKind
	Identity string
	IsAdmin  bool
	Token    string
	Reason   DisconnectReason
	Err      error
}

// Start builds the initial state for room. An identity carried in the join link skips
// the prompt and goes straight to fetching a token.
func Start(room, identity string, isAdmin bool) State {
	state := State{Phase: PhaseAwaitingIdentity, Room: strings.TrimSpace(room)}
	if state.Room == "" {
		state.Phase = PhaseError
		state.Cause = "Invalid room name provided."
		return state
	}
	if identity = strings.TrimSpace(identity); identity != "" {
		state.Phase = PhaseFetchingToken
		state.Identity = identity
		state.IsAdmin = isAdmin
	}
	return state
}

func Transition(state State, event Event) (State, error) {
	switch state.Phase {
	case PhaseAwaitingIdentity:
		if event.Kind == EventIdentitySubmitted {
			identity := strings.TrimSpace(event.Identity)
			if identity == "" {
				return state, ErrEmptyIdentity
			}
			next := State{Phase: PhaseFetchingToken, Room: state.Room, Identity: identity, IsAdmin: event.IsAdmin}
			return next, nil
		}
	case PhaseFetchingToken:
		switch event.Kind {
		case EventTokenReceived:
			if strings.TrimSpace(event.Token) == "" {
				return state, ErrEmptyToken
			}
			next := state
			next.Phase = PhaseConnected
			next.Token = event.Token
			return next, nil
		case EventTokenFailed:
			next := state
			next.Phase = PhaseError
			next.Token = ""
			next.Cause = causeText(event.Err, "Could not fetch access token.")
			return next, nil
		}
	case PhaseConnected:
		switch event.Kind {
		case EventConnectFailed:
			return disconnected(state, ReasonJoinFailure), nil
		case EventDisconnected:
			reason := event.Reason
			if reason == "" {
				reason = ReasonUnknown
			}
			return disconnected(state, reason), nil
		}
	case PhaseDisconnected:
		switch event.Kind {
		case EventRejoin:
			if !state.Reason.CanRejoin() {
				return state, fmt.Errorf("%w: %s", ErrRejoinRefused, state.Reason.Message())
			}
			next := State{Phase: PhaseFetchingToken, Room: state.Room, Identity: state.Identity, IsAdmin: state.IsAdmin}
			return next, nil
		case EventReset:
			return State{Phase: PhaseAwaitingIdentity, Room: state.Room}, nil
		}
	case PhaseError:
		if event.Kind == EventReset {
			return State{Phase: PhaseAwaitingIdentity, Room: state.Room}, nil
		}
	}
	return state, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, event.Kind, state.Phase)
}

func disconnected(state State, reason DisconnectReason) State {
	next := state
	next.Phase = PhaseDisconnected
	next.Token = ""
	next.Reason = reason
	return next
}

func causeText(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return msg
	}
	return fallback
}

// Describe renders the state the way the join page presents it.
func (s State) Describe() string {
	switch s.Phase {
	case PhaseAwaitingIdentity:
		return fmt.Sprintf("Enter your name to join room %q", s.Room)
	case PhaseFetchingToken:
		return fmt.Sprintf("Loading access for %s...", s.Identity)
	case PhaseConnected:
		return fmt.Sprintf("Connected to %s as %s", s.Room, s.Identity)
	case PhaseDisconnected:
		return s.Reason.Message()
	case PhaseError:
		return "Error: " + s.Cause
	default:
		return string(s.Phase)
	}
}
