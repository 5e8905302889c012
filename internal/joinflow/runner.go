package joinflow

import (
	"context"
	"errors"

	"github.com/Aaditya4007/AI-interviewer/internal/client"
)

type TokenFetcher interface {
	GenerateToken(ctx context.Context, roomName, identity string, isAdmin bool) (client.TokenResult, error)
}

type Runner struct {
	Tokens TokenFetcher
}

// Step performs the asynchronous work owed by state, if any, and returns the state it
// leads to. States with no pending work are returned unchanged.
func (r Runner) Step(ctx context.Context, state State) State {
	if state.Phase != PhaseFetchingToken {
		return state
	}

	event := Event{Kind: EventTokenReceived}
	result, err := r.Tokens.GenerateToken(ctx, state.Room, state.Identity, state.IsAdmin)
	if err != nil {
		event = Event{Kind: EventTokenFailed, Err: fetchError(err)}
	} else {
		event.Token = result.Token
	}

	next, err := Transition(state, event)
	if err != nil {
		next, _ = Transition(state, Event{Kind: EventTokenFailed, Err: err})
	}
	return next
}

// Gateway rejections carry their own message; anything else means the request never got
// a usable answer.
func fetchError(err error) error {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return errors.New(apiErr.Message)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return errors.New(err.Error() + ". Could not reach backend service.")
}
