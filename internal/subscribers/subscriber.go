package subscribers

import (
	"context"

	"github.com/Aaditya4007/AI-interviewer/internal/events"
)

type Subscriber interface {
	Name() string
	Handle(context.Context, events.Event) error
}
