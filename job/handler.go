package job

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/steady"
)

// Action is the outcome policy a handler applies to a matched error.
type Action string

const (
	// ActionDiscard ends the job in the discarded state. The reporter is
	// never invoked for discarded jobs.
	ActionDiscard Action = "discard"
	// ActionRetry schedules further attempts up to a limit, then errors
	// the job with retry_stopped.
	ActionRetry Action = "retry"
	// ActionRescue runs a user continuation that may request another
	// attempt or end the job.
	ActionRescue Action = "rescue"
)

// RescueFunc is the continuation run by a rescue handler. It receives the
// error that triggered the rescue. Returning retry=true requests another
// attempt; otherwise the job ends succeeded (err == nil) or errored.
type RescueFunc func(ctx context.Context, cause error) (retry bool, err error)

// Handler is one descriptor in a definition's ordered handler registry:
// an action, the error kind it matches, and the action's configuration.
// The registry is built at definition time and immutable thereafter.
type Handler struct {
	Action Action
	Kind   *Kind

	// Attempts bounds the total number of executions for ActionRetry.
	// Zero or negative means unlimited.
	Attempts int

	// Wait is the delay before the next attempt for ActionRetry.
	// Zero means the engine's backoff strategy decides.
	Wait time.Duration

	// Rescue is the continuation for ActionRescue.
	Rescue RescueFunc
}

// Resolve selects the handler whose matched kind is closest to the raised
// error's kind: among all descriptors matching the kind or an ancestor of
// it, the smallest hierarchy distance wins, independent of declaration
// order. Returns false if no descriptor matches.
//
// Ties are impossible by construction: the kind hierarchy is single-parent
// and ValidateHandlers rejects duplicate descriptors for one kind, so the
// distances from a raised kind to distinct matched ancestors are unique.
func Resolve(handlers []Handler, err error) (Handler, bool) {
	raised := KindOf(err)

	best := -1
	var chosen Handler
	for _, h := range handlers {
		d, ok := raised.DistanceTo(h.Kind)
		if !ok {
			continue
		}
		if best < 0 || d < best {
			best = d
			chosen = h
		}
	}

	return chosen, best >= 0
}

// ValidateHandlers checks a handler registry for configuration errors.
// Malformed registries are fatal at definition time, never at dispatch time.
func ValidateHandlers(handlers []Handler) error {
	seen := make(map[*Kind]string, len(handlers))
	for i, h := range handlers {
		if h.Kind == nil {
			return fmt.Errorf("%w: handler %d references a nil kind", steady.ErrInvalidHandlers, i)
		}
		if prev, dup := seen[h.Kind]; dup {
			return fmt.Errorf("%w: kind %q matched by both %s and %s handlers",
				steady.ErrInvalidHandlers, h.Kind.Name(), prev, h.Action)
		}
		seen[h.Kind] = string(h.Action)

		switch h.Action {
		case ActionDiscard:
		case ActionRetry:
		case ActionRescue:
			if h.Rescue == nil {
				return fmt.Errorf("%w: rescue handler for kind %q has no continuation",
					steady.ErrInvalidHandlers, h.Kind.Name())
			}
		default:
			return fmt.Errorf("%w: unknown action %q", steady.ErrInvalidHandlers, h.Action)
		}
	}
	return nil
}
