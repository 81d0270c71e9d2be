package media

import (
	"context"
	"errors"
	"log/slog"

	"github.com/looplab/fsm"
)

// State is the lifecycle state of a Session.
type State string

// Session states.
const (
	StateBuilt   State = "built"
	StateStarted State = "started"
	StatePlaying State = "playing"
	StatePaused  State = "paused"
	StateEnded   State = "ended"
)

// Lifecycle transitions.
const (
	transitionStart = "start"
	transitionPlay  = "play"
	transitionPause = "pause"
	transitionEnd   = "end"
)

// newLifecycle builds the session state machine. Transitions are
// informational only; see Session.transition.
func newLifecycle(logger *slog.Logger) *fsm.FSM {
	built, started, playing, paused, ended :=
		string(StateBuilt), string(StateStarted), string(StatePlaying), string(StatePaused), string(StateEnded)

	return fsm.NewFSM(
		built,
		fsm.Events{
			{Name: transitionStart, Src: []string{built}, Dst: started},
			{Name: transitionPlay, Src: []string{built, started, playing, paused}, Dst: playing},
			{Name: transitionPause, Src: []string{started, playing, paused}, Dst: paused},
			{Name: transitionEnd, Src: []string{built, started, playing, paused}, Dst: ended},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				logger.Debug("media session state changed", "from", e.Src, "to", e.Dst)
			},
		},
	)
}

// transition fires a lifecycle event. Out-of-order calls are logged and
// otherwise ignored: the caller still emits its event.
func (s *Session) transition(event string) {
	err := s.lifecycle.Event(context.Background(), event)
	if err == nil {
		return
	}

	var noTransition fsm.NoTransitionError
	if errors.As(err, &noTransition) {
		return
	}

	s.logger.Debug("unexpected media session transition",
		"transition", event,
		"state", s.lifecycle.Current(),
		"error", err,
	)
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.lifecycle.Current())
}
