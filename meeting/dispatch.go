package meeting

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/vocaris/vocaris/backend"
)

var (
	// ErrNotReady indicates the action's artifact has not been generated yet.
	ErrNotReady = errors.New("results are not ready")
	// ErrScrumDisabled indicates a scrum action on a session without scrum mode.
	ErrScrumDisabled = errors.New("scrum mode is not enabled for this meeting")
)

// Action is a results view the user can open.
type Action string

const (
	// ActionChat opens the transcript and summary.
	ActionChat Action = "chat"
	// ActionScrum opens the generated tickets.
	ActionScrum Action = "scrum"
)

// Mode returns the results mode the action reads.
func (a Action) Mode() backend.Mode {
	if a == ActionScrum {
		return backend.ModeScrum
	}
	return backend.ModeSimple
}

// Route is the results location for one action.
type Route struct {
	Action Action
	BotID  string
}

// Path returns the results route, such as /meeting/chat?botId=b1.
func (r Route) Path() string {
	return fmt.Sprintf("/meeting/%s?botId=%s", r.Action, url.QueryEscape(r.BotID))
}

func (r Route) String() string {
	return r.Path()
}

// Gate reports whether action may run for the session, given its flags.
// Chat depends only on the chat flag.
func Gate(session Session, readiness Readiness, action Action) error {
	switch action {
	case ActionChat:
		if !readiness.ChatReady {
			return fmt.Errorf("%w: chat", ErrNotReady)
		}
	case ActionScrum:
		if !session.IsScrum {
			return ErrScrumDisabled
		}
		if !readiness.ScrumReady {
			return fmt.Errorf("%w: scrum", ErrNotReady)
		}
	default:
		return fmt.Errorf("unknown action %q", action)
	}
	return nil
}

// Dispatch checks the action's gate, sends one warm-up fetch whose failure
// is ignored, and returns the route to open.
func (l *Lifecycle) Dispatch(ctx context.Context, action Action) (Route, error) {
	session, err := l.Session()
	if err != nil {
		return Route{}, err
	}
	readiness, err := l.store.Readiness(session.BotID)
	if err != nil {
		return Route{}, err
	}
	if err := Gate(session, readiness, action); err != nil {
		return Route{}, err
	}

	query := backend.TranscriptQuery{BotID: session.BotID, SessionID: session.SessionID, Mode: action.Mode()}
	if _, err := l.backend.Transcripts(ctx, query); err != nil {
		l.logger.Printf("warm-up %s fetch for %s failed: %v", action, session.BotID, err)
	}
	return Route{Action: action, BotID: session.BotID}, nil
}

// Readiness returns the stored flags for the current session.
func (l *Lifecycle) Readiness() (Readiness, error) {
	session, err := l.Session()
	if err != nil {
		return Readiness{}, err
	}
	return l.store.Readiness(session.BotID)
}
