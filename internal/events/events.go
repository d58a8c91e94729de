// Package events carries lifecycle activity out of the core. Services record
// an Event after each committed transition; a Sink delivers it somewhere
// (a message queue, a log) and its failures never fail the transition.
package events

import (
	"context"
	"time"
)

// Kind names a lifecycle transition.
type Kind string

const (
	WaitlistJoined         Kind = "waitlist.joined"
	InviteIssued           Kind = "invite.issued"
	InviteUndone           Kind = "invite.undone"
	RegistrationCreated    Kind = "registration.created"
	AccountActivated       Kind = "account.activated"
	PasswordResetRequested Kind = "password.reset_requested"
	PasswordReset          Kind = "password.reset"
	SessionRemembered      Kind = "session.remembered"
	SessionForgotten       Kind = "session.forgotten"
)

// Event describes one committed transition. It never carries tokens or
// password hashes.
type Event struct {
	Kind  Kind              `json:"kind"`
	Email string            `json:"email"`
	At    time.Time         `json:"at"`
	Attrs map[string]string `json:"attrs,omitempty"`
}

type Sink interface {
	Record(ctx context.Context, e Event) error
}

// Discard drops every event.
type Discard struct{}

func (Discard) Record(context.Context, Event) error { return nil }

// Recorder keeps events in memory, in order.
type Recorder struct {
	Events []Event
}

func (r *Recorder) Record(_ context.Context, e Event) error {
	r.Events = append(r.Events, e)
	return nil
}

// Kinds returns the recorded kinds in order.
func (r *Recorder) Kinds() []Kind {
	out := make([]Kind, len(r.Events))
	for i, e := range r.Events {
		out[i] = e.Kind
	}
	return out
}
