package events

import "time"

// DomainEvent is a fact raised by an aggregate. Names are dotted, with the
// aggregate kind first ("conversation.message_sent").
type DomainEvent interface {
	EventName() string
	AggregateID() string
	OccurredAt() time.Time
}

// EventRecorder is embedded by aggregates that raise events. The service
// pulls them once the write they describe has been staged.
type EventRecorder struct {
	raised []DomainEvent
}

// Record appends events, skipping nils.
func (r *EventRecorder) Record(evts ...DomainEvent) {
	for _, ev := range evts {
		if ev != nil {
			r.raised = append(r.raised, ev)
		}
	}
}

// Pending returns a copy of the unpulled events.
func (r *EventRecorder) Pending() []DomainEvent {
	return append([]DomainEvent(nil), r.raised...)
}

// Pull returns the unpulled events and forgets them.
func (r *EventRecorder) Pull() []DomainEvent {
	out := r.raised
	r.raised = nil
	return out
}

func (r *EventRecorder) Reset() { r.raised = nil }
