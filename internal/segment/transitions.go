package segment

import "fmt"

type EventKind string

const (
	EventDescriptionChanged  EventKind = "description-changed"
	EventGenerationRequested EventKind = "generation-requested"
	EventGenerationSucceeded EventKind = "generation-succeeded"
	EventGenerationFailed    EventKind = "generation-failed"
	EventVideoCompiled       EventKind = "video-compiled"
	EventFeedbackApplied     EventKind = "feedback-applied"
)

// Event drives Next. Description carries the new text for description and
// feedback events; LastGenerated carries the snapshot to compare against.
type Event struct {
	Kind          EventKind
	Description   string
	LastGenerated string
}

func DescriptionChanged(text, lastGenerated string) Event {
	return Event{Kind: EventDescriptionChanged, Description: text, LastGenerated: lastGenerated}
}

func GenerationRequested(description string) Event {
	return Event{Kind: EventGenerationRequested, Description: description}
}

func FeedbackApplied(amended string) Event {
	return Event{Kind: EventFeedbackApplied, Description: amended}
}

var (
	GenerationSucceeded = Event{Kind: EventGenerationSucceeded}
	GenerationFailed    = Event{Kind: EventGenerationFailed}
	VideoCompiled       = Event{Kind: EventVideoCompiled}
)

// Next is the only place a segment's status is decided.
func Next(current Status, ev Event) (Status, error) {
	switch ev.Kind {
	case EventDescriptionChanged:
		if isBlank(ev.Description) {
			return StatusEmpty, nil
		}
		switch current {
		case StatusEmpty:
			return StatusDescriptionAdded, nil
		case StatusReady, StatusVideoReady:
			// One-way: returning to the generated text keeps the drift flag
			// until the next generation.
			if ev.LastGenerated != "" && ev.Description != ev.LastGenerated {
				return StatusDescriptionModified, nil
			}
		}
		return current, nil

	case EventGenerationRequested:
		if isBlank(ev.Description) {
			return current, ErrEmptyDescription
		}
		if current == StatusGenerating {
			return current, illegal(current, ev.Kind)
		}
		return StatusGenerating, nil

	case EventGenerationSucceeded:
		if current != StatusGenerating {
			return current, illegal(current, ev.Kind)
		}
		return StatusReady, nil

	case EventGenerationFailed:
		if current != StatusGenerating {
			return current, illegal(current, ev.Kind)
		}
		return StatusError, nil

	case EventVideoCompiled:
		if current != StatusReady {
			return current, illegal(current, ev.Kind)
		}
		return StatusVideoReady, nil

	case EventFeedbackApplied:
		if isBlank(ev.Description) {
			return current, ErrEmptyDescription
		}
		if current == StatusGenerating {
			return current, illegal(current, ev.Kind)
		}
		return StatusDescriptionModified, nil
	}
	return current, fmt.Errorf("%w: unknown event %q", ErrIllegalTransition, ev.Kind)
}

func illegal(from Status, kind EventKind) error {
	return fmt.Errorf("%w: %s on %s", ErrIllegalTransition, kind, from)
}
