package segment

import (
	"errors"
	"testing"
)

func TestNext(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		ev      Event
		want    Status
		wantErr error
	}{
		{"text on empty", StatusEmpty, DescriptionChanged("a cat", ""), StatusDescriptionAdded, nil},
		{"whitespace on empty stays empty", StatusEmpty, DescriptionChanged("   ", ""), StatusEmpty, nil},
		{"clear description-added", StatusDescriptionAdded, DescriptionChanged("", ""), StatusEmpty, nil},
		{"clear ready", StatusReady, DescriptionChanged("", "a cat"), StatusEmpty, nil},
		{"clear generating", StatusGenerating, DescriptionChanged("", ""), StatusEmpty, nil},
		{"edit description-added", StatusDescriptionAdded, DescriptionChanged("a dog", ""), StatusDescriptionAdded, nil},
		{"edit ready drifts", StatusReady, DescriptionChanged("a dog", "a cat"), StatusDescriptionModified, nil},
		{"edit video-ready drifts", StatusVideoReady, DescriptionChanged("a dog", "a cat"), StatusDescriptionModified, nil},
		{"same text on ready", StatusReady, DescriptionChanged("a cat", "a cat"), StatusReady, nil},
		{"back to generated text stays modified", StatusDescriptionModified, DescriptionChanged("a cat", "a cat"), StatusDescriptionModified, nil},
		{"edit error keeps error", StatusError, DescriptionChanged("retry", ""), StatusError, nil},

		{"request from description-added", StatusDescriptionAdded, GenerationRequested("a cat"), StatusGenerating, nil},
		{"request from error", StatusError, GenerationRequested("a cat"), StatusGenerating, nil},
		{"request from modified", StatusDescriptionModified, GenerationRequested("a cat"), StatusGenerating, nil},
		{"request with blank", StatusDescriptionAdded, GenerationRequested(" "), StatusDescriptionAdded, ErrInvalidInput},
		{"request while generating", StatusGenerating, GenerationRequested("a cat"), StatusGenerating, ErrIllegalTransition},

		{"success from generating", StatusGenerating, GenerationSucceeded, StatusReady, nil},
		{"success from ready", StatusReady, GenerationSucceeded, StatusReady, ErrIllegalTransition},
		{"failure from generating", StatusGenerating, GenerationFailed, StatusError, nil},
		{"failure from empty", StatusEmpty, GenerationFailed, StatusEmpty, ErrIllegalTransition},

		{"compiled from ready", StatusReady, VideoCompiled, StatusVideoReady, nil},
		{"compiled from modified", StatusDescriptionModified, VideoCompiled, StatusDescriptionModified, ErrIllegalTransition},

		{"feedback on ready", StatusReady, FeedbackApplied("a cat\n\nFeedback: bigger"), StatusDescriptionModified, nil},
		{"feedback while generating", StatusGenerating, FeedbackApplied("x"), StatusGenerating, ErrIllegalTransition},
		{"unknown event", StatusEmpty, Event{Kind: "teleport"}, StatusEmpty, ErrIllegalTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Next(tt.from, tt.ev)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Next() error = %v, want %v", err, tt.wantErr)
				}
			} else if err != nil {
				t.Fatalf("Next() unexpected error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Next() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParseTarget(t *testing.T) {
	tests := map[string]RegenerateTarget{
		"":      TargetBoth,
		"start": TargetStart,
		" END ": TargetEnd,
		"both":  TargetBoth,
	}
	for in, want := range tests {
		got, err := ParseTarget(in)
		if err != nil || got != want {
			t.Errorf("ParseTarget(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseTarget("middle"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("ParseTarget(middle) error = %v", err)
	}
}

func TestAmendDescription(t *testing.T) {
	got := AmendDescription("a cat", "  make it orange ")
	if got != "a cat\n\nFeedback: make it orange" {
		t.Errorf("AmendDescription() = %q", got)
	}
}
