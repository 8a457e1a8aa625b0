package mqtt

import "testing"

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"SessionEvent", topics.SessionEvent("tour-1", "sess-9", "scene.changed"), "tourengine/tour/tour-1/session/sess-9/scene.changed"},
		{"TourChanged", topics.TourChanged("tour-1"), "tourengine/tour/tour-1/changed"},
		{"SystemStatus", topics.SystemStatus(), "tourengine/system/status"},
		{"AllTourChanges", topics.AllTourChanges(), "tourengine/tour/+/changed"},
		{"AllSessionEvents", topics.AllSessionEvents("tour-1"), "tourengine/tour/tour-1/session/+/+"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestParseTourChanged(t *testing.T) {
	tests := []struct {
		topic  string
		wantID string
		wantOK bool
	}{
		{"tourengine/tour/abc/changed", "abc", true},
		{"tourengine/tour//changed", "", false},
		{"tourengine/tour/abc/session/s/e", "", false},
		{"other/tour/abc/changed", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			id, ok := ParseTourChanged(tt.topic)
			if id != tt.wantID || ok != tt.wantOK {
				t.Errorf("ParseTourChanged(%q) = (%q, %v), want (%q, %v)", tt.topic, id, ok, tt.wantID, tt.wantOK)
			}
		})
	}
}
