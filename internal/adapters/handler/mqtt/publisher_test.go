package mqtt

import "testing"

func TestPublisher_Topics(t *testing.T) {
	p := &Publisher{prefix: "picpic/transcode"}

	if got := p.ProgressTopic(); got != "picpic/transcode/progress" {
		t.Errorf("ProgressTopic() = %q", got)
	}

	tests := []struct {
		label string
		want  string
	}{
		{"movie.mp4", "picpic/transcode/attempts/movie.mp4"},
		{"a+b#c.mp4", "picpic/transcode/attempts/a_b_c.mp4"},
		{"odd/name.mkv", "picpic/transcode/attempts/odd_name.mkv"},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			if got := p.AttemptTopic(tt.label); got != tt.want {
				t.Errorf("AttemptTopic(%q) = %q, want %q", tt.label, got, tt.want)
			}
		})
	}
}
