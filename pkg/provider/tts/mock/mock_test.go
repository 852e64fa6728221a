package mock_test

import (
	"context"
	"strings"
	"testing"

	"github.com/myndlens/myndlens-p-sub000/pkg/provider/tts"
	"github.com/myndlens/myndlens-p-sub000/pkg/provider/tts/mock"
)

func TestProvider_Echo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
	}{
		{"plain", "I can't help with that."},
		{"empty", ""},
		{"long", strings.Repeat("when should this happen? ", 4000)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := mock.New()
			res, err := p.Synthesize(context.Background(), tt.text)
			if err != nil {
				t.Fatalf("Synthesize: %v", err)
			}
			if res.Text != tt.text {
				t.Errorf("Text length = %d, want %d", len(res.Text), len(tt.text))
			}
			if !res.IsMock {
				t.Error("IsMock = false")
			}
			if len(res.Audio) != 0 {
				t.Errorf("Audio length = %d, want 0", len(res.Audio))
			}
			if res.Format != tts.FormatText {
				t.Errorf("Format = %q, want %q", res.Format, tts.FormatText)
			}
		})
	}
}

func TestProvider_RecordsCalls(t *testing.T) {
	t.Parallel()

	p := mock.New()
	_, _ = p.Synthesize(context.Background(), "a")
	_, _ = p.Synthesize(context.Background(), "b")
	if got := p.Calls(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Calls() = %v", got)
	}
	if !p.Healthy() {
		t.Error("Healthy() = false")
	}
}
