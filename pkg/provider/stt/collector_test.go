package stt_test

import (
	"testing"

	"github.com/myndlens/myndlens-p-sub000/pkg/provider/stt"
	"github.com/myndlens/myndlens-p-sub000/pkg/types"
)

func TestCollector_NothingFed(t *testing.T) {
	t.Parallel()

	c := stt.NewCollector()
	c.Offer(types.Transcript{Text: "ghost", IsFinal: true})
	if got := c.Final(); got != nil {
		t.Errorf("Final() = %+v, want nil", got)
	}
}

func TestCollector_PartialsAndFinals(t *testing.T) {
	t.Parallel()

	c := stt.NewCollector()
	c.Fed(0)
	c.Fed(1)
	c.Offer(types.Transcript{Text: "book a"})
	c.Offer(types.Transcript{Text: "book a fli"})

	p := c.TakePartial()
	if p == nil || p.Text != "book a fli" {
		t.Fatalf("TakePartial() = %+v, want latest partial", p)
	}
	if len(p.SpanIDs) != 2 {
		t.Errorf("SpanIDs = %v, want 2 entries", p.SpanIDs)
	}
	if again := c.TakePartial(); again != nil {
		t.Errorf("second TakePartial() = %+v, want nil", again)
	}

	c.Offer(types.Transcript{Text: "book a flight", IsFinal: true, Confidence: 0.8})
	c.Offer(types.Transcript{Text: "to Berlin", IsFinal: true, Confidence: 0.6})
	f := c.Final()
	if f == nil {
		t.Fatal("Final() = nil")
	}
	if f.Text != "book a flight to Berlin" {
		t.Errorf("Text = %q", f.Text)
	}
	if !f.IsFinal {
		t.Error("IsFinal = false")
	}
	if f.Confidence < 0.69 || f.Confidence > 0.71 {
		t.Errorf("Confidence = %v, want 0.7", f.Confidence)
	}
}

func TestCollector_CloseIdempotent(t *testing.T) {
	t.Parallel()

	c := stt.NewCollector()
	c.Close()
	c.Close()
	select {
	case <-c.Done():
	default:
		t.Error("Done() not closed")
	}
}
