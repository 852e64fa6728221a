package capturelog_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/myndlens/myndlens-p-sub000/internal/capturelog"
	"github.com/myndlens/myndlens-p-sub000/internal/conversation"
)

type fakeWriter struct {
	mu      sync.Mutex
	err     error
	entries []capturelog.Entry
}

func (w *fakeWriter) Append(_ context.Context, userID, sessionID string, f conversation.Fragment) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.entries = append(w.entries, capturelog.Entry{UserID: userID, SessionID: sessionID, Fragment: f})
	return nil
}

func (w *fakeWriter) setErr(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.err = err
}

func TestGuard_PassesThrough(t *testing.T) {
	t.Parallel()
	w := &fakeWriter{}
	g := capturelog.NewGuard(w)

	g.Append(context.Background(), "u1", "s1", conversation.Fragment{Text: "Book a flight"})

	if len(w.entries) != 1 || w.entries[0].Fragment.Text != "Book a flight" {
		t.Fatalf("entries = %+v", w.entries)
	}
	if g.IsDegraded() {
		t.Error("IsDegraded = true after success")
	}
}

func TestGuard_DegradesAndRecovers(t *testing.T) {
	t.Parallel()
	w := &fakeWriter{err: errors.New("connection refused")}
	g := capturelog.NewGuard(w)
	ctx := context.Background()

	g.Append(ctx, "u1", "s1", conversation.Fragment{Text: "a"})
	g.Append(ctx, "u1", "s1", conversation.Fragment{Text: "b"})
	if !g.IsDegraded() {
		t.Fatal("IsDegraded = false after failure")
	}
	if g.Failures() != 2 {
		t.Errorf("Failures = %d, want 2", g.Failures())
	}

	w.setErr(nil)
	g.Append(ctx, "u1", "s1", conversation.Fragment{Text: "c"})
	if g.IsDegraded() {
		t.Error("IsDegraded = true after recovery")
	}
}

func TestGuard_ConcurrentAppends(t *testing.T) {
	t.Parallel()
	w := &fakeWriter{}
	g := capturelog.NewGuard(w)

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.Append(context.Background(), "u1", "s1", conversation.Fragment{Text: "x"})
		}()
	}
	wg.Wait()

	if len(w.entries) != 50 {
		t.Errorf("entries = %d, want 50", len(w.entries))
	}
}
