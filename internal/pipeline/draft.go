package pipeline

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/myndlens/myndlens-p-sub000/internal/conversation"
	"github.com/myndlens/myndlens-p-sub000/internal/guardrail"
	"github.com/myndlens/myndlens-p-sub000/internal/protocol"
)

// Draft is a mandate assembled from a completed capture, awaiting intent
// resolution and user approval.
type Draft struct {
	ID         string                       `json:"draft_id"`
	UserID     string                       `json:"user_id"`
	SessionID  string                       `json:"session_id"`
	Transcript string                       `json:"transcript"`
	SubIntents []string                     `json:"sub_intents,omitempty"`
	Checklist  []conversation.ChecklistItem `json:"checklist"`
	Progress   int                          `json:"progress"`
	Verdict    guardrail.Verdict            `json:"verdict"`
	CreatedAt  time.Time                    `json:"created_at"`
}

// newDraftID returns a random 16-byte hex identifier.
func newDraftID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// draftStore keeps the outstanding draft of each user.
type draftStore struct {
	mu     sync.Mutex
	byUser map[string]Draft
}

func newDraftStore() *draftStore {
	return &draftStore{byUser: make(map[string]Draft)}
}

func (s *draftStore) put(d Draft) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byUser[d.UserID] = d
}

// get returns the user's draft if its ID is id.
func (s *draftStore) get(userID, id string) (Draft, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.byUser[userID]
	if !ok || d.ID != id {
		return Draft{}, false
	}
	return d, true
}

func (s *draftStore) drop(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byUser, userID)
}

func (s *draftStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byUser)
}

// checklistEntries converts checklist items to their wire form.
func checklistEntries(items []conversation.ChecklistItem) []protocol.ChecklistEntry {
	out := make([]protocol.ChecklistEntry, len(items))
	for i, it := range items {
		out[i] = protocol.ChecklistEntry{
			Dimension: it.Dimension.String(),
			Value:     it.Value,
			Filled:    it.Filled,
			Source:    string(it.Source),
		}
	}
	return out
}
