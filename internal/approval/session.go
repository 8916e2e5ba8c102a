package approval

import (
	"context"
	"time"

	"github.com/nerrad567/gray-logic-advisor/internal/store"
)

// Session is the state of the approval conversation: the last outbound
// batch and a pending modify request. It is passed explicitly through
// every call and persisted between them.
type Session struct {
	BatchID     string    `json:"batchId,omitempty"`
	ActionIDs   []string  `json:"actionIds,omitempty"`
	MessageRef  string    `json:"messageRef,omitempty"`
	MessageText string    `json:"messageText,omitempty"`
	Labels      []string  `json:"labels,omitempty"`
	SentAt      time.Time `json:"sentAt,omitempty"`

	// AwaitingText is the one-shot flag set by modify. PendingModifyID
	// scopes it to one action; empty means the whole batch.
	AwaitingText    bool   `json:"awaitingText,omitempty"`
	PendingModifyID string `json:"pendingModifyId,omitempty"`
}

// InBatch reports whether id belongs to the last outbound batch.
func (s *Session) InBatch(id string) bool {
	for _, a := range s.ActionIDs {
		if a == id {
			return true
		}
	}
	return false
}

// LoadSession reads the persisted session. A missing document yields an
// empty session.
func LoadSession(ctx context.Context, st store.Store) (*Session, error) {
	sess := &Session{}
	if _, err := st.Load(ctx, store.KeyApprovalSession, sess); err != nil {
		return &Session{}, err
	}
	return sess, nil
}

// SaveSession persists sess.
func SaveSession(ctx context.Context, st store.Store, sess *Session) error {
	return st.Save(ctx, store.KeyApprovalSession, sess)
}
