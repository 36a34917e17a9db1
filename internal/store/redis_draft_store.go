/**
 * @description
 * Session-scoped half of the dual draft store, backed by Redis with a TTL.
 * This is the preferred read source; the Postgres draft repository is the
 * fallback. Keys are versioned so the payload format can migrate safely.
 */
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/stormwellnessclub/member-portal/internal/domain"
)

// draftKeyVersion bumps when the serialized draft shape changes.
const draftKeyVersion = "v2"

// RedisDraftStore stores application drafts in Redis with the draft TTL.
type RedisDraftStore struct {
	client redis.UniversalClient
}

// NewRedisDraftStore creates a new Redis-backed draft store.
func NewRedisDraftStore(client redis.UniversalClient) *RedisDraftStore {
	return &RedisDraftStore{client: client}
}

func draftKey(userID string) string {
	return fmt.Sprintf("portal:draft:%s:%s", draftKeyVersion, userID)
}

// Save writes the draft with the standard draft TTL.
func (s *RedisDraftStore) Save(ctx context.Context, draft domain.ApplicationDraft) error {
	payload, err := json.Marshal(draft)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, draftKey(draft.UserID), payload, domain.DraftTTL).Err()
}

// Get loads the user's draft, or ErrDraftNotFound when absent or unreadable.
// A corrupt payload is treated as absent so the caller falls through to the
// persistent store.
func (s *RedisDraftStore) Get(ctx context.Context, userID string) (*domain.ApplicationDraft, error) {
	raw, err := s.client.Get(ctx, draftKey(userID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrDraftNotFound
		}
		return nil, err
	}
	var draft domain.ApplicationDraft
	if err := json.Unmarshal(raw, &draft); err != nil {
		return nil, ErrDraftNotFound
	}
	return &draft, nil
}

// Delete removes the user's draft.
func (s *RedisDraftStore) Delete(ctx context.Context, userID string) error {
	return s.client.Del(ctx, draftKey(userID)).Err()
}
