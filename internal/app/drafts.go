/**
 * @description
 * Application draft persistence. Drafts are written to two independent
 * stores — a session-scoped Redis store and a durable Postgres store — so
 * losing either one never loses the draft. Saves from form edits are
 * debounced; the pre-redirect save is forced and synchronous so nothing is
 * lost when the page unloads for the payment provider's card-setup redirect.
 *
 * The customer-id adoption path must never clobber values typed after the
 * redirect was initiated, so it merges against the freshest draft state (the
 * pending debounced write when one exists, otherwise the stored copy) rather
 * than whatever the caller happened to capture earlier.
 */
package app

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/stormwellnessclub/member-portal/internal/domain"
	"github.com/stormwellnessclub/member-portal/internal/store"
)

// DraftStore is one of the two draft backends.
type DraftStore interface {
	Save(ctx context.Context, draft domain.ApplicationDraft) error
	Get(ctx context.Context, userID string) (*domain.ApplicationDraft, error)
	Delete(ctx context.Context, userID string) error
}

// DefaultDraftDebounce coalesces rapid form-edit saves.
const DefaultDraftDebounce = 500 * time.Millisecond

// DraftService coordinates the dual draft stores.
type DraftService struct {
	session    DraftStore
	persistent DraftStore
	debounce   time.Duration
	now        func() time.Time

	mu      sync.Mutex
	pending map[string]domain.ApplicationDraft
	timers  map[string]*time.Timer
}

// NewDraftService creates a draft service over the two stores.
func NewDraftService(session, persistent DraftStore) *DraftService {
	return &DraftService{
		session:    session,
		persistent: persistent,
		debounce:   DefaultDraftDebounce,
		now:        time.Now,
		pending:    make(map[string]domain.ApplicationDraft),
		timers:     make(map[string]*time.Timer),
	}
}

// Save records a form edit and schedules a debounced write. The latest edit
// always wins; an already-armed timer is reused so a burst of edits produces
// one write. Form edits never carry the payment customer id, so an adopted id
// already held by the pending draft is carried forward rather than erased.
func (s *DraftService) Save(ctx context.Context, draft domain.ApplicationDraft) {
	draft.SavedAt = s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if draft.StripeCustomerID == "" {
		if cur, ok := s.pending[draft.UserID]; ok {
			draft.StripeCustomerID = cur.StripeCustomerID
		}
	}
	s.pending[draft.UserID] = draft
	if _, armed := s.timers[draft.UserID]; armed {
		return
	}
	userID := draft.UserID
	s.timers[userID] = time.AfterFunc(s.debounce, func() {
		s.flushPending(userID)
	})
}

// Flush forces any pending debounced draft to disk immediately. Called before
// redirecting the member to the payment provider.
func (s *DraftService) Flush(ctx context.Context, userID string) {
	s.mu.Lock()
	draft, ok := s.pending[userID]
	if timer, armed := s.timers[userID]; armed {
		timer.Stop()
		delete(s.timers, userID)
	}
	delete(s.pending, userID)
	s.mu.Unlock()

	if ok {
		s.writeBoth(ctx, draft)
	}
}

func (s *DraftService) flushPending(userID string) {
	s.mu.Lock()
	draft, ok := s.pending[userID]
	delete(s.pending, userID)
	delete(s.timers, userID)
	s.mu.Unlock()

	if ok {
		// Detached from the request that scheduled it.
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.writeBoth(ctx, draft)
	}
}

// writeBoth writes the draft to both stores with independent error handling:
// one store being unavailable must not block the other. A draft carrying no
// customer id inherits the one already on record, so that a form edit saved
// after adoption never erases the adopted id.
func (s *DraftService) writeBoth(ctx context.Context, draft domain.ApplicationDraft) {
	if draft.StripeCustomerID == "" {
		draft.StripeCustomerID = s.storedCustomerID(ctx, draft.UserID)
	}
	if err := s.session.Save(ctx, draft); err != nil {
		log.Printf("Failed to save draft to session store for user %s: %v", draft.UserID, err)
	}
	if err := s.persistent.Save(ctx, draft); err != nil {
		log.Printf("Failed to save draft to persistent store for user %s: %v", draft.UserID, err)
	}
}

func (s *DraftService) storedCustomerID(ctx context.Context, userID string) string {
	if cur, err := s.session.Get(ctx, userID); err == nil && cur.StripeCustomerID != "" {
		return cur.StripeCustomerID
	}
	if cur, err := s.persistent.Get(ctx, userID); err == nil {
		return cur.StripeCustomerID
	}
	return ""
}

// Load hydrates the user's draft: session store first, persistent store as
// fallback. Expired drafts are discarded, and both stores are cleared as a
// side effect of the failed read.
func (s *DraftService) Load(ctx context.Context, userID string) (*domain.ApplicationDraft, error) {
	draft, err := s.session.Get(ctx, userID)
	if err != nil && err != store.ErrDraftNotFound {
		log.Printf("Session draft store read failed for user %s: %v", userID, err)
		draft = nil
	}
	if draft == nil {
		draft, err = s.persistent.Get(ctx, userID)
		if err != nil {
			if err == store.ErrDraftNotFound {
				return nil, store.ErrDraftNotFound
			}
			return nil, err
		}
	}

	if draft.Expired(s.now()) {
		s.Clear(ctx, userID)
		return nil, store.ErrDraftNotFound
	}
	return draft, nil
}

// AdoptCustomerID attaches the payment customer id carried by the return
// redirect, preserving the most recently typed form values.
func (s *DraftService) AdoptCustomerID(ctx context.Context, userID, customerID string) error {
	s.mu.Lock()
	draft, ok := s.pending[userID]
	s.mu.Unlock()

	if !ok {
		loaded, err := s.Load(ctx, userID)
		if err != nil {
			if err == store.ErrDraftNotFound {
				// Nothing typed yet on this device; start a draft holding
				// just the customer id.
				draft = domain.ApplicationDraft{UserID: userID}
			} else {
				return err
			}
		} else {
			draft = *loaded
		}
	}

	draft.StripeCustomerID = customerID
	draft.SavedAt = s.now()

	// A debounced write may still be armed; fold the id into whatever edit
	// is pending now so the eventual flush does not clobber it.
	s.mu.Lock()
	if cur, stillPending := s.pending[userID]; stillPending {
		cur.StripeCustomerID = customerID
		s.pending[userID] = cur
	}
	s.mu.Unlock()

	s.writeBoth(ctx, draft)
	return nil
}

// Clear deletes the draft from both stores, independently. Idempotent.
func (s *DraftService) Clear(ctx context.Context, userID string) {
	s.mu.Lock()
	if timer, armed := s.timers[userID]; armed {
		timer.Stop()
		delete(s.timers, userID)
	}
	delete(s.pending, userID)
	s.mu.Unlock()

	if err := s.session.Delete(ctx, userID); err != nil {
		log.Printf("Failed to clear session draft for user %s: %v", userID, err)
	}
	if err := s.persistent.Delete(ctx, userID); err != nil {
		log.Printf("Failed to clear persistent draft for user %s: %v", userID, err)
	}
}
