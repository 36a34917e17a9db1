package app

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stormwellnessclub/member-portal/internal/domain"
	"github.com/stormwellnessclub/member-portal/internal/store"
)

type draftStoreStub struct {
	mu      sync.Mutex
	drafts  map[string]domain.ApplicationDraft
	saveErr error
	getErr  error
	delErr  error
	saves   int
	deletes int
}

func newDraftStoreStub() *draftStoreStub {
	return &draftStoreStub{drafts: make(map[string]domain.ApplicationDraft)}
}

func (s *draftStoreStub) Save(ctx context.Context, draft domain.ApplicationDraft) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.drafts[draft.UserID] = draft
	return nil
}

func (s *draftStoreStub) Get(ctx context.Context, userID string) (*domain.ApplicationDraft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	draft, ok := s.drafts[userID]
	if !ok {
		return nil, store.ErrDraftNotFound
	}
	return &draft, nil
}

func (s *draftStoreStub) Delete(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes++
	if s.delErr != nil {
		return s.delErr
	}
	delete(s.drafts, userID)
	return nil
}

func (s *draftStoreStub) saved(userID string) (domain.ApplicationDraft, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	draft, ok := s.drafts[userID]
	return draft, ok
}

func (s *draftStoreStub) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func newTestDrafts(session, persistent *draftStoreStub) *DraftService {
	svc := NewDraftService(session, persistent)
	svc.debounce = 10 * time.Millisecond
	return svc
}

func formData(t *testing.T, fields map[string]string) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(fields)
	if err != nil {
		t.Fatalf("marshal form data: %v", err)
	}
	return raw
}

func TestDraftService_DebouncedSaveWritesBothStores(t *testing.T) {
	session := newDraftStoreStub()
	persistent := newDraftStoreStub()
	svc := newTestDrafts(session, persistent)

	svc.Save(context.Background(), domain.ApplicationDraft{
		UserID:   "user-1",
		FormData: formData(t, map[string]string{"name": "Ada"}),
	})

	waitForSaves(t, session, 1)
	if _, ok := persistent.saved("user-1"); !ok {
		t.Fatal("expected persistent store to hold the draft")
	}
}

func TestDraftService_BurstOfEditsProducesOneWrite(t *testing.T) {
	session := newDraftStoreStub()
	persistent := newDraftStoreStub()
	svc := newTestDrafts(session, persistent)

	for _, name := range []string{"A", "Ad", "Ada"} {
		svc.Save(context.Background(), domain.ApplicationDraft{
			UserID:   "user-1",
			FormData: formData(t, map[string]string{"name": name}),
		})
	}

	waitForSaves(t, session, 1)
	time.Sleep(30 * time.Millisecond)
	if got := session.saveCount(); got != 1 {
		t.Fatalf("expected one coalesced write, got %d", got)
	}

	draft, _ := session.saved("user-1")
	var fields map[string]string
	if err := json.Unmarshal(draft.FormData, &fields); err != nil {
		t.Fatalf("unmarshal stored draft: %v", err)
	}
	if fields["name"] != "Ada" {
		t.Fatalf("expected the latest edit to win, got %q", fields["name"])
	}
}

func TestDraftService_FlushBypassesDebounce(t *testing.T) {
	session := newDraftStoreStub()
	persistent := newDraftStoreStub()
	svc := NewDraftService(session, persistent)
	// A long debounce ensures a write observed after Flush came from Flush.
	svc.debounce = time.Hour

	svc.Save(context.Background(), domain.ApplicationDraft{
		UserID:   "user-1",
		FormData: formData(t, map[string]string{"name": "Ada"}),
	})
	svc.Flush(context.Background(), "user-1")

	if _, ok := session.saved("user-1"); !ok {
		t.Fatal("expected flush to write the session store synchronously")
	}
	if _, ok := persistent.saved("user-1"); !ok {
		t.Fatal("expected flush to write the persistent store synchronously")
	}
}

func TestDraftService_OneStoreFailingDoesNotBlockTheOther(t *testing.T) {
	session := newDraftStoreStub()
	session.saveErr = errors.New("session store unavailable")
	persistent := newDraftStoreStub()
	svc := newTestDrafts(session, persistent)

	svc.Save(context.Background(), domain.ApplicationDraft{
		UserID:   "user-1",
		FormData: formData(t, map[string]string{"name": "Ada"}),
	})
	svc.Flush(context.Background(), "user-1")

	if _, ok := persistent.saved("user-1"); !ok {
		t.Fatal("expected persistent store write despite session store failure")
	}
}

func TestDraftService_LoadFallsBackToPersistentStore(t *testing.T) {
	session := newDraftStoreStub()
	session.getErr = errors.New("session store unavailable")
	persistent := newDraftStoreStub()
	persistent.drafts["user-1"] = domain.ApplicationDraft{
		UserID:   "user-1",
		FormData: formData(t, map[string]string{"name": "Ada"}),
		SavedAt:  time.Now(),
	}
	svc := newTestDrafts(session, persistent)

	draft, err := svc.Load(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if draft.UserID != "user-1" {
		t.Fatalf("expected the persistent copy, got %+v", draft)
	}
}

func TestDraftService_ExpiredDraftIsDiscardedAndCleared(t *testing.T) {
	session := newDraftStoreStub()
	persistent := newDraftStoreStub()
	persistent.drafts["user-1"] = domain.ApplicationDraft{
		UserID:  "user-1",
		SavedAt: time.Now().Add(-25 * time.Hour),
	}
	svc := newTestDrafts(session, persistent)

	_, err := svc.Load(context.Background(), "user-1")
	if !errors.Is(err, store.ErrDraftNotFound) {
		t.Fatalf("expected ErrDraftNotFound for an expired draft, got %v", err)
	}
	if session.deletes != 1 || persistent.deletes != 1 {
		t.Fatalf("expected both stores cleared, got session=%d persistent=%d", session.deletes, persistent.deletes)
	}
	if _, ok := persistent.saved("user-1"); ok {
		t.Fatal("expected the expired draft to be gone")
	}
}

func TestDraftService_FreshDraftWithinTTLIsServed(t *testing.T) {
	session := newDraftStoreStub()
	session.drafts["user-1"] = domain.ApplicationDraft{
		UserID:  "user-1",
		SavedAt: time.Now().Add(-23 * time.Hour),
	}
	svc := newTestDrafts(session, newDraftStoreStub())

	if _, err := svc.Load(context.Background(), "user-1"); err != nil {
		t.Fatalf("expected a draft inside the TTL to load, got %v", err)
	}
}

// The customer id arriving on the return redirect must merge into the
// freshest form state, not the snapshot that existed when the redirect left.
func TestDraftService_AdoptCustomerIDPreservesLatestEdits(t *testing.T) {
	session := newDraftStoreStub()
	persistent := newDraftStoreStub()
	svc := NewDraftService(session, persistent)
	svc.debounce = time.Hour

	// A debounced edit is still pending when the redirect returns.
	svc.Save(context.Background(), domain.ApplicationDraft{
		UserID:   "user-1",
		FormData: formData(t, map[string]string{"name": "Ada", "phone": "555"}),
	})

	if err := svc.AdoptCustomerID(context.Background(), "user-1", "cus_123"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	draft, ok := session.saved("user-1")
	if !ok {
		t.Fatal("expected the merged draft to be written")
	}
	if draft.StripeCustomerID != "cus_123" {
		t.Fatalf("expected adopted customer id, got %q", draft.StripeCustomerID)
	}
	var fields map[string]string
	if err := json.Unmarshal(draft.FormData, &fields); err != nil {
		t.Fatalf("unmarshal merged draft: %v", err)
	}
	if fields["phone"] != "555" {
		t.Fatal("expected the pending edits to survive the merge")
	}
}

// An adoption that lands while a debounced edit is still armed must not be
// undone when that edit flushes moments later.
func TestDraftService_AdoptedCustomerIDSurvivesDebouncedFlush(t *testing.T) {
	session := newDraftStoreStub()
	persistent := newDraftStoreStub()
	svc := NewDraftService(session, persistent)
	svc.debounce = 20 * time.Millisecond

	svc.Save(context.Background(), domain.ApplicationDraft{
		UserID:   "user-1",
		FormData: formData(t, map[string]string{"name": "Ada"}),
	})
	if err := svc.AdoptCustomerID(context.Background(), "user-1", "cus_123"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The adoption writes once; the debounced edit writes again after it.
	waitForSaves(t, session, 2)
	draft, _ := session.saved("user-1")
	if draft.StripeCustomerID != "cus_123" {
		t.Fatalf("expected the flushed draft to keep the customer id, got %q", draft.StripeCustomerID)
	}
	var fields map[string]string
	if err := json.Unmarshal(draft.FormData, &fields); err != nil {
		t.Fatalf("unmarshal flushed draft: %v", err)
	}
	if fields["name"] != "Ada" {
		t.Fatalf("expected the pending edit to survive, got %q", fields["name"])
	}
}

// Form edits arrive without a customer id; once one has been adopted, later
// edits must inherit it instead of erasing it.
func TestDraftService_EditAfterAdoptionKeepsCustomerID(t *testing.T) {
	session := newDraftStoreStub()
	persistent := newDraftStoreStub()
	svc := newTestDrafts(session, persistent)

	if err := svc.AdoptCustomerID(context.Background(), "user-1", "cus_123"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	svc.Save(context.Background(), domain.ApplicationDraft{
		UserID:   "user-1",
		FormData: formData(t, map[string]string{"name": "Grace"}),
	})
	svc.Flush(context.Background(), "user-1")

	draft, ok := persistent.saved("user-1")
	if !ok {
		t.Fatal("expected the edited draft to be written")
	}
	if draft.StripeCustomerID != "cus_123" {
		t.Fatalf("expected the edit to inherit the adopted customer id, got %q", draft.StripeCustomerID)
	}
	var fields map[string]string
	if err := json.Unmarshal(draft.FormData, &fields); err != nil {
		t.Fatalf("unmarshal edited draft: %v", err)
	}
	if fields["name"] != "Grace" {
		t.Fatalf("expected the new edit to win, got %q", fields["name"])
	}
}

func TestDraftService_AdoptCustomerIDWithNoDraftStartsOne(t *testing.T) {
	session := newDraftStoreStub()
	persistent := newDraftStoreStub()
	svc := newTestDrafts(session, persistent)

	if err := svc.AdoptCustomerID(context.Background(), "user-1", "cus_123"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	draft, ok := persistent.saved("user-1")
	if !ok {
		t.Fatal("expected a fresh draft holding the customer id")
	}
	if draft.StripeCustomerID != "cus_123" {
		t.Fatalf("expected adopted customer id, got %q", draft.StripeCustomerID)
	}
}

func TestDraftService_ClearIsIdempotent(t *testing.T) {
	session := newDraftStoreStub()
	session.drafts["user-1"] = domain.ApplicationDraft{UserID: "user-1", SavedAt: time.Now()}
	persistent := newDraftStoreStub()
	persistent.drafts["user-1"] = domain.ApplicationDraft{UserID: "user-1", SavedAt: time.Now()}
	svc := newTestDrafts(session, persistent)

	svc.Clear(context.Background(), "user-1")
	svc.Clear(context.Background(), "user-1")

	if _, err := svc.Load(context.Background(), "user-1"); !errors.Is(err, store.ErrDraftNotFound) {
		t.Fatalf("expected no draft after clear, got %v", err)
	}
}

func waitForSaves(t *testing.T, s *draftStoreStub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.saveCount() >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d store writes", want)
}
