package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stormwellnessclub/member-portal/internal/domain"
	"github.com/stormwellnessclub/member-portal/internal/store"
)

type statusRepoStub struct {
	application *domain.MembershipApplication
	appErr      error
	member      *domain.Member
	memberErr   error
	unlinked    *domain.UnlinkedMember
	unlinkedErr error
}

func (s *statusRepoStub) GetPendingApplication(ctx context.Context, userID string) (*domain.MembershipApplication, error) {
	if s.appErr != nil {
		return nil, s.appErr
	}
	if s.application == nil {
		return nil, store.ErrApplicationNotFound
	}
	return s.application, nil
}

func (s *statusRepoStub) GetMemberByUserID(ctx context.Context, userID string) (*domain.Member, error) {
	if s.memberErr != nil {
		return nil, s.memberErr
	}
	if s.member == nil {
		return nil, store.ErrMemberNotFound
	}
	return s.member, nil
}

func (s *statusRepoStub) GetUnlinkedMemberByEmail(ctx context.Context, email string) (*domain.UnlinkedMember, error) {
	if s.unlinkedErr != nil {
		return nil, s.unlinkedErr
	}
	if s.unlinked == nil {
		return nil, store.ErrMemberNotFound
	}
	return s.unlinked, nil
}

func TestStatusResolver_Resolve(t *testing.T) {
	user := &domain.User{ID: "user-1", Email: "member@example.com"}

	tests := []struct {
		name string
		repo *statusRepoStub
		want domain.ApplicationStatus
	}{
		{
			name: "pending application wins over everything",
			repo: &statusRepoStub{
				application: &domain.MembershipApplication{Status: domain.ApplicationStatusPending},
				member:      &domain.Member{Status: domain.MemberStatusActive},
			},
			want: domain.StatusPendingApplication,
		},
		{
			name: "member pending activation",
			repo: &statusRepoStub{
				member: &domain.Member{Status: domain.MemberStatusPendingActivation},
			},
			want: domain.StatusPendingActivation,
		},
		{
			name: "active member",
			repo: &statusRepoStub{
				member: &domain.Member{Status: domain.MemberStatusActive},
			},
			want: domain.StatusActive,
		},
		{
			name: "unlinked member matched by email",
			repo: &statusRepoStub{
				unlinked: &domain.UnlinkedMember{Email: "member@example.com"},
			},
			want: domain.StatusUnlinkedMember,
		},
		{
			name: "no records at all",
			repo: &statusRepoStub{},
			want: domain.StatusPendingApplication,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := NewStatusResolver(tt.repo)
			resolution, err := resolver.Resolve(context.Background(), user)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if resolution.Status != tt.want {
				t.Fatalf("expected status %q, got %q", tt.want, resolution.Status)
			}
		})
	}
}

func TestStatusResolver_PayloadMatchesStatus(t *testing.T) {
	member := &domain.Member{ID: "mem-1", Status: domain.MemberStatusPendingActivation}
	resolver := NewStatusResolver(&statusRepoStub{member: member})

	resolution, err := resolver.Resolve(context.Background(), &domain.User{ID: "user-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolution.MemberData == nil || resolution.MemberData.ID != "mem-1" {
		t.Fatalf("expected the member payload, got %+v", resolution)
	}
	if resolution.ApplicationData != nil || resolution.UnlinkedData != nil {
		t.Fatal("expected only the payload for the resolved status")
	}
}

func TestStatusResolver_QueryErrorPropagates(t *testing.T) {
	repoErr := errors.New("connection refused")
	resolver := NewStatusResolver(&statusRepoStub{memberErr: repoErr})

	_, err := resolver.Resolve(context.Background(), &domain.User{ID: "user-1"})
	if !errors.Is(err, repoErr) {
		t.Fatalf("expected the repository error to propagate, got %v", err)
	}
}
