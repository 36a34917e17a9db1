/**
 * @description
 * Resolves which member lifecycle phase applies to a validated user. Exactly
 * one status comes back per resolution, with only the payload its screen
 * needs attached.
 */
package app

import (
	"context"
	"errors"

	"github.com/stormwellnessclub/member-portal/internal/domain"
	"github.com/stormwellnessclub/member-portal/internal/store"
)

// StatusRepository is the slice of the data layer the resolver consumes.
type StatusRepository interface {
	GetPendingApplication(ctx context.Context, userID string) (*domain.MembershipApplication, error)
	GetMemberByUserID(ctx context.Context, userID string) (*domain.Member, error)
	GetUnlinkedMemberByEmail(ctx context.Context, email string) (*domain.UnlinkedMember, error)
}

// StatusResolver queries backend tables to classify a user.
type StatusResolver struct {
	repo StatusRepository
}

// NewStatusResolver creates a resolver.
func NewStatusResolver(repo StatusRepository) *StatusResolver {
	return &StatusResolver{repo: repo}
}

// Resolve determines the user's application status. Check order matters: a
// pending application wins over everything, then a linked member record, then
// an unlinked member matched by email. A user with none of these is treated
// as still in the application funnel.
func (r *StatusResolver) Resolve(ctx context.Context, user *domain.User) (*domain.StatusResolution, error) {
	application, err := r.repo.GetPendingApplication(ctx, user.ID)
	if err == nil {
		return &domain.StatusResolution{
			Status:          domain.StatusPendingApplication,
			ApplicationData: application,
		}, nil
	}
	if !errors.Is(err, store.ErrApplicationNotFound) {
		return nil, err
	}

	member, err := r.repo.GetMemberByUserID(ctx, user.ID)
	if err == nil {
		if member.Status == domain.MemberStatusPendingActivation {
			return &domain.StatusResolution{
				Status:     domain.StatusPendingActivation,
				MemberData: member,
			}, nil
		}
		return &domain.StatusResolution{
			Status:     domain.StatusActive,
			MemberData: member,
		}, nil
	}
	if !errors.Is(err, store.ErrMemberNotFound) {
		return nil, err
	}

	unlinked, err := r.repo.GetUnlinkedMemberByEmail(ctx, user.Email)
	if err == nil {
		return &domain.StatusResolution{
			Status:       domain.StatusUnlinkedMember,
			UnlinkedData: unlinked,
		}, nil
	}
	if !errors.Is(err, store.ErrMemberNotFound) {
		return nil, err
	}

	// No application, no member record: the user signed up but never
	// submitted an application. Surface the under-review screen's empty
	// variant rather than inventing a fifth status.
	return &domain.StatusResolution{Status: domain.StatusPendingApplication}, nil
}
