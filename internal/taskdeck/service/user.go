package service

import (
	"context"
	"errors"

	"github.com/taskdeck/taskdeck/internal/taskdeck/domain"
	"github.com/taskdeck/taskdeck/internal/taskdeck/records"
	"github.com/taskdeck/taskdeck/internal/taskdeck/store"
)

var ErrUserNotFound = errors.New("user not found")

// UserService manages user profiles.
type UserService struct {
	Store   store.Store
	Records *records.Store
}

// UserUpdate is a partial profile edit; nil fields stay as they are.
type UserUpdate struct {
	Name             *string
	ProfileImagePath *string
	HeroImagePath    *string
}

// GetUser returns one user.
func (s *UserService) GetUser(ctx context.Context, userID string) (domain.User, error) {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, ErrUserNotFound
	}
	return u, err
}

// UpdateUser applies a partial profile edit to the caller's own row.
func (s *UserService) UpdateUser(ctx context.Context, userID string, upd UserUpdate) (domain.User, error) {
	partial := records.Record{}
	if upd.Name != nil {
		partial["name"] = *upd.Name
	}
	if upd.ProfileImagePath != nil {
		partial["profile_image_path"] = *upd.ProfileImagePath
	}
	if upd.HeroImagePath != nil {
		partial["hero_image_path"] = *upd.HeroImagePath
	}
	if len(partial) == 0 {
		return s.GetUser(ctx, userID)
	}

	stored, err := s.Records.Update(ctx, "user", userID, partial)
	if err != nil {
		if errors.Is(err, records.ErrWriteFailed) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, err
	}

	return domain.User{
		ID:               stored.ID(),
		CreatedAt:        stored.Time("created_at"),
		Name:             stored.String("name"),
		Email:            stored.String("email"),
		ProfileImagePath: stored.String("profile_image_path"),
		HeroImagePath:    stored.String("hero_image_path"),
	}, nil
}
