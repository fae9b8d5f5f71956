package users

import (
	"context"
	"strings"
)

// Service exposes account lookups to authenticated callers.
type Service struct {
	Repo Repo
}

func NewService(repo Repo) *Service {
	return &Service{Repo: repo}
}

// Profile returns the public view of the account behind userID.
func (s *Service) Profile(ctx context.Context, userID string) (Summary, error) {
	if strings.TrimSpace(userID) == "" {
		return Summary{}, ErrNotFound
	}
	user, err := s.Repo.GetByID(ctx, userID)
	if err != nil {
		return Summary{}, err
	}
	return user.Summary(), nil
}
