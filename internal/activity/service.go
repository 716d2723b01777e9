package activity

import (
	"context"
	"strings"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Append records an action performed by userID, optionally tied to a
// payment or order reference.
func (s *Service) Append(ctx context.Context, userID int, action, reference string) error {
	action = strings.TrimSpace(action)
	if userID <= 0 || action == "" {
		return ErrInvalidEntry
	}
	_, err := s.repo.Append(ctx, Entry{UserID: userID, Action: action, Reference: reference})
	return err
}

func (s *Service) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	return s.repo.List(ctx, limit)
}
