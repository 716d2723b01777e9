package user

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.repo.List(ctx)
}

func (s *Service) GetByID(ctx context.Context, id int) (User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) Register(ctx context.Context, user User) (User, error) {
	user.Email = strings.TrimSpace(user.Email)
	if _, err := s.repo.GetByEmail(ctx, user.Email); err == nil {
		return User{}, ErrEmailExists
	} else if !errors.Is(err, ErrNotFound) {
		return User{}, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}

	user.Password = string(hashed)
	user.Role = RoleCustomer
	return s.repo.Create(ctx, user)
}

func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	user, err := s.repo.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return User{}, ErrInvalidCredentials
	}

	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		return User{}, ErrInvalidCredentials
	}

	return user, nil
}

func (s *Service) UpdateProfile(ctx context.Context, id int, update User) (User, error) {
	return s.repo.UpdateProfile(ctx, id, update)
}

// SetRole grants or revokes the admin role. It takes effect on the next sign-in.
func (s *Service) SetRole(ctx context.Context, id int, role string) (User, error) {
	role = strings.ToLower(strings.TrimSpace(role))
	if !validRole(role) {
		return User{}, ErrInvalidRole
	}
	return s.repo.SetRole(ctx, id, role)
}

// ChangePassword replaces the stored hash once current verifies against it.
func (s *Service) ChangePassword(ctx context.Context, id int, current, next, confirm string) error {
	if next == "" {
		return ErrPasswordRequired
	}
	if next != confirm {
		return ErrPasswordMismatch
	}
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(current)) != nil {
		return ErrInvalidCredentials
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.repo.UpdatePassword(ctx, id, string(hashed))
}

func (s *Service) CountCustomers(ctx context.Context) (int, error) {
	return s.repo.CountByRole(ctx, RoleCustomer)
}
