package usecase

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/TrueFaces/CNN-FineTuning/internal/auth"
	"github.com/TrueFaces/CNN-FineTuning/internal/logging"
	"github.com/TrueFaces/CNN-FineTuning/internal/repository"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// UserRepository defines the persistence operations needed for accounts.
type UserRepository interface {
	Create(ctx context.Context, user *repository.User) error
	FindByID(ctx context.Context, id uint) (*repository.User, error)
	FindByUsername(ctx context.Context, username string) (*repository.User, error)
	List(ctx context.Context, limit, offset int) ([]*repository.User, error)
	Update(ctx context.Context, user *repository.User) error
	Delete(ctx context.Context, id uint) error
}

// RegisterInput is the data required to create an account.
type RegisterInput struct {
	Username string
	Email    string
	FullName string
	Password string
}

// UpdateUserInput carries optional profile changes; nil fields are left untouched.
type UpdateUserInput struct {
	Email    *string
	FullName *string
	Password *string
}

// UserUseCase implements registration, login and account management.
type UserUseCase struct {
	repo   UserRepository
	logger *zap.Logger

	checkPassword func(hash, password string) error
	checkDummy    func(password string)
}

// NewUserUseCase constructs a new use case instance.
func NewUserUseCase(repo UserRepository, logger *zap.Logger) *UserUseCase {
	return &UserUseCase{
		repo:          repo,
		logger:        logger.Named("user_usecase"),
		checkPassword: auth.CheckPassword,
		checkDummy:    auth.CheckDummyPassword,
	}
}

// Register creates an account with a bcrypt-hashed password.
func (uc *UserUseCase) Register(ctx context.Context, in RegisterInput) (*repository.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	in.FullName = strings.TrimSpace(in.FullName)
	if in.Username == "" || in.Email == "" || in.Password == "" {
		return nil, fmt.Errorf("%w: username, email and password are required", ErrInvalidInput)
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, logging.NewOperationError("usecase.register", logging.RequestID(ctx), err)
	}

	user := &repository.User{
		Username:     in.Username,
		Email:        in.Email,
		FullName:     in.FullName,
		PasswordHash: hash,
	}
	if err := uc.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	logging.WithOperation(uc.logger, "usecase.register", logging.RequestID(ctx)).
		Info("user registered", zap.Uint("user_id", user.ID))
	return user, nil
}

// Authenticate checks credentials and returns the matching active user.
func (uc *UserUseCase) Authenticate(ctx context.Context, username, password string) (*repository.User, error) {
	user, err := uc.repo.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if isNotFound(err) {
			uc.checkDummy(password)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := uc.checkPassword(user.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	if user.Disabled {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// Get returns a user by id.
func (uc *UserUseCase) Get(ctx context.Context, id uint) (*repository.User, error) {
	return uc.repo.FindByID(ctx, id)
}

// List returns a page of users.
func (uc *UserUseCase) List(ctx context.Context, limit, offset int) ([]*repository.User, error) {
	limit, offset = clampPage(limit, offset)
	return uc.repo.List(ctx, limit, offset)
}

// Update changes the profile of id. Only the account owner may do so.
func (uc *UserUseCase) Update(ctx context.Context, actorID, id uint, in UpdateUserInput) (*repository.User, error) {
	if actorID != id {
		return nil, ErrForbidden
	}

	user, err := uc.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Email != nil {
		email := strings.TrimSpace(*in.Email)
		if email == "" {
			return nil, fmt.Errorf("%w: email must not be empty", ErrInvalidInput)
		}
		user.Email = email
	}
	if in.FullName != nil {
		user.FullName = strings.TrimSpace(*in.FullName)
	}
	if in.Password != nil {
		if *in.Password == "" {
			return nil, fmt.Errorf("%w: password must not be empty", ErrInvalidInput)
		}
		hash, err := auth.HashPassword(*in.Password)
		if err != nil {
			return nil, logging.NewOperationError("usecase.update_user", logging.RequestID(ctx), err)
		}
		user.PasswordHash = hash
	}

	if err := uc.repo.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Delete removes the account id. Only the account owner may do so.
func (uc *UserUseCase) Delete(ctx context.Context, actorID, id uint) error {
	if actorID != id {
		return ErrForbidden
	}
	return uc.repo.Delete(ctx, id)
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
