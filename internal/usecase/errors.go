package usecase

import (
	"errors"

	"github.com/TrueFaces/CNN-FineTuning/internal/repository"
)

var (
	// ErrInvalidCredentials covers unknown users, wrong passwords and disabled accounts.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrForbidden is returned when a user acts on another account.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidInput wraps validation failures.
	ErrInvalidInput = errors.New("invalid input")
	// ErrStorageDisabled is returned for blob operations when no object storage is configured.
	ErrStorageDisabled = errors.New("object storage is not configured")
)

func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}
