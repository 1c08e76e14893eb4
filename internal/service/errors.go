package service

import (
	"errors"
	"fmt"

	"github.com/mycarconcierge/marketplace/internal/domain"
	"github.com/mycarconcierge/marketplace/internal/repository"
)

// storeError translates repository sentinels into classified domain errors.
func storeError(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return domain.NotFoundf("%s not found", what)
	case errors.Is(err, repository.ErrStateConflict):
		return domain.InvalidStatef("%s was modified concurrently", what)
	case errors.Is(err, repository.ErrDuplicate):
		return domain.InvalidStatef("%s already exists", what)
	case errors.Is(err, repository.ErrInsufficientCredits):
		return domain.InvalidStatef("no bid credits remaining")
	default:
		return fmt.Errorf("%s: %w", what, err)
	}
}

func isClientError(err error) bool {
	return errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrInvalidState) ||
		errors.Is(err, domain.ErrForbidden)
}
