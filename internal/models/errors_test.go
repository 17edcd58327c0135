package models_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mdelaney/catsync/internal/models"
)

func TestValidationError(t *testing.T) {
	err := &models.ValidationError{Field: "name", Reason: "must not be empty"}
	assert.Equal(t, "invalid name: must not be empty", err.Error())

	assert.True(t, models.IsValidation(err))
	assert.True(t, models.IsValidation(fmt.Errorf("create: %w", err)))
	assert.False(t, models.IsValidation(models.ErrNotFound))
	assert.False(t, models.IsValidation(nil))
}

func TestAPIError(t *testing.T) {
	err := &models.APIError{Code: "Bad Request", Message: "no name", StatusCode: 400}
	assert.Equal(t, "API error 400 (Bad Request): no name", err.Error())

	var target *models.APIError
	assert.True(t, errors.As(fmt.Errorf("remote: %w", err), &target))
	assert.Equal(t, 400, target.StatusCode)
}

func TestConflictErrorUnwrapsToDuplicateName(t *testing.T) {
	err := &models.ConflictError{Name: "Work", ExistingID: "c1"}

	assert.ErrorIs(t, err, models.ErrDuplicateName)
	assert.Contains(t, err.Error(), `"Work"`)
	assert.Contains(t, err.Error(), "c1")
}

func TestSentinelWrapping(t *testing.T) {
	wrapped := fmt.Errorf("delete: %w: 3 file(s)", models.ErrInUse)
	assert.ErrorIs(t, wrapped, models.ErrInUse)

	wrapped = fmt.Errorf("%w: connection refused", models.ErrRemoteUnavailable)
	assert.ErrorIs(t, wrapped, models.ErrRemoteUnavailable)
}
