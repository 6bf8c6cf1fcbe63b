package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvalidTransitionCarriesContext(t *testing.T) {
	err := NewInvalidTransition("t-1", "assign", "closed")

	de := ToDomainError(err)
	require.NotNil(t, de)
	assert.Equal(t, CodeInvalidTransition, de.Code)
	assert.Equal(t, http.StatusConflict, de.HTTPStatus)
	assert.Equal(t, "t-1", de.Details["ticket_id"])
	assert.Equal(t, "assign", de.Details["event"])
	assert.Equal(t, "closed", de.Details["from_status"])
}

func TestIsCodeSeesThroughWrapping(t *testing.T) {
	err := fmt.Errorf("resolve: %w", NewValidationError("resolution notes required", nil))

	assert.True(t, IsCode(err, CodeValidation))
	assert.False(t, IsCode(err, CodeNotFound))
	assert.False(t, IsCode(errors.New("plain"), CodeValidation))
}

func TestToDomainErrorMapsNoRowsAndUnknown(t *testing.T) {
	assert.Equal(t, CodeNotFound, ToDomainError(fmt.Errorf("get: %w", pgx.ErrNoRows)).Code)

	de := ToDomainError(errors.New("boom"))
	assert.Equal(t, CodeInternal, de.Code)
	assert.Equal(t, http.StatusInternalServerError, de.HTTPStatus)
	assert.Nil(t, ToDomainError(nil))
	assert.NoError(t, MapError(nil))
}
