package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusCode(t *testing.T) {
	cases := map[*AppError]int{
		NotFound("request", nil):        http.StatusNotFound,
		BadRequest("bad", nil):          http.StatusBadRequest,
		Validation("missing photo"):     http.StatusUnprocessableEntity,
		Unauthorized(nil):               http.StatusUnauthorized,
		Forbidden("nope"):               http.StatusForbidden,
		Conflict("status changed", nil): http.StatusConflict,
		Internal(fmt.Errorf("boom")):    http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, err.StatusCode(), err.Message)
	}
}

func TestAsThroughWrapping(t *testing.T) {
	base := Validation("duplicate request", "Raio-X")
	wrapped := fmt.Errorf("submit: %w", base)

	got, ok := As(wrapped)
	assert.True(t, ok)
	assert.Equal(t, []string{"Raio-X"}, got.Details)
	assert.True(t, Is(wrapped, ErrValidation))
	assert.False(t, Is(wrapped, ErrNotFound))
	assert.False(t, Is(fmt.Errorf("plain"), ErrValidation))
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "patient not found", NotFound("patient", nil).Error())
	assert.Equal(t, "internal server error: db down", Internal(fmt.Errorf("db down")).Error())
}
