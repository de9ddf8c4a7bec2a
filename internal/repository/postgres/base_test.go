package postgres

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	apperrors "github.com/jwalitptl/regulacao-api/pkg/errors"
)

func TestTranslate(t *testing.T) {
	assert.NoError(t, translate(nil, "patient", "get"))

	err := translate(sql.ErrNoRows, "patient", "get")
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
	assert.ErrorIs(t, err, sql.ErrNoRows)

	err = translate(&pq.Error{Code: "23505"}, "patient", "create")
	assert.True(t, apperrors.Is(err, apperrors.ErrConflict))
	assert.Equal(t, "patient already exists", err.(*apperrors.AppError).Message)

	cause := errors.New("connection reset")
	err = translate(cause, "request", "update")
	assert.ErrorIs(t, err, cause)
	assert.EqualError(t, err, "failed to update request: connection reset")
	_, ok := apperrors.As(err)
	assert.False(t, ok)
}

func TestCatalogTable(t *testing.T) {
	table, err := catalogTable("exam")
	assert.NoError(t, err)
	assert.Equal(t, "exam_types", table)

	table, err = catalogTable("consultation")
	assert.NoError(t, err)
	assert.Equal(t, "consultation_types", table)

	_, err = catalogTable("surgery")
	assert.True(t, apperrors.Is(err, apperrors.ErrBadRequest))
}

func TestCPFPrefix(t *testing.T) {
	assert.Equal(t, "529982", cpfPrefix("529.982"))
	assert.Equal(t, "-", cpfPrefix("Maria"))
}
