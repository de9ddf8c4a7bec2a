package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jwalitptl/regulacao-api/internal/model"
	apperrors "github.com/jwalitptl/regulacao-api/pkg/errors"
)

func TestCapabilityTable(t *testing.T) {
	tests := []struct {
		action Action
		want   []model.Role
	}{
		{ActionSubmit, []model.Role{model.RoleAdmin, model.RoleRecepcao}},
		{ActionAccept, []model.Role{model.RoleAdmin, model.RoleRegulacao}},
		{ActionConfirm, []model.Role{model.RoleAdmin, model.RoleRegulacao}},
		{ActionComplete, []model.Role{model.RoleAdmin, model.RoleRegulacao}},
		{ActionSuspend, []model.Role{model.RoleRegulacao}},
		{ActionRevert, []model.Role{model.RoleRegulacao, model.RoleRecepcao}},
		{ActionDelete, []model.Role{model.RoleAdmin, model.RoleRegulacao, model.RoleRecepcao}},
		{ActionDeleteClosed, []model.Role{model.RoleAdmin, model.RoleRegulacao}},
		{ActionManageCatalog, []model.Role{model.RoleAdmin}},
		{ActionManageStaff, []model.Role{model.RoleAdmin}},
	}
	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			assert.ElementsMatch(t, tt.want, Allowed(tt.action))
		})
	}
}

func TestAuthorize(t *testing.T) {
	assert.NoError(t, Authorize(model.RoleRegulacao, ActionSuspend))

	err := Authorize(model.RoleRecepcao, ActionSuspend)
	assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))

	err = Authorize(model.Role("guest"), ActionReadRequests)
	assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))

	assert.False(t, Can(model.RoleAdmin, Action("unknown")))
}

func TestAuthorizeDelete(t *testing.T) {
	for _, status := range []model.RequestStatus{model.StatusReceived, model.StatusAccepted, model.StatusConfirmed} {
		assert.NoError(t, AuthorizeDelete(model.RoleRecepcao, status), status)
	}
	for _, status := range []model.RequestStatus{model.StatusCompleted, model.StatusSuspended} {
		err := AuthorizeDelete(model.RoleRecepcao, status)
		assert.True(t, apperrors.Is(err, apperrors.ErrForbidden), status)
		assert.NoError(t, AuthorizeDelete(model.RoleRegulacao, status), status)
		assert.NoError(t, AuthorizeDelete(model.RoleAdmin, status), status)
	}
}
