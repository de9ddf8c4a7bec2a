package rbac

import (
	"fmt"

	"github.com/jwalitptl/regulacao-api/internal/model"
	apperrors "github.com/jwalitptl/regulacao-api/pkg/errors"
)

// Action is an operation guarded by role.
type Action string

const (
	ActionSubmit          Action = "request.submit"
	ActionAccept          Action = "request.accept"
	ActionConfirm         Action = "request.confirm"
	ActionComplete        Action = "request.complete"
	ActionSuspend         Action = "request.suspend"
	ActionRevert          Action = "request.revert"
	ActionDelete          Action = "request.delete"
	ActionDeleteClosed    Action = "request.delete_closed"
	ActionUpdateRequest   Action = "request.update"
	ActionAttachDocument  Action = "request.attach_document"
	ActionReadRequests    Action = "request.read"
	ActionManagePatients  Action = "patient.manage"
	ActionReadPatients    Action = "patient.read"
	ActionManageCatalog   Action = "catalog.manage"
	ActionReadCatalog     Action = "catalog.read"
	ActionManageUnits     Action = "health_unit.manage"
	ActionManageBanners   Action = "notification.manage"
	ActionReadBanners     Action = "notification.read"
	ActionManageStaff     Action = "staff.manage"
	ActionReadQuotas      Action = "quota.read"
)

var (
	everyone     = roles(model.RoleAdmin, model.RoleRegulacao, model.RoleRecepcao)
	regulation   = roles(model.RoleAdmin, model.RoleRegulacao)
	adminOnly    = roles(model.RoleAdmin)
	intakeRoles  = roles(model.RoleAdmin, model.RoleRecepcao)
	revertRoles  = roles(model.RoleRegulacao, model.RoleRecepcao)
	suspendRoles = roles(model.RoleRegulacao)
)

// capabilities is the single authorisation table.
var capabilities = map[Action]map[model.Role]bool{
	ActionSubmit:          intakeRoles,
	ActionAccept:          regulation,
	ActionConfirm:         regulation,
	ActionComplete:        regulation,
	ActionSuspend:         suspendRoles,
	ActionRevert:          revertRoles,
	ActionDelete:          everyone,
	ActionDeleteClosed:    regulation,
	ActionUpdateRequest:   regulation,
	ActionAttachDocument:  everyone,
	ActionReadRequests:    everyone,
	ActionManagePatients:  everyone,
	ActionReadPatients:    everyone,
	ActionManageCatalog:   adminOnly,
	ActionReadCatalog:     everyone,
	ActionManageUnits:     adminOnly,
	ActionManageBanners:   adminOnly,
	ActionReadBanners:     everyone,
	ActionManageStaff:     adminOnly,
	ActionReadQuotas:      everyone,
}

func roles(rs ...model.Role) map[model.Role]bool {
	m := make(map[model.Role]bool, len(rs))
	for _, r := range rs {
		m[r] = true
	}
	return m
}

// Can reports whether role may perform action.
func Can(role model.Role, action Action) bool {
	return capabilities[action][role]
}

// Authorize returns a Forbidden error when role may not perform action.
func Authorize(role model.Role, action Action) error {
	if !role.Valid() {
		return apperrors.Forbidden(fmt.Sprintf("unknown role %q", role))
	}
	if !Can(role, action) {
		return apperrors.Forbidden(fmt.Sprintf("role %s may not perform %s", role, action))
	}
	return nil
}

// AuthorizeDelete applies the stricter rule for completed and suspended
// requests: only regulation may remove those.
func AuthorizeDelete(role model.Role, status model.RequestStatus) error {
	if status == model.StatusCompleted || status == model.StatusSuspended {
		return Authorize(role, ActionDeleteClosed)
	}
	return Authorize(role, ActionDelete)
}

// Allowed lists the roles permitted for action, for diagnostics.
func Allowed(action Action) []model.Role {
	var out []model.Role
	for _, r := range model.Roles {
		if Can(r, action) {
			out = append(out, r)
		}
	}
	return out
}
