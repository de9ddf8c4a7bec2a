package model

import "fmt"

// Role is the staff role carried by the session.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleRegulacao Role = "regulacao"
	RoleRecepcao  Role = "recepcao"
)

// Roles lists every valid role.
var Roles = []Role{RoleAdmin, RoleRegulacao, RoleRecepcao}

// ParseRole accepts only the closed set of roles.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleAdmin, RoleRegulacao, RoleRecepcao:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

// Actor is the authenticated staff member performing an operation.
type Actor struct {
	UserID int64 `json:"user_id"`
	Role   Role  `json:"role"`
}
