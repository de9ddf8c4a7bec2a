package auth

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jwalitptl/regulacao-api/internal/model"
	"github.com/jwalitptl/regulacao-api/internal/repository/memory"
	"github.com/jwalitptl/regulacao-api/pkg/auth"
	apperrors "github.com/jwalitptl/regulacao-api/pkg/errors"
	"github.com/jwalitptl/regulacao-api/pkg/security"
)

func newService(t *testing.T) (*Service, *model.Staff) {
	t.Helper()
	store := memory.NewStore()
	svc := NewService(store.Staff(), auth.NewJWTService("secret", "test", time.Hour),
		security.NewBcryptHasher(security.PasswordPolicy{Cost: bcrypt.MinCost}), zerolog.Nop())
	admin, err := svc.EnsureAdmin(context.Background(), "Admin", "Admin@Example.com", "changeme123")
	require.NoError(t, err)
	require.NotNil(t, admin)
	return svc, admin
}

func TestEnsureAdminOnlyOnEmptyTable(t *testing.T) {
	svc, _ := newService(t)
	again, err := svc.EnsureAdmin(context.Background(), "Other", "other@example.com", "changeme123")
	require.NoError(t, err)
	assert.Nil(t, again)

	empty := NewService(memory.NewStore().Staff(), auth.NewJWTService("s", "t", time.Hour), nil, zerolog.Nop())
	_, err = empty.EnsureAdmin(context.Background(), "Admin", "", "")
	assert.Error(t, err)
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	svc, admin := newService(t)

	resp, err := svc.Login(ctx, " admin@example.com ", "changeme123")
	require.NoError(t, err)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	assert.Equal(t, admin.ID, resp.Staff.ID)

	actor, err := svc.Authenticate(ctx, resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, model.Actor{UserID: admin.ID, Role: model.RoleAdmin}, actor)

	_, err = svc.Login(ctx, "admin@example.com", "wrong-password")
	assert.True(t, apperrors.Is(err, apperrors.ErrUnauthorized))
	_, err = svc.Login(ctx, "nobody@example.com", "changeme123")
	assert.True(t, apperrors.Is(err, apperrors.ErrUnauthorized))

	_, err = svc.Authenticate(ctx, "garbage")
	assert.True(t, apperrors.Is(err, apperrors.ErrUnauthorized))
}

func TestStaffManagement(t *testing.T) {
	ctx := context.Background()
	svc, admin := newService(t)
	actor := admin.Actor()

	clerk, err := svc.CreateStaff(ctx, actor, &model.CreateStaffRequest{
		Name: "Joana", Email: "joana@example.com", Password: "recepcao123", Role: "recepcao",
	})
	require.NoError(t, err)
	assert.Equal(t, model.RoleRecepcao, clerk.Role)
	assert.NotEqual(t, "recepcao123", clerk.PasswordHash)

	_, err = svc.CreateStaff(ctx, clerk.Actor(), &model.CreateStaffRequest{
		Name: "X", Email: "x@example.com", Password: "password123", Role: "admin",
	})
	assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))

	_, err = svc.CreateStaff(ctx, actor, &model.CreateStaffRequest{
		Name: "Dup", Email: "JOANA@example.com", Password: "password123", Role: "recepcao",
	})
	assert.True(t, apperrors.Is(err, apperrors.ErrConflict))

	_, err = svc.CreateStaff(ctx, actor, &model.CreateStaffRequest{
		Name: "Bad", Email: "bad@example.com", Password: "password123", Role: "doctor",
	})
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))

	resp, err := svc.Login(ctx, "joana@example.com", "recepcao123")
	require.NoError(t, err)

	inactive := false
	_, err = svc.UpdateStaff(ctx, actor, clerk.ID, &model.UpdateStaffRequest{Active: &inactive})
	require.NoError(t, err)
	_, err = svc.Authenticate(ctx, resp.AccessToken)
	assert.True(t, apperrors.Is(err, apperrors.ErrUnauthorized))
	_, err = svc.Login(ctx, "joana@example.com", "recepcao123")
	assert.True(t, apperrors.Is(err, apperrors.ErrUnauthorized))

	_, err = svc.UpdateStaff(ctx, actor, admin.ID, &model.UpdateStaffRequest{Active: &inactive})
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))

	list, err := svc.ListStaff(ctx, actor)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	self, err := svc.GetStaff(ctx, clerk.Actor(), clerk.ID)
	require.NoError(t, err)
	assert.Equal(t, "Joana", self.Name)
	_, err = svc.GetStaff(ctx, clerk.Actor(), admin.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))
}

func TestLoginRehashesOnCostChange(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	jwtSvc := auth.NewJWTService("secret", "test", time.Hour)
	old := NewService(store.Staff(), jwtSvc, security.NewBcryptHasher(security.PasswordPolicy{Cost: bcrypt.MinCost}), zerolog.Nop())
	_, err := old.EnsureAdmin(ctx, "Admin", "admin@example.com", "changeme123")
	require.NoError(t, err)

	upgraded := NewService(store.Staff(), jwtSvc, security.NewBcryptHasher(security.PasswordPolicy{Cost: bcrypt.MinCost + 1}), zerolog.Nop())
	_, err = upgraded.Login(ctx, "admin@example.com", "changeme123")
	require.NoError(t, err)

	staff, err := store.Staff().GetByEmail(ctx, "admin@example.com")
	require.NoError(t, err)
	cost, err := bcrypt.Cost([]byte(staff.PasswordHash))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost+1, cost)

	_, err = upgraded.Login(ctx, "admin@example.com", "changeme123")
	require.NoError(t, err)
}

func TestPasswordPolicyRejection(t *testing.T) {
	ctx := context.Background()
	svc, admin := newService(t)

	_, err := svc.CreateStaff(ctx, admin.Actor(), &model.CreateStaffRequest{
		Name: "Curta", Email: "curta@example.com", Password: "abc", Role: "recepcao",
	})
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))
}
