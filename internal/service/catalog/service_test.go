package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/regulacao-api/internal/model"
	"github.com/jwalitptl/regulacao-api/internal/repository/memory"
	apperrors "github.com/jwalitptl/regulacao-api/pkg/errors"
)

var (
	admin     = model.Actor{UserID: 1, Role: model.RoleAdmin}
	reception = model.Actor{UserID: 2, Role: model.RoleRecepcao}
	march     = time.Date(2025, 3, 15, 9, 0, 0, 0, time.UTC)
)

func newService(store *memory.Store) *Service {
	store.Now = func() time.Time { return march }
	return NewService(store.Catalog(), store.Units(), store.RequestRepo(), time.Minute).
		WithClock(func() time.Time { return march })
}

func TestCreateRequiresAdmin(t *testing.T) {
	svc := newService(memory.NewStore())
	_, err := svc.Create(context.Background(), reception, model.ServiceExam, &model.CatalogItemRequest{Name: "Raio-X"})
	assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))

	item, err := svc.Create(context.Background(), admin, model.ServiceExam, &model.CatalogItemRequest{Name: " Raio-X ", MonthlyQuota: 5})
	require.NoError(t, err)
	assert.Equal(t, "Raio-X", item.Name)
	assert.True(t, item.Active)
}

func TestUsage(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := newService(store)

	xray, err := svc.Create(ctx, admin, model.ServiceExam, &model.CatalogItemRequest{Name: "Raio-X", MonthlyQuota: 2})
	require.NoError(t, err)
	cardio, err := svc.Create(ctx, admin, model.ServiceConsultation, &model.CatalogItemRequest{Name: "Cardiologia", MonthlyQuota: 10})
	require.NoError(t, err)

	patient := &model.Patient{Name: "Ana", CPF: "52998224725", Phone: "11999990000"}
	require.NoError(t, store.Patients().Create(ctx, patient))
	for i := 0; i < 2; i++ {
		r := &model.Request{PatientID: patient.ID, RequesterID: 2, HealthUnitID: 1}
		r.SetService(xray.Ref())
		require.NoError(t, store.RequestRepo().Create(ctx, r))
	}

	usage, err := svc.CurrentUsage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, usage[xray.Ref()].Used)
	assert.True(t, usage[xray.Ref()].Exhausted)
	assert.Equal(t, 10, usage[cardio.Ref()].Remaining)

	// cached until invalidated
	r := &model.Request{PatientID: patient.ID, RequesterID: 2, HealthUnitID: 1}
	r.SetService(cardio.Ref())
	require.NoError(t, store.RequestRepo().Create(ctx, r))
	usage, err = svc.CurrentUsage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, usage[cardio.Ref()].Used)

	svc.InvalidateUsage()
	usage, err = svc.CurrentUsage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, usage[cardio.Ref()].Used)

	feb, err := svc.Usage(ctx, 2025, time.February)
	require.NoError(t, err)
	for _, u := range feb {
		assert.Zero(t, u.Used)
	}

	_, err = svc.Usage(ctx, 2025, 13)
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))
}

func TestUpdateAndUnits(t *testing.T) {
	ctx := context.Background()
	svc := newService(memory.NewStore())

	item, err := svc.Create(ctx, admin, model.ServiceExam, &model.CatalogItemRequest{Name: "Raio-X"})
	require.NoError(t, err)

	inactive := false
	item, err = svc.Update(ctx, admin, item.Ref(), &model.CatalogItemRequest{Name: "Raio-X tórax", MonthlyQuota: 3, Active: &inactive})
	require.NoError(t, err)
	assert.False(t, item.Active)

	active, err := svc.List(ctx, model.ServiceExam, true)
	require.NoError(t, err)
	assert.Empty(t, active)

	_, err = svc.CreateUnit(ctx, reception, &model.HealthUnitRequest{Name: "UBS Centro"})
	assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))
	unit, err := svc.CreateUnit(ctx, admin, &model.HealthUnitRequest{Name: "UBS Centro"})
	require.NoError(t, err)
	got, err := svc.GetUnit(ctx, unit.ID)
	require.NoError(t, err)
	assert.Equal(t, "UBS Centro", got.Name)
}
