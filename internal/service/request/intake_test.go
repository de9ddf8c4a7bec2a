package request

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/regulacao-api/internal/model"
	apperrors "github.com/jwalitptl/regulacao-api/pkg/errors"
)

func validationDetails(t *testing.T, err error) (string, []string) {
	t.Helper()
	appErr, ok := apperrors.As(err)
	require.True(t, ok, "expected application error, got %v", err)
	require.Equal(t, apperrors.ErrValidation, appErr.Code, appErr.Message)
	return appErr.Message, appErr.Details
}

func TestSubmitCreatesOneRequestPerService(t *testing.T) {
	f := newFixture(t, Options{})
	urgent := model.IntakeItem{
		Service:              f.cardio.Ref(),
		IsUrgent:             true,
		UrgencyJustification: ptr(" dor no peito "),
		Attachment:           pdf(),
	}
	res, err := f.svc.Submit(context.Background(), reception, f.intake(item(f.xray.Ref()), urgent))
	require.NoError(t, err)

	require.Len(t, res.Created, 2)
	assert.Empty(t, res.Failures)
	assert.True(t, res.Patient.HasIDPhotos())

	exam, consult := res.Created[0], res.Created[1]
	assert.Equal(t, "Raio-X", exam.ServiceName)
	assert.Equal(t, f.xray.ID, *exam.ExamTypeID)
	assert.Nil(t, exam.ConsultationTypeID)
	assert.Equal(t, f.cardio.ID, *consult.ConsultationTypeID)
	assert.True(t, consult.IsUrgent)
	assert.Equal(t, "dor no peito", *consult.UrgencyJustification)
	for _, r := range res.Created {
		assert.Equal(t, model.StatusReceived, r.Status)
		assert.Equal(t, reception.UserID, r.RequesterID)
		assert.Equal(t, f.unit.ID, r.HealthUnitID)
		require.NotNil(t, r.AttachmentRef)
		assert.True(t, strings.HasPrefix(*r.AttachmentRef, "requests/"))
		assert.NoError(t, r.CheckInvariants())
	}
	// two ID photos plus two attachments
	assert.Len(t, f.files.Keys(), 4)
}

func TestSubmitGuards(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	_, err := f.svc.Submit(ctx, reception, f.intake())
	validationDetails(t, err)

	_, err = f.svc.Submit(ctx, reception, f.intake(item(f.xray.Ref()), item(f.xray.Ref())))
	msg, _ := validationDetails(t, err)
	assert.Contains(t, msg, "Raio-X")

	_, err = f.svc.Submit(ctx, reception, f.intake(item(model.ServiceRef{Kind: model.ServiceExam, ID: 999})))
	validationDetails(t, err)

	_, err = f.svc.Submit(ctx, reception, f.intake(item(model.ServiceRef{Kind: "surgery", ID: f.xray.ID})))
	validationDetails(t, err)

	missing := f.intake(item(f.xray.Ref()), model.IntakeItem{Service: f.cardio.Ref()})
	_, err = f.svc.Submit(ctx, reception, missing)
	_, details := validationDetails(t, err)
	assert.Equal(t, []string{"Cardiologia"}, details)

	badType := f.intake(model.IntakeItem{Service: f.xray.Ref(), Attachment: &model.FileUpload{FileName: "a.txt", Data: []byte("plain text")}})
	_, err = f.svc.Submit(ctx, reception, badType)
	validationDetails(t, err)

	noUnit := f.intake(item(f.xray.Ref()))
	noUnit.HealthUnitID = 42
	_, err = f.svc.Submit(ctx, reception, noUnit)
	validationDetails(t, err)

	_, err = f.svc.Submit(ctx, regulation, f.intake(item(f.xray.Ref())))
	assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))

	assert.Empty(t, f.store.Requests())
}

func TestSubmitInactiveService(t *testing.T) {
	f := newFixture(t, Options{})
	inactive := false
	_, err := f.catalog.Update(context.Background(), admin, f.cardio.Ref(), &model.CatalogItemRequest{Name: "Cardiologia", Active: &inactive})
	require.NoError(t, err)

	_, err = f.svc.Submit(context.Background(), reception, f.intake(item(f.cardio.Ref())))
	msg, _ := validationDetails(t, err)
	assert.Contains(t, msg, "Cardiologia")
}

func TestSubmitRequiresIDPhotos(t *testing.T) {
	f := newFixture(t, Options{})
	in := f.intake(item(f.xray.Ref()))
	in.IDBack = nil

	_, err := f.svc.Submit(context.Background(), reception, in)
	msg, _ := validationDetails(t, err)
	assert.Contains(t, msg, "ID photos")
	assert.Empty(t, f.store.Requests())

	// the patient was registered and a later submission can add the missing photo
	p, err := f.svc.patients.GetByCPF(context.Background(), reception, "52998224725")
	require.NoError(t, err)
	in = &model.IntakeRequest{PatientID: p.ID, IDBack: pdf(), HealthUnitID: f.unit.ID, Items: []model.IntakeItem{item(f.xray.Ref())}}
	res, err := f.svc.Submit(context.Background(), reception, in)
	require.NoError(t, err)
	assert.Len(t, res.Created, 1)
}

func TestSubmitChecksIDPhotosBeforeAttachments(t *testing.T) {
	f := newFixture(t, Options{})
	in := f.intake(model.IntakeItem{Service: f.xray.Ref()})
	in.IDFront = nil

	_, err := f.svc.Submit(context.Background(), reception, in)
	msg, details := validationDetails(t, err)
	assert.Contains(t, msg, "ID photos")
	assert.Empty(t, details)
	assert.Empty(t, f.store.Requests())
}

func TestSubmitDuplicateWindow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	first := f.submitOne()

	_, err := f.svc.Submit(ctx, reception, f.intake(item(f.xray.Ref()), item(f.cardio.Ref())))
	msg, details := validationDetails(t, err)
	assert.Contains(t, msg, "30 days")
	assert.Equal(t, []string{"Raio-X"}, details)

	// suspended requests do not count
	_, err = f.svc.Suspend(ctx, regulation, first.ID, "sem vaga")
	require.NoError(t, err)
	res, err := f.svc.Submit(ctx, reception, f.intake(item(f.xray.Ref())))
	require.NoError(t, err)
	assert.Len(t, res.Created, 1)

	// outside the window the same service is accepted again
	later := march.Add(31 * 24 * time.Hour)
	f.svc.WithClock(func() time.Time { return later })
	f.store.Now = func() time.Time { return later }
	res, err = f.svc.Submit(ctx, reception, f.intake(item(f.xray.Ref())))
	require.NoError(t, err)
	assert.Len(t, res.Created, 1)
}

func TestSubmitQuota(t *testing.T) {
	ctx := context.Background()

	t.Run("informational", func(t *testing.T) {
		f := newFixture(t, Options{})
		f.submitOne()

		other := f.intake(item(f.xray.Ref()))
		other.Patient.CPF = "111.444.777-35"
		res, err := f.svc.Submit(ctx, reception, other)
		require.NoError(t, err)
		assert.Len(t, res.Created, 1)
		require.Len(t, res.QuotaWarnings, 1)
		assert.Equal(t, "Raio-X", res.QuotaWarnings[0].Name)
	})

	t.Run("enforced", func(t *testing.T) {
		f := newFixture(t, Options{EnforceQuota: true})
		f.submitOne()

		other := f.intake(item(f.xray.Ref()), item(f.cardio.Ref()))
		other.Patient.CPF = "111.444.777-35"
		_, err := f.svc.Submit(ctx, reception, other)
		_, details := validationDetails(t, err)
		assert.Equal(t, []string{"Raio-X"}, details)
		assert.Len(t, f.store.Requests(), 1)
	})
}

func TestSubmitPartialFailure(t *testing.T) {
	f := newFixture(t, Options{Concurrency: 2})
	f.store.FailCreateRequest = func(r *model.Request) error {
		if r.ConsultationTypeID != nil {
			return errors.New("insert failed")
		}
		return nil
	}

	res, err := f.svc.Submit(context.Background(), reception, f.intake(item(f.xray.Ref()), item(f.cardio.Ref())))
	require.NoError(t, err)
	require.Len(t, res.Created, 1)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "Cardiologia", res.Failures[0].ServiceName)
	assert.Equal(t, "failed to create request", res.Failures[0].Reason)

	// the failed item's attachment was removed: two photos plus one attachment
	assert.Len(t, f.files.Keys(), 3)
	assert.Contains(t, f.files.Keys(), *res.Created[0].AttachmentRef)
}

func TestSubmitUploadFailureWritesNoRow(t *testing.T) {
	f := newFixture(t, Options{})
	f.files.FailPut = func(key string) error {
		if strings.Contains(key, "/attachment/") {
			return errors.New("bucket unavailable")
		}
		return nil
	}

	res, err := f.svc.Submit(context.Background(), reception, f.intake(item(f.xray.Ref())))
	require.NoError(t, err)
	assert.Empty(t, res.Created)
	require.Len(t, res.Failures, 1)
	assert.Empty(t, f.store.Requests())
}

func ptr[T any](v T) *T { return &v }
