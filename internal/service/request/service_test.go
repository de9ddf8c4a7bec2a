package request

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/regulacao-api/internal/model"
	apperrors "github.com/jwalitptl/regulacao-api/pkg/errors"
)

func TestListViews(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	in := f.intake(item(f.xray.Ref()), model.IntakeItem{Service: f.cardio.Ref(), IsUrgent: true, Attachment: pdf()})
	res, err := f.svc.Submit(ctx, reception, in)
	require.NoError(t, err)
	exam, consult := res.Created[0], res.Created[1]

	active, err := f.svc.List(ctx, reception, model.RequestFilters{})
	require.NoError(t, err)
	assert.Len(t, active, 2)
	// equal created_at falls back to id descending
	assert.Greater(t, active[0].ID, active[1].ID)

	again, err := f.svc.List(ctx, reception, model.RequestFilters{View: model.ViewActive})
	require.NoError(t, err)
	assert.Equal(t, active, again)

	urgent, err := f.svc.List(ctx, reception, model.RequestFilters{View: model.ViewUrgent})
	require.NoError(t, err)
	require.Len(t, urgent, 1)
	assert.Equal(t, consult.ID, urgent[0].ID)

	_, err = f.svc.Suspend(ctx, regulation, exam.ID, "sem vaga")
	require.NoError(t, err)
	suspended, err := f.svc.List(ctx, reception, model.RequestFilters{View: model.ViewSuspended})
	require.NoError(t, err)
	require.Len(t, suspended, 1)
	assert.Equal(t, exam.ID, suspended[0].ID)

	r := f.advance(consult, model.StatusConfirmed)
	_, err = f.svc.Complete(ctx, regulation, r.ID, completion())
	require.NoError(t, err)

	completed, err := f.svc.List(ctx, reception, model.RequestFilters{View: model.ViewCompleted})
	require.NoError(t, err)
	require.Len(t, completed, 1)
	active, err = f.svc.List(ctx, reception, model.RequestFilters{})
	require.NoError(t, err)
	assert.Empty(t, active)

	// completed view only covers the current month
	next := march.AddDate(0, 1, 0)
	completed, err = f.svc.List(ctx, reception, model.RequestFilters{View: model.ViewCompleted, Now: next})
	require.NoError(t, err)
	assert.Empty(t, completed)
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	r := f.submitOne()

	comment := "  trazer exames anteriores "
	_, err := f.svc.Update(ctx, reception, r.ID, &model.UpdateRequestRequest{Comment: &comment})
	assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))

	urgent := true
	updated, err := f.svc.Update(ctx, regulation, r.ID, &model.UpdateRequestRequest{IsUrgent: &urgent, Comment: &comment})
	require.NoError(t, err)
	assert.True(t, updated.IsUrgent)
	assert.Equal(t, "trazer exames anteriores", *updated.Comment)

	stored, err := f.svc.Get(ctx, reception, r.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsUrgent)
}

func TestAdditionalDocument(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	r := f.submitOne()

	r, err := f.svc.SetAdditionalDocument(ctx, reception, r.ID, pdf())
	require.NoError(t, err)
	first := *r.AdditionalDocRef

	r, err = f.svc.SetAdditionalDocument(ctx, reception, r.ID, pdf())
	require.NoError(t, err)
	assert.NotEqual(t, first, *r.AdditionalDocRef)
	assert.NotContains(t, f.files.Keys(), first)

	rc, obj, err := f.svc.File(ctx, reception, r.ID, FileAdditional)
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, pdfData, body)
	assert.Equal(t, "application/pdf", obj.ContentType)

	_, _, err = f.svc.File(ctx, reception, r.ID, FileResult)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))

	_, _, err = f.svc.File(ctx, reception, r.ID, FileKind("photo"))
	assert.True(t, apperrors.Is(err, apperrors.ErrBadRequest))
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	r := f.submitOne()
	require.NoError(t, f.svc.Delete(ctx, reception, r.ID))
	assert.Empty(t, f.store.Requests())
	// only the patient photos remain
	assert.Len(t, f.files.Keys(), 2)

	_, err := f.svc.Get(ctx, reception, r.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestDeleteCompletedRequiresRegulation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	r := f.advance(f.submitOne(), model.StatusConfirmed)
	_, err := f.svc.Complete(ctx, regulation, r.ID, completion())
	require.NoError(t, err)

	err = f.svc.Delete(ctx, reception, r.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))

	require.NoError(t, f.svc.Delete(ctx, admin, r.ID))
	assert.Len(t, f.files.Keys(), 2)
}

func TestDeleteSuspendedRequiresRegulation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	r := f.advance(f.submitOne(), model.StatusAccepted)
	_, err := f.svc.Suspend(ctx, regulation, r.ID, "documento ilegível")
	require.NoError(t, err)

	err = f.svc.Delete(ctx, reception, r.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))
	require.Len(t, f.store.Requests(), 1)

	require.NoError(t, f.svc.Delete(ctx, regulation, r.ID))
	assert.Empty(t, f.store.Requests())
}

func TestDeleteFreesQuota(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{EnforceQuota: true})
	r := f.submitOne()

	usage, err := f.catalog.CurrentUsage(ctx)
	require.NoError(t, err)
	assert.True(t, usage[f.xray.Ref()].Exhausted)

	require.NoError(t, f.svc.Delete(ctx, reception, r.ID))
	res, err := f.svc.Submit(ctx, reception, f.intake(item(f.xray.Ref())))
	require.NoError(t, err)
	assert.Len(t, res.Created, 1)
}
