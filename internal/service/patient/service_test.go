package patient

import (
	"context"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/regulacao-api/internal/model"
	"github.com/jwalitptl/regulacao-api/internal/repository/memory"
	"github.com/jwalitptl/regulacao-api/internal/storage"
	apperrors "github.com/jwalitptl/regulacao-api/pkg/errors"
)

var (
	reception = model.Actor{UserID: 2, Role: model.RoleRecepcao}
	pdf       = &model.FileUpload{FileName: "id.pdf", Data: []byte("%PDF-1.4\n%%EOF\n")}
)

func setup() (*Service, *memory.Store, *storage.MemoryStore) {
	store := memory.NewStore()
	files := storage.NewMemoryStore()
	return NewService(store.Patients(), storage.NewUploader(files, 0), zerolog.Nop()), store, files
}

func newRequest() *model.CreatePatientRequest {
	return &model.CreatePatientRequest{
		Name:      "Maria da Silva",
		CPF:       "529.982.247-25",
		Phone:     "(11) 99999-0000",
		State:     "sp",
		BirthDate: "1980-05-02",
	}
}

func TestCreate(t *testing.T) {
	svc, _, files := setup()
	p, err := svc.Create(context.Background(), reception, newRequest(), pdf, pdf)
	require.NoError(t, err)

	assert.Equal(t, "52998224725", p.CPF)
	assert.Equal(t, "SP", p.State)
	assert.True(t, p.HasIDPhotos())
	assert.Len(t, files.Keys(), 2)

	_, err = svc.Create(context.Background(), reception, newRequest(), nil, nil)
	assert.True(t, apperrors.Is(err, apperrors.ErrConflict))
}

func TestCreateRejectsInvalidCPF(t *testing.T) {
	svc, _, _ := setup()
	req := newRequest()
	req.CPF = "111.111.111-11"
	_, err := svc.Create(context.Background(), reception, req, nil, nil)
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))
}

func TestFindOrCreate(t *testing.T) {
	ctx := context.Background()
	svc, _, files := setup()

	created, err := svc.FindOrCreate(ctx, reception, newRequest(), pdf, nil)
	require.NoError(t, err)
	assert.False(t, created.HasIDPhotos())

	found, err := svc.FindOrCreate(ctx, reception, newRequest(), pdf, pdf)
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	assert.True(t, found.HasIDPhotos())
	// front was already stored and is not replaced
	assert.Equal(t, created.IDFrontRef, found.IDFrontRef)
	assert.Len(t, files.Keys(), 2)
}

func TestSetDocumentReplacesOldFile(t *testing.T) {
	ctx := context.Background()
	svc, _, files := setup()
	p, err := svc.Create(ctx, reception, newRequest(), pdf, pdf)
	require.NoError(t, err)
	oldFront := p.IDFrontRef

	p, err = svc.SetDocument(ctx, reception, p.ID, model.DocumentFront, pdf)
	require.NoError(t, err)
	assert.NotEqual(t, oldFront, p.IDFrontRef)
	assert.NotContains(t, files.Keys(), oldFront)
	assert.Len(t, files.Keys(), 2)

	rc, obj, err := svc.Document(ctx, reception, p.ID, model.DocumentFront)
	require.NoError(t, err)
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	assert.Equal(t, pdf.Data, body)
	assert.Equal(t, "application/pdf", obj.ContentType)

	_, err = svc.SetDocument(ctx, reception, p.ID, model.DocumentSide("side"), pdf)
	assert.True(t, apperrors.Is(err, apperrors.ErrBadRequest))
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setup()
	p, err := svc.Create(ctx, reception, newRequest(), nil, nil)
	require.NoError(t, err)

	phone := " 11 98888-7777 "
	blank := "  "
	p, err = svc.Update(ctx, reception, p.ID, &model.UpdatePatientRequest{Phone: &phone, SocialName: &blank})
	require.NoError(t, err)
	assert.Equal(t, "11 98888-7777", p.Phone)
	assert.Nil(t, p.SocialName)

	empty := ""
	_, err = svc.Update(ctx, reception, p.ID, &model.UpdatePatientRequest{Name: &empty})
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))

	_, err = svc.Get(ctx, reception, 999)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestSearchAndCPFLookup(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setup()
	_, err := svc.Create(ctx, reception, newRequest(), nil, nil)
	require.NoError(t, err)

	found, err := svc.Search(ctx, reception, &model.PatientFilters{SearchTerm: "maria"})
	require.NoError(t, err)
	assert.Len(t, found, 1)

	p, err := svc.GetByCPF(ctx, reception, "529.982.247-25")
	require.NoError(t, err)
	assert.Equal(t, "Maria da Silva", p.Name)

	_, err = svc.GetByCPF(ctx, reception, "123")
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))
}
