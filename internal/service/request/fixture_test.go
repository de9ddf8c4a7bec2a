package request

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/regulacao-api/internal/model"
	"github.com/jwalitptl/regulacao-api/internal/repository/memory"
	"github.com/jwalitptl/regulacao-api/internal/service/catalog"
	"github.com/jwalitptl/regulacao-api/internal/service/notify"
	"github.com/jwalitptl/regulacao-api/internal/service/patient"
	"github.com/jwalitptl/regulacao-api/internal/storage"
	"github.com/jwalitptl/regulacao-api/pkg/metrics"
)

var (
	admin      = model.Actor{UserID: 1, Role: model.RoleAdmin}
	reception  = model.Actor{UserID: 2, Role: model.RoleRecepcao}
	regulation = model.Actor{UserID: 3, Role: model.RoleRegulacao}

	march = time.Date(2025, 3, 15, 9, 0, 0, 0, time.UTC)

	pdfData = []byte("%PDF-1.4\n1 0 obj\n%%EOF\n")
)

func pdf() *model.FileUpload { return &model.FileUpload{FileName: "doc.pdf", Data: pdfData} }

type fixture struct {
	t       *testing.T
	store   *memory.Store
	files   *storage.MemoryStore
	catalog *catalog.Service
	svc     *Service
	unit    *model.HealthUnit
	xray    *model.CatalogItem
	cardio  *model.CatalogItem
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	clock := func() time.Time { return march }
	store := memory.NewStore()
	store.Now = clock
	files := storage.NewMemoryStore()
	uploader := storage.NewUploader(files, 0)

	cat := catalog.NewService(store.Catalog(), store.Units(), store.RequestRepo(), time.Minute).WithClock(clock)
	patients := patient.NewService(store.Patients(), uploader, zerolog.Nop())
	formatters := []notify.Formatter{
		&notify.WhatsAppFormatter{ResultBaseURL: "https://regulacao.example.gov.br", CountryCode: "55"},
		&notify.EmailFormatter{ResultBaseURL: "https://regulacao.example.gov.br"},
	}
	svc := NewService(store.RequestRepo(), patients, cat, uploader, formatters, metrics.NewNop(), zerolog.Nop(), opts).
		WithClock(clock)

	ctx := context.Background()
	unit, err := cat.CreateUnit(ctx, admin, &model.HealthUnitRequest{Name: "UBS Centro"})
	require.NoError(t, err)
	xray, err := cat.Create(ctx, admin, model.ServiceExam, &model.CatalogItemRequest{Name: "Raio-X", MonthlyQuota: 1})
	require.NoError(t, err)
	cardio, err := cat.Create(ctx, admin, model.ServiceConsultation, &model.CatalogItemRequest{Name: "Cardiologia"})
	require.NoError(t, err)

	return &fixture{t: t, store: store, files: files, catalog: cat, svc: svc, unit: unit, xray: xray, cardio: cardio}
}

func (f *fixture) patientData() *model.CreatePatientRequest {
	email := "maria@example.com"
	return &model.CreatePatientRequest{
		Name:  "Maria da Silva",
		CPF:   "529.982.247-25",
		Phone: "(11) 99999-0000",
		Email: &email,
	}
}

func (f *fixture) intake(items ...model.IntakeItem) *model.IntakeRequest {
	return &model.IntakeRequest{
		Patient:      f.patientData(),
		IDFront:      pdf(),
		IDBack:       pdf(),
		HealthUnitID: f.unit.ID,
		Items:        items,
	}
}

func item(ref model.ServiceRef) model.IntakeItem {
	return model.IntakeItem{Service: ref, Attachment: pdf()}
}

// submitOne creates a single received request for the x-ray exam.
func (f *fixture) submitOne() *model.Request {
	f.t.Helper()
	res, err := f.svc.Submit(context.Background(), reception, f.intake(item(f.xray.Ref())))
	require.NoError(f.t, err)
	require.Len(f.t, res.Created, 1)
	return res.Created[0]
}

// advance moves a received request to accepted or confirmed.
func (f *fixture) advance(r *model.Request, to model.RequestStatus) *model.Request {
	f.t.Helper()
	ctx := context.Background()
	r, err := f.svc.Accept(ctx, regulation, r.ID)
	require.NoError(f.t, err)
	if to == model.StatusConfirmed {
		r, err = f.svc.Confirm(ctx, regulation, r.ID)
		require.NoError(f.t, err)
	}
	require.Equal(f.t, to, r.Status)
	return r
}

func completion() model.CompletionInput {
	return model.CompletionInput{Location: "Hospital Municipal", Date: "2025-03-20", Time: "08:30", Result: pdf()}
}
