package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/regulacao-api/internal/model"
)

// All repository interfaces in one file
type (
	PatientRepository interface {
		Create(ctx context.Context, patient *model.Patient) error
		Get(ctx context.Context, id int64) (*model.Patient, error)
		GetByCPF(ctx context.Context, cpf string) (*model.Patient, error)
		Update(ctx context.Context, patient *model.Patient) error
		UpdateDocument(ctx context.Context, id int64, side model.DocumentSide, ref string) error
		Search(ctx context.Context, filters *model.PatientFilters) ([]*model.Patient, error)
	}

	RequestRepository interface {
		Create(ctx context.Context, request *model.Request) error
		Get(ctx context.Context, id int64) (*model.Request, error)
		List(ctx context.Context, filters *model.RequestFilters) ([]*model.Request, error)
		Update(ctx context.Context, request *model.Request) error
		SetAdditionalDocument(ctx context.Context, id int64, ref string) error
		Delete(ctx context.Context, id int64) error

		// Transition writes change only while the row is in one of from.
		// Events are inserted into the outbox in the same transaction.
		// A row outside from yields a conflict error.
		Transition(ctx context.Context, id int64, from []model.RequestStatus, change model.StatusChange, events ...*model.OutboxEvent) (*model.Request, error)

		// RecentServices returns which of refs the patient already requested
		// since the given instant, ignoring suspended requests.
		RecentServices(ctx context.Context, patientID int64, refs []model.ServiceRef, since time.Time) ([]model.ServiceRef, error)
		CountByService(ctx context.Context, from, to time.Time) (map[model.ServiceRef]int, error)
	}

	CatalogRepository interface {
		List(ctx context.Context, kind model.ServiceKind, activeOnly bool) ([]*model.CatalogItem, error)
		Get(ctx context.Context, ref model.ServiceRef) (*model.CatalogItem, error)
		Create(ctx context.Context, item *model.CatalogItem) error
		Update(ctx context.Context, item *model.CatalogItem) error
	}

	HealthUnitRepository interface {
		List(ctx context.Context) ([]*model.HealthUnit, error)
		Get(ctx context.Context, id int64) (*model.HealthUnit, error)
		Create(ctx context.Context, unit *model.HealthUnit) error
	}

	NotificationRepository interface {
		Create(ctx context.Context, n *model.Notification) error
		Get(ctx context.Context, id int64) (*model.Notification, error)
		Update(ctx context.Context, n *model.Notification) error
		List(ctx context.Context, activeOnly bool) ([]*model.Notification, error)
	}

	StaffRepository interface {
		Create(ctx context.Context, staff *model.Staff) error
		Get(ctx context.Context, id int64) (*model.Staff, error)
		GetByEmail(ctx context.Context, email string) (*model.Staff, error)
		Update(ctx context.Context, staff *model.Staff) error
		List(ctx context.Context) ([]*model.Staff, error)
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		// LockPending runs fn in a transaction holding row locks on up to
		// limit due events. Marks are committed when fn returns nil.
		LockPending(ctx context.Context, limit int, fn func(ctx context.Context, batch OutboxBatch) error) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}

	OutboxBatch interface {
		Events() []*model.OutboxEvent
		MarkProcessed(ctx context.Context, id uuid.UUID) error
		MarkRetry(ctx context.Context, id uuid.UUID, errMsg string, retryAt time.Time) error
		MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error
	}
)
