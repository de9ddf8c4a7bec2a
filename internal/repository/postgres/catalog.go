package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/regulacao-api/internal/model"
	"github.com/jwalitptl/regulacao-api/internal/repository"
	apperrors "github.com/jwalitptl/regulacao-api/pkg/errors"
)

type catalogRepository struct {
	db *sqlx.DB
}

func NewCatalogRepository(db *sqlx.DB) repository.CatalogRepository {
	return &catalogRepository{db: db}
}

func catalogTable(kind model.ServiceKind) (string, error) {
	switch kind {
	case model.ServiceExam:
		return "exam_types", nil
	case model.ServiceConsultation:
		return "consultation_types", nil
	}
	return "", apperrors.BadRequest(fmt.Sprintf("unknown service kind %q", kind), nil)
}

func (r *catalogRepository) List(ctx context.Context, kind model.ServiceKind, activeOnly bool) ([]*model.CatalogItem, error) {
	table, err := catalogTable(kind)
	if err != nil {
		return nil, err
	}
	query := `SELECT id, name, monthly_quota, active, created_at, updated_at FROM ` + table
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY name, id`

	items := []*model.CatalogItem{}
	if err := r.db.SelectContext(ctx, &items, query); err != nil {
		return nil, translate(err, table, "list")
	}
	for _, item := range items {
		item.Kind = kind
	}
	return items, nil
}

func (r *catalogRepository) Get(ctx context.Context, ref model.ServiceRef) (*model.CatalogItem, error) {
	table, err := catalogTable(ref.Kind)
	if err != nil {
		return nil, err
	}
	var item model.CatalogItem
	query := `SELECT id, name, monthly_quota, active, created_at, updated_at FROM ` + table + ` WHERE id = $1`
	if err := r.db.GetContext(ctx, &item, query, ref.ID); err != nil {
		return nil, translate(err, string(ref.Kind), "get")
	}
	item.Kind = ref.Kind
	return &item, nil
}

func (r *catalogRepository) Create(ctx context.Context, item *model.CatalogItem) error {
	table, err := catalogTable(item.Kind)
	if err != nil {
		return err
	}
	now := time.Now()
	item.CreatedAt = now
	item.UpdatedAt = now
	query := `INSERT INTO ` + table + ` (name, monthly_quota, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`
	err = r.db.QueryRowxContext(ctx, query, item.Name, item.MonthlyQuota, item.Active, now, now).Scan(&item.ID)
	return translate(err, string(item.Kind), "create")
}

func (r *catalogRepository) Update(ctx context.Context, item *model.CatalogItem) error {
	table, err := catalogTable(item.Kind)
	if err != nil {
		return err
	}
	item.UpdatedAt = time.Now()
	query := `UPDATE ` + table + ` SET name = $1, monthly_quota = $2, active = $3, updated_at = $4 WHERE id = $5`
	res, err := r.db.ExecContext(ctx, query, item.Name, item.MonthlyQuota, item.Active, item.UpdatedAt, item.ID)
	if err != nil {
		return translate(err, string(item.Kind), "update")
	}
	return expectRows(res, string(item.Kind))
}
