package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/regulacao-api/internal/model"
	"github.com/jwalitptl/regulacao-api/internal/repository"
)

type healthUnitRepository struct {
	db *sqlx.DB
}

func NewHealthUnitRepository(db *sqlx.DB) repository.HealthUnitRepository {
	return &healthUnitRepository{db: db}
}

func (r *healthUnitRepository) List(ctx context.Context) ([]*model.HealthUnit, error) {
	units := []*model.HealthUnit{}
	err := r.db.SelectContext(ctx, &units,
		`SELECT id, name, active, created_at, updated_at FROM health_units ORDER BY name, id`)
	if err != nil {
		return nil, translate(err, "health units", "list")
	}
	return units, nil
}

func (r *healthUnitRepository) Get(ctx context.Context, id int64) (*model.HealthUnit, error) {
	var unit model.HealthUnit
	err := r.db.GetContext(ctx, &unit,
		`SELECT id, name, active, created_at, updated_at FROM health_units WHERE id = $1`, id)
	if err != nil {
		return nil, translate(err, "health unit", "get")
	}
	return &unit, nil
}

func (r *healthUnitRepository) Create(ctx context.Context, unit *model.HealthUnit) error {
	now := time.Now()
	unit.CreatedAt = now
	unit.UpdatedAt = now
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO health_units (name, active, created_at, updated_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		unit.Name, unit.Active, now, now,
	).Scan(&unit.ID)
	return translate(err, "health unit", "create")
}
