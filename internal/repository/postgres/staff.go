package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/regulacao-api/internal/model"
	"github.com/jwalitptl/regulacao-api/internal/repository"
)

const staffColumns = `id, name, email, password_hash, role, active, created_at, updated_at`

type staffRepository struct {
	db *sqlx.DB
}

func NewStaffRepository(db *sqlx.DB) repository.StaffRepository {
	return &staffRepository{db: db}
}

func (r *staffRepository) Create(ctx context.Context, staff *model.Staff) error {
	now := time.Now()
	staff.CreatedAt = now
	staff.UpdatedAt = now
	staff.Email = strings.ToLower(strings.TrimSpace(staff.Email))

	query := `
		INSERT INTO staff (name, email, password_hash, role, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	err := r.db.QueryRowxContext(ctx, query,
		staff.Name, staff.Email, staff.PasswordHash, staff.Role, staff.Active, now, now,
	).Scan(&staff.ID)
	return translate(err, "staff member", "create")
}

func (r *staffRepository) Get(ctx context.Context, id int64) (*model.Staff, error) {
	var staff model.Staff
	if err := r.db.GetContext(ctx, &staff, `SELECT `+staffColumns+` FROM staff WHERE id = $1`, id); err != nil {
		return nil, translate(err, "staff member", "get")
	}
	return &staff, nil
}

func (r *staffRepository) GetByEmail(ctx context.Context, email string) (*model.Staff, error) {
	var staff model.Staff
	err := r.db.GetContext(ctx, &staff, `SELECT `+staffColumns+` FROM staff WHERE email = $1`,
		strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, translate(err, "staff member", "get")
	}
	return &staff, nil
}

func (r *staffRepository) Update(ctx context.Context, staff *model.Staff) error {
	staff.UpdatedAt = time.Now()
	query := `
		UPDATE staff SET name = $1, password_hash = $2, role = $3, active = $4, updated_at = $5
		WHERE id = $6
	`
	res, err := r.db.ExecContext(ctx, query,
		staff.Name, staff.PasswordHash, staff.Role, staff.Active, staff.UpdatedAt, staff.ID)
	if err != nil {
		return translate(err, "staff member", "update")
	}
	return expectRows(res, "staff member")
}

func (r *staffRepository) List(ctx context.Context) ([]*model.Staff, error) {
	out := []*model.Staff{}
	if err := r.db.SelectContext(ctx, &out, `SELECT `+staffColumns+` FROM staff ORDER BY name, id`); err != nil {
		return nil, translate(err, "staff", "list")
	}
	return out, nil
}
