package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/regulacao-api/internal/model"
	"github.com/jwalitptl/regulacao-api/internal/repository"
)

const notificationColumns = `id, title, message, kind, target_role, active, created_by, created_at, updated_at`

type notificationRepository struct {
	db *sqlx.DB
}

func NewNotificationRepository(db *sqlx.DB) repository.NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(ctx context.Context, n *model.Notification) error {
	now := time.Now()
	n.CreatedAt = now
	n.UpdatedAt = now
	query := `
		INSERT INTO notifications (title, message, kind, target_role, active, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	err := r.db.QueryRowxContext(ctx, query,
		n.Title, n.Message, n.Kind, n.TargetRole, n.Active, n.CreatedBy, now, now,
	).Scan(&n.ID)
	return translate(err, "notification", "create")
}

func (r *notificationRepository) Get(ctx context.Context, id int64) (*model.Notification, error) {
	var n model.Notification
	err := r.db.GetContext(ctx, &n, `SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id)
	if err != nil {
		return nil, translate(err, "notification", "get")
	}
	return &n, nil
}

func (r *notificationRepository) Update(ctx context.Context, n *model.Notification) error {
	n.UpdatedAt = time.Now()
	query := `
		UPDATE notifications
		SET title = $1, message = $2, kind = $3, target_role = $4, active = $5, updated_at = $6
		WHERE id = $7
	`
	res, err := r.db.ExecContext(ctx, query, n.Title, n.Message, n.Kind, n.TargetRole, n.Active, n.UpdatedAt, n.ID)
	if err != nil {
		return translate(err, "notification", "update")
	}
	return expectRows(res, "notification")
}

func (r *notificationRepository) List(ctx context.Context, activeOnly bool) ([]*model.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY created_at DESC, id DESC`

	out := []*model.Notification{}
	if err := r.db.SelectContext(ctx, &out, query); err != nil {
		return nil, translate(err, "notifications", "list")
	}
	return out, nil
}
