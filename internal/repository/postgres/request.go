package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/regulacao-api/internal/model"
	"github.com/jwalitptl/regulacao-api/internal/repository"
	apperrors "github.com/jwalitptl/regulacao-api/pkg/errors"
)

const requestSelect = `
	SELECT r.id, r.patient_id, r.requester_id, r.health_unit_id,
		r.exam_type_id, r.consultation_type_id, r.is_urgent, r.urgency_justification,
		r.status, r.registrar_id, r.exam_location, r.exam_date, r.exam_time,
		r.attachment_ref, r.additional_document_ref, r.result_ref,
		r.comment, r.notes, r.completed_at, r.created_at, r.updated_at,
		p.name AS patient_name,
		COALESCE(e.name, c.name, '') AS service_name
	FROM requests r
	JOIN patients p ON p.id = r.patient_id
	LEFT JOIN exam_types e ON e.id = r.exam_type_id
	LEFT JOIN consultation_types c ON c.id = r.consultation_type_id
`

type requestRepository struct {
	BaseRepository
}

func NewRequestRepository(db *sqlx.DB) repository.RequestRepository {
	return &requestRepository{NewBaseRepository(db)}
}

func (r *requestRepository) Create(ctx context.Context, request *model.Request) error {
	if _, err := request.Service(); err != nil {
		return apperrors.Validation(err.Error())
	}

	query := `
		INSERT INTO requests (
			patient_id, requester_id, health_unit_id, exam_type_id, consultation_type_id,
			is_urgent, urgency_justification, status, attachment_ref, comment,
			created_at, updated_at
		) VALUES (
			:patient_id, :requester_id, :health_unit_id, :exam_type_id, :consultation_type_id,
			:is_urgent, :urgency_justification, :status, :attachment_ref, :comment,
			:created_at, :updated_at
		) RETURNING id
	`
	now := time.Now()
	request.CreatedAt = now
	request.UpdatedAt = now
	if request.Status == "" {
		request.Status = model.StatusReceived
	}

	rows, err := r.db.NamedQueryContext(ctx, query, request)
	if err != nil {
		return translate(err, "request", "create")
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&request.ID); err != nil {
			return fmt.Errorf("failed to read request id: %w", err)
		}
	}
	return rows.Err()
}

func (r *requestRepository) Get(ctx context.Context, id int64) (*model.Request, error) {
	return r.get(ctx, r.db, id)
}

func (r *requestRepository) get(ctx context.Context, q sqlx.QueryerContext, id int64) (*model.Request, error) {
	var request model.Request
	if err := sqlx.GetContext(ctx, q, &request, requestSelect+` WHERE r.id = $1`, id); err != nil {
		return nil, translate(err, "request", "get")
	}
	return &request, nil
}

func (r *requestRepository) List(ctx context.Context, filters *model.RequestFilters) ([]*model.Request, error) {
	now := filters.Now
	if now.IsZero() {
		now = time.Now()
	}
	start, next := model.MonthStart(now), model.NextMonthStart(now)

	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	order := `r.created_at DESC, r.id DESC`
	limit := ""
	switch filters.View {
	case model.ViewCompleted:
		where = append(where,
			`r.status = `+arg(model.StatusCompleted),
			`r.completed_at >= `+arg(start),
			`r.completed_at < `+arg(next))
		order = `r.completed_at DESC, r.id DESC`
		limit = fmt.Sprintf(` LIMIT %d`, model.CompletedViewLimit)
	case model.ViewSuspended:
		where = append(where,
			`r.status = `+arg(model.StatusSuspended),
			`r.created_at < `+arg(next))
	case model.ViewUrgent:
		where = append(where,
			`r.status <> ALL(`+arg(pq.Array(terminalStatuses()))+`)`,
			`r.created_at < `+arg(next),
			`r.is_urgent`)
	default:
		where = append(where,
			`r.status <> ALL(`+arg(pq.Array(terminalStatuses()))+`)`,
			`r.created_at < `+arg(next))
	}
	if filters.PatientID != 0 {
		where = append(where, `r.patient_id = `+arg(filters.PatientID))
	}
	if filters.HealthUnitID != 0 {
		where = append(where, `r.health_unit_id = `+arg(filters.HealthUnitID))
	}

	query := requestSelect + ` WHERE ` + strings.Join(where, ` AND `) + ` ORDER BY ` + order + limit

	requests := []*model.Request{}
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, translate(err, "requests", "list")
	}
	return requests, nil
}

func terminalStatuses() []string {
	return []string{string(model.StatusCompleted), string(model.StatusSuspended)}
}

func (r *requestRepository) Update(ctx context.Context, request *model.Request) error {
	query := `
		UPDATE requests SET
			is_urgent = :is_urgent,
			urgency_justification = :urgency_justification,
			comment = :comment,
			updated_at = :updated_at
		WHERE id = :id
	`
	request.UpdatedAt = time.Now()
	res, err := r.db.NamedExecContext(ctx, query, request)
	if err != nil {
		return translate(err, "request", "update")
	}
	return expectRows(res, "request")
}

func (r *requestRepository) SetAdditionalDocument(ctx context.Context, id int64, ref string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE requests SET additional_document_ref = $1, updated_at = NOW() WHERE id = $2`, ref, id)
	if err != nil {
		return translate(err, "request", "update")
	}
	return expectRows(res, "request")
}

func (r *requestRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM requests WHERE id = $1`, id)
	if err != nil {
		return translate(err, "request", "delete")
	}
	return expectRows(res, "request")
}

func (r *requestRepository) Transition(
	ctx context.Context,
	id int64,
	from []model.RequestStatus,
	change model.StatusChange,
	events ...*model.OutboxEvent,
) (*model.Request, error) {
	allowed := make([]string, len(from))
	for i, s := range from {
		allowed[i] = string(s)
	}

	query := `
		UPDATE requests SET
			status = $2,
			registrar_id = COALESCE($3, registrar_id),
			notes = CASE WHEN $4::boolean THEN NULL ELSE COALESCE($5, notes) END,
			exam_location = COALESCE($6, exam_location),
			exam_date = COALESCE($7, exam_date),
			exam_time = COALESCE($8, exam_time),
			result_ref = COALESCE($9, result_ref),
			completed_at = COALESCE($10, completed_at),
			updated_at = NOW()
		WHERE id = $1 AND status = ANY($11)
	`

	var updated *model.Request
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, query,
			id,
			change.To,
			change.RegistrarID,
			change.ClearNotes,
			change.Notes,
			change.ExamLocation,
			change.ExamDate,
			change.ExamTime,
			change.ResultRef,
			change.CompletedAt,
			pq.Array(allowed),
		)
		if err != nil {
			return translate(err, "request", "update")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}
		if n == 0 {
			current, err := r.get(ctx, tx, id)
			if err != nil {
				return err
			}
			return apperrors.Conflict(
				fmt.Sprintf("request is %s and cannot move to %s", current.Status, change.To),
				sql.ErrNoRows,
			)
		}

		for _, evt := range events {
			if err := insertOutboxEvent(ctx, tx, evt); err != nil {
				return err
			}
		}

		updated, err = r.get(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *requestRepository) RecentServices(ctx context.Context, patientID int64, refs []model.ServiceRef, since time.Time) ([]model.ServiceRef, error) {
	var exams, consultations []int64
	for _, ref := range refs {
		if ref.Kind == model.ServiceExam {
			exams = append(exams, ref.ID)
		} else {
			consultations = append(consultations, ref.ID)
		}
	}

	query := `
		SELECT DISTINCT exam_type_id, consultation_type_id
		FROM requests
		WHERE patient_id = $1
		AND created_at >= $2
		AND status <> $3
		AND (exam_type_id = ANY($4) OR consultation_type_id = ANY($5))
	`
	var rows []struct {
		ExamTypeID         *int64 `db:"exam_type_id"`
		ConsultationTypeID *int64 `db:"consultation_type_id"`
	}
	err := r.db.SelectContext(ctx, &rows, query,
		patientID, since, model.StatusSuspended, pq.Array(exams), pq.Array(consultations))
	if err != nil {
		return nil, translate(err, "requests", "check duplicates for")
	}

	found := make([]model.ServiceRef, 0, len(rows))
	for _, row := range rows {
		req := model.Request{ExamTypeID: row.ExamTypeID, ConsultationTypeID: row.ConsultationTypeID}
		if ref, err := req.Service(); err == nil {
			found = append(found, ref)
		}
	}
	return found, nil
}

func (r *requestRepository) CountByService(ctx context.Context, from, to time.Time) (map[model.ServiceRef]int, error) {
	query := `
		SELECT exam_type_id, consultation_type_id, COUNT(*) AS used
		FROM requests
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY exam_type_id, consultation_type_id
	`
	var rows []struct {
		ExamTypeID         *int64 `db:"exam_type_id"`
		ConsultationTypeID *int64 `db:"consultation_type_id"`
		Used               int    `db:"used"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, from, to); err != nil {
		return nil, translate(err, "requests", "count")
	}

	counts := make(map[model.ServiceRef]int, len(rows))
	for _, row := range rows {
		req := model.Request{ExamTypeID: row.ExamTypeID, ConsultationTypeID: row.ConsultationTypeID}
		if ref, err := req.Service(); err == nil {
			counts[ref] += row.Used
		}
	}
	return counts, nil
}
