package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/regulacao-api/internal/model"
	"github.com/jwalitptl/regulacao-api/internal/repository"
	"github.com/jwalitptl/regulacao-api/pkg/validator"
)

const patientColumns = `id, name, social_name, cpf, street, number, complement, district,
	city, state, zip_code, birth_date, phone, email, id_front_ref, id_back_ref,
	created_at, updated_at`

const maxPatientPage = 50

type patientRepository struct {
	db *sqlx.DB
}

func NewPatientRepository(db *sqlx.DB) repository.PatientRepository {
	return &patientRepository{db: db}
}

func (r *patientRepository) Create(ctx context.Context, patient *model.Patient) error {
	query := `
		INSERT INTO patients (
			name, social_name, cpf, street, number, complement, district,
			city, state, zip_code, birth_date, phone, email,
			id_front_ref, id_back_ref, created_at, updated_at
		) VALUES (
			:name, :social_name, :cpf, :street, :number, :complement, :district,
			:city, :state, :zip_code, :birth_date, :phone, :email,
			:id_front_ref, :id_back_ref, :created_at, :updated_at
		) RETURNING id
	`
	now := time.Now()
	patient.CreatedAt = now
	patient.UpdatedAt = now

	rows, err := r.db.NamedQueryContext(ctx, query, patient)
	if err != nil {
		return translate(err, "patient", "create")
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&patient.ID); err != nil {
			return fmt.Errorf("failed to read patient id: %w", err)
		}
	}
	return rows.Err()
}

func (r *patientRepository) Get(ctx context.Context, id int64) (*model.Patient, error) {
	query := `SELECT ` + patientColumns + ` FROM patients WHERE id = $1`
	var patient model.Patient
	if err := r.db.GetContext(ctx, &patient, query, id); err != nil {
		return nil, translate(err, "patient", "get")
	}
	return &patient, nil
}

func (r *patientRepository) GetByCPF(ctx context.Context, cpf string) (*model.Patient, error) {
	query := `SELECT ` + patientColumns + ` FROM patients WHERE cpf = $1`
	var patient model.Patient
	if err := r.db.GetContext(ctx, &patient, query, cpf); err != nil {
		return nil, translate(err, "patient", "get")
	}
	return &patient, nil
}

func (r *patientRepository) Update(ctx context.Context, patient *model.Patient) error {
	query := `
		UPDATE patients SET
			name = :name, social_name = :social_name, street = :street,
			number = :number, complement = :complement, district = :district,
			city = :city, state = :state, zip_code = :zip_code,
			birth_date = :birth_date, phone = :phone, email = :email,
			updated_at = :updated_at
		WHERE id = :id
	`
	patient.UpdatedAt = time.Now()
	res, err := r.db.NamedExecContext(ctx, query, patient)
	if err != nil {
		return translate(err, "patient", "update")
	}
	return expectRows(res, "patient")
}

func (r *patientRepository) UpdateDocument(ctx context.Context, id int64, side model.DocumentSide, ref string) error {
	column := "id_front_ref"
	if side == model.DocumentBack {
		column = "id_back_ref"
	}
	query := fmt.Sprintf(`UPDATE patients SET %s = $1, updated_at = NOW() WHERE id = $2`, column)
	res, err := r.db.ExecContext(ctx, query, ref, id)
	if err != nil {
		return translate(err, "patient", "update")
	}
	return expectRows(res, "patient")
}

func (r *patientRepository) Search(ctx context.Context, filters *model.PatientFilters) ([]*model.Patient, error) {
	page := filters.Pagination.Normalize(maxPatientPage)
	term := strings.TrimSpace(filters.SearchTerm)

	query := `SELECT ` + patientColumns + ` FROM patients`
	args := []interface{}{}
	if term != "" {
		query += ` WHERE lower(name) LIKE $1 OR lower(coalesce(social_name, '')) LIKE $1 OR cpf LIKE $2`
		args = append(args, "%"+strings.ToLower(term)+"%", cpfPrefix(term)+"%")
	}
	query += fmt.Sprintf(` ORDER BY name, id LIMIT %d OFFSET %d`, page.PageSize, page.Offset())

	patients := []*model.Patient{}
	if err := r.db.SelectContext(ctx, &patients, query, args...); err != nil {
		return nil, translate(err, "patients", "search")
	}
	return patients, nil
}

func cpfPrefix(term string) string {
	digits := validator.NormalizeCPF(term)
	if digits == "" {
		// never matches a stored CPF
		return "-"
	}
	return digits
}
