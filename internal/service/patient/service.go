package patient

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/jwalitptl/regulacao-api/internal/model"
	"github.com/jwalitptl/regulacao-api/internal/repository"
	"github.com/jwalitptl/regulacao-api/internal/service/rbac"
	"github.com/jwalitptl/regulacao-api/internal/storage"
	apperrors "github.com/jwalitptl/regulacao-api/pkg/errors"
	"github.com/jwalitptl/regulacao-api/pkg/validator"
)

type Service struct {
	repo     repository.PatientRepository
	uploader *storage.Uploader
	logger   zerolog.Logger
}

func NewService(repo repository.PatientRepository, uploader *storage.Uploader, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		uploader: uploader,
		logger:   logger.With().Str("service", "patient").Logger(),
	}
}

func (s *Service) Get(ctx context.Context, actor model.Actor, id int64) (*model.Patient, error) {
	if err := rbac.Authorize(actor.Role, rbac.ActionReadPatients); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) GetByCPF(ctx context.Context, actor model.Actor, cpf string) (*model.Patient, error) {
	if err := rbac.Authorize(actor.Role, rbac.ActionReadPatients); err != nil {
		return nil, err
	}
	if !validator.ValidCPF(cpf) {
		return nil, apperrors.Validation("invalid CPF")
	}
	return s.repo.GetByCPF(ctx, validator.NormalizeCPF(cpf))
}

func (s *Service) Search(ctx context.Context, actor model.Actor, filters *model.PatientFilters) ([]*model.Patient, error) {
	if err := rbac.Authorize(actor.Role, rbac.ActionReadPatients); err != nil {
		return nil, err
	}
	return s.repo.Search(ctx, filters)
}

// Create registers a new patient and stores any ID photos supplied.
func (s *Service) Create(ctx context.Context, actor model.Actor, req *model.CreatePatientRequest, front, back *model.FileUpload) (*model.Patient, error) {
	if err := rbac.Authorize(actor.Role, rbac.ActionManagePatients); err != nil {
		return nil, err
	}
	patient, err := newPatient(req)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, patient); err != nil {
		return nil, err
	}
	s.logger.Info().Int64("patient_id", patient.ID).Int64("actor_id", actor.UserID).Msg("patient created")

	if err := s.attachPhotos(ctx, patient, front, back); err != nil {
		return patient, err
	}
	return patient, nil
}

// FindOrCreate resolves the patient by CPF, creating it when missing.
// Photos fill in missing document images of an existing patient.
func (s *Service) FindOrCreate(ctx context.Context, actor model.Actor, req *model.CreatePatientRequest, front, back *model.FileUpload) (*model.Patient, error) {
	if err := rbac.Authorize(actor.Role, rbac.ActionManagePatients); err != nil {
		return nil, err
	}
	if !validator.ValidCPF(req.CPF) {
		return nil, apperrors.Validation("invalid CPF")
	}
	existing, err := s.repo.GetByCPF(ctx, validator.NormalizeCPF(req.CPF))
	switch {
	case err == nil:
		if existing.IDFrontRef != "" {
			front = nil
		}
		if existing.IDBackRef != "" {
			back = nil
		}
		return existing, s.attachPhotos(ctx, existing, front, back)
	case apperrors.Is(err, apperrors.ErrNotFound):
		return s.Create(ctx, actor, req, front, back)
	default:
		return nil, err
	}
}

func (s *Service) attachPhotos(ctx context.Context, p *model.Patient, front, back *model.FileUpload) error {
	for side, f := range map[model.DocumentSide]*model.FileUpload{model.DocumentFront: front, model.DocumentBack: back} {
		if f.Empty() {
			continue
		}
		if err := s.replaceDocument(ctx, p, side, f); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) Update(ctx context.Context, actor model.Actor, id int64, req *model.UpdatePatientRequest) (*model.Patient, error) {
	if err := rbac.Authorize(actor.Role, rbac.ActionManagePatients); err != nil {
		return nil, err
	}
	patient, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := applyUpdate(patient, req); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, patient); err != nil {
		return nil, err
	}
	return patient, nil
}

// SetDocument stores a new ID photo and removes the one it replaces.
func (s *Service) SetDocument(ctx context.Context, actor model.Actor, id int64, side model.DocumentSide, f *model.FileUpload) (*model.Patient, error) {
	if err := rbac.Authorize(actor.Role, rbac.ActionManagePatients); err != nil {
		return nil, err
	}
	if !side.Valid() {
		return nil, apperrors.BadRequest(fmt.Sprintf("unknown document side %q", side), nil)
	}
	patient, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.replaceDocument(ctx, patient, side, f); err != nil {
		return nil, err
	}
	return patient, nil
}

func (s *Service) replaceDocument(ctx context.Context, p *model.Patient, side model.DocumentSide, f *model.FileUpload) error {
	obj, err := s.uploader.PutPatientDocument(ctx, p.ID, side, f)
	if err != nil {
		return err
	}
	if err := s.repo.UpdateDocument(ctx, p.ID, side, obj.Key); err != nil {
		s.removeFile(ctx, obj.Key)
		return err
	}

	old := p.DocumentRef(side)
	if side == model.DocumentFront {
		p.IDFrontRef = obj.Key
	} else {
		p.IDBackRef = obj.Key
	}
	if old != "" {
		s.removeFile(ctx, old)
	}
	return nil
}

func (s *Service) removeFile(ctx context.Context, key string) {
	if err := s.uploader.Store().Delete(ctx, key); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("failed to delete stored file")
	}
}

// Document opens a stored ID photo.
func (s *Service) Document(ctx context.Context, actor model.Actor, id int64, side model.DocumentSide) (io.ReadCloser, storage.Object, error) {
	patient, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, storage.Object{}, err
	}
	ref := patient.DocumentRef(side)
	if ref == "" {
		return nil, storage.Object{}, apperrors.NotFound("document", nil)
	}
	return s.uploader.Store().Get(ctx, ref)
}

func newPatient(req *model.CreatePatientRequest) (*model.Patient, error) {
	if !validator.ValidCPF(req.CPF) {
		return nil, apperrors.Validation("invalid CPF")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperrors.Validation("name is required")
	}
	if strings.TrimSpace(req.Phone) == "" {
		return nil, apperrors.Validation("phone is required")
	}
	p := &model.Patient{
		Name:       name,
		SocialName: trimmed(req.SocialName),
		CPF:        validator.NormalizeCPF(req.CPF),
		Street:     strings.TrimSpace(req.Street),
		Number:     strings.TrimSpace(req.Number),
		Complement: trimmed(req.Complement),
		District:   strings.TrimSpace(req.District),
		City:       strings.TrimSpace(req.City),
		State:      strings.ToUpper(strings.TrimSpace(req.State)),
		ZipCode:    validator.Digits(req.ZipCode),
		Phone:      strings.TrimSpace(req.Phone),
		Email:      trimmed(req.Email),
	}
	if req.BirthDate != "" {
		d, err := model.ParseDate(req.BirthDate)
		if err != nil {
			return nil, apperrors.Validation("birth_date must be YYYY-MM-DD")
		}
		p.BirthDate = &d
	}
	return p, nil
}

func applyUpdate(p *model.Patient, req *model.UpdatePatientRequest) error {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	set(&p.Name, req.Name)
	set(&p.Street, req.Street)
	set(&p.Number, req.Number)
	set(&p.District, req.District)
	set(&p.City, req.City)
	set(&p.Phone, req.Phone)
	if req.State != nil {
		p.State = strings.ToUpper(strings.TrimSpace(*req.State))
	}
	if req.ZipCode != nil {
		p.ZipCode = validator.Digits(*req.ZipCode)
	}
	if req.SocialName != nil {
		p.SocialName = trimmed(req.SocialName)
	}
	if req.Complement != nil {
		p.Complement = trimmed(req.Complement)
	}
	if req.Email != nil {
		p.Email = trimmed(req.Email)
	}
	if req.BirthDate != nil {
		d, err := model.ParseDate(*req.BirthDate)
		if err != nil {
			return apperrors.Validation("birth_date must be YYYY-MM-DD")
		}
		p.BirthDate = &d
	}
	if p.Name == "" {
		return apperrors.Validation("name is required")
	}
	if p.Phone == "" {
		return apperrors.Validation("phone is required")
	}
	return nil
}

// trimmed returns nil for blank optional strings.
func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
