// Package request drives regulation requests from intake to completion.
package request

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jwalitptl/regulacao-api/internal/model"
	"github.com/jwalitptl/regulacao-api/internal/repository"
	"github.com/jwalitptl/regulacao-api/internal/service/catalog"
	"github.com/jwalitptl/regulacao-api/internal/service/notify"
	"github.com/jwalitptl/regulacao-api/internal/service/patient"
	"github.com/jwalitptl/regulacao-api/internal/service/rbac"
	"github.com/jwalitptl/regulacao-api/internal/storage"
	apperrors "github.com/jwalitptl/regulacao-api/pkg/errors"
	"github.com/jwalitptl/regulacao-api/pkg/metrics"
)

const (
	defaultDuplicateWindow = 30 * 24 * time.Hour
	defaultConcurrency     = 4
)

// Options tunes intake.
type Options struct {
	DuplicateWindow time.Duration
	Concurrency     int
	EnforceQuota    bool
}

type Service struct {
	requests   repository.RequestRepository
	patients   *patient.Service
	catalog    *catalog.Service
	uploader   *storage.Uploader
	formatters []notify.Formatter
	metrics    *metrics.Metrics
	logger     zerolog.Logger
	opts       Options
	now        func() time.Time
}

func NewService(
	requests repository.RequestRepository,
	patients *patient.Service,
	catalog *catalog.Service,
	uploader *storage.Uploader,
	formatters []notify.Formatter,
	m *metrics.Metrics,
	logger zerolog.Logger,
	opts Options,
) *Service {
	if opts.DuplicateWindow <= 0 {
		opts.DuplicateWindow = defaultDuplicateWindow
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	return &Service{
		requests:   requests,
		patients:   patients,
		catalog:    catalog,
		uploader:   uploader,
		formatters: formatters,
		metrics:    m,
		logger:     logger.With().Str("service", "request").Logger(),
		opts:       opts,
		now:        time.Now,
	}
}

// WithClock replaces the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Get(ctx context.Context, actor model.Actor, id int64) (*model.Request, error) {
	if err := rbac.Authorize(actor.Role, rbac.ActionReadRequests); err != nil {
		return nil, err
	}
	return s.requests.Get(ctx, id)
}

// List returns one of the derived views.
func (s *Service) List(ctx context.Context, actor model.Actor, filters model.RequestFilters) ([]*model.Request, error) {
	if err := rbac.Authorize(actor.Role, rbac.ActionReadRequests); err != nil {
		return nil, err
	}
	if filters.View == "" {
		filters.View = model.ViewActive
	}
	if filters.Now.IsZero() {
		filters.Now = s.now()
	}
	return s.requests.List(ctx, &filters)
}

func (s *Service) Update(ctx context.Context, actor model.Actor, id int64, req *model.UpdateRequestRequest) (*model.Request, error) {
	if err := rbac.Authorize(actor.Role, rbac.ActionUpdateRequest); err != nil {
		return nil, err
	}
	r, err := s.requests.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.IsUrgent != nil {
		r.IsUrgent = *req.IsUrgent
	}
	if req.UrgencyJustification != nil {
		r.UrgencyJustification = optional(*req.UrgencyJustification)
	}
	if req.Comment != nil {
		r.Comment = optional(*req.Comment)
	}
	if err := s.requests.Update(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// SetAdditionalDocument stores a second document and removes the one it replaces.
func (s *Service) SetAdditionalDocument(ctx context.Context, actor model.Actor, id int64, f *model.FileUpload) (*model.Request, error) {
	if err := rbac.Authorize(actor.Role, rbac.ActionAttachDocument); err != nil {
		return nil, err
	}
	r, err := s.requests.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	obj, err := s.uploader.PutAdditionalDocument(ctx, id, f)
	if err != nil {
		return nil, err
	}
	if err := s.requests.SetAdditionalDocument(ctx, id, obj.Key); err != nil {
		s.compensate(ctx, "additional_document", obj.Key)
		return nil, err
	}

	old := r.AdditionalDocRef
	r.AdditionalDocRef = &obj.Key
	if old != nil && *old != "" {
		s.removeFile(ctx, *old)
	}
	return r, nil
}

// FileKind names one of the files a request can carry.
type FileKind string

const (
	FileAttachment FileKind = "attachment"
	FileAdditional FileKind = "additional-document"
	FileResult     FileKind = "result"
)

// File opens one of the request's stored files.
func (s *Service) File(ctx context.Context, actor model.Actor, id int64, kind FileKind) (io.ReadCloser, storage.Object, error) {
	r, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, storage.Object{}, err
	}
	var ref *string
	switch kind {
	case FileAttachment:
		ref = r.AttachmentRef
	case FileAdditional:
		ref = r.AdditionalDocRef
	case FileResult:
		ref = r.ResultRef
	default:
		return nil, storage.Object{}, apperrors.BadRequest(fmt.Sprintf("unknown file %q", kind), nil)
	}
	if ref == nil || *ref == "" {
		return nil, storage.Object{}, apperrors.NotFound(string(kind), nil)
	}
	return s.uploader.Store().Get(ctx, *ref)
}

// Delete removes the row, then its files. File cleanup is best-effort.
func (s *Service) Delete(ctx context.Context, actor model.Actor, id int64) error {
	r, err := s.requests.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := rbac.AuthorizeDelete(actor.Role, r.Status); err != nil {
		return err
	}
	if err := s.requests.Delete(ctx, id); err != nil {
		return err
	}
	for _, ref := range r.FileRefs() {
		s.removeFile(ctx, ref)
	}
	s.catalog.InvalidateUsage()

	s.logger.Info().
		Int64("request_id", id).
		Str("status", string(r.Status)).
		Int64("actor_id", actor.UserID).
		Msg("request deleted")
	return nil
}

func (s *Service) removeFile(ctx context.Context, key string) {
	if err := s.uploader.Store().Delete(ctx, key); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("failed to delete stored file")
	}
}

// compensate deletes a staged file whose row write failed.
func (s *Service) compensate(ctx context.Context, operation, key string) {
	s.metrics.Compensation.WithLabelValues(operation).Inc()
	s.logger.Warn().Str("operation", operation).Str("key", key).Msg("removing staged file after failed write")
	s.removeFile(ctx, key)
}

func optional(s string) *string {
	v := strings.TrimSpace(s)
	if v == "" {
		return nil
	}
	return &v
}
