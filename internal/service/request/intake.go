package request

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/jwalitptl/regulacao-api/internal/model"
	"github.com/jwalitptl/regulacao-api/internal/service/rbac"
	apperrors "github.com/jwalitptl/regulacao-api/pkg/errors"
)

// Submit validates a reception submission and creates one request per
// selected service. Guard failures reject the whole submission; once
// creation starts, items succeed or fail independently.
func (s *Service) Submit(ctx context.Context, actor model.Actor, in *model.IntakeRequest) (*model.IntakeResult, error) {
	if err := rbac.Authorize(actor.Role, rbac.ActionSubmit); err != nil {
		return nil, err
	}
	if len(in.Items) == 0 {
		return nil, apperrors.Validation("select at least one exam or consultation")
	}
	if _, err := s.catalog.GetUnit(ctx, in.HealthUnitID); err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.Validation(fmt.Sprintf("unknown health unit %d", in.HealthUnitID))
		}
		return nil, err
	}

	names, err := s.checkItems(ctx, in.Items)
	if err != nil {
		return nil, err
	}

	p, err := s.resolvePatient(ctx, actor, in)
	if err != nil {
		return nil, err
	}
	if !p.HasIDPhotos() {
		return nil, apperrors.Validation("patient ID photos (front and back) are required")
	}
	if err := s.checkAttachments(in.Items, names); err != nil {
		return nil, err
	}

	refs := make([]model.ServiceRef, len(in.Items))
	for i, item := range in.Items {
		refs[i] = item.Service
	}
	recent, err := s.requests.RecentServices(ctx, p.ID, refs, s.now().Add(-s.opts.DuplicateWindow))
	if err != nil {
		return nil, err
	}
	if len(recent) > 0 {
		return nil, apperrors.Validation(
			fmt.Sprintf("patient already has a request in the last %d days for these services", int(s.opts.DuplicateWindow.Hours()/24)),
			serviceNames(names, recent)...)
	}

	warnings, err := s.checkQuota(ctx, refs, names)
	if err != nil {
		return nil, err
	}

	result := &model.IntakeResult{Patient: p, QuotaWarnings: warnings}
	created := make([]*model.Request, len(in.Items))
	failures := make([]error, len(in.Items))

	// Failures are collected per item; the group only bounds concurrency.
	var g errgroup.Group
	g.SetLimit(s.opts.Concurrency)
	for i := range in.Items {
		i := i
		g.Go(func() error {
			created[i], failures[i] = s.createItem(ctx, actor, p, in.HealthUnitID, in.Items[i], names[in.Items[i].Service])
			return nil
		})
	}
	g.Wait()

	for i, item := range in.Items {
		kind := string(item.Service.Kind)
		if failures[i] != nil {
			s.metrics.IntakeItems.WithLabelValues(kind, "failed").Inc()
			s.logger.Error().Err(failures[i]).
				Int64("patient_id", p.ID).
				Str("service", item.Service.String()).
				Msg("intake item failed")
			result.Failures = append(result.Failures, model.IntakeFailure{
				Service:     item.Service,
				ServiceName: names[item.Service],
				Reason:      failureReason(failures[i]),
			})
			continue
		}
		s.metrics.IntakeItems.WithLabelValues(kind, "created").Inc()
		result.Created = append(result.Created, created[i])
	}
	if len(result.Created) > 0 {
		s.catalog.InvalidateUsage()
	}

	s.logger.Info().
		Int64("patient_id", p.ID).
		Int64("actor_id", actor.UserID).
		Int("created", len(result.Created)).
		Int("failed", len(result.Failures)).
		Msg("intake submitted")
	return result, nil
}

// checkItems validates the selection against the catalog, returning the
// catalog name of each selected service.
func (s *Service) checkItems(ctx context.Context, items []model.IntakeItem) (map[model.ServiceRef]string, error) {
	names := make(map[model.ServiceRef]string, len(items))
	for _, item := range items {
		ref := item.Service
		if _, err := model.ParseServiceKind(string(ref.Kind)); err != nil || ref.ID <= 0 {
			return nil, apperrors.Validation("each item must reference exactly one exam or consultation")
		}
		if _, dup := names[ref]; dup {
			return nil, apperrors.Validation(fmt.Sprintf("%s selected more than once", names[ref]))
		}
		catalogItem, err := s.catalog.Get(ctx, ref)
		if err != nil {
			if apperrors.Is(err, apperrors.ErrNotFound) {
				return nil, apperrors.Validation(fmt.Sprintf("unknown %s %d", ref.Kind, ref.ID))
			}
			return nil, err
		}
		if !catalogItem.Active {
			return nil, apperrors.Validation(fmt.Sprintf("%s is not available", catalogItem.Name))
		}
		names[ref] = catalogItem.Name
	}
	return names, nil
}

// checkAttachments requires one acceptable file per selected service.
func (s *Service) checkAttachments(items []model.IntakeItem, names map[model.ServiceRef]string) error {
	var missing []string
	for _, item := range items {
		if item.Attachment.Empty() {
			missing = append(missing, names[item.Service])
			continue
		}
		if _, _, err := s.uploader.Detect(item.Attachment); err != nil {
			return err
		}
	}
	if len(missing) > 0 {
		return apperrors.Validation("an attachment is required for every selected service", missing...)
	}
	return nil
}

func (s *Service) resolvePatient(ctx context.Context, actor model.Actor, in *model.IntakeRequest) (*model.Patient, error) {
	switch {
	case in.PatientID != 0:
		p, err := s.patients.Get(ctx, actor, in.PatientID)
		if err != nil {
			return nil, err
		}
		if p.IDFrontRef == "" && !in.IDFront.Empty() {
			if p, err = s.patients.SetDocument(ctx, actor, p.ID, model.DocumentFront, in.IDFront); err != nil {
				return nil, err
			}
		}
		if p.IDBackRef == "" && !in.IDBack.Empty() {
			if p, err = s.patients.SetDocument(ctx, actor, p.ID, model.DocumentBack, in.IDBack); err != nil {
				return nil, err
			}
		}
		return p, nil
	case in.Patient != nil:
		return s.patients.FindOrCreate(ctx, actor, in.Patient, in.IDFront, in.IDBack)
	}
	return nil, apperrors.Validation("a patient id or patient data is required")
}

// checkQuota reports exhausted services as warnings, or rejects them when
// quotas are enforced.
func (s *Service) checkQuota(ctx context.Context, refs []model.ServiceRef, names map[model.ServiceRef]string) ([]model.QuotaUsage, error) {
	usage, err := s.catalog.CurrentUsage(ctx)
	if err != nil {
		return nil, err
	}
	var exhausted []model.QuotaUsage
	for _, ref := range refs {
		if u, ok := usage[ref]; ok && u.Exhausted {
			exhausted = append(exhausted, u)
		}
	}
	if len(exhausted) == 0 || !s.opts.EnforceQuota {
		return exhausted, nil
	}
	over := make([]string, len(exhausted))
	for i, u := range exhausted {
		over[i] = names[model.ServiceRef{Kind: u.Kind, ID: u.ServiceID}]
	}
	return nil, apperrors.Validation("monthly quota exhausted", over...)
}

// createItem stages the attachment, then writes the row. A failed write
// removes the staged file so no attachment is orphaned.
func (s *Service) createItem(ctx context.Context, actor model.Actor, p *model.Patient, unitID int64, item model.IntakeItem, name string) (*model.Request, error) {
	obj, err := s.uploader.PutAttachment(ctx, item.Attachment)
	if err != nil {
		return nil, err
	}

	r := &model.Request{
		PatientID:     p.ID,
		RequesterID:   actor.UserID,
		HealthUnitID:  unitID,
		IsUrgent:      item.IsUrgent,
		Status:        model.StatusReceived,
		AttachmentRef: &obj.Key,
	}
	r.SetService(item.Service)
	if item.UrgencyJustification != nil {
		r.UrgencyJustification = optional(*item.UrgencyJustification)
	}
	if item.Comment != nil {
		r.Comment = optional(*item.Comment)
	}

	if err := s.requests.Create(ctx, r); err != nil {
		s.compensate(ctx, "intake", obj.Key)
		return nil, err
	}
	r.PatientName = p.Name
	r.ServiceName = name
	return r, nil
}

func serviceNames(names map[model.ServiceRef]string, refs []model.ServiceRef) []string {
	out := make([]string, len(refs))
	for i, ref := range refs {
		out[i] = names[ref]
	}
	return out
}

func failureReason(err error) string {
	if appErr, ok := apperrors.As(err); ok {
		return strings.TrimSpace(appErr.Message)
	}
	return "failed to create request"
}
