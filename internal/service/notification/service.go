// Package notification manages the system banners shown to staff.
package notification

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/jwalitptl/regulacao-api/internal/model"
	"github.com/jwalitptl/regulacao-api/internal/repository"
	"github.com/jwalitptl/regulacao-api/internal/service/rbac"
	apperrors "github.com/jwalitptl/regulacao-api/pkg/errors"
)

type Service struct {
	repo   repository.NotificationRepository
	logger zerolog.Logger
}

func NewService(repo repository.NotificationRepository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger.With().Str("service", "notification").Logger()}
}

func (s *Service) Create(ctx context.Context, actor model.Actor, req *model.NotificationRequest) (*model.Notification, error) {
	if err := rbac.Authorize(actor.Role, rbac.ActionManageBanners); err != nil {
		return nil, err
	}
	n := &model.Notification{CreatedBy: actor.UserID, Active: true}
	if err := apply(n, req); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return nil, err
	}
	s.logger.Info().Int64("notification_id", n.ID).Int64("actor_id", actor.UserID).Msg("banner created")
	return n, nil
}

func (s *Service) Update(ctx context.Context, actor model.Actor, id int64, req *model.NotificationRequest) (*model.Notification, error) {
	if err := rbac.Authorize(actor.Role, rbac.ActionManageBanners); err != nil {
		return nil, err
	}
	n, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := apply(n, req); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

func (s *Service) Deactivate(ctx context.Context, actor model.Actor, id int64) error {
	if err := rbac.Authorize(actor.Role, rbac.ActionManageBanners); err != nil {
		return err
	}
	n, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !n.Active {
		return nil
	}
	n.Active = false
	return s.repo.Update(ctx, n)
}

// ListForRole returns the active banners addressed to the caller's role.
func (s *Service) ListForRole(ctx context.Context, actor model.Actor) ([]*model.Notification, error) {
	if err := rbac.Authorize(actor.Role, rbac.ActionReadBanners); err != nil {
		return nil, err
	}
	all, err := s.repo.List(ctx, true)
	if err != nil {
		return nil, err
	}
	out := make([]*model.Notification, 0, len(all))
	for _, n := range all {
		if n.VisibleTo(actor.Role) {
			out = append(out, n)
		}
	}
	return out, nil
}

// ListAll includes inactive banners, for administration.
func (s *Service) ListAll(ctx context.Context, actor model.Actor) ([]*model.Notification, error) {
	if err := rbac.Authorize(actor.Role, rbac.ActionManageBanners); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, false)
}

func apply(n *model.Notification, req *model.NotificationRequest) error {
	n.Title = strings.TrimSpace(req.Title)
	n.Message = strings.TrimSpace(req.Message)
	if n.Title == "" || n.Message == "" {
		return apperrors.Validation("title and message are required")
	}
	kind, err := model.ParseBannerKind(req.Kind)
	if err != nil {
		return apperrors.Validation(err.Error())
	}
	n.Kind = kind
	n.TargetRole = nil
	if req.TargetRole != nil && *req.TargetRole != "" {
		role, err := model.ParseRole(*req.TargetRole)
		if err != nil {
			return apperrors.Validation(err.Error())
		}
		n.TargetRole = &role
	}
	if req.Active != nil {
		n.Active = *req.Active
	}
	return nil
}
