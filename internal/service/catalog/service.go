package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/regulacao-api/internal/model"
	"github.com/jwalitptl/regulacao-api/internal/repository"
	"github.com/jwalitptl/regulacao-api/internal/service/rbac"
	apperrors "github.com/jwalitptl/regulacao-api/pkg/errors"
)

const defaultUsageTTL = 30 * time.Second

type Service struct {
	repo     repository.CatalogRepository
	units    repository.HealthUnitRepository
	requests repository.RequestRepository
	usage    *cache.Cache
	now      func() time.Time
}

func NewService(
	repo repository.CatalogRepository,
	units repository.HealthUnitRepository,
	requests repository.RequestRepository,
	usageTTL time.Duration,
) *Service {
	if usageTTL <= 0 {
		usageTTL = defaultUsageTTL
	}
	return &Service{
		repo:     repo,
		units:    units,
		requests: requests,
		usage:    cache.New(usageTTL, 2*usageTTL),
		now:      time.Now,
	}
}

// WithClock replaces the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) List(ctx context.Context, kind model.ServiceKind, activeOnly bool) ([]*model.CatalogItem, error) {
	return s.repo.List(ctx, kind, activeOnly)
}

func (s *Service) Get(ctx context.Context, ref model.ServiceRef) (*model.CatalogItem, error) {
	return s.repo.Get(ctx, ref)
}

func (s *Service) Create(ctx context.Context, actor model.Actor, kind model.ServiceKind, req *model.CatalogItemRequest) (*model.CatalogItem, error) {
	if err := rbac.Authorize(actor.Role, rbac.ActionManageCatalog); err != nil {
		return nil, err
	}
	item := &model.CatalogItem{
		Kind:         kind,
		Name:         strings.TrimSpace(req.Name),
		MonthlyQuota: req.MonthlyQuota,
		Active:       true,
	}
	if req.Active != nil {
		item.Active = *req.Active
	}
	if err := validateItem(item); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, item); err != nil {
		return nil, err
	}
	s.InvalidateUsage()
	return item, nil
}

func (s *Service) Update(ctx context.Context, actor model.Actor, ref model.ServiceRef, req *model.CatalogItemRequest) (*model.CatalogItem, error) {
	if err := rbac.Authorize(actor.Role, rbac.ActionManageCatalog); err != nil {
		return nil, err
	}
	item, err := s.repo.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	item.Name = strings.TrimSpace(req.Name)
	item.MonthlyQuota = req.MonthlyQuota
	if req.Active != nil {
		item.Active = *req.Active
	}
	if err := validateItem(item); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, item); err != nil {
		return nil, err
	}
	s.InvalidateUsage()
	return item, nil
}

func validateItem(item *model.CatalogItem) error {
	if item.Name == "" {
		return apperrors.Validation("name is required")
	}
	if item.MonthlyQuota < 0 {
		return apperrors.Validation("monthly quota cannot be negative")
	}
	return nil
}

// Usage reports consumption of every catalog item in the given month.
func (s *Service) Usage(ctx context.Context, year int, month time.Month) ([]model.QuotaUsage, error) {
	if month < time.January || month > time.December {
		return nil, apperrors.Validation(fmt.Sprintf("invalid month %d", month))
	}
	key := fmt.Sprintf("%04d-%02d", year, month)
	if cached, ok := s.usage.Get(key); ok {
		return cached.([]model.QuotaUsage), nil
	}

	from := time.Date(year, month, 1, 0, 0, 0, 0, s.now().Location())
	counts, err := s.requests.CountByService(ctx, from, from.AddDate(0, 1, 0))
	if err != nil {
		return nil, err
	}

	var out []model.QuotaUsage
	for _, kind := range []model.ServiceKind{model.ServiceExam, model.ServiceConsultation} {
		items, err := s.repo.List(ctx, kind, false)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			out = append(out, model.NewQuotaUsage(item, counts[item.Ref()]))
		}
	}

	s.usage.Set(key, out, cache.DefaultExpiration)
	return out, nil
}

// CurrentUsage indexes this month's usage by service.
func (s *Service) CurrentUsage(ctx context.Context) (map[model.ServiceRef]model.QuotaUsage, error) {
	now := s.now()
	list, err := s.Usage(ctx, now.Year(), now.Month())
	if err != nil {
		return nil, err
	}
	out := make(map[model.ServiceRef]model.QuotaUsage, len(list))
	for _, u := range list {
		out[model.ServiceRef{Kind: u.Kind, ID: u.ServiceID}] = u
	}
	return out, nil
}

// InvalidateUsage drops cached usage after intake or deletion.
func (s *Service) InvalidateUsage() {
	s.usage.Flush()
}

func (s *Service) ListUnits(ctx context.Context) ([]*model.HealthUnit, error) {
	return s.units.List(ctx)
}

func (s *Service) GetUnit(ctx context.Context, id int64) (*model.HealthUnit, error) {
	return s.units.Get(ctx, id)
}

func (s *Service) CreateUnit(ctx context.Context, actor model.Actor, req *model.HealthUnitRequest) (*model.HealthUnit, error) {
	if err := rbac.Authorize(actor.Role, rbac.ActionManageUnits); err != nil {
		return nil, err
	}
	unit := &model.HealthUnit{Name: strings.TrimSpace(req.Name), Active: true}
	if unit.Name == "" {
		return nil, apperrors.Validation("name is required")
	}
	if err := s.units.Create(ctx, unit); err != nil {
		return nil, err
	}
	return unit, nil
}
