package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/jwalitptl/regulacao-api/internal/model"
	"github.com/jwalitptl/regulacao-api/internal/repository"
	"github.com/jwalitptl/regulacao-api/internal/service/rbac"
	"github.com/jwalitptl/regulacao-api/pkg/auth"
	apperrors "github.com/jwalitptl/regulacao-api/pkg/errors"
	"github.com/jwalitptl/regulacao-api/pkg/security"
)

type Service struct {
	staffRepo repository.StaffRepository
	jwtSvc    auth.JWTService
	hasher    security.PasswordHasher
	logger    zerolog.Logger
}

func NewService(staffRepo repository.StaffRepository, jwtSvc auth.JWTService, hasher security.PasswordHasher, logger zerolog.Logger) *Service {
	if hasher == nil {
		hasher = security.NewBcryptHasher(security.PasswordPolicy{Cost: 12})
	}
	return &Service{
		staffRepo: staffRepo,
		jwtSvc:    jwtSvc,
		hasher:    hasher,
		logger:    logger.With().Str("service", "auth").Logger(),
	}
}

func invalidCredentials() error {
	return apperrors.Unauthorized(fmt.Errorf("invalid credentials"))
}

func (s *Service) Login(ctx context.Context, email, password string) (*model.TokenResponse, error) {
	staff, err := s.staffRepo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, invalidCredentials()
		}
		return nil, err
	}
	if !staff.Active {
		s.logger.Warn().Int64("staff_id", staff.ID).Msg("login attempt on inactive account")
		return nil, invalidCredentials()
	}
	if err := s.hasher.Compare(staff.PasswordHash, password); err != nil {
		s.logger.Warn().Int64("staff_id", staff.ID).Msg("invalid password")
		return nil, invalidCredentials()
	}
	s.rehash(ctx, staff, password)

	token, ttl, err := s.jwtSvc.GenerateAccessToken(staff)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	s.logger.Info().Int64("staff_id", staff.ID).Str("role", string(staff.Role)).Msg("login")
	return &model.TokenResponse{AccessToken: token, ExpiresIn: int64(ttl.Seconds()), Staff: staff}, nil
}

// Authenticate resolves a bearer token into the acting staff member.
// Deactivated accounts lose access before their tokens expire.
func (s *Service) Authenticate(ctx context.Context, token string) (model.Actor, error) {
	claims, err := s.jwtSvc.ValidateToken(token)
	if err != nil {
		return model.Actor{}, apperrors.Unauthorized(err)
	}
	staff, err := s.staffRepo.Get(ctx, claims.UserID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return model.Actor{}, apperrors.Unauthorized(err)
		}
		return model.Actor{}, err
	}
	if !staff.Active {
		return model.Actor{}, apperrors.Unauthorized(fmt.Errorf("staff %d is inactive", staff.ID))
	}
	return staff.Actor(), nil
}

func (s *Service) CreateStaff(ctx context.Context, actor model.Actor, req *model.CreateStaffRequest) (*model.Staff, error) {
	if err := rbac.Authorize(actor.Role, rbac.ActionManageStaff); err != nil {
		return nil, err
	}
	return s.createStaff(ctx, req)
}

func (s *Service) createStaff(ctx context.Context, req *model.CreateStaffRequest) (*model.Staff, error) {
	role, err := model.ParseRole(req.Role)
	if err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperrors.Validation("name is required")
	}
	hash, err := s.hashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	staff := &model.Staff{
		Name:         name,
		Email:        normalizeEmail(req.Email),
		PasswordHash: hash,
		Role:         role,
		Active:       true,
	}
	if err := s.staffRepo.Create(ctx, staff); err != nil {
		return nil, err
	}
	s.logger.Info().Int64("staff_id", staff.ID).Str("role", string(role)).Msg("staff created")
	return staff, nil
}

func (s *Service) UpdateStaff(ctx context.Context, actor model.Actor, id int64, req *model.UpdateStaffRequest) (*model.Staff, error) {
	if err := rbac.Authorize(actor.Role, rbac.ActionManageStaff); err != nil {
		return nil, err
	}
	staff, err := s.staffRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		if staff.Name = strings.TrimSpace(*req.Name); staff.Name == "" {
			return nil, apperrors.Validation("name is required")
		}
	}
	if req.Role != nil {
		role, err := model.ParseRole(*req.Role)
		if err != nil {
			return nil, apperrors.Validation(err.Error())
		}
		staff.Role = role
	}
	if req.Active != nil {
		staff.Active = *req.Active
	}
	if id == actor.UserID && (!staff.Active || staff.Role != model.RoleAdmin) {
		return nil, apperrors.Validation("admins cannot deactivate or demote themselves")
	}
	if req.Password != nil {
		hash, err := s.hashPassword(*req.Password)
		if err != nil {
			return nil, err
		}
		staff.PasswordHash = hash
	}
	if err := s.staffRepo.Update(ctx, staff); err != nil {
		return nil, err
	}
	return staff, nil
}

func (s *Service) GetStaff(ctx context.Context, actor model.Actor, id int64) (*model.Staff, error) {
	if actor.UserID != id {
		if err := rbac.Authorize(actor.Role, rbac.ActionManageStaff); err != nil {
			return nil, err
		}
	}
	return s.staffRepo.Get(ctx, id)
}

func (s *Service) ListStaff(ctx context.Context, actor model.Actor) ([]*model.Staff, error) {
	if err := rbac.Authorize(actor.Role, rbac.ActionManageStaff); err != nil {
		return nil, err
	}
	return s.staffRepo.List(ctx)
}

// EnsureAdmin creates the first admin when no staff exists yet.
func (s *Service) EnsureAdmin(ctx context.Context, name, email, password string) (*model.Staff, error) {
	existing, err := s.staffRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, nil
	}
	if email == "" || password == "" {
		return nil, fmt.Errorf("no staff exists and no bootstrap admin credentials are configured")
	}
	return s.createStaff(ctx, &model.CreateStaffRequest{
		Name:     name,
		Email:    email,
		Password: password,
		Role:     string(model.RoleAdmin),
	})
}

func (s *Service) hashPassword(password string) (string, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		if security.IsPolicyViolation(err) {
			return "", apperrors.Validation(err.Error())
		}
		return "", apperrors.Internal(err)
	}
	return hash, nil
}

// rehash upgrades a stored hash after the configured cost changes. A failure
// only costs another rehash on the next login, so it is logged and dropped.
func (s *Service) rehash(ctx context.Context, staff *model.Staff, password string) {
	if !s.hasher.NeedsRehash(staff.PasswordHash) {
		return
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.Warn().Err(err).Int64("staff_id", staff.ID).Msg("failed to rehash password")
		return
	}
	staff.PasswordHash = hash
	if err := s.staffRepo.Update(ctx, staff); err != nil {
		s.logger.Warn().Err(err).Int64("staff_id", staff.ID).Msg("failed to store rehashed password")
		return
	}
	s.logger.Info().Int64("staff_id", staff.ID).Msg("password rehashed")
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
