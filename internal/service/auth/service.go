package auth

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/cmw1990/connect-and-care-api/internal/model"
	"github.com/cmw1990/connect-and-care-api/internal/repository"
	"github.com/cmw1990/connect-and-care-api/internal/service/audit"
	"github.com/cmw1990/connect-and-care-api/pkg/auth"
	apperrors "github.com/cmw1990/connect-and-care-api/pkg/errors"
)

const bcryptCost = 12

// Service handles caregiver registration and login.
type Service struct {
	caregiverRepo repository.CaregiverRepository
	jwtSvc        auth.JWTService
	auditor       *audit.Service
}

func NewService(caregiverRepo repository.CaregiverRepository, jwtSvc auth.JWTService, auditor *audit.Service) *Service {
	return &Service{
		caregiverRepo: caregiverRepo,
		jwtSvc:        jwtSvc,
		auditor:       auditor,
	}
}

func (s *Service) Register(ctx context.Context, req *model.RegisterCaregiverRequest) (*model.Caregiver, error) {
	existing, _ := s.caregiverRepo.GetByEmail(ctx, req.Email)
	if existing != nil {
		return nil, apperrors.NewConflict("email already registered")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	cg := &model.Caregiver{
		Email:        req.Email,
		PasswordHash: string(hashed),
		Name:         req.Name,
		Phone:        req.Phone,
	}
	if err := s.caregiverRepo.Create(ctx, cg); err != nil {
		return nil, fmt.Errorf("failed to create caregiver: %w", err)
	}

	s.auditor.Log(ctx, cg.ID, cg.ID, "register", "caregiver", cg.ID, &audit.LogOptions{
		Metadata: map[string]interface{}{"email": cg.Email},
	})
	return cg, nil
}

func (s *Service) Login(ctx context.Context, req *model.LoginRequest) (*model.LoginResponse, error) {
	cg, err := s.caregiverRepo.GetByEmail(ctx, req.Email)
	if err != nil {
		return nil, apperrors.Unauthorized(fmt.Errorf("invalid credentials"))
	}

	if err := bcrypt.CompareHashAndPassword([]byte(cg.PasswordHash), []byte(req.Password)); err != nil {
		return nil, apperrors.Unauthorized(fmt.Errorf("invalid credentials"))
	}

	token, expiresAt, err := s.jwtSvc.GenerateToken(cg)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	s.auditor.Log(ctx, cg.ID, cg.ID, "login", "caregiver", cg.ID, nil)

	return &model.LoginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		Caregiver: *cg,
	}, nil
}

// ValidateToken resolves a bearer token into its claims. Used by the auth
// middleware.
func (s *Service) ValidateToken(_ context.Context, token string) (*auth.TokenClaims, error) {
	claims, err := s.jwtSvc.ValidateToken(token)
	if err != nil {
		return nil, apperrors.Unauthorized(err)
	}
	if claims.ExpiresAt != nil && claims.ExpiresAt.Before(time.Now()) {
		return nil, apperrors.Unauthorized(fmt.Errorf("token expired"))
	}
	return claims, nil
}
