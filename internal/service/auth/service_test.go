package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/cmw1990/connect-and-care-api/internal/model"
	"github.com/cmw1990/connect-and-care-api/internal/service/audit"
	pkgauth "github.com/cmw1990/connect-and-care-api/pkg/auth"
	apperrors "github.com/cmw1990/connect-and-care-api/pkg/errors"
	"github.com/cmw1990/connect-and-care-api/pkg/logger"
)

type fakeCaregiverRepo struct {
	byEmail map[string]*model.Caregiver
}

func newFakeCaregiverRepo() *fakeCaregiverRepo {
	return &fakeCaregiverRepo{byEmail: make(map[string]*model.Caregiver)}
}

func (r *fakeCaregiverRepo) Create(_ context.Context, cg *model.Caregiver) error {
	if cg.ID == uuid.Nil {
		cg.ID = uuid.New()
	}
	stored := *cg
	r.byEmail[cg.Email] = &stored
	return nil
}

func (r *fakeCaregiverRepo) Get(_ context.Context, id uuid.UUID) (*model.Caregiver, error) {
	for _, cg := range r.byEmail {
		if cg.ID == id {
			copied := *cg
			return &copied, nil
		}
	}
	return nil, apperrors.NewNotFound("caregiver", nil)
}

func (r *fakeCaregiverRepo) GetByEmail(_ context.Context, email string) (*model.Caregiver, error) {
	cg, ok := r.byEmail[email]
	if !ok {
		return nil, apperrors.NewNotFound("caregiver", nil)
	}
	copied := *cg
	return &copied, nil
}

type fakeAuditRepo struct{}

func (fakeAuditRepo) Create(_ context.Context, _ *model.AuditLog) error { return nil }
func (fakeAuditRepo) List(_ context.Context, _ uuid.UUID, _, _ time.Time) ([]*model.AuditLog, error) {
	return nil, nil
}

func newTestService() (*Service, *fakeCaregiverRepo) {
	repo := newFakeCaregiverRepo()
	svc := NewService(repo, pkgauth.NewJWTService("test-secret", time.Hour),
		audit.NewService(fakeAuditRepo{}, logger.NewLogger(nil)))
	return svc, repo
}

func TestRegister(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	cg, err := svc.Register(ctx, &model.RegisterCaregiverRequest{
		Email:    "carer@example.com",
		Password: "correct horse battery",
		Name:     "Jordan Reyes",
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, cg.ID)

	stored := repo.byEmail["carer@example.com"]
	require.NotNil(t, stored)
	assert.NotEqual(t, "correct horse battery", stored.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("correct horse battery")))
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	req := &model.RegisterCaregiverRequest{
		Email:    "carer@example.com",
		Password: "correct horse battery",
		Name:     "Jordan Reyes",
	}
	_, err := svc.Register(ctx, req)
	require.NoError(t, err)

	_, err = svc.Register(ctx, req)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrConflict, apperrors.CodeOf(err))
}

func TestLogin(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	cg, err := svc.Register(ctx, &model.RegisterCaregiverRequest{
		Email:    "carer@example.com",
		Password: "correct horse battery",
		Name:     "Jordan Reyes",
	})
	require.NoError(t, err)

	resp, err := svc.Login(ctx, &model.LoginRequest{
		Email:    "carer@example.com",
		Password: "correct horse battery",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, cg.ID, resp.Caregiver.ID)
	assert.True(t, resp.ExpiresAt.After(time.Now()))

	claims, err := svc.ValidateToken(ctx, resp.Token)
	require.NoError(t, err)
	assert.Equal(t, cg.ID, claims.CaregiverID)
}

func TestLoginInvalidCredentials(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Register(ctx, &model.RegisterCaregiverRequest{
		Email:    "carer@example.com",
		Password: "correct horse battery",
		Name:     "Jordan Reyes",
	})
	require.NoError(t, err)

	// Wrong password and unknown email fail identically.
	_, err = svc.Login(ctx, &model.LoginRequest{Email: "carer@example.com", Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrUnauthorized, apperrors.CodeOf(err))

	_, err = svc.Login(ctx, &model.LoginRequest{Email: "nobody@example.com", Password: "correct horse battery"})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrUnauthorized, apperrors.CodeOf(err))
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.ValidateToken(context.Background(), "not-a-token")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrUnauthorized, apperrors.CodeOf(err))
}
