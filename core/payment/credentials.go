package payment

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/pariksha/lms/core"
)

type (
	// Credential is one version of the gateway merchant credentials.
	// Exactly one version is active at a time, through an explicit pointer.
	Credential struct {
		ID         string    `json:"id"`
		Version    int       `json:"version"`
		Env        string    `json:"env"`
		MerchantID string    `json:"merchant_id"`
		SaltKey    string    `json:"-"`
		SaltIndex  int       `json:"salt_index"`
		BaseURL    string    `json:"base_url"`
		IsActive   bool      `json:"is_active"`
		CreatedAt  time.Time `json:"created_at"`
	}

	NewCredential struct {
		Env        string `json:"env" validate:"required,oneof=UAT PROD"`
		MerchantID string `json:"merchant_id" validate:"required,notblank"`
		SaltKey    string `json:"salt_key" validate:"required,notblank"`
		SaltIndex  int    `json:"salt_index" validate:"required,gte=1"`
		BaseURL    string `json:"base_url" validate:"required,url"`
		Activate   bool   `json:"activate"`
	}

	// CredentialSource resolves the credential to sign gateway requests with.
	CredentialSource interface {
		ActiveCredential(ctx context.Context) (Credential, error)
	}

	CredentialRepository interface {
		CredentialSource
		// CreateCredential stores a new version; ID and Version are assigned by the store.
		CreateCredential(ctx context.Context, cred Credential) (Credential, error)
		QueryCredentials(ctx context.Context) ([]Credential, error)
		// ActivateCredential moves the active pointer to `id`.
		ActivateCredential(ctx context.Context, id string) (Credential, error)
	}

	CredentialService struct {
		repo   CredentialRepository
		logger core.Logger
	}
)

func (nc NewCredential) Validate(validate *validator.Validate) error {
	return validate.Struct(nc)
}

func NewCredentialService(repo CredentialRepository, logger core.Logger) *CredentialService {
	return &CredentialService{repo: repo, logger: logger}
}

func (svc *CredentialService) Create(ctx context.Context, nc NewCredential) (Credential, error) {
	cred, err := svc.repo.CreateCredential(ctx, Credential{
		Env:        nc.Env,
		MerchantID: core.CleanString(nc.MerchantID),
		SaltKey:    core.CleanString(nc.SaltKey),
		SaltIndex:  nc.SaltIndex,
		BaseURL:    core.CleanString(nc.BaseURL),
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		return Credential{}, errors.Wrap(err, "creating credential")
	}
	if nc.Activate {
		return svc.Activate(ctx, cred.ID)
	}
	return cred, nil
}

func (svc *CredentialService) List(ctx context.Context) ([]Credential, error) {
	return svc.repo.QueryCredentials(ctx)
}

func (svc *CredentialService) Activate(ctx context.Context, id string) (Credential, error) {
	cred, err := svc.repo.ActivateCredential(ctx, id)
	if err != nil {
		return Credential{}, errors.Wrap(err, "activating credential")
	}
	svc.logger.Info("gateway credential activated", map[string]interface{}{
		"id": cred.ID, "version": cred.Version, "env": cred.Env, "merchant_id": cred.MerchantID,
	})
	return cred, nil
}

func (svc *CredentialService) Active(ctx context.Context) (Credential, error) {
	return svc.repo.ActiveCredential(ctx)
}
