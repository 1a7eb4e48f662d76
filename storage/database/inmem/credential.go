package inmemdb

import (
	"context"

	"github.com/google/uuid"

	"github.com/pariksha/lms/core"
	"github.com/pariksha/lms/core/payment"
)

type credentialRepository struct {
	db *credentialTable
}

var _ payment.CredentialRepository = (*credentialRepository)(nil)

func NewCredentialRepository(db *DB) *credentialRepository {
	return &credentialRepository{db: db.credential}
}

func (repo *credentialRepository) view(c *payment.Credential) payment.Credential {
	cred := *c
	cred.IsActive = c.ID == repo.db.activeID
	return cred
}

func (repo *credentialRepository) CreateCredential(_ context.Context, cred payment.Credential) (payment.Credential, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	cred.ID = uuid.NewString()
	cred.Version = len(repo.db.table) + 1
	repo.db.table = append(repo.db.table, &cred)
	return repo.view(&cred), nil
}

func (repo *credentialRepository) QueryCredentials(_ context.Context) ([]payment.Credential, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	creds := make([]payment.Credential, 0, len(repo.db.table))
	for i := len(repo.db.table) - 1; i >= 0; i-- {
		creds = append(creds, repo.view(repo.db.table[i]))
	}
	return creds, nil
}

func (repo *credentialRepository) ActivateCredential(_ context.Context, id string) (payment.Credential, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, c := range repo.db.table {
		if c.ID == id {
			repo.db.activeID = id
			return repo.view(c), nil
		}
	}
	return payment.Credential{}, core.NewNotFoundError("credential", id)
}

func (repo *credentialRepository) ActiveCredential(_ context.Context) (payment.Credential, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, c := range repo.db.table {
		if c.ID == repo.db.activeID {
			return repo.view(c), nil
		}
	}
	return payment.Credential{}, core.NewNotFoundError("active credential", "")
}
