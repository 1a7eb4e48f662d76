package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/pariksha/lms/core/payment"
)

const credentialSelect = `SELECT c.id, c.version, c.env, c.merchant_id, c.salt_key, c.salt_index, c.base_url, c.created_at,
	(p.credential_id IS NOT NULL) AS is_active
	FROM gateway_credentials c LEFT JOIN gateway_credential_pointer p ON p.credential_id = c.id`

type credentialRow struct {
	ID         string    `db:"id"`
	Version    int       `db:"version"`
	Env        string    `db:"env"`
	MerchantID string    `db:"merchant_id"`
	SaltKey    string    `db:"salt_key"`
	SaltIndex  int       `db:"salt_index"`
	BaseURL    string    `db:"base_url"`
	CreatedAt  time.Time `db:"created_at"`
	IsActive   bool      `db:"is_active"`
}

func (row credentialRow) credential() payment.Credential {
	return payment.Credential{
		ID:         row.ID,
		Version:    row.Version,
		Env:        row.Env,
		MerchantID: row.MerchantID,
		SaltKey:    row.SaltKey,
		SaltIndex:  row.SaltIndex,
		BaseURL:    row.BaseURL,
		IsActive:   row.IsActive,
		CreatedAt:  row.CreatedAt.UTC(),
	}
}

type credentialRepository struct {
	db *sqlx.DB
}

var _ payment.CredentialRepository = (*credentialRepository)(nil)

func NewCredentialRepository(db *sqlx.DB) *credentialRepository {
	return &credentialRepository{db: db}
}

func (repo *credentialRepository) CreateCredential(ctx context.Context, cred payment.Credential) (payment.Credential, error) {
	cred.ID = uuid.NewString()
	err := repo.db.QueryRowxContext(ctx,
		`INSERT INTO gateway_credentials (id, env, merchant_id, salt_key, salt_index, base_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING version`,
		cred.ID, cred.Env, cred.MerchantID, cred.SaltKey, cred.SaltIndex, cred.BaseURL, cred.CreatedAt.UTC(),
	).Scan(&cred.Version)
	if err != nil {
		return payment.Credential{}, errors.Wrap(err, "inserting credential")
	}
	cred.IsActive = false
	return cred, nil
}

func (repo *credentialRepository) QueryCredentials(ctx context.Context) ([]payment.Credential, error) {
	var rows []credentialRow
	if err := repo.db.SelectContext(ctx, &rows, credentialSelect+` ORDER BY c.version DESC`); err != nil {
		return nil, errors.Wrap(err, "selecting credentials")
	}
	creds := make([]payment.Credential, 0, len(rows))
	for _, row := range rows {
		creds = append(creds, row.credential())
	}
	return creds, nil
}

func (repo *credentialRepository) get(ctx context.Context, id string) (payment.Credential, error) {
	var row credentialRow
	if err := repo.db.GetContext(ctx, &row, credentialSelect+` WHERE c.id = $1`, id); err != nil {
		return payment.Credential{}, trapNoRowsErr(err, "credential", id, "selecting credential")
	}
	return row.credential(), nil
}

// ActivateCredential moves the single-row pointer to `id`.
func (repo *credentialRepository) ActivateCredential(ctx context.Context, id string) (payment.Credential, error) {
	if _, err := repo.get(ctx, id); err != nil {
		return payment.Credential{}, err
	}
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO gateway_credential_pointer (singleton, credential_id, updated_at) VALUES (true, $1, $2)
		ON CONFLICT (singleton) DO UPDATE SET credential_id = EXCLUDED.credential_id, updated_at = EXCLUDED.updated_at`,
		id, time.Now().UTC(),
	)
	if err != nil {
		return payment.Credential{}, errors.Wrap(err, "activating credential")
	}
	return repo.get(ctx, id)
}

func (repo *credentialRepository) ActiveCredential(ctx context.Context) (payment.Credential, error) {
	var row credentialRow
	err := repo.db.GetContext(ctx, &row,
		`SELECT c.id, c.version, c.env, c.merchant_id, c.salt_key, c.salt_index, c.base_url, c.created_at, true AS is_active
		FROM gateway_credentials c JOIN gateway_credential_pointer p ON p.credential_id = c.id`)
	if err != nil {
		return payment.Credential{}, trapNoRowsErr(err, "active credential", "", "selecting active credential")
	}
	return row.credential(), nil
}
