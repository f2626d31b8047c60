package data

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/target/bulkmailer/internal/core"
	"github.com/target/bulkmailer/internal/data/cryptoutil"
	"github.com/target/bulkmailer/internal/domain/model"
)

// SenderRepo reads and refreshes provider credentials of sender identities.
//
// With an Encryptor, tokens are written as a JSON string holding the sealed token. Rows
// holding a plain JSON object are still read as is, so existing plaintext tokens keep
// working and are sealed on their next refresh.
type SenderRepo struct {
	DB           *sql.DB
	Enc          cryptoutil.Encryptor
	timeProvider TimeProvider
}

var _ core.SenderRepository = (*SenderRepo)(nil)

// NewSenderRepo creates a new SenderRepo. enc may be nil to store tokens in plaintext.
func NewSenderRepo(db *sql.DB, enc cryptoutil.Encryptor, tp TimeProvider) *SenderRepo {
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	return &SenderRepo{DB: db, Enc: enc, timeProvider: tp}
}

// Get loads the credentials of one sender of the tenant.
func (r *SenderRepo) Get(ctx context.Context, tenant model.Tenant, email string) (*model.SenderAccount, error) {
	var (
		a     model.SenderAccount
		token []byte
	)
	err := r.DB.QueryRowContext(ctx, `
		SELECT id, master_user_id, store_id, email, provider, token_json, updated_at
		FROM sender_accounts
		WHERE master_user_id = $1 AND store_id = $2 AND lower(email) = $3`,
		tenant.MasterUserID, tenant.StoreID, normalizeEmail(email),
	).Scan(&a.ID, &a.Tenant.MasterUserID, &a.Tenant.StoreID, &a.Email, &a.Provider, &token, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrSenderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get sender account: %w", err)
	}
	a.TokenJSON, err = r.open(token, sealBinding(tenant, email))
	if err != nil {
		return nil, fmt.Errorf("sender %s token: %w", a.Email, err)
	}
	return &a, nil
}

// UpdateToken stores a refreshed token for the sender.
func (r *SenderRepo) UpdateToken(ctx context.Context, tenant model.Tenant, email string, tokenJSON []byte) error {
	if len(tokenJSON) == 0 {
		return errors.New("token is required")
	}
	stored, err := r.seal(tokenJSON, sealBinding(tenant, email))
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx, `
		UPDATE sender_accounts
		SET token_json = $4::jsonb, updated_at = $5
		WHERE master_user_id = $1 AND store_id = $2 AND lower(email) = $3`,
		tenant.MasterUserID, tenant.StoreID, normalizeEmail(email), string(stored), r.timeProvider.Now().UTC())
	if err != nil {
		return fmt.Errorf("update sender token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return core.ErrSenderNotFound
	}
	return nil
}

// sealBinding ties a sealed token to its sender row.
func sealBinding(tenant model.Tenant, email string) []byte {
	return []byte(tenant.Key() + "|" + normalizeEmail(email))
}

func (r *SenderRepo) seal(tokenJSON, aad []byte) ([]byte, error) {
	if r.Enc == nil {
		return tokenJSON, nil
	}
	ct, err := r.Enc.Encrypt(tokenJSON, aad)
	if err != nil {
		return nil, fmt.Errorf("encrypt sender token: %w", err)
	}
	return json.Marshal(ct)
}

func (r *SenderRepo) open(stored, aad []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(stored)
	if len(trimmed) == 0 || trimmed[0] != '"' {
		return stored, nil
	}
	var ct string
	if err := json.Unmarshal(trimmed, &ct); err != nil {
		return nil, fmt.Errorf("decode sealed token: %w", err)
	}
	if r.Enc == nil {
		return nil, errors.New("token is encrypted but no encryption key is configured")
	}
	pt, err := r.Enc.Decrypt(ct, aad)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return pt, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
