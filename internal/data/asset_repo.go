package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/target/bulkmailer/internal/core"
	"github.com/target/bulkmailer/internal/domain/model"
)

// AssetRepo reads uploaded asset metadata.
type AssetRepo struct {
	DB *sql.DB
}

var _ core.AssetRepository = (*AssetRepo)(nil)

// NewAssetRepo creates a new AssetRepo.
func NewAssetRepo(db *sql.DB) *AssetRepo {
	return &AssetRepo{DB: db}
}

// GetByFileID loads one asset of the tenant by kind and file id.
func (r *AssetRepo) GetByFileID(ctx context.Context, ref core.AssetRef) (*model.Asset, error) {
	id := strings.TrimSpace(ref.ID)
	if id == "" {
		return nil, core.ErrAssetNotFound
	}
	var (
		a    model.Asset
		kind string
	)
	err := r.DB.QueryRowContext(ctx, `
		SELECT id, master_user_id, store_id, kind, file_id, filename, mime_type, storage_path, size_bytes, created_at
		FROM assets
		WHERE master_user_id = $1 AND store_id = $2 AND kind = $3 AND file_id = $4`,
		ref.Tenant.MasterUserID, ref.Tenant.StoreID, string(ref.Kind), id,
	).Scan(
		&a.ID,
		&a.Tenant.MasterUserID,
		&a.Tenant.StoreID,
		&kind,
		&a.FileID,
		&a.Filename,
		&a.MIMEType,
		&a.StoragePath,
		&a.SizeBytes,
		&a.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrAssetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get asset %s: %w", id, err)
	}
	a.Kind = model.AssetKind(kind)
	return &a, nil
}
