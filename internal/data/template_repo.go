package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/target/bulkmailer/internal/core"
	"github.com/target/bulkmailer/internal/domain/model"
)

// TemplateRepo reads stored message templates.
type TemplateRepo struct {
	DB *sql.DB
}

var _ core.TemplateRepository = (*TemplateRepo)(nil)

// NewTemplateRepo creates a new TemplateRepo.
func NewTemplateRepo(db *sql.DB) *TemplateRepo {
	return &TemplateRepo{DB: db}
}

const templateColumns = `id, master_user_id, store_id, name, language, subject, html_content, text_content,
  version, is_active, created_at, updated_at`

func scanTemplate(row rowScanner) (*model.Template, error) {
	var t model.Template
	if err := row.Scan(
		&t.ID,
		&t.Tenant.MasterUserID,
		&t.Tenant.StoreID,
		&t.Name,
		&t.Language,
		&t.Subject,
		&t.HTMLContent,
		&t.TextContent,
		&t.Version,
		&t.IsActive,
		&t.CreatedAt,
		&t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &t, nil
}

// GetByID loads a template of the tenant by id regardless of its active flag.
func (r *TemplateRepo) GetByID(ctx context.Context, tenant model.Tenant, id int64) (*model.Template, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+templateColumns+`
		FROM email_templates
		WHERE id = $1 AND master_user_id = $2 AND store_id = $3`,
		id, tenant.MasterUserID, tenant.StoreID)
	t, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrTemplateRowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get template %d: %w", id, err)
	}
	return t, nil
}

// GetActiveByLanguage returns the newest active template of the tenant for a language.
func (r *TemplateRepo) GetActiveByLanguage(ctx context.Context, tenant model.Tenant, language string) (*model.Template, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+templateColumns+`
		FROM email_templates
		WHERE master_user_id = $1 AND store_id = $2 AND language = $3 AND is_active
		ORDER BY version DESC, updated_at DESC
		LIMIT 1`,
		tenant.MasterUserID, tenant.StoreID, model.NormalizeLanguage(language))
	t, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrTemplateRowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get template for %s: %w", language, err)
	}
	return t, nil
}
