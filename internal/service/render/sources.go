package render

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"strings"

	"github.com/target/bulkmailer/internal/core"
	"github.com/target/bulkmailer/internal/domain/model"
)

var languagePattern = regexp.MustCompile(`^[a-z]{2,5}(-[a-z]{2})?$`)

// FileSource reads per-language templates from a tenant directory tree:
//
//	tenant_<master_user_id>_<store_id>/templates/<lang>_subject.txt
//	tenant_<master_user_id>_<store_id>/templates/<lang>_content.txt
//
// Both files must be non-empty for the language to count as present. The plain-text
// body is derived from the HTML content.
type FileSource struct {
	fsys fs.FS
}

// NewFileSource returns a FileSource rooted at fsys.
func NewFileSource(fsys fs.FS) *FileSource {
	return &FileSource{fsys: fsys}
}

// Lookup implements TemplateSource.
func (s *FileSource) Lookup(_ context.Context, tenant model.Tenant, language string) (*model.TemplateBody, error) {
	if !languagePattern.MatchString(language) {
		return nil, nil
	}
	dir := path.Join("tenant_"+tenant.MasterUserID+"_"+tenant.StoreID, "templates")

	subject, err := s.read(path.Join(dir, language+"_subject.txt"))
	if err != nil || strings.TrimSpace(subject) == "" {
		return nil, err
	}
	content, err := s.read(path.Join(dir, language+"_content.txt"))
	if err != nil || strings.TrimSpace(content) == "" {
		return nil, err
	}
	return &model.TemplateBody{
		Language: language,
		Subject:  strings.TrimRight(subject, "\r\n"),
		HTML:     content,
		Text:     htmlToText(content),
	}, nil
}

func (s *FileSource) read(name string) (string, error) {
	b, err := fs.ReadFile(s.fsys, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read template file %s: %w", name, err)
	}
	return string(b), nil
}

// RepositorySource looks up the newest active stored template for a language.
type RepositorySource struct {
	repo core.TemplateRepository
}

// NewRepositorySource returns a TemplateSource backed by the template repository.
func NewRepositorySource(repo core.TemplateRepository) *RepositorySource {
	return &RepositorySource{repo: repo}
}

// Lookup implements TemplateSource.
func (s *RepositorySource) Lookup(ctx context.Context, tenant model.Tenant, language string) (*model.TemplateBody, error) {
	tpl, err := s.repo.GetActiveByLanguage(ctx, tenant, language)
	if err != nil {
		if errors.Is(err, core.ErrTemplateRowNotFound) {
			return nil, nil
		}
		return nil, err
	}
	body := tpl.Body()
	return &body, nil
}

// ChainSource consults each source in order and returns the first hit.
type ChainSource []TemplateSource

// Lookup implements TemplateSource.
func (c ChainSource) Lookup(ctx context.Context, tenant model.Tenant, language string) (*model.TemplateBody, error) {
	for _, src := range c {
		body, err := src.Lookup(ctx, tenant, language)
		if err != nil {
			return nil, err
		}
		if body != nil {
			return body, nil
		}
	}
	return nil, nil
}
