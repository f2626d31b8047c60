package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/target/bulkmailer/internal/core"
	"github.com/target/bulkmailer/internal/domain/model"
	apperrors "github.com/target/bulkmailer/internal/errors"
)

// TemplateSource looks up the raw template body of a tenant for one exact language.
// It returns (nil, nil) when no template exists for that language.
type TemplateSource interface {
	Lookup(ctx context.Context, tenant model.Tenant, language string) (*model.TemplateBody, error)
}

// ResolverOptions configures a Resolver.
type ResolverOptions struct {
	Source TemplateSource
	// Templates loads explicitly referenced template rows for template jobs with a template id.
	Templates core.TemplateRepository
	// Shared is an optional cross-process cache consulted after the in-memory cache.
	Shared *core.TemplateBodyCache
	// DefaultLanguage is the fallback language; defaults to model.DefaultLanguage.
	DefaultLanguage string
	Logger          *slog.Logger
}

// Resolver chooses the template body a recipient is rendered from.
type Resolver struct {
	source      TemplateSource
	templates   core.TemplateRepository
	shared      *core.TemplateBodyCache
	defaultLang string
	logger      *slog.Logger

	// bodies caches resolved bodies per tenant and requested language. Entries are never
	// replaced once stored.
	bodies sync.Map
}

// NewResolver constructs a Resolver.
func NewResolver(opts ResolverOptions) *Resolver {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	lang := model.NormalizeLanguage(opts.DefaultLanguage)
	return &Resolver{
		source:      opts.Source,
		templates:   opts.Templates,
		shared:      opts.Shared,
		defaultLang: lang,
		logger:      logger.With("component", "template_resolver"),
	}
}

// JobTemplate is the job-wide template choice made once before dispatch.
type JobTemplate struct {
	// Fixed is used for every recipient when set (custom jobs and template jobs with a template id).
	Fixed *model.TemplateBody
}

// PrepareJob loads the job-wide template. A template job whose template id does not
// exist fails with ErrInitialization, aborting the job.
func (r *Resolver) PrepareJob(ctx context.Context, job *model.Job) (*JobTemplate, error) {
	switch job.Kind {
	case model.JobKindCustom:
		return &JobTemplate{Fixed: &model.TemplateBody{
			Subject: job.Subject,
			Text:    job.TextContent,
			HTML:    job.HTMLContent,
		}}, nil
	case model.JobKindTemplate:
		if job.TemplateID == nil {
			return &JobTemplate{}, nil
		}
		if r.templates == nil {
			return nil, apperrors.NewDelivery(apperrors.ErrInitialization, "load template",
				errors.New("template repository not configured"))
		}
		tpl, err := r.templates.GetByID(ctx, job.Tenant, *job.TemplateID)
		if err != nil {
			if errors.Is(err, core.ErrTemplateRowNotFound) {
				return nil, apperrors.NewDelivery(apperrors.ErrInitialization, "load template",
					fmt.Errorf("template %d not found", *job.TemplateID))
			}
			return nil, apperrors.NewDelivery(apperrors.ErrInitialization, "load template", err)
		}
		body := tpl.Body()
		return &JobTemplate{Fixed: &body}, nil
	default:
		return nil, apperrors.NewDelivery(apperrors.ErrInitialization, "load template",
			fmt.Errorf("unknown job kind %q", job.Kind))
	}
}

// ForRecipient returns the body to render for a recipient language.
func (r *Resolver) ForRecipient(
	ctx context.Context,
	tenant model.Tenant,
	jt *JobTemplate,
	language string,
) (model.TemplateBody, error) {
	if jt != nil && jt.Fixed != nil {
		return *jt.Fixed, nil
	}
	body, err := r.Resolve(ctx, tenant, language)
	if err != nil {
		return model.TemplateBody{}, err
	}
	return *body, nil
}

// Resolve returns the template for language, falling back to the default language.
// It fails with ErrTemplateNotFound when neither exists.
func (r *Resolver) Resolve(ctx context.Context, tenant model.Tenant, language string) (*model.TemplateBody, error) {
	lang := model.NormalizeLanguage(language)
	key := tenant.Key() + ":" + lang
	if v, ok := r.bodies.Load(key); ok {
		body, _ := v.(*model.TemplateBody)
		return body, nil
	}

	if body := r.sharedGet(ctx, tenant, lang); body != nil {
		actual, _ := r.bodies.LoadOrStore(key, body)
		return actual.(*model.TemplateBody), nil
	}

	if r.source == nil {
		return nil, apperrors.NewDelivery(apperrors.ErrTemplateNotFound, "resolve template",
			errors.New("no template source configured"))
	}

	candidates := []string{lang}
	if lang != r.defaultLang {
		candidates = append(candidates, r.defaultLang)
	}
	for _, candidate := range candidates {
		body, err := r.source.Lookup(ctx, tenant, candidate)
		if err != nil {
			return nil, apperrors.NewDelivery(apperrors.ErrRender, "lookup template", err)
		}
		if body == nil {
			continue
		}
		if body.Language == "" {
			body.Language = candidate
		}
		r.sharedPut(ctx, tenant, lang, *body)
		actual, _ := r.bodies.LoadOrStore(key, body)
		return actual.(*model.TemplateBody), nil
	}

	return nil, apperrors.NewDelivery(apperrors.ErrTemplateNotFound, "resolve template",
		fmt.Errorf("language=%s (fallback %s tried)", lang, r.defaultLang))
}

func (r *Resolver) sharedGet(ctx context.Context, tenant model.Tenant, lang string) *model.TemplateBody {
	if r.shared == nil {
		return nil
	}
	body, err := r.shared.Get(ctx, tenant, lang)
	if err != nil {
		r.logger.WarnContext(ctx, "shared template cache read failed", "error", err, "language", lang)
		return nil
	}
	return body
}

func (r *Resolver) sharedPut(ctx context.Context, tenant model.Tenant, lang string, body model.TemplateBody) {
	if r.shared == nil {
		return
	}
	if err := r.shared.Put(ctx, tenant, lang, body); err != nil {
		r.logger.WarnContext(ctx, "shared template cache write failed", "error", err, "language", lang)
	}
}
