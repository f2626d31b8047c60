package render

import (
	"context"
	"log/slog"

	"github.com/target/bulkmailer/internal/core"
	"github.com/target/bulkmailer/internal/domain/model"
)

// Rendered is the per-recipient output of Render.
type Rendered struct {
	Subject string
	Text    string
	HTML    string
	Images  []model.InlineImage
}

// Input groups parameters for Render.
type Input struct {
	Tenant    model.Tenant
	Body      model.TemplateBody
	Variables map[string]string
}

// RendererOptions configures a Renderer.
type RendererOptions struct {
	// Assets resolves inline image ids. Nil disables inline image embedding.
	Assets core.AssetLookup
	Logger *slog.Logger
}

// Renderer substitutes recipient variables and embeds inline images.
type Renderer struct {
	assets core.AssetLookup
	logger *slog.Logger
}

// NewRenderer constructs a Renderer.
func NewRenderer(opts RendererOptions) *Renderer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{
		assets: opts.Assets,
		logger: logger.With("component", "renderer"),
	}
}

// Render produces the subject, text and HTML for one recipient. Missing variables leave
// their placeholders verbatim and missing inline images are skipped, so Render only fails
// when ctx is done.
func (r *Renderer) Render(ctx context.Context, in Input) (*Rendered, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := &Rendered{
		Subject: Substitute(in.Body.Subject, in.Variables),
		HTML:    Substitute(in.Body.HTML, in.Variables),
		Text:    Substitute(in.Body.Text, in.Variables),
	}
	if out.Text == "" {
		out.Text = out.Subject
	}

	out.HTML, out.Images = r.rewriteInlineImages(ctx, in.Tenant, out.HTML)
	return out, nil
}
