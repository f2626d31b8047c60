package render

import (
	"context"
	"errors"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/bulkmailer/internal/core"
	"github.com/target/bulkmailer/internal/domain/model"
	apperrors "github.com/target/bulkmailer/internal/errors"
	"github.com/target/bulkmailer/internal/mocks"
	"go.uber.org/mock/gomock"
)

var tenant = model.Tenant{MasterUserID: "mu1", StoreID: "s1"}

func TestSubstitute(t *testing.T) {
	tests := []struct {
		name string
		in   string
		vars map[string]string
		want string
	}{
		{"no placeholders", "Hello there", map[string]string{"name": "Ann"}, "Hello there"},
		{"single", "Hi [name]!", map[string]string{"name": "Ann"}, "Hi Ann!"},
		{"repeated", "[name] [name]", map[string]string{"name": "Bo"}, "Bo Bo"},
		{"unknown left verbatim", "Hi [name], [missing]", map[string]string{"name": "Ann"}, "Hi Ann, [missing]"},
		{"empty vars", "Hi [name]", map[string]string{}, "Hi [name]"},
		{"nil vars", "Hi [name]", nil, "Hi [name]"},
		{"nested bracket", "[a [b]", map[string]string{"b": "X"}, "[a X"},
		{"unterminated", "Hi [name", map[string]string{"name": "Ann"}, "Hi [name"},
		{"value not re-expanded", "[a][b]", map[string]string{"a": "[b]", "b": "B"}, "[b]B"},
		{"empty brackets", "[] [x]", map[string]string{"x": "1"}, "[] 1"},
		{"unicode key", "Bonjour [prénom]", map[string]string{"prénom": "Zoé"}, "Bonjour Zoé"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Substitute(tt.in, tt.vars))
		})
	}
}

func TestSubstitute_EmptyVarsIsIdentity(t *testing.T) {
	inputs := []string{"[a]", "x [b] y [c]", "<p>[first_name]</p>", "[", "]", ""}
	for _, in := range inputs {
		assert.Equal(t, in, Substitute(in, map[string]string{}))
	}
}

func TestRender_DeterministicAndTextFallback(t *testing.T) {
	r := NewRenderer(RendererOptions{})
	in := Input{
		Tenant: tenant,
		Body:   model.TemplateBody{Subject: "Order [order]", HTML: "<p>Hi [name]</p>"},
		Variables: map[string]string{
			"order": "42",
			"name":  "Ann",
		},
	}

	first, err := r.Render(context.Background(), in)
	require.NoError(t, err)
	second, err := r.Render(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "Order 42", first.Subject)
	assert.Equal(t, "<p>Hi Ann</p>", first.HTML)
	assert.Equal(t, "Order 42", first.Text, "empty text falls back to the subject")
	assert.Empty(t, first.Images)
}

func TestRender_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewRenderer(RendererOptions{}).Render(ctx, Input{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRender_InlineImages(t *testing.T) {
	ctrl := gomock.NewController(t)
	assets := mocks.NewMockAssetLookup(ctrl)
	assets.EXPECT().
		Resolve(gomock.Any(), core.AssetRef{Tenant: tenant, Kind: model.AssetKindImage, ID: "logo"}).
		Return(&model.ResolvedAsset{FileID: "logo", Filename: "logo.png", MIMEType: "image/png", Data: []byte("PNG")}, nil).
		Times(1)
	assets.EXPECT().
		Resolve(gomock.Any(), core.AssetRef{Tenant: tenant, Kind: model.AssetKindImage, ID: "gone"}).
		Return(nil, core.ErrAssetNotFound)

	r := NewRenderer(RendererOptions{Assets: assets})
	body := `<div><img id="logo" src="placeholder.png" alt="Logo"><img id="gone" src="x.png"><img id="logo"></div>`
	out, err := r.Render(context.Background(), Input{Tenant: tenant, Body: model.TemplateBody{Subject: "s", HTML: body}})
	require.NoError(t, err)

	require.Len(t, out.Images, 1)
	assert.Equal(t, model.InlineImage{ContentID: "image_logo", Filename: "logo.png", MIMEType: "image/png", Data: []byte("PNG")}, out.Images[0])
	assert.Contains(t, out.HTML, `<img src="cid:image_logo" alt="Logo">`)
	assert.Contains(t, out.HTML, `<img id="gone" src="x.png">`, "unresolved image keeps its id")
	assert.Equal(t, 2, strings.Count(out.HTML, "cid:image_logo"))
	assert.NotContains(t, out.HTML, `id="logo"`)
}

func TestRender_HTMLWithoutResolvedImagesUnchanged(t *testing.T) {
	ctrl := gomock.NewController(t)
	assets := mocks.NewMockAssetLookup(ctrl)
	assets.EXPECT().Resolve(gomock.Any(), gomock.Any()).Return(nil, errors.New("disk error"))

	body := `<p class=a>Hi&nbsp;there</p><IMG ID="x" SRC='a.png'><br>`
	out, err := NewRenderer(RendererOptions{Assets: assets}).
		Render(context.Background(), Input{Tenant: tenant, Body: model.TemplateBody{HTML: body}})
	require.NoError(t, err)
	assert.Equal(t, body, out.HTML)
	assert.Empty(t, out.Images)
}

type countingSource struct {
	bodies map[string]*model.TemplateBody
	calls  []string
	err    error
}

func (s *countingSource) Lookup(_ context.Context, _ model.Tenant, language string) (*model.TemplateBody, error) {
	s.calls = append(s.calls, language)
	if s.err != nil {
		return nil, s.err
	}
	if b, ok := s.bodies[language]; ok {
		cp := *b
		return &cp, nil
	}
	return nil, nil
}

func TestResolver_LanguageFallback(t *testing.T) {
	src := &countingSource{bodies: map[string]*model.TemplateBody{
		"en": {Subject: "Hello", HTML: "<p>en</p>"},
		"de": {Subject: "Hallo", HTML: "<p>de</p>"},
	}}
	r := NewResolver(ResolverOptions{Source: src})

	body, err := r.Resolve(context.Background(), tenant, "fr")
	require.NoError(t, err)
	assert.Equal(t, "Hello", body.Subject)
	assert.Equal(t, "en", body.Language)

	body, err = r.Resolve(context.Background(), tenant, " DE ")
	require.NoError(t, err)
	assert.Equal(t, "Hallo", body.Subject)

	// cached: no further lookups
	_, err = r.Resolve(context.Background(), tenant, "fr")
	require.NoError(t, err)
	assert.Equal(t, []string{"fr", "en", "de"}, src.calls)
}

func TestResolver_TemplateNotFound(t *testing.T) {
	r := NewResolver(ResolverOptions{Source: &countingSource{}})
	_, err := r.Resolve(context.Background(), tenant, "fr")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrTemplateNotFound)
	assert.False(t, apperrors.IsJobScoped(err))
}

func TestResolver_SourceErrorIsRenderError(t *testing.T) {
	r := NewResolver(ResolverOptions{Source: &countingSource{err: errors.New("io")}})
	_, err := r.Resolve(context.Background(), tenant, "en")
	assert.ErrorIs(t, err, apperrors.ErrRender)
}

func TestResolver_SharedCache(t *testing.T) {
	ctrl := gomock.NewController(t)
	cache := mocks.NewMockCacheRepository(ctrl)
	cache.EXPECT().Get(gomock.Any(), "template:body:mu1:s1:fr").Return(nil, nil)
	cache.EXPECT().Set(gomock.Any(), "template:body:mu1:s1:fr", gomock.Any(), core.DefaultTemplateCacheTTL).Return(nil)

	src := &countingSource{bodies: map[string]*model.TemplateBody{"en": {Subject: "Hello"}}}
	r := NewResolver(ResolverOptions{
		Source: src,
		Shared: core.NewTemplateBodyCache(core.TemplateBodyCacheOptions{Cache: cache}),
	})
	body, err := r.Resolve(context.Background(), tenant, "fr")
	require.NoError(t, err)
	assert.Equal(t, "Hello", body.Subject)
}

func TestResolver_PrepareJob(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockTemplateRepository(ctrl)
	r := NewResolver(ResolverOptions{Templates: repo})

	t.Run("custom", func(t *testing.T) {
		jt, err := r.PrepareJob(context.Background(), &model.Job{Kind: model.JobKindCustom, Subject: "S", TextContent: "T"})
		require.NoError(t, err)
		assert.Equal(t, &model.TemplateBody{Subject: "S", Text: "T"}, jt.Fixed)
	})

	t.Run("template by language", func(t *testing.T) {
		jt, err := r.PrepareJob(context.Background(), &model.Job{Kind: model.JobKindTemplate})
		require.NoError(t, err)
		assert.Nil(t, jt.Fixed)
	})

	t.Run("template id found", func(t *testing.T) {
		id := int64(7)
		repo.EXPECT().GetByID(gomock.Any(), tenant, id).
			Return(&model.Template{ID: 7, Language: "en", Subject: "Sub", HTMLContent: "<b>x</b>"}, nil)
		jt, err := r.PrepareJob(context.Background(), &model.Job{Kind: model.JobKindTemplate, Tenant: tenant, TemplateID: &id})
		require.NoError(t, err)
		assert.Equal(t, "Sub", jt.Fixed.Subject)
		body, err := r.ForRecipient(context.Background(), tenant, jt, "fr")
		require.NoError(t, err)
		assert.Equal(t, "<b>x</b>", body.HTML)
	})

	t.Run("template id missing aborts job", func(t *testing.T) {
		id := int64(8)
		repo.EXPECT().GetByID(gomock.Any(), tenant, id).Return(nil, core.ErrTemplateRowNotFound)
		_, err := r.PrepareJob(context.Background(), &model.Job{Kind: model.JobKindTemplate, Tenant: tenant, TemplateID: &id})
		require.Error(t, err)
		assert.True(t, apperrors.IsJobScoped(err))
	})
}

func TestFileSource(t *testing.T) {
	fsys := fstest.MapFS{
		"tenant_mu1_s1/templates/en_subject.txt": {Data: []byte("Welcome [name]\n")},
		"tenant_mu1_s1/templates/en_content.txt": {Data: []byte("<p>Hi [name]</p><p>Bye</p>")},
		"tenant_mu1_s1/templates/fr_subject.txt": {Data: []byte("Bienvenue")},
	}
	src := NewFileSource(fsys)

	body, err := src.Lookup(context.Background(), tenant, "en")
	require.NoError(t, err)
	require.NotNil(t, body)
	assert.Equal(t, "Welcome [name]", body.Subject)
	assert.Equal(t, "Hi [name]\n\nBye", body.Text)

	body, err = src.Lookup(context.Background(), tenant, "fr")
	require.NoError(t, err)
	assert.Nil(t, body, "content file missing")

	body, err = src.Lookup(context.Background(), tenant, "../etc")
	require.NoError(t, err)
	assert.Nil(t, body)

	r := NewResolver(ResolverOptions{Source: src})
	got, err := r.Resolve(context.Background(), tenant, "fr")
	require.NoError(t, err)
	assert.Equal(t, "en", got.Language)
}

func TestChainSource(t *testing.T) {
	first := &countingSource{}
	second := &countingSource{bodies: map[string]*model.TemplateBody{"en": {Subject: "from second"}}}
	body, err := ChainSource{first, second}.Lookup(context.Background(), tenant, "en")
	require.NoError(t, err)
	assert.Equal(t, "from second", body.Subject)
}

func TestEffectiveAttachments(t *testing.T) {
	tests := []struct {
		name     string
		explicit []string
		vars     map[string]string
		want     []string
	}{
		{"explicit wins", []string{"a.pdf"}, map[string]string{"__attachments__": `["b.pdf"]`}, []string{"a.pdf"}},
		{"json list from variables", nil, map[string]string{"__attachments__": `["b.pdf"," c.pdf "]`}, []string{"b.pdf", "c.pdf"}},
		{"single id from variables", nil, map[string]string{"__attachments__": "d.pdf"}, []string{"d.pdf"}},
		{"blank explicit falls back", []string{" "}, map[string]string{"__attachments__": "e.pdf"}, []string{"e.pdf"}},
		{"none", nil, map[string]string{"name": "x"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EffectiveAttachments(tt.explicit, tt.vars))
		})
	}
}

func TestTemplateVariables(t *testing.T) {
	vars := map[string]string{"name": "Ann", "__attachments__": "x"}
	got := TemplateVariables(vars)
	assert.Equal(t, map[string]string{"name": "Ann"}, got)
	assert.Len(t, vars, 2, "input not mutated")
}
