package core_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/bulkmailer/internal/core"
	"github.com/target/bulkmailer/internal/domain/model"
	"github.com/target/bulkmailer/internal/mocks"
	"go.uber.org/mock/gomock"
)

var testTenant = model.Tenant{MasterUserID: "mu1", StoreID: "s1"}

func TestNewTemplateBodyCache_NilCache(t *testing.T) {
	assert.Nil(t, core.NewTemplateBodyCache(core.TemplateBodyCacheOptions{}))
}

func TestTemplateBodyCache_Get(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		setup   func(*mocks.MockCacheRepository)
		want    *model.TemplateBody
		wantErr bool
	}{
		{
			name: "miss",
			setup: func(c *mocks.MockCacheRepository) {
				c.EXPECT().Get(gomock.Any(), "template:body:mu1:s1:fr").Return(nil, nil)
			},
		},
		{
			name: "hit",
			setup: func(c *mocks.MockCacheRepository) {
				c.EXPECT().Get(gomock.Any(), "template:body:mu1:s1:fr").
					Return([]byte(`{"language":"en","subject":"Hi","text":"t","html":"<p>h</p>"}`), nil)
			},
			want: &model.TemplateBody{Language: "en", Subject: "Hi", Text: "t", HTML: "<p>h</p>"},
		},
		{
			name: "corrupt entry",
			setup: func(c *mocks.MockCacheRepository) {
				c.EXPECT().Get(gomock.Any(), "template:body:mu1:s1:fr").Return([]byte("{"), nil)
			},
			wantErr: true,
		},
		{
			name: "redis error",
			setup: func(c *mocks.MockCacheRepository) {
				c.EXPECT().Get(gomock.Any(), "template:body:mu1:s1:fr").Return(nil, errors.New("redis down"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			cache := mocks.NewMockCacheRepository(ctrl)
			tt.setup(cache)

			svc := core.NewTemplateBodyCache(core.TemplateBodyCacheOptions{Cache: cache})
			got, err := svc.Get(context.Background(), testTenant, "fr")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTemplateBodyCache_PutUsesTTL(t *testing.T) {
	ctrl := gomock.NewController(t)
	cache := mocks.NewMockCacheRepository(ctrl)
	cache.EXPECT().
		Set(gomock.Any(), "template:body:mu1:s1:de", gomock.Any(), 10*time.Minute).
		DoAndReturn(func(_ context.Context, _ string, value []byte, _ time.Duration) error {
			assert.JSONEq(t, `{"language":"en","subject":"S","text":"","html":""}`, string(value))
			return nil
		})

	svc := core.NewTemplateBodyCache(core.TemplateBodyCacheOptions{Cache: cache, TTL: 10 * time.Minute})
	err := svc.Put(context.Background(), testTenant, "de", model.TemplateBody{Language: "en", Subject: "S"})
	require.NoError(t, err)
}

func TestTemplateBodyCache_DefaultTTL(t *testing.T) {
	ctrl := gomock.NewController(t)
	cache := mocks.NewMockCacheRepository(ctrl)
	cache.EXPECT().Set(gomock.Any(), gomock.Any(), gomock.Any(), core.DefaultTemplateCacheTTL).Return(nil)

	svc := core.NewTemplateBodyCache(core.TemplateBodyCacheOptions{Cache: cache})
	require.NoError(t, svc.Put(context.Background(), testTenant, "en", model.TemplateBody{}))
}
