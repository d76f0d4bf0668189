package widget

import (
	"context"
	"time"

	"github.com/reportportal/service-api/pkg/api"
	"github.com/reportportal/service-api/pkg/apis/cache"
	"github.com/reportportal/service-api/pkg/db"
	"github.com/reportportal/service-api/pkg/db/models"
	"github.com/reportportal/service-api/pkg/filter"
)

// Provider loads widget content, through the cache when one is configured.
type Provider struct {
	dbc   *db.DB
	cache cache.Cache
	ttl   time.Duration
}

func NewProvider(dbc *db.DB, c cache.Cache, ttl time.Duration) *Provider {
	return &Provider{dbc: dbc, cache: c, ttl: ttl}
}

type contentCacheKey struct {
	Kind     string `json:"kind"`
	WidgetID uint   `json:"widgetId"`
	Updated  int64  `json:"updated"`
}

// Content returns the content of w built from its filters. Editing the widget changes its
// cache key, so stale content only lives until the cache TTL.
func (p *Provider) Content(ctx context.Context, w models.Widget, filters []*filter.FilterOptions, forceRefresh bool) (Content, error) {
	rq := Request{
		ProjectID:     w.ProjectID,
		Filters:       filters,
		ContentFields: w.ContentFields,
		ItemsCount:    w.ItemsCount,
		Options:       map[string]interface{}{},
	}
	if err := models.FromJSONB(w.Options, &rq.Options); err != nil {
		return nil, err
	}
	key := contentCacheKey{Kind: "WidgetContent", WidgetID: w.ID, Updated: w.UpdatedAt.UnixMilli()}
	return api.GetFromCacheOrGenerate[Content](ctx, p.cache, cache.RequestOptions{ForceRefresh: forceRefresh, TTL: p.ttl}, key,
		func() (Content, error) {
			return Load(ctx, p.dbc.DB, w.WidgetType, rq)
		}, Content{})
}
