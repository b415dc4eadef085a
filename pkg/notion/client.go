// Package notion wraps the Notion API for the human review board.
package notion

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client defines the Notion operations the review board uses.
type Client interface {
	QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
	CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error)
	UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error)
}

// Notion enforces roughly 3 requests per second per integration.
const defaultRPS = 3

type boardClient struct {
	api *notionapi.Client
	rl  *rate.Limiter
}

// ClientOption configures the Notion client.
type ClientOption func(*boardClient)

// WithRateLimit overrides the request throttle. Zero or negative disables it.
func WithRateLimit(rps float64) ClientOption {
	return func(c *boardClient) {
		c.rl = nil
		if rps > 0 {
			burst := int(rps)
			if burst < 1 {
				burst = 1
			}
			c.rl = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// NewClient creates a throttled Notion client for the given integration token.
func NewClient(token string, opts ...ClientOption) Client {
	c := &boardClient{
		api: notionapi.NewClient(notionapi.Token(token)),
		rl:  rate.NewLimiter(defaultRPS, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// throttled runs fn after the limiter admits the request.
func throttled[T any](ctx context.Context, rl *rate.Limiter, op string, fn func() (T, error)) (T, error) {
	var zero T
	if rl != nil {
		if err := rl.Wait(ctx); err != nil {
			return zero, eris.Wrap(err, "notion: rate limit")
		}
	}
	out, err := fn()
	if err != nil {
		return zero, eris.Wrap(err, "notion: "+op)
	}
	return out, nil
}

func (c *boardClient) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	return throttled(ctx, c.rl, "query database "+dbID, func() (*notionapi.DatabaseQueryResponse, error) {
		return c.api.Database.Query(ctx, notionapi.DatabaseID(dbID), req)
	})
}

func (c *boardClient) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	return throttled(ctx, c.rl, "create page", func() (*notionapi.Page, error) {
		return c.api.Page.Create(ctx, req)
	})
}

func (c *boardClient) UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	return throttled(ctx, c.rl, "update page "+pageID, func() (*notionapi.Page, error) {
		return c.api.Page.Update(ctx, notionapi.PageID(pageID), req)
	})
}
