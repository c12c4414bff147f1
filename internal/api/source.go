package api

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Source produces normalized pages for a question. Implementations must
// honour ctx cancellation and report it through IsCancelled.
type Source interface {
	FetchPage(ctx context.Context, req PageRequest) (*Page, error)
}

// NewSource returns the source implementation for kind.
func NewSource(kind Kind, c *Client) Source {
	if kind == KindLegacy {
		return &LegacySource{client: c}
	}
	return &ModularSource{client: c}
}

// ModularSource reads the paginated records endpoint and, for page 1, the
// three facet metadata endpoints in parallel.
type ModularSource struct {
	client *Client
}

func (s *ModularSource) FetchPage(ctx context.Context, req PageRequest) (*Page, error) {
	first := req.Page <= 1
	payload := Payload{Kind: KindModular}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		body, err := s.client.FilteredResponses(gctx, req)
		payload.Responses = body
		return err
	})
	if first {
		g.Go(func() error {
			body, err := s.client.ThemeAggregations(gctx, req)
			payload.Aggregations = body
			return err
		})
		g.Go(func() error {
			body, err := s.client.ThemeInformation(gctx, req)
			payload.ThemeInfo = body
			return err
		})
		g.Go(func() error {
			body, err := s.client.DemographicOptions(gctx, req)
			payload.Demographics = body
			return err
		})
	}
	if err := g.Wait(); err != nil {
		// A sibling failure cancels gctx; only the parent context decides
		// whether this was a supersession.
		if ctx.Err() != nil {
			return nil, cancelled(ctx, err)
		}
		return nil, err
	}
	return Normalize(payload, first)
}

// LegacySource reads the combined endpoint that inlines theme mappings and
// demographic options into the records payload.
type LegacySource struct {
	client *Client
}

func (s *LegacySource) FetchPage(ctx context.Context, req PageRequest) (*Page, error) {
	body, err := s.client.Legacy(ctx, req)
	if err != nil {
		return nil, err
	}
	return Normalize(Payload{Kind: KindLegacy, Legacy: body}, req.Page <= 1)
}
