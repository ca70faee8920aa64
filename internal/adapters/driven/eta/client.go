// Package eta implements the typed client for the tax-authority document API.
package eta

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/etasync/internal/adapters/driven/transport"
	"github.com/custodia-labs/etasync/internal/core/domain"
	"github.com/custodia-labs/etasync/internal/core/ports/driven"
	"github.com/custodia-labs/etasync/internal/logger"
)

// Ensure Client implements the DocumentAPI interface.
var _ driven.DocumentAPI = (*Client)(nil)

// queryTimeFormat is the UTC layout the search endpoint accepts for date filters.
const queryTimeFormat = "2006-01-02T15:04:05Z"

// Getter performs an authenticated, rate-limited GET.
type Getter interface {
	Get(ctx context.Context, url string) (*transport.Response, error)
}

// Client is a thin typed façade over the transport.
// It never decides whether date filters are sent: that is the caller's query.
type Client struct {
	getter       Getter
	baseURL      string
	detailSource domain.DetailSource
}

// NewClient creates a client for the API at baseURL+prefix.
func NewClient(getter Getter, settings domain.APISettings) *Client {
	source := settings.DetailSource
	if !source.IsValid() {
		source = domain.DetailSourceDetails
	}
	return &Client{
		getter:       getter,
		baseURL:      joinBase(settings.BaseURL, settings.PathPrefix),
		detailSource: source,
	}
}

// joinBase appends the path prefix to the base URL with exactly one slash
// between segments. An empty prefix leaves the base as is.
func joinBase(base, prefix string) string {
	base = strings.TrimRight(base, "/")
	if prefix = strings.Trim(prefix, "/"); prefix != "" {
		base += "/" + prefix
	}
	return base
}

// Search returns one page of document summaries.
func (c *Client) Search(ctx context.Context, query domain.SearchQuery) (*domain.SearchPage, error) {
	params := url.Values{}
	if query.PageSize > 0 {
		params.Set("pageSize", strconv.Itoa(query.PageSize))
	}
	if query.Window != nil {
		params.Set("issueDateFrom", formatQueryTime(query.Window.From))
		params.Set("issueDateTo", formatQueryTime(query.Window.To))
	}
	if query.ContinuationToken != "" {
		params.Set("continuationToken", query.ContinuationToken)
	}

	endpoint := c.baseURL + "/documents/search"
	if encoded := params.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	resp, err := c.getter.Get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}

	var body searchResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, fmt.Errorf("search documents: %w: %v", domain.ErrInvalidInput, err)
	}

	page := &domain.SearchPage{
		Documents: make([]domain.DocumentSummary, 0, len(body.Result)),
		NextPage:  body.Metadata.ContinuationToken,
	}
	for _, s := range body.Result {
		if s.UUID == "" {
			logger.Warn("search result without uuid skipped", "internal_id", s.InternalID)
			continue
		}
		page.Documents = append(page.Documents, s.toDomain())
	}

	logger.Debug("search page received", "documents", len(page.Documents), "next", page.NextPage)
	return page, nil
}

// FetchDetail returns enrichment data for one document from the configured
// detail endpoint. A 404 is reported as domain.ErrNotFound.
func (c *Client) FetchDetail(ctx context.Context, uuid string) (*domain.DocumentDetail, error) {
	if uuid == "" {
		return nil, fmt.Errorf("%w: empty uuid", domain.ErrInvalidInput)
	}
	endpoint := fmt.Sprintf("%s/documents/%s/%s", c.baseURL, url.PathEscape(uuid), c.detailSource)

	resp, err := c.getter.Get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("fetch detail %s: %w", uuid, err)
	}

	var body detailResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, fmt.Errorf("fetch detail %s: %w: %v", uuid, domain.ErrInvalidInput, err)
	}
	detail, err := body.toDomain()
	if err != nil {
		return nil, fmt.Errorf("fetch detail %s: %w", uuid, err)
	}
	if detail.UUID == "" {
		detail.UUID = uuid
	}
	return detail, nil
}

func formatQueryTime(t time.Time) string {
	return t.UTC().Format(queryTimeFormat)
}
