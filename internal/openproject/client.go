package openproject

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/teemow/openproject-mcp/internal/config"
	"github.com/teemow/openproject-mcp/internal/instrumentation"
	"github.com/teemow/openproject-mcp/internal/logging"
)

const (
	apiPrefix = "/api/v3"

	// apiKeyUser is the fixed basic auth user name for API key authentication.
	apiKeyUser = "apikey"

	halJSON = "application/hal+json"

	// DefaultTimeout bounds every request to the backend.
	DefaultTimeout = 30 * time.Second

	// aiDevTrue is OpenProject's filter value for a true boolean custom field.
	aiDevTrue = "t"
)

// Client wraps the OpenProject API v3.
type Client struct {
	baseURL      string
	apiKey       string
	aiDevField   string
	queryIDBugs  int
	queryIDReady int
	timeout      time.Duration
	transport    http.RoundTripper
	logger       *slog.Logger
	metrics      *instrumentation.Metrics

	mu    sync.Mutex
	httpc *http.Client // created on first use, dropped by Close
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithTransport sets the round tripper used for requests. By default each
// client gets its own clone of http.DefaultTransport.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.transport = rt
	}
}

// WithLogger sets the logger used for request debug logs.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMetrics records every API operation in m.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient creates a client for the instance described by settings.
// No connection is made until the first request.
func NewClient(settings config.Settings, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(settings.URL, "/"),
		apiKey:       settings.APIKey,
		aiDevField:   settings.AIDevField,
		queryIDBugs:  settings.QueryIDBugs,
		queryIDReady: settings.QueryIDReady,
		timeout:      DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = logging.WithService(c.logger, instrumentation.ServiceOpenProject)
	return c
}

// BaseURL returns the instance URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// HasAPIKey reports whether requests carry a non-empty API key.
func (c *Client) HasAPIKey() bool {
	return c.apiKey != ""
}

// httpClient returns the shared HTTP client, creating it if needed.
func (c *Client) httpClient() *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.httpc == nil {
		rt := c.transport
		if rt == nil {
			rt = http.DefaultTransport.(*http.Transport).Clone()
		}
		c.httpc = &http.Client{
			Timeout:   c.timeout,
			Transport: otelhttp.NewTransport(rt),
		}
	}
	return c.httpc
}

// Close releases idle connections. The client stays usable; the next request
// opens a new connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.httpc != nil {
		c.httpc.CloseIdleConnections()
		c.httpc = nil
	}
	return nil
}

// get issues GET <base>/api/v3<path> and decodes the JSON response into out.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + apiPrefix + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", path, err)
	}
	req.SetBasicAuth(apiKeyUser, c.apiKey)
	req.Header.Set("Accept", halJSON)

	start := time.Now()
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("openproject request",
		slog.String("path", path),
		slog.Int("status_code", resp.StatusCode),
		slog.Duration(logging.KeyDuration, time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return nil
}

// GetQueryOrder returns the ids of the work packages in a saved query (a board
// column), ordered by their position in the column.
func (c *Client) GetQueryOrder(ctx context.Context, queryID int) (ids []string, err error) {
	ctx, span := instrumentation.StartBackendSpan(ctx, instrumentation.ServiceOpenProject, instrumentation.OperationQueryOrder,
		instrumentation.WithQuery(queryID))
	defer c.finish(ctx, span, instrumentation.OperationQueryOrder, "", time.Now(), &err)

	var order map[string]any
	if err := c.get(ctx, fmt.Sprintf("/queries/%d/order", queryID), nil, &order); err != nil {
		return nil, fmt.Errorf("failed to get order of query %d: %w", queryID, err)
	}
	return orderedIDs(order), nil
}

// orderedIDs sorts the keys of a query order document by position, falling
// back to numeric id order for equal or non-numeric positions.
func orderedIDs(order map[string]any) []string {
	ids := make([]string, 0, len(order))
	for id := range order {
		ids = append(ids, id)
	}
	position := func(id string) float64 {
		if p, ok := order[id].(float64); ok {
			return p
		}
		return 0
	}
	sort.SliceStable(ids, func(i, j int) bool {
		pi, pj := position(ids[i]), position(ids[j])
		if pi != pj {
			return pi < pj
		}
		return lessID(ids[i], ids[j])
	})
	return ids
}

func lessID(a, b string) bool {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	if errA == nil && errB == nil {
		return na < nb
	}
	return a < b
}

// GetWorkPackages lists the work packages matching every criterion in q.
func (c *Client) GetWorkPackages(ctx context.Context, q WorkPackageQuery) (wps []WorkPackage, err error) {
	ctx, span := instrumentation.StartBackendSpan(ctx, instrumentation.ServiceOpenProject, instrumentation.OperationList,
		instrumentation.WithAttributes(
			attribute.Int("openproject.id_count", len(q.IDs)),
			attribute.Bool("openproject.ai_dev_only", q.AIDevOnly)))
	defer c.finish(ctx, span, instrumentation.OperationList, "", time.Now(), &err)

	query, err := c.filterQuery(q)
	if err != nil {
		return nil, err
	}

	var collection workPackageCollection
	if err := c.get(ctx, "/work_packages", query, &collection); err != nil {
		return nil, fmt.Errorf("failed to list work packages: %w", err)
	}
	if collection.Embedded.Elements == nil {
		return []WorkPackage{}, nil
	}
	return collection.Embedded.Elements, nil
}

// filterQuery encodes q as the filters query parameter. It returns nil when
// there is nothing to filter on.
func (c *Client) filterQuery(q WorkPackageQuery) (url.Values, error) {
	filters := make([]Filter, 0, len(q.Filters)+2)
	filters = append(filters, q.Filters...)

	if len(q.IDs) > 0 {
		filters = append(filters, NewFilter("id", "=", q.IDs...))
	}
	if q.AIDevOnly {
		filters = append(filters, NewFilter(c.aiDevField, "=", aiDevTrue))
	}
	if len(filters) == 0 {
		return nil, nil
	}

	encoded, err := json.Marshal(filters)
	if err != nil {
		return nil, fmt.Errorf("failed to encode filters: %w", err)
	}
	return url.Values{"filters": []string{string(encoded)}}, nil
}

// GetWorkPackage returns a single work package. An unknown id yields an error
// matching ErrNotFound.
func (c *Client) GetWorkPackage(ctx context.Context, id int) (wp *WorkPackage, err error) {
	ctx, span := instrumentation.StartBackendSpan(ctx, instrumentation.ServiceOpenProject, instrumentation.OperationGet,
		instrumentation.WithWorkPackage(id))
	defer c.finish(ctx, span, instrumentation.OperationGet, strconv.Itoa(id), time.Now(), &err)

	wp = &WorkPackage{}
	if err := c.get(ctx, fmt.Sprintf("/work_packages/%d", id), nil, wp); err != nil {
		return nil, fmt.Errorf("failed to get work package %d: %w", id, err)
	}
	return wp, nil
}

// GetAIReadyTasks returns the work packages in the bugs and ready columns
// that are flagged for AI development. Each work package appears once.
func (c *Client) GetAIReadyTasks(ctx context.Context) (wps []WorkPackage, err error) {
	ctx, span := instrumentation.StartBackendSpan(ctx, instrumentation.ServiceOpenProject, instrumentation.OperationAIReady)
	defer c.finish(ctx, span, instrumentation.OperationAIReady, "", time.Now(), &err)

	bugs, err := c.GetQueryOrder(ctx, c.queryIDBugs)
	if err != nil {
		return nil, err
	}
	ready, err := c.GetQueryOrder(ctx, c.queryIDReady)
	if err != nil {
		return nil, err
	}

	ids := union(bugs, ready)
	if len(ids) == 0 {
		return []WorkPackage{}, nil
	}

	return c.GetWorkPackages(ctx, WorkPackageQuery{IDs: ids, AIDevOnly: true})
}

// union merges id lists, keeping the first occurrence of each id.
func union(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range lists {
		for _, id := range list {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

// TaskURL returns the web URL of a work package.
func (c *Client) TaskURL(id int) string {
	return fmt.Sprintf("%s/work_packages/%d", c.baseURL, id)
}

// FormatTaskSummary flattens a work package into a TaskSummary.
func (c *Client) FormatTaskSummary(wp WorkPackage) TaskSummary {
	var url string
	if wp.ID != nil {
		url = c.TaskURL(*wp.ID)
	}
	return TaskSummary{
		ID:          wp.ID,
		URL:         url,
		Subject:     wp.Subject,
		Description: wp.RawDescription(),
		Type:        wp.Links.Type.Title,
		Status:      wp.Links.Status.Title,
		Priority:    wp.Links.Priority.Title,
		Assignee:    wp.Links.Assignee.Title,
	}
}

// FormatTaskSummaries applies FormatTaskSummary to every work package.
func (c *Client) FormatTaskSummaries(wps []WorkPackage) []TaskSummary {
	summaries := make([]TaskSummary, 0, len(wps))
	for _, wp := range wps {
		summaries = append(summaries, c.FormatTaskSummary(wp))
	}
	return summaries
}

// finish ends a backend span and records the operation. errp points at the
// caller's named error result.
func (c *Client) finish(ctx context.Context, span trace.Span, operation, resourceID string, start time.Time, errp *error) {
	elapsed := time.Since(start)
	instrumentation.EndSpan(span, *errp)

	status := instrumentation.StatusSuccess
	if *errp != nil {
		status = instrumentation.StatusError
	}
	c.metrics.RecordBackendOperation(ctx, instrumentation.ServiceOpenProject, operation, status, resourceID, elapsed)
	c.logger.Debug("openproject operation",
		logging.Operation(operation),
		logging.Status(status),
		slog.Duration(logging.KeyDuration, elapsed))
}
