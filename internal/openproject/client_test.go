package openproject

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/teemow/openproject-mcp/internal/config"
	"github.com/teemow/openproject-mcp/internal/instrumentation"
)

// fakeBackend is a minimal OpenProject API serving fixed query orders and
// work packages. It records every request it receives.
type fakeBackend struct {
	t            *testing.T
	orders       map[string]string // query path -> JSON body
	workPackages map[string]string // work package path -> JSON body
	collection   string            // body of GET /work_packages

	mu       sync.Mutex
	requests []*http.Request
}

func newFakeBackend(t *testing.T) (*fakeBackend, *httptest.Server) {
	t.Helper()
	fb := &fakeBackend{
		t:            t,
		orders:       map[string]string{},
		workPackages: map[string]string{},
		collection:   `{"_type":"Collection","total":0,"count":0,"_embedded":{"elements":[]}}`,
	}
	srv := httptest.NewServer(fb)
	t.Cleanup(srv.Close)
	return fb, srv
}

func (fb *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	fb.requests = append(fb.requests, r.Clone(context.Background()))
	fb.mu.Unlock()

	w.Header().Set("Content-Type", "application/hal+json")
	if body, ok := fb.orders[r.URL.Path]; ok {
		_, _ = w.Write([]byte(body))
		return
	}
	if body, ok := fb.workPackages[r.URL.Path]; ok {
		_, _ = w.Write([]byte(body))
		return
	}
	if r.URL.Path == "/api/v3/work_packages" {
		_, _ = w.Write([]byte(fb.collection))
		return
	}
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte(`{"_type":"Error","errorIdentifier":"urn:openproject-org:api:v3:errors:NotFound","message":"The requested resource could not be found."}`))
}

func (fb *fakeBackend) recorded() []*http.Request {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return append([]*http.Request(nil), fb.requests...)
}

func testSettings(url string) config.Settings {
	s := config.Default()
	s.URL = url
	s.APIKey = "test-key"
	s.QueryIDBugs = 1390
	s.QueryIDReady = 1378
	s.AIDevField = "customField2"
	return s
}

// decodeFilters parses the filters query parameter of a recorded request.
func decodeFilters(t *testing.T, r *http.Request) []Filter {
	t.Helper()
	raw := r.URL.Query().Get("filters")
	require.NotEmpty(t, raw, "expected a filters parameter")
	var filters []Filter
	require.NoError(t, json.Unmarshal([]byte(raw), &filters))
	return filters
}

func TestClient_RequestsCarryAuthAndAccept(t *testing.T) {
	fb, srv := newFakeBackend(t)
	fb.orders["/api/v3/queries/7/order"] = `{}`

	client := NewClient(testSettings(srv.URL))
	defer client.Close()

	_, err := client.GetQueryOrder(context.Background(), 7)
	require.NoError(t, err)

	reqs := fb.recorded()
	require.Len(t, reqs, 1)
	user, pass, ok := reqs[0].BasicAuth()
	assert.True(t, ok)
	assert.Equal(t, "apikey", user)
	assert.Equal(t, "test-key", pass)
	assert.Equal(t, "application/hal+json", reqs[0].Header.Get("Accept"))
	assert.Equal(t, http.MethodGet, reqs[0].Method)
}

func TestClient_GetQueryOrder(t *testing.T) {
	fb, srv := newFakeBackend(t)
	fb.orders["/api/v3/queries/1390/order"] = `{"42": 8192, "7": 0, "100": 4096}`

	client := NewClient(testSettings(srv.URL))
	ids, err := client.GetQueryOrder(context.Background(), 1390)
	require.NoError(t, err)
	assert.Equal(t, []string{"7", "100", "42"}, ids)
}

func TestClient_GetQueryOrder_HTTPError(t *testing.T) {
	_, srv := newFakeBackend(t)

	client := NewClient(testSettings(srv.URL))
	_, err := client.GetQueryOrder(context.Background(), 999)
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "The requested resource could not be found.", apiErr.Message)
	assert.Contains(t, err.Error(), "query 999")
}

func TestClient_GetWorkPackages_Filters(t *testing.T) {
	fb, srv := newFakeBackend(t)
	client := NewClient(testSettings(srv.URL))

	extra := make([]Filter, 1, 4)
	extra[0] = NewFilter("status", "o")
	_, err := client.GetWorkPackages(context.Background(), WorkPackageQuery{
		IDs:       []string{"1", "2"},
		AIDevOnly: true,
		Filters:   extra,
	})
	require.NoError(t, err)

	reqs := fb.recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/api/v3/work_packages", reqs[0].URL.Path)
	assert.Equal(t, []Filter{
		NewFilter("status", "o"),
		NewFilter("id", "=", "1", "2"),
		NewFilter("customField2", "=", "t"),
	}, decodeFilters(t, reqs[0]))

	// Spare capacity in the caller's slice must stay untouched.
	assert.Len(t, extra, 1)
	assert.Nil(t, extra[:cap(extra)][1])
}

func TestClient_GetWorkPackages_NoFilters(t *testing.T) {
	fb, srv := newFakeBackend(t)
	client := NewClient(testSettings(srv.URL))

	wps, err := client.GetWorkPackages(context.Background(), WorkPackageQuery{})
	require.NoError(t, err)
	assert.NotNil(t, wps)
	assert.Empty(t, wps)

	reqs := fb.recorded()
	require.Len(t, reqs, 1)
	assert.Empty(t, reqs[0].URL.RawQuery)
}

func TestClient_GetWorkPackages_MissingEmbedded(t *testing.T) {
	fb, srv := newFakeBackend(t)
	fb.collection = `{"_type":"Collection","total":0}`
	client := NewClient(testSettings(srv.URL))

	wps, err := client.GetWorkPackages(context.Background(), WorkPackageQuery{AIDevOnly: true})
	require.NoError(t, err)
	assert.NotNil(t, wps)
	assert.Empty(t, wps)
}

func TestClient_GetWorkPackage(t *testing.T) {
	fb, srv := newFakeBackend(t)
	fb.workPackages["/api/v3/work_packages/42"] = `{
		"_type": "WorkPackage",
		"id": 42,
		"subject": "Fix login",
		"description": {"format": "markdown", "raw": "Steps to reproduce", "html": "<p>Steps to reproduce</p>"},
		"_links": {
			"type": {"href": "/api/v3/types/1", "title": "Bug"},
			"status": {"href": "/api/v3/statuses/1", "title": "New"},
			"priority": {"href": "/api/v3/priorities/8", "title": "High"},
			"assignee": {"href": null}
		}
	}`
	client := NewClient(testSettings(srv.URL))

	wp, err := client.GetWorkPackage(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, intPtr(42), wp.ID)
	assert.Equal(t, "Fix login", wp.Subject)
	assert.Equal(t, "Steps to reproduce", wp.RawDescription())
	assert.Equal(t, "Bug", wp.Links.Type.Title)
	assert.Equal(t, "", wp.Links.Assignee.Title)
}

func TestClient_GetWorkPackage_NotFound(t *testing.T) {
	_, srv := newFakeBackend(t)
	client := NewClient(testSettings(srv.URL))

	_, err := client.GetWorkPackage(context.Background(), 404404)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "404 Not Found")
}

func TestClient_GetWorkPackage_DecodeError(t *testing.T) {
	fb, srv := newFakeBackend(t)
	fb.workPackages["/api/v3/work_packages/1"] = `not json`
	client := NewClient(testSettings(srv.URL))

	_, err := client.GetWorkPackage(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode")
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestClient_GetAIReadyTasks_UnionAndFilter(t *testing.T) {
	fb, srv := newFakeBackend(t)
	fb.orders["/api/v3/queries/1390/order"] = `{"1": 0, "2": 1}`
	fb.orders["/api/v3/queries/1378/order"] = `{"2": 0, "3": 1}`
	fb.collection = `{"_embedded":{"elements":[{"id":1,"subject":"one"},{"id":3,"subject":"three"}]}}`
	client := NewClient(testSettings(srv.URL))

	wps, err := client.GetAIReadyTasks(context.Background())
	require.NoError(t, err)
	require.Len(t, wps, 2)
	assert.Equal(t, intPtr(1), wps[0].ID)
	assert.Equal(t, intPtr(3), wps[1].ID)

	reqs := fb.recorded()
	require.Len(t, reqs, 3)
	filters := decodeFilters(t, reqs[2])
	require.Len(t, filters, 2)

	ids := append([]string(nil), filters[0]["id"].Values...)
	sort.Strings(ids)
	assert.Equal(t, []string{"1", "2", "3"}, ids, "ids must be deduplicated")
	assert.Equal(t, "=", filters[0]["id"].Operator)
	assert.Equal(t, FilterCondition{Operator: "=", Values: []string{"t"}}, filters[1]["customField2"])
}

func TestClient_GetAIReadyTasks_EmptyUnionSkipsFetch(t *testing.T) {
	fb, srv := newFakeBackend(t)
	fb.orders["/api/v3/queries/1390/order"] = `{}`
	fb.orders["/api/v3/queries/1378/order"] = `{}`
	client := NewClient(testSettings(srv.URL))

	wps, err := client.GetAIReadyTasks(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, wps)
	assert.Empty(t, wps)
	assert.Len(t, fb.recorded(), 2, "work packages must not be fetched for an empty union")
}

func TestClient_GetAIReadyTasks_QueryError(t *testing.T) {
	fb, srv := newFakeBackend(t)
	fb.orders["/api/v3/queries/1390/order"] = `{"1": 0}`
	client := NewClient(testSettings(srv.URL))

	_, err := client.GetAIReadyTasks(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query 1378")
	assert.Len(t, fb.recorded(), 2)
}

func TestClient_ReusesHTTPClientUntilClosed(t *testing.T) {
	client := NewClient(testSettings("http://localhost:1"))

	first := client.httpClient()
	assert.Same(t, first, client.httpClient())

	require.NoError(t, client.Close())
	second := client.httpClient()
	assert.NotSame(t, first, second)
	assert.Equal(t, DefaultTimeout, second.Timeout)
}

func TestClient_TaskURL(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		want    string
	}{
		{name: "no trailing slash", baseURL: "http://host:8085", want: "http://host:8085/work_packages/42"},
		{name: "trailing slash", baseURL: "http://host:8085/", want: "http://host:8085/work_packages/42"},
		{name: "several trailing slashes", baseURL: "http://host:8085//", want: "http://host:8085/work_packages/42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewClient(testSettings(tt.baseURL))
			assert.Equal(t, tt.want, client.TaskURL(42))
		})
	}
}

func TestUnion(t *testing.T) {
	assert.Nil(t, union(nil, nil))
	assert.Equal(t, []string{"1", "2", "3"}, union([]string{"1", "2"}, []string{"2", "3", "1"}))
	assert.Equal(t, []string{"5"}, union([]string{"5", "5"}))
}

func TestOrderedIDs(t *testing.T) {
	order := map[string]any{"10": nil, "9": nil, "abc": 1.0, "3": 2.0}
	assert.Equal(t, []string{"9", "10", "abc", "3"}, orderedIDs(order))
}

func TestClient_RecordsBackendOperations(t *testing.T) {
	fb, srv := newFakeBackend(t)
	fb.orders["/api/v3/queries/1390/order"] = `{"1": 0}`
	fb.orders["/api/v3/queries/1378/order"] = `{}`

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = mp.Shutdown(context.Background()) }()
	metrics, err := instrumentation.NewMetrics(mp.Meter("test"), false)
	require.NoError(t, err)

	client := NewClient(testSettings(srv.URL), WithMetrics(metrics))
	_, err = client.GetAIReadyTasks(context.Background())
	require.NoError(t, err)
	_, err = client.GetWorkPackage(context.Background(), 5)
	require.Error(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	counts := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "openproject_api_operations_total" {
				continue
			}
			for _, p := range m.Data.(metricdata.Sum[int64]).DataPoints {
				op, _ := p.Attributes.Value(attribute.Key("operation"))
				status, _ := p.Attributes.Value(attribute.Key("status"))
				counts[op.AsString()+"/"+status.AsString()] += p.Value
			}
		}
	}
	assert.Equal(t, map[string]int64{
		"query_order/success": 2,
		"list/success":        1,
		"ai_ready/success":    1,
		"get/error":           1,
	}, counts)
}
