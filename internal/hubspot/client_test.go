package hubspot

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portal-sync/internal/httpx"
)

func fastRetry() httpx.RetryConfig {
	cfg := httpx.DefaultRetryConfig()
	cfg.Sleep = func(context.Context, time.Duration) error { return nil }
	return cfg
}

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := New("pat-test", WithBaseURL(srv.URL), WithRetry(fastRetry()))
	require.NoError(t, err)
	return c
}

func TestNewRequiresToken(t *testing.T) {
	_, err := New("")
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = New("   ")
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestCallSendsBearerAndJSON(t *testing.T) {
	var gotAuth, gotType, gotBody string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1"}`))
	}))

	res, err := c.Call(context.Background(), http.MethodPost, "/crm/v3/objects/notes", RequestOptions{JSON: map[string]string{"a": "b"}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.JSONEq(t, `{"id":"1"}`, string(res.Body))
	assert.Equal(t, "Bearer pat-test", gotAuth)
	assert.Equal(t, "application/json", gotType)
	assert.JSONEq(t, `{"a":"b"}`, gotBody)
}

func TestCallGetHasNoContentType(t *testing.T) {
	var gotType string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusNoContent)
	}))

	res, err := c.Get(context.Background(), "x", RequestOptions{JSON: map[string]string{"ignored": "yes"}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	assert.Empty(t, res.Body)
	assert.Empty(t, gotType)
}

func TestCallMalformedJSONIsTerminal(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte("<html>maintenance</html>"))
	}))

	_, err := c.Get(context.Background(), "/crm/v3/owners/1", RequestOptions{})
	var herr *httpx.Error
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, httpx.KindDecode, herr.Kind)
	assert.Contains(t, herr.URL, "/crm/v3/owners/1")
	assert.Equal(t, int32(1), calls.Load())
}

func TestCallMaxAttemptsOverride(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := c.Get(context.Background(), "/x", RequestOptions{MaxAttempts: 5})
	assert.ErrorIs(t, err, httpx.ErrMaxRetries)
	assert.Equal(t, int32(5), calls.Load())
}

func TestListServicesPage(t *testing.T) {
	var gotQuery map[string][]string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/crm/v3/objects/0-162", r.URL.Path)
		gotQuery = r.URL.Query()
		_, _ = w.Write([]byte(`{
			"results": [
				{
					"id": "101",
					"properties": {
						"hs_name": "Website rebuild",
						"hs_status": "IN_PROGRESS",
						"hs_pipeline_stage": "kickoff",
						"hs_start_date": "2024-01-02",
						"hs_target_end_date": null,
						"hubspot_owner_id": "77"
					},
					"associations": {"companies": {"results": [
						{"id": "9001", "type": "service_to_company"},
						{"id": 9001, "type": "service_to_company_primary"}
					]}}
				},
				{"id": 102, "properties": {"hs_name": "Audit"}}
			],
			"paging": {"next": {"after": "cursor-2"}}
		}`))
	}))

	page, err := c.ListServicesPage(context.Background(), PageRequest{Limit: 25, After: "cursor-1"})
	require.NoError(t, err)

	assert.Equal(t, []string{"25"}, gotQuery["limit"])
	assert.Equal(t, []string{"cursor-1"}, gotQuery["after"])
	assert.Equal(t, []string{"companies"}, gotQuery["associations"])
	assert.Contains(t, gotQuery["properties"][0], "hs_status")
	assert.Contains(t, gotQuery["properties"][0], "hubspot_owner_id")

	require.Len(t, page.Records, 2)
	assert.Equal(t, "cursor-2", page.NextAfter)

	first := page.Records[0]
	assert.Equal(t, "101", first.ID)
	assert.Equal(t, "Website rebuild", first.Name)
	require.NotNil(t, first.Status)
	assert.Equal(t, "IN_PROGRESS", *first.Status)
	assert.Equal(t, "77", first.OwnerID)
	assert.Equal(t, "", first.TargetEndDate)
	assert.Equal(t, []string{"9001"}, first.CompanyIDs)

	second := page.Records[1]
	assert.Equal(t, "102", second.ID)
	assert.Nil(t, second.Status)
	assert.Empty(t, second.CompanyIDs)
}

func TestListServicesPageLastPage(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.Query().Get("after"))
		_, _ = w.Write([]byte(`{"results": []}`))
	}))

	page, err := c.ListServicesPage(context.Background(), PageRequest{})
	require.NoError(t, err)
	assert.Empty(t, page.Records)
	assert.Empty(t, page.NextAfter)
}

func TestGetCompanyAndOwner(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/crm/v3/objects/companies/9001", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "name,domain", r.URL.Query().Get("properties"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":         "9001",
			"properties": map[string]any{"name": "Acme", "domain": "acme.test"},
		})
	})
	mux.HandleFunc("/crm/v3/owners/77", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"77","email":"ada@agency.test","firstName":"Ada","lastName":"Lovelace"}`))
	})
	c := newTestClient(t, mux)

	company, err := c.GetCompany(context.Background(), "9001")
	require.NoError(t, err)
	assert.Equal(t, "Acme", company.Name)
	assert.Equal(t, "acme.test", company.Domain)

	owner, err := c.GetOwner(context.Background(), "77")
	require.NoError(t, err)
	assert.Equal(t, "Ada", owner.FirstName)
	assert.Equal(t, "Lovelace", owner.LastName)
	assert.Equal(t, "ada@agency.test", owner.Email)
}

func TestGetOwnerNotFound(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"message":"not found"}`, http.StatusNotFound)
	}))

	_, err := c.GetOwner(context.Background(), "404")
	var herr *httpx.Error
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, http.StatusNotFound, herr.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetOwnerUnexpectedShapeIsDecodeError(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`["not","an","owner"]`))
	}))

	_, err := c.GetOwner(context.Background(), "7")
	var herr *httpx.Error
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, httpx.KindDecode, herr.Kind)
	assert.False(t, herr.Retryable())
	assert.Contains(t, herr.URL, "/crm/v3/owners/7")
	assert.Equal(t, int32(1), calls.Load())
}

func TestFlexString(t *testing.T) {
	var v struct {
		A FlexString `json:"a"`
		B FlexString `json:"b"`
		C FlexString `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"12","b":34,"c":null}`), &v))
	assert.Equal(t, FlexString("12"), v.A)
	assert.Equal(t, FlexString("34"), v.B)
	assert.Equal(t, FlexString(""), v.C)
}
