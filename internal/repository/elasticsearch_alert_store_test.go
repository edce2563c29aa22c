package repository

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fleet-compliance/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeElasticsearch answers the handful of endpoints the alert store uses.
func fakeElasticsearch(t *testing.T, seen map[string]string) *elasticsearch.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		seen[r.Method+" "+r.URL.Path] = string(body)
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")

		switch {
		case strings.HasSuffix(r.URL.Path, "/_search"):
			_, _ = w.Write([]byte(`{"hits":{"hits":[
				{"_source":{"id":"a1","entityId":"VH-1","domain":"insurance","level":1,"status":"active"}}
			]}}`))
		case strings.HasSuffix(r.URL.Path, "/_update_by_query"):
			_, _ = w.Write([]byte(`{"updated":2}`))
		case strings.Contains(r.URL.Path, "/_doc/"):
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"result":"created"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{}`))
		}
	}))
	t.Cleanup(srv.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return client
}

func TestElasticsearchAlertStore(t *testing.T) {
	seen := make(map[string]string)
	store := NewElasticsearchAlertStore(fakeElasticsearch(t, seen), "compliance-alerts")
	ctx := context.Background()

	err := store.Create(ctx, models.Alert{ID: "a1", EntityID: "VH-1", Domain: models.DomainInsurance, Level: 1, Status: models.AlertActive})
	require.NoError(t, err)
	assert.Contains(t, seen["PUT /compliance-alerts/_doc/a1"], `"entityId":"VH-1"`)

	active, err := store.ListActive(ctx, "VH-1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "a1", active[0].ID)

	n, err := store.Resolve(ctx, "VH-1", models.DomainInsurance, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var q map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(seen["POST /compliance-alerts/_update_by_query"]), &q))
	assert.Contains(t, q, "script")
}
