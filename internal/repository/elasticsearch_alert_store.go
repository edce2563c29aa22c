package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"fleet-compliance/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// AlertsMapping is applied to the alerts index on startup.
const AlertsMapping = `{
  "mappings": {
    "properties": {
      "id":              {"type": "keyword"},
      "entityId":        {"type": "keyword"},
      "domain":          {"type": "keyword"},
      "ruleId":          {"type": "keyword"},
      "level":           {"type": "integer"},
      "severity":        {"type": "keyword"},
      "message":         {"type": "text"},
      "status":          {"type": "keyword"},
      "daysUntilExpiry": {"type": "integer"},
      "failedActions":   {"type": "keyword"},
      "createdAt":       {"type": "date"},
      "resolvedAt":      {"type": "date"}
    }
  }
}`

// ElasticsearchAlertStore indexes alerts so dashboards can search them.
type ElasticsearchAlertStore struct {
	client *elasticsearch.Client
	index  string
}

func NewElasticsearchAlertStore(client *elasticsearch.Client, index string) *ElasticsearchAlertStore {
	return &ElasticsearchAlertStore{client: client, index: index}
}

func (s *ElasticsearchAlertStore) Create(ctx context.Context, alert models.Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	res, err := s.client.Index(s.index, bytes.NewReader(body),
		s.client.Index.WithContext(ctx),
		s.client.Index.WithDocumentID(alert.ID),
		s.client.Index.WithRefresh("wait_for"),
	)
	if err != nil {
		return fmt.Errorf("index alert: %w", err)
	}
	defer res.Body.Close()
	return responseError(res, "index alert")
}

func (s *ElasticsearchAlertStore) ListActive(ctx context.Context, entityID string) ([]models.Alert, error) {
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"filter": []interface{}{
					map[string]interface{}{"term": map[string]interface{}{"entityId": entityID}},
					map[string]interface{}{"term": map[string]interface{}{"status": string(models.AlertActive)}},
				},
			},
		},
		"sort": []interface{}{map[string]interface{}{"createdAt": "asc"}},
		"size": 1000,
	}
	body, _ := json.Marshal(query)

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.index),
		s.client.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, fmt.Errorf("search alerts: %w", err)
	}
	defer res.Body.Close()
	if err := responseError(res, "search alerts"); err != nil {
		return nil, err
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source models.Alert `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode alert search: %w", err)
	}
	out := make([]models.Alert, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		out = append(out, h.Source)
	}
	return out, nil
}

func (s *ElasticsearchAlertStore) Resolve(ctx context.Context, entityID string, domain models.Domain, at time.Time) (int, error) {
	query := map[string]interface{}{
		"script": map[string]interface{}{
			"source": "ctx._source.status = params.status; ctx._source.resolvedAt = params.at",
			"params": map[string]interface{}{
				"status": string(models.AlertResolved),
				"at":     at.UTC().Format(time.RFC3339),
			},
		},
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"filter": []interface{}{
					map[string]interface{}{"term": map[string]interface{}{"entityId": entityID}},
					map[string]interface{}{"term": map[string]interface{}{"domain": string(domain)}},
					map[string]interface{}{"term": map[string]interface{}{"status": string(models.AlertActive)}},
				},
			},
		},
	}
	body, _ := json.Marshal(query)

	res, err := s.client.UpdateByQuery([]string{s.index},
		s.client.UpdateByQuery.WithContext(ctx),
		s.client.UpdateByQuery.WithBody(bytes.NewReader(body)),
		s.client.UpdateByQuery.WithConflicts("proceed"),
		s.client.UpdateByQuery.WithRefresh(true),
	)
	if err != nil {
		return 0, fmt.Errorf("resolve alerts: %w", err)
	}
	defer res.Body.Close()
	if err := responseError(res, "resolve alerts"); err != nil {
		return 0, err
	}

	var parsed struct {
		Updated int `json:"updated"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("decode update_by_query: %w", err)
	}
	return parsed.Updated, nil
}

func responseError(res *esapi.Response, op string) error {
	if !res.IsError() {
		return nil
	}
	raw, _ := io.ReadAll(res.Body)
	return fmt.Errorf("%s: elasticsearch returned %s: %s", op, res.Status(), string(raw))
}
