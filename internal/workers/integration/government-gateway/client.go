// internal/workers/integration/government-gateway/client.go
package governmentgateway

import (
	"context"
	"strings"
	"time"

	commonhttp "fleet-compliance/internal/common/http"
	"fleet-compliance/internal/models"
)

// AgencyClient is the wire boundary of one government agency API.
type AgencyClient interface {
	Verify(ctx context.Context, ref models.EntityRef) (*AgencyVerification, error)
	Submit(ctx context.Context, s Submission) (*SubmissionReceipt, error)
	Health(ctx context.Context) error
}

// AgencyVerification is the agency's answer to a verify request.
type AgencyVerification struct {
	Valid      bool                    `json:"valid"`
	Status     models.ComplianceStatus `json:"status,omitempty"`
	ExpiryDate *time.Time              `json:"expiryDate,omitempty"`
}

// Submission files a document with an agency (renewal, report).
type Submission struct {
	EntityID string                 `json:"entityId"`
	Domain   models.Domain          `json:"domain"`
	Kind     string                 `json:"kind"`
	Payload  map[string]interface{} `json:"payload,omitempty"`
}

type SubmissionReceipt struct {
	ReferenceNumber string `json:"referenceNumber"`
	Status          string `json:"status"`
}

// HTTPAgencyClient talks JSON over POST {base}/verify, POST {base}/submit and GET {base}/health.
type HTTPAgencyClient struct {
	baseURL string
	http    *commonhttp.Client
}

func NewHTTPAgencyClient(baseURL, apiKey string, timeout time.Duration) *HTTPAgencyClient {
	client := commonhttp.NewClient(timeout)
	if apiKey != "" {
		client = client.WithHeader("X-API-Key", apiKey)
	}
	return &HTTPAgencyClient{baseURL: strings.TrimRight(baseURL, "/"), http: client}
}

func (c *HTTPAgencyClient) Verify(ctx context.Context, ref models.EntityRef) (*AgencyVerification, error) {
	var out AgencyVerification
	if err := c.http.PostJSON(ctx, c.baseURL+"/verify", ref, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPAgencyClient) Submit(ctx context.Context, s Submission) (*SubmissionReceipt, error) {
	var out SubmissionReceipt
	if err := c.http.PostJSON(ctx, c.baseURL+"/submit", s, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPAgencyClient) Health(ctx context.Context) error {
	return c.http.GetJSON(ctx, c.baseURL+"/health", nil)
}
