package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/kazz187/twinagents/internal/executor"
	"github.com/kazz187/twinagents/internal/plan"
	"github.com/kazz187/twinagents/pkg/cerr"
	"github.com/kazz187/twinagents/pkg/channel"
)

// ErrPlanRejected is returned when the planner answers a plan request with status "error".
var ErrPlanRejected = errors.New("plan rejected")

// PlanResult is the planner's answer to a plan request.
type PlanResult struct {
	Status      string `json:"status"`
	PlanID      string `json:"plan_id"`
	Firestore   string `json:"firestore"`
	PublishedTo string `json:"published_to"`
	Timestamp   string `json:"timestamp"`
	Message     string `json:"message,omitempty"`
}

type baseClient struct {
	baseURL string
	http    *http.Client
}

func newBaseClient(baseURL string, httpClient *http.Client) baseClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return baseClient{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// do sends body (nil for none) and decodes a 200 response into out. Error bodies written by
// the servers' cerr middleware come back as *cerr.Error.
func (c baseClient) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var e struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &e) == nil && e.Code != "" {
			return cerr.NewError(cerr.ParseCode(e.Code), e.Message, fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode))
		}
		return fmt.Errorf("%s %s: unexpected status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(data))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Health fetches the /health body.
func (c baseClient) Health(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	if err := c.do(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PlannerClient talks to the planner service.
type PlannerClient struct {
	baseClient
}

// NewPlannerClient creates a new planner client. A nil httpClient uses http.DefaultClient.
func NewPlannerClient(baseURL string, httpClient *http.Client) *PlannerClient {
	return &PlannerClient{baseClient: newBaseClient(baseURL, httpClient)}
}

// CreatePlan submits free text. A rejected request returns the result along with ErrPlanRejected.
func (c *PlannerClient) CreatePlan(ctx context.Context, text string) (*PlanResult, error) {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	var res PlanResult
	if err := c.do(ctx, http.MethodPost, "/plan", body, &res); err != nil {
		return nil, fmt.Errorf("failed to create plan: %w", err)
	}
	if res.Status == "error" {
		return &res, fmt.Errorf("%w: %s", ErrPlanRejected, res.Message)
	}
	return &res, nil
}

// GetPlan fetches a stored plan record.
func (c *PlannerClient) GetPlan(ctx context.Context, planID string) (plan.Document, error) {
	var doc plan.Document
	if err := c.do(ctx, http.MethodGet, "/plans/"+url.PathEscape(planID), nil, &doc); err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	return doc, nil
}

// ListPlans lists stored plans, newest first. limit <= 0 uses the server default.
func (c *PlannerClient) ListPlans(ctx context.Context, limit int) ([]plan.Document, error) {
	path := "/plans"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out struct {
		Plans []plan.Document `json:"plans"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	return out.Plans, nil
}

// ExecutorClient talks to the executor service.
type ExecutorClient struct {
	baseClient
}

// NewExecutorClient creates a new executor client. A nil httpClient uses http.DefaultClient.
func NewExecutorClient(baseURL string, httpClient *http.Client) *ExecutorClient {
	return &ExecutorClient{baseClient: newBaseClient(baseURL, httpClient)}
}

// RunTask posts a plan document as-is.
func (c *ExecutorClient) RunTask(ctx context.Context, planJSON []byte) (*executor.Report, error) {
	var report executor.Report
	if err := c.do(ctx, http.MethodPost, "/run-task", planJSON, &report); err != nil {
		return nil, fmt.Errorf("failed to run task: %w", err)
	}
	return &report, nil
}

// RunTaskPushed posts planJSON wrapped in a push envelope, the way a push subscription would.
func (c *ExecutorClient) RunTaskPushed(ctx context.Context, subscription string, planJSON []byte) (*executor.Report, error) {
	body, err := json.Marshal(channel.NewPushEnvelope(subscription, channel.Message{Data: planJSON}))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal push envelope: %w", err)
	}
	return c.RunTask(ctx, body)
}
