package simulate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"

	service "github.com/okian/elorank/internal/app"
	"github.com/okian/elorank/internal/domain/model"
	"github.com/okian/elorank/internal/domain/types"
)

// Engine is the rating service a simulation drives.
type Engine interface {
	RegisterItems(ctx context.Context, collection string, items []string) (int, error)
	NextMatchup(ctx context.Context, collection string) (model.Matchup, bool, error)
	Submit(ctx context.Context, j model.Judgment) error
	Convergence(ctx context.Context, collection string) (float64, error)
	Standings(ctx context.Context, collection string) ([]types.Standing, error)
}

// Exporter saves a collection's standings and reports where they went.
type Exporter interface {
	Export(ctx context.Context, collection string) (string, error)
}

// ExportAll exports every collection of a report.
func ExportAll(ctx context.Context, e Exporter, report Report) ([]string, error) {
	paths := make([]string, 0, len(report.Collections))
	for _, c := range report.Collections {
		path, err := e.Export(ctx, c.Collection)
		if err != nil {
			return paths, fmt.Errorf("export %s: %w", c.Collection, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// InProcess drives a service in the same process.
type InProcess struct {
	svc       *service.Service
	exportDir string
}

// InProcessOption configures an InProcess engine.
type InProcessOption func(*InProcess)

// WithExportDir sets where Export writes; the default is the working directory.
func WithExportDir(dir string) InProcessOption {
	return func(e *InProcess) { e.exportDir = dir }
}

// NewInProcess wraps a started service.
func NewInProcess(svc *service.Service, opts ...InProcessOption) *InProcess {
	e := &InProcess{svc: svc}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Export writes the collection's standings to <dir>/<collection>.json.
func (e *InProcess) Export(ctx context.Context, collection string) (string, error) {
	path := filepath.Join(e.exportDir, url.PathEscape(collection)+".json")
	if _, err := e.svc.Export(ctx, collection, path); err != nil {
		return "", err
	}
	return path, nil
}

// RegisterItems implements Engine.
func (e *InProcess) RegisterItems(ctx context.Context, collection string, items []string) (int, error) {
	return e.svc.RegisterItems(ctx, collection, items)
}

// NextMatchup implements Engine.
func (e *InProcess) NextMatchup(ctx context.Context, collection string) (model.Matchup, bool, error) {
	return e.svc.NextMatchup(ctx, collection)
}

// Submit implements Engine. Replays count as success.
func (e *InProcess) Submit(ctx context.Context, j model.Judgment) error {
	_, err := e.svc.Judge(ctx, j)
	if errors.Is(err, service.ErrDuplicateJudgment) {
		return nil
	}
	return err
}

// Convergence implements Engine.
func (e *InProcess) Convergence(ctx context.Context, collection string) (float64, error) {
	return e.svc.Convergence(ctx, collection)
}

// Standings implements Engine.
func (e *InProcess) Standings(ctx context.Context, collection string) ([]types.Standing, error) {
	return e.svc.Standings(ctx, collection, 0)
}

// HTTPClient drives a running service over its HTTP API.
type HTTPClient struct {
	client  *http.Client
	baseURL string
}

// NewHTTPClient creates a client for the service at baseURL.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// CheckHealth verifies the service is running.
func (c *HTTPClient) CheckHealth(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil, http.StatusOK)
}

func (c *HTTPClient) collectionPath(collection, suffix string) string {
	return "/collections/" + url.PathEscape(collection) + suffix
}

// RegisterItems implements Engine.
func (c *HTTPClient) RegisterItems(ctx context.Context, collection string, items []string) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	err := c.do(ctx, http.MethodPut, c.collectionPath(collection, "/items"),
		map[string][]string{"items": items}, &out, http.StatusOK)
	return out.Count, err
}

// NextMatchup implements Engine.
func (c *HTTPClient) NextMatchup(ctx context.Context, collection string) (model.Matchup, bool, error) {
	var m model.Matchup
	status, err := c.request(ctx, http.MethodGet, c.collectionPath(collection, "/matchup"), nil, &m)
	if err != nil {
		return model.Matchup{}, false, err
	}
	switch status {
	case http.StatusOK:
		return m, true, nil
	case http.StatusNoContent:
		return model.Matchup{}, false, nil
	default:
		return model.Matchup{}, false, fmt.Errorf("%w: %d", ErrUnexpectedStatus, status)
	}
}

// Submit implements Engine.
func (c *HTTPClient) Submit(ctx context.Context, j model.Judgment) error {
	body := map[string]string{
		"judgment_id": j.ID,
		"baseline":    j.Baseline,
		"candidate":   j.Candidate,
		"outcome":     string(j.Outcome),
	}
	return c.do(ctx, http.MethodPost, c.collectionPath(j.Collection, "/judgments"), body, nil, http.StatusOK)
}

// Export asks the service to save the collection to its export directory.
func (c *HTTPClient) Export(ctx context.Context, collection string) (string, error) {
	var out struct {
		Path string `json:"path"`
	}
	err := c.do(ctx, http.MethodPost, c.collectionPath(collection, "/export"), nil, &out, http.StatusOK)
	return out.Path, err
}

// Convergence implements Engine.
func (c *HTTPClient) Convergence(ctx context.Context, collection string) (float64, error) {
	var out struct {
		Convergence float64 `json:"convergence"`
	}
	err := c.do(ctx, http.MethodGet, c.collectionPath(collection, "/convergence"), nil, &out, http.StatusOK)
	return out.Convergence, err
}

// Standings implements Engine.
func (c *HTTPClient) Standings(ctx context.Context, collection string) ([]types.Standing, error) {
	var out struct {
		Standings []types.Standing `json:"standings"`
	}
	err := c.do(ctx, http.MethodGet, c.collectionPath(collection, "/standings"), nil, &out, http.StatusOK)
	return out.Standings, err
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any, want int) error {
	status, err := c.request(ctx, method, path, in, out)
	if err != nil {
		return err
	}
	if status != want {
		return fmt.Errorf("%w: %s %s: %d", ErrUnexpectedStatus, method, path, status)
	}
	return nil
}

// request sends in as JSON and decodes a 2xx body into out.
func (c *HTTPClient) request(ctx context.Context, method, path string, in, out any) (int, error) {
	var body io.Reader = http.NoBody
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	if out != nil && resp.StatusCode >= 200 && resp.StatusCode < 300 && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
