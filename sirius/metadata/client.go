// Package metadata resolves uploaded file and tool records from the dashboard
// service.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/SiriusScan/go-ingest/sirius"
	"github.com/SiriusScan/go-ingest/sirius/metrics"
)

// DefaultTimeout bounds every metadata request.
const DefaultTimeout = 2 * time.Minute

const serviceName = "dashboard"

// FileInfo is the dashboard's record of an uploaded file.
type FileInfo struct {
	ID       uint   `json:"id"`
	Filename string `json:"filename"`
	FilePath string `json:"file_path"`
	ToolID   uint   `json:"tool_id"`
	Status   string `json:"status"`
	MD5Hash  string `json:"md5_hash,omitempty"`
}

// ToolInfo is the dashboard's record of a security tool.
type ToolInfo struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// Descriptor converts the record for parser selection.
func (t ToolInfo) Descriptor() sirius.ToolDescriptor {
	return sirius.ToolDescriptor{ID: t.ID, Name: t.Name, Type: t.Type}
}

// ExternalServiceError is a timeout or non-success response from the
// dashboard. Callers do not retry it.
type ExternalServiceError struct {
	Service    string
	Op         string
	StatusCode int
	Timeout    bool
	Err        error
}

func (e *ExternalServiceError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("%s %s: request timed out: %v", e.Service, e.Op, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s %s: unexpected status %d", e.Service, e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: %v", e.Service, e.Op, e.Err)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}

// Client talks to the dashboard API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	metrics    *metrics.Recorder
}

// NewClient creates a Client. A zero timeout uses DefaultTimeout.
func NewClient(baseURL string, timeout time.Duration, m *metrics.Recorder) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		metrics:    m,
	}
}

// GetFile fetches GET /api/dashboard/files/{id}.
func (c *Client) GetFile(ctx context.Context, id uint, token string) (*FileInfo, error) {
	var info FileInfo
	if err := c.get(ctx, "get_file", fmt.Sprintf("/api/dashboard/files/%d", id), token, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetTool fetches GET /api/dashboard/tools/{id}.
func (c *Client) GetTool(ctx context.Context, id uint, token string) (*ToolInfo, error) {
	var info ToolInfo
	if err := c.get(ctx, "get_tool", fmt.Sprintf("/api/dashboard/tools/%d", id), token, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) get(ctx context.Context, op, path, token string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return &ExternalServiceError{Service: serviceName, Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ExternalCall(serviceName, "error")
		return &ExternalServiceError{Service: serviceName, Op: op, Timeout: isTimeout(err), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		c.metrics.ExternalCall(serviceName, "status_"+strconv.Itoa(resp.StatusCode))
		return &ExternalServiceError{Service: serviceName, Op: op, StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.metrics.ExternalCall(serviceName, "decode_error")
		return &ExternalServiceError{
			Service: serviceName, Op: op, Timeout: isTimeout(err),
			Err: fmt.Errorf("failed to decode response: %w", err),
		}
	}
	c.metrics.ExternalCall(serviceName, "ok")
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Timeout()
	}
	return false
}
