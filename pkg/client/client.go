package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/zoe-analytics/zoe/pkg/types"
)

// APIError is a non-2xx answer from the Zoe API, carrying the server's
// message and the HTTP status.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("zoe api error (HTTP %d): %s", e.StatusCode, e.Message)
}

// InfoResponse is the answer of GET /api/info.
type InfoResponse struct {
	Version                  string `json:"version"`
	APIVersion               string `json:"api_version"`
	ApplicationFormatVersion int    `json:"application_format_version"`
	DeploymentName           string `json:"deployment_name"`
}

// Client talks to the Zoe REST API with HTTP Basic credentials.
type Client struct {
	baseURL  string
	username string
	password string
	http     *http.Client
}

// NewClient creates an API client. baseURL is the front-end root, without
// the /api prefix.
func NewClient(baseURL, username, password string) *Client {
	return &Client{
		baseURL:  baseURL,
		username: username,
		password: password,
		http:     &http.Client{Timeout: 5 * time.Minute},
	}
}

// Info retrieves deployment information. It needs no credentials but sends
// them when present.
func (c *Client) Info() (*InfoResponse, error) {
	var info InfoResponse
	if err := c.get("/api/info", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// ExecutionStart submits a named application description and returns the
// new execution id.
func (c *Client) ExecutionStart(name string, description json.RawMessage) (int, error) {
	body, err := json.Marshal(map[string]interface{}{
		"name":        name,
		"application": description,
	})
	if err != nil {
		return 0, err
	}

	var created struct {
		ExecutionID int `json:"execution_id"`
	}
	if err := c.do(http.MethodPost, "/api/execution", body, &created); err != nil {
		return 0, err
	}
	return created.ExecutionID, nil
}

// ExecutionList retrieves the executions visible to the caller.
func (c *Client) ExecutionList() ([]*types.Execution, error) {
	var executions []*types.Execution
	if err := c.get("/api/execution", &executions); err != nil {
		return nil, err
	}
	return executions, nil
}

// ExecutionGet retrieves one execution with its services.
func (c *Client) ExecutionGet(id int) (*types.Execution, error) {
	var execution types.Execution
	if err := c.get(fmt.Sprintf("/api/execution/%d", id), &execution); err != nil {
		return nil, err
	}
	return &execution, nil
}

// ExecutionTerminate stops an active execution.
func (c *Client) ExecutionTerminate(id int) error {
	return c.do(http.MethodDelete, fmt.Sprintf("/api/execution/%d", id), nil, nil)
}

// ExecutionDelete removes an execution permanently, terminating it first
// if needed.
func (c *Client) ExecutionDelete(id int) error {
	return c.do(http.MethodDelete, fmt.Sprintf("/api/execution/delete/%d", id), nil, nil)
}

// ServiceGet retrieves one service.
func (c *Client) ServiceGet(id int) (*types.Service, error) {
	var service types.Service
	if err := c.get(fmt.Sprintf("/api/service/%d", id), &service); err != nil {
		return nil, err
	}
	return &service, nil
}

// ServiceList retrieves the services visible to the caller. With a
// non-zero executionID only that execution's services are returned.
func (c *Client) ServiceList(executionID int) ([]*types.Service, error) {
	path := "/api/service"
	if executionID != 0 {
		path = fmt.Sprintf("/api/service?execution_id=%d", executionID)
	}
	var services []*types.Service
	if err := c.get(path, &services); err != nil {
		return nil, err
	}
	return services, nil
}

// ServiceLogs opens the log of a service's container. With follow the
// stream stays open while the container runs. The caller closes the body.
func (c *Client) ServiceLogs(id int, follow bool) (io.ReadCloser, error) {
	stream := "0"
	if follow {
		stream = "1"
	}
	req, err := c.newRequest(http.MethodGet, fmt.Sprintf("/api/service/%d/logs?stream=%s", id, stream), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, apiError(resp)
	}
	return resp.Body, nil
}

// SchedulerStatistics retrieves the scheduler queue state.
func (c *Client) SchedulerStatistics() (*types.SchedulerStats, error) {
	var stats types.SchedulerStats
	if err := c.get("/api/statistics/scheduler", &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (c *Client) get(path string, out interface{}) error {
	return c.do(http.MethodGet, path, nil, out)
}

func (c *Client) do(method, path string, body []byte, out interface{}) error {
	req, err := c.newRequest(method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apiError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) newRequest(method, path string, body []byte) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	return req, nil
}

func apiError(resp *http.Response) error {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Message == "" {
		body.Message = http.StatusText(resp.StatusCode)
	}
	return &APIError{StatusCode: resp.StatusCode, Message: body.Message}
}
