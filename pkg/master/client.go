package master

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/zoe-analytics/zoe/pkg/types"
)

// ErrUnavailable wraps every transport failure on the channel: the master
// is down or unreachable. Callers leave submitted executions where they are
// and let the background resubmitter retry.
var ErrUnavailable = errors.New("master is unavailable")

// CommandError is a channel reply with success = false.
type CommandError struct {
	Message string
}

func (e *CommandError) Error() string { return e.Message }

// Client is the front-end side of the master channel.
type Client struct {
	url  string
	http *http.Client
}

// NewClient creates a channel client for the master at url.
func NewClient(url string) *Client {
	return &Client{
		url:  url,
		http: &http.Client{Timeout: 5 * time.Minute},
	}
}

// ExecutionStart asks the master to schedule a submitted execution.
func (c *Client) ExecutionStart(id int) error {
	_, err := c.call(&Request{Command: CmdExecutionStart, ExecutionID: id})
	return err
}

// ExecutionTerminate asks the master to terminate an active execution.
func (c *Client) ExecutionTerminate(id int) error {
	_, err := c.call(&Request{Command: CmdExecutionTerminate, ExecutionID: id})
	return err
}

// ExecutionDelete asks the master to remove an execution, terminating it
// first if it is still active. The call returns only when the row is gone.
func (c *Client) ExecutionDelete(id int) error {
	_, err := c.call(&Request{Command: CmdExecutionDelete, ExecutionID: id})
	return err
}

// SchedulerStatistics reports the master's queue state.
func (c *Client) SchedulerStatistics() (*types.SchedulerStats, error) {
	reply, err := c.call(&Request{Command: CmdSchedulerStats})
	if err != nil {
		return nil, err
	}
	if reply.Data == nil {
		return nil, &CommandError{Message: "empty statistics reply"}
	}
	return reply.Data, nil
}

func (c *Client) call(req *Request) (*Reply, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Post(c.url, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	var reply Reply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, fmt.Errorf("%w: bad reply: %v", ErrUnavailable, err)
	}
	if !reply.Success {
		return nil, &CommandError{Message: reply.Message}
	}
	return &reply, nil
}
