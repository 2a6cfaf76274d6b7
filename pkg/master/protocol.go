package master

import (
	"github.com/zoe-analytics/zoe/pkg/types"
)

// Commands carried by the front-end to master channel.
const (
	CmdExecutionStart     = "execution_start"
	CmdExecutionTerminate = "execution_terminate"
	CmdExecutionDelete    = "execution_delete"
	CmdSchedulerStats     = "scheduler_statistics"
)

// Request is one message on the channel. ExecutionID is meaningful for the
// three execution commands and ignored for scheduler_statistics.
type Request struct {
	Command     string `json:"command"`
	ExecutionID int    `json:"execution_id,omitempty"`
}

// Reply is the answer to a Request. Data is only populated for
// scheduler_statistics.
type Reply struct {
	Success bool                  `json:"success"`
	Message string                `json:"message"`
	Data    *types.SchedulerStats `json:"data,omitempty"`
}
