package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// UserRole drives authorization and quota checks
type UserRole string

const (
	UserRoleAdmin UserRole = "admin"
	UserRoleUser  UserRole = "user"
	UserRoleGuest UserRole = "guest"
)

// User represents an account known to the platform. User rows are created
// by the authentication layer; the core only reads them.
type User struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Role      UserRole  `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// AppSpec is the validated, canonical form of an application description.
// It is a value object owned by the Execution that embeds it; the validator
// in pkg/zapp is its sole producer.
type AppSpec struct {
	Name           string         `json:"name"`
	Version        int            `json:"version"`
	WillEnd        bool           `json:"will_end"`
	Priority       int            `json:"priority"`
	RequiresBinary bool           `json:"requires_binary"`
	Services       []*ServiceSpec `json:"services"`
}

// TotalMemory returns the sum of the memory reservations of all services.
func (a *AppSpec) TotalMemory() int64 {
	var total int64
	for _, s := range a.Services {
		total += s.RequiredResources.Memory
	}
	return total
}

// ContainerCount returns the number of containers this application needs.
func (a *AppSpec) ContainerCount() int {
	return len(a.Services)
}

// ServiceSpec describes one containerized service of an application
type ServiceSpec struct {
	Name              string        `json:"name"`
	Image             string        `json:"image"`
	Monitor           bool          `json:"monitor"`
	RequiredResources Resources     `json:"required_resources"`
	Environment       []EnvVar      `json:"environment"`
	Command           string        `json:"command,omitempty"`
	Ports             []*Endpoint   `json:"ports"`
	Volumes           []*VolumeBind `json:"volumes,omitempty"`
}

// Resources holds the resource reservation of a single service
type Resources struct {
	Memory int64 `json:"memory"` // Bytes
}

// EnvVar is an ordered (name, value) environment variable pair. On the wire
// it is a two-element JSON array, matching the description format.
type EnvVar struct {
	Name  string
	Value string
}

// MarshalJSON encodes the pair as ["NAME", "value"].
func (e EnvVar) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{e.Name, e.Value})
}

// UnmarshalJSON decodes a ["NAME", "value"] pair.
func (e *EnvVar) UnmarshalJSON(data []byte) error {
	var pair []string
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("environment variable must be a [name, value] pair, got %d elements", len(pair))
	}
	e.Name, e.Value = pair[0], pair[1]
	return nil
}

// VolumeBind mounts a host path into the container
type VolumeBind struct {
	HostPath      string `json:"host_path"`
	ContainerPath string `json:"container_path"`
	ReadOnly      bool   `json:"read_only"`
}

// Endpoint describes a network port exposed by a service
type Endpoint struct {
	Name           string `json:"name"`
	Protocol       string `json:"protocol"`
	PortNumber     int    `json:"port_number"`
	Path           string `json:"path,omitempty"`
	IsMainEndpoint bool   `json:"is_main_endpoint"`
}

// URL renders the endpoint as a user-facing URL for the given address.
func (e *Endpoint) URL(address string) string {
	return fmt.Sprintf("%s://%s:%d%s", e.Protocol, address, e.PortNumber, e.Path)
}

// ExecutionStatus is the life-cycle state of an execution
type ExecutionStatus string

const (
	ExecutionSubmitted  ExecutionStatus = "submitted"
	ExecutionScheduled  ExecutionStatus = "scheduled"
	ExecutionStarting   ExecutionStatus = "starting"
	ExecutionRunning    ExecutionStatus = "running"
	ExecutionCleaningUp ExecutionStatus = "cleaning up"
	ExecutionTerminated ExecutionStatus = "terminated"
	ExecutionError      ExecutionStatus = "error"
)

// Execution is a single run of an application by a specific user
type Execution struct {
	ID           int             `json:"id"`
	Name         string          `json:"name"`
	UserID       int             `json:"user_id"`
	Description  *AppSpec        `json:"description"`
	Status       ExecutionStatus `json:"status"`
	ErrorMessage string          `json:"error_message,omitempty"`
	TimeSubmit   time.Time       `json:"time_submit"`
	TimeStart    *time.Time      `json:"time_start,omitempty"`
	TimeEnd      *time.Time      `json:"time_end,omitempty"`
	Services     []*Service      `json:"services"`
}

// IsActive reports whether the execution is in a non-terminal state.
func (e *Execution) IsActive() bool {
	switch e.Status {
	case ExecutionSubmitted, ExecutionScheduled, ExecutionStarting,
		ExecutionRunning, ExecutionCleaningUp:
		return true
	}
	return false
}

// ServiceStatus is the platform-side state of a service instance
type ServiceStatus string

const (
	ServiceInactive    ServiceStatus = "inactive"
	ServiceActive      ServiceStatus = "active"
	ServiceTerminating ServiceStatus = "terminating"
)

// ClusterStatus is the container-side state of a service instance, as last
// reported by the cluster driver
type ClusterStatus string

const (
	ClusterStatusUndefined ClusterStatus = "undefined"
	ClusterStatusCreated   ClusterStatus = "created"
	ClusterStatusStarted   ClusterStatus = "started"
	ClusterStatusDying     ClusterStatus = "dying"
	ClusterStatusDied      ClusterStatus = "died"
	ClusterStatusDestroyed ClusterStatus = "destroyed"
)

// Service is the runtime instance of a ServiceSpec inside an execution.
// ClusterID is set iff the service has ever been spawned on the cluster and
// is cleared again when the container is destroyed.
type Service struct {
	ID            int           `json:"id"`
	ExecutionID   int           `json:"execution_id"`
	UserID        int           `json:"user_id"`
	Name          string        `json:"name"`
	Description   *ServiceSpec  `json:"description"`
	ClusterID     string        `json:"cluster_id,omitempty"`
	IPAddress     string        `json:"ip_address,omitempty"`
	Status        ServiceStatus `json:"status"`
	ClusterStatus ClusterStatus `json:"cluster_status"`
}

// ContainerName builds the cluster-side container name for a service.
// The name embeds the execution and the deployment so that containers from
// different deployments sharing a cluster cannot collide.
func ContainerName(executionName, serviceName, deploymentName string) string {
	return strings.Join([]string{executionName, serviceName, deploymentName}, "-")
}

// PlatformStats is a point-in-time snapshot of cluster-wide resources as
// reported by the cluster driver
type PlatformStats struct {
	ContainerCount    int      `json:"container_count"`
	ImageCount        int      `json:"image_count"`
	MemoryTotal       int64    `json:"memory_total"`
	CoresTotal        int      `json:"cores_total"`
	PlacementStrategy string   `json:"placement_strategy"`
	ActiveFilters     []string `json:"active_filters"`
}

// SchedulerStats reports the internal state of the scheduler
type SchedulerStats struct {
	QueueLength             int `json:"queue_length"`
	TerminationThreadsCount int `json:"termination_threads_count"`
}
