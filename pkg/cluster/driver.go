package cluster

import (
	"context"
	"errors"
	"fmt"

	"github.com/zoe-analytics/zoe/pkg/types"
)

// SpawnOptions carries everything the driver needs to create and start one
// container besides the image reference.
type SpawnOptions struct {
	Name        string
	Environment []types.EnvVar
	VolumeBinds []*types.VolumeBind
	MemoryLimit int64
	Command     string
	Network     string
}

// ContainerInfo is what the platform reports about a single container
type ContainerInfo struct {
	ClusterID string
	IPAddress string
	Status    types.ClusterStatus
}

// LogLine is one line of container output. Timestamp is zero when the
// platform does not record per-line timestamps.
type LogLine struct {
	Timestamp string
	Line      string
}

// LogStream iterates over container output. Next returns io.EOF when the
// log is exhausted; in follow mode that only happens once the container is
// gone.
type LogStream interface {
	Next() (*LogLine, error)
	Close() error
}

// Driver is the narrow, synchronous facade over the container platform.
// Implementations classify every failure as either transient or fatal; the
// layers above never see platform-specific errors.
type Driver interface {
	// Info reports cluster-wide statistics.
	Info(ctx context.Context) (*types.PlatformStats, error)

	// Spawn creates and starts a container, returning its opaque cluster
	// id and address.
	Spawn(ctx context.Context, image string, opts *SpawnOptions) (*ContainerInfo, error)

	// Inspect reports the current state of a container.
	Inspect(ctx context.Context, clusterID string) (*ContainerInfo, error)

	// Terminate stops and removes a container. Terminating a container
	// that does not exist is a success.
	Terminate(ctx context.Context, clusterID string) error

	// Logs returns the container output. With follow set the stream
	// blocks for new lines until the container dies or the caller closes
	// the stream.
	Logs(ctx context.Context, clusterID string, follow bool) (LogStream, error)

	// Close releases the connection to the platform.
	Close() error
}

// TransientError marks a platform failure worth retrying: an overloaded
// cluster, a connection reset, an image pull timeout.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient cluster error during %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// FatalError marks a platform failure that will not go away by itself: a
// missing image, a malformed request, a resource ask the cluster can never
// satisfy.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal cluster error during %s: %v", e.Op, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a transient cluster error.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsFatal reports whether err is a fatal cluster error.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
