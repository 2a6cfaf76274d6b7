package cluster

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/zoe-analytics/zoe/pkg/types"
)

// FakeDriver is an in-memory Driver used by tests and by local development
// without a containerd daemon. Spawn failures can be injected through
// SpawnErrors; each injected error is consumed by one Spawn call.
type FakeDriver struct {
	mu          sync.Mutex
	Stats       types.PlatformStats
	SpawnErrors []error
	containers  map[string]*ContainerInfo
	LogLines    []string
	nextIP      int
	spawnCount  int
	spawnNames  []string
}

// NewFakeDriver returns a fake cluster with the given capacity.
func NewFakeDriver(memoryTotal int64, coresTotal int) *FakeDriver {
	return &FakeDriver{
		Stats: types.PlatformStats{
			MemoryTotal:       memoryTotal,
			CoresTotal:        coresTotal,
			PlacementStrategy: "fake",
			ActiveFilters:     []string{},
		},
		containers: make(map[string]*ContainerInfo),
	}
}

func (d *FakeDriver) Info(ctx context.Context) (*types.PlatformStats, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	stats := d.Stats
	stats.ContainerCount = len(d.containers)
	return &stats, nil
}

func (d *FakeDriver) Spawn(ctx context.Context, image string, opts *SpawnOptions) (*ContainerInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.spawnCount++
	d.spawnNames = append(d.spawnNames, opts.Name)
	if len(d.SpawnErrors) > 0 {
		err := d.SpawnErrors[0]
		d.SpawnErrors = d.SpawnErrors[1:]
		if err != nil {
			return nil, err
		}
	}

	d.nextIP++
	info := &ContainerInfo{
		ClusterID: "fake-" + opts.Name,
		IPAddress: fmt.Sprintf("10.0.0.%d", d.nextIP),
		Status:    types.ClusterStatusStarted,
	}
	d.containers[info.ClusterID] = info
	return info, nil
}

func (d *FakeDriver) Inspect(ctx context.Context, clusterID string) (*ContainerInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	info, ok := d.containers[clusterID]
	if !ok {
		return &ContainerInfo{ClusterID: clusterID, Status: types.ClusterStatusDestroyed}, nil
	}
	cp := *info
	return &cp, nil
}

func (d *FakeDriver) Terminate(ctx context.Context, clusterID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.containers, clusterID)
	return nil
}

func (d *FakeDriver) Logs(ctx context.Context, clusterID string, follow bool) (LogStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.containers[clusterID]; !ok {
		return nil, &FatalError{Op: "logs", Err: fmt.Errorf("no log for container %s", clusterID)}
	}
	return &sliceLogStream{lines: d.LogLines}, nil
}

func (d *FakeDriver) Close() error { return nil }

// SpawnCount reports how many Spawn calls the fake has seen.
func (d *FakeDriver) SpawnCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.spawnCount
}

// SpawnOrder reports the container names of every Spawn attempt, in order.
func (d *FakeDriver) SpawnOrder() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.spawnNames...)
}

// RunningContainers reports how many containers are currently up.
func (d *FakeDriver) RunningContainers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.containers)
}

// MarkDied flips a container to the died state, simulating a crash.
func (d *FakeDriver) MarkDied(clusterID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if info, ok := d.containers[clusterID]; ok {
		info.Status = types.ClusterStatusDied
	}
}

type sliceLogStream struct {
	lines []string
	pos   int
}

func (s *sliceLogStream) Next() (*LogLine, error) {
	if s.pos >= len(s.lines) {
		return nil, io.EOF
	}
	line := s.lines[s.pos]
	s.pos++
	return &LogLine{Line: line}, nil
}

func (s *sliceLogStream) Close() error { return nil }
