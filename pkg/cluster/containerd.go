package cluster

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/errdefs"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"
	specs "github.com/opencontainers/runtime-spec/specs-go"
	"golang.org/x/sys/unix"

	"github.com/zoe-analytics/zoe/pkg/log"
	"github.com/zoe-analytics/zoe/pkg/types"
)

const (
	// DefaultNamespace is the containerd namespace for Zoe containers
	DefaultNamespace = "zoe"

	// DefaultSocketPath is the default containerd socket
	DefaultSocketPath = "/run/containerd/containerd.sock"

	stopTimeout = 10 * time.Second
)

// ContainerdDriver implements Driver against a containerd daemon
type ContainerdDriver struct {
	client    *containerd.Client
	namespace string
	address   string
	logDir    string
}

// ContainerdConfig configures the driver
type ContainerdConfig struct {
	// SocketPath is the containerd socket, DefaultSocketPath when empty
	SocketPath string
	// Namespace isolates Zoe containers from other containerd users
	Namespace string
	// Address is the node address reported as the container IP. With a
	// single containerd node all containers share the node's address.
	Address string
	// LogDir is where container output files are written
	LogDir string
}

// NewContainerdDriver connects to containerd and prepares the log directory.
func NewContainerdDriver(cfg ContainerdConfig) (*ContainerdDriver, error) {
	socket := cfg.SocketPath
	if socket == "" {
		socket = DefaultSocketPath
	}
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = DefaultNamespace
	}

	client, err := containerd.New(socket)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to containerd: %w", err)
	}

	if err := os.MkdirAll(cfg.LogDir, 0750); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	return &ContainerdDriver{
		client:    client,
		namespace: namespace,
		address:   cfg.Address,
		logDir:    cfg.LogDir,
	}, nil
}

// Close closes the containerd client connection
func (d *ContainerdDriver) Close() error {
	if d.client != nil {
		return d.client.Close()
	}
	return nil
}

// Info reports cluster-wide statistics
func (d *ContainerdDriver) Info(ctx context.Context) (*types.PlatformStats, error) {
	ctx = namespaces.WithNamespace(ctx, d.namespace)

	containers, err := d.client.Containers(ctx)
	if err != nil {
		return nil, classify("info", err)
	}
	images, err := d.client.ImageService().List(ctx)
	if err != nil {
		return nil, classify("info", err)
	}

	var si unix.Sysinfo_t
	if err := unix.Sysinfo(&si); err != nil {
		return nil, fmt.Errorf("failed to read system info: %w", err)
	}

	return &types.PlatformStats{
		ContainerCount:    len(containers),
		ImageCount:        len(images),
		MemoryTotal:       int64(si.Totalram) * int64(si.Unit),
		CoresTotal:        runtime.NumCPU(),
		PlacementStrategy: "local",
		ActiveFilters:     []string{},
	}, nil
}

// Spawn pulls the image if needed, then creates and starts the container.
func (d *ContainerdDriver) Spawn(ctx context.Context, image string, opts *SpawnOptions) (*ContainerInfo, error) {
	ctx = namespaces.WithNamespace(ctx, d.namespace)

	img, err := d.client.Pull(ctx, image, containerd.WithPullUnpack)
	if err != nil {
		return nil, classify("image pull", err)
	}

	env := make([]string, 0, len(opts.Environment))
	for _, e := range opts.Environment {
		env = append(env, e.Name+"="+e.Value)
	}

	specOpts := []oci.SpecOpts{
		oci.WithImageConfig(img),
		oci.WithEnv(env),
		oci.WithHostNamespace(specs.NetworkNamespace),
		oci.WithHostHostsFile,
		oci.WithHostResolvconf,
	}
	if opts.MemoryLimit > 0 {
		specOpts = append(specOpts, oci.WithMemoryLimit(uint64(opts.MemoryLimit)))
	}
	if opts.Command != "" {
		specOpts = append(specOpts, oci.WithProcessArgs(strings.Fields(opts.Command)...))
	}
	if len(opts.VolumeBinds) > 0 {
		mounts := make([]specs.Mount, 0, len(opts.VolumeBinds))
		for _, vb := range opts.VolumeBinds {
			mountOpts := []string{"rbind"}
			if vb.ReadOnly {
				mountOpts = append(mountOpts, "ro")
			} else {
				mountOpts = append(mountOpts, "rw")
			}
			mounts = append(mounts, specs.Mount{
				Source:      vb.HostPath,
				Destination: vb.ContainerPath,
				Type:        "bind",
				Options:     mountOpts,
			})
		}
		specOpts = append(specOpts, oci.WithMounts(mounts))
	}

	container, err := d.client.NewContainer(
		ctx,
		opts.Name,
		containerd.WithImage(img),
		containerd.WithNewSnapshot(opts.Name+"-snapshot", img),
		containerd.WithNewSpec(specOpts...),
	)
	if err != nil {
		return nil, classify("container create", err)
	}

	task, err := container.NewTask(ctx, cio.LogFile(d.logPath(opts.Name)))
	if err != nil {
		d.cleanupContainer(ctx, container)
		return nil, classify("task create", err)
	}
	if err := task.Start(ctx); err != nil {
		_, _ = task.Delete(ctx, containerd.WithProcessKill)
		d.cleanupContainer(ctx, container)
		return nil, classify("task start", err)
	}

	return &ContainerInfo{
		ClusterID: container.ID(),
		IPAddress: d.address,
		Status:    types.ClusterStatusStarted,
	}, nil
}

// Inspect reports the current state of a container
func (d *ContainerdDriver) Inspect(ctx context.Context, clusterID string) (*ContainerInfo, error) {
	ctx = namespaces.WithNamespace(ctx, d.namespace)

	container, err := d.client.LoadContainer(ctx, clusterID)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return &ContainerInfo{ClusterID: clusterID, Status: types.ClusterStatusDestroyed}, nil
		}
		return nil, classify("inspect", err)
	}

	info := &ContainerInfo{ClusterID: clusterID, IPAddress: d.address}

	task, err := container.Task(ctx, nil)
	if err != nil {
		// A container without a task was created but never started
		info.Status = types.ClusterStatusCreated
		return info, nil
	}

	status, err := task.Status(ctx)
	if err != nil {
		return nil, classify("inspect", err)
	}
	switch status.Status {
	case containerd.Created:
		info.Status = types.ClusterStatusCreated
	case containerd.Running, containerd.Paused, containerd.Pausing:
		info.Status = types.ClusterStatusStarted
	case containerd.Stopped:
		info.Status = types.ClusterStatusDied
	default:
		info.Status = types.ClusterStatusUndefined
	}
	return info, nil
}

// Terminate stops and removes a container. Terminating a container that is
// already gone is a success.
func (d *ContainerdDriver) Terminate(ctx context.Context, clusterID string) error {
	ctx = namespaces.WithNamespace(ctx, d.namespace)

	container, err := d.client.LoadContainer(ctx, clusterID)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		return classify("terminate", err)
	}

	if task, err := container.Task(ctx, nil); err == nil {
		d.stopTask(ctx, task)
	}

	if err := container.Delete(ctx, containerd.WithSnapshotCleanup); err != nil && !errdefs.IsNotFound(err) {
		return classify("terminate", err)
	}
	return nil
}

// stopTask sends SIGTERM, escalates to SIGKILL after stopTimeout, then
// deletes the task.
func (d *ContainerdDriver) stopTask(ctx context.Context, task containerd.Task) {
	stopCtx, cancel := context.WithTimeout(ctx, stopTimeout)
	defer cancel()

	statusC, err := task.Wait(stopCtx)
	if err == nil {
		if err := task.Kill(stopCtx, syscall.SIGTERM); err == nil {
			select {
			case <-statusC:
			case <-stopCtx.Done():
				_ = task.Kill(ctx, syscall.SIGKILL)
			}
		}
	}

	if _, err := task.Delete(ctx, containerd.WithProcessKill); err != nil && !errdefs.IsNotFound(err) {
		logger := log.WithComponent("cluster")
		logger.Warn().Err(err).Msg("failed to delete task")
	}
}

func (d *ContainerdDriver) cleanupContainer(ctx context.Context, container containerd.Container) {
	if err := container.Delete(ctx, containerd.WithSnapshotCleanup); err != nil && !errdefs.IsNotFound(err) {
		logger := log.WithComponent("cluster")
		logger.Warn().Err(err).Msg("failed to clean up container after spawn error")
	}
}

// Logs returns the container output stream
func (d *ContainerdDriver) Logs(ctx context.Context, clusterID string, follow bool) (LogStream, error) {
	f, err := os.Open(d.logPath(clusterID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &FatalError{Op: "logs", Err: fmt.Errorf("no log for container %s", clusterID)}
		}
		return nil, classify("logs", err)
	}
	return &fileLogStream{
		driver:    d,
		ctx:       ctx,
		clusterID: clusterID,
		file:      f,
		reader:    bufio.NewReader(f),
		follow:    follow,
	}, nil
}

func (d *ContainerdDriver) logPath(clusterID string) string {
	return filepath.Join(d.logDir, clusterID+".log")
}

// fileLogStream reads the cio.LogFile output of a container. In follow mode
// it polls for new data until the container stops running.
type fileLogStream struct {
	driver    *ContainerdDriver
	ctx       context.Context
	clusterID string
	file      *os.File
	reader    *bufio.Reader
	follow    bool
	partial   string
}

func (s *fileLogStream) Next() (*LogLine, error) {
	for {
		line, err := s.reader.ReadString('\n')
		if err == nil {
			full := s.partial + strings.TrimRight(line, "\n")
			s.partial = ""
			return &LogLine{Line: full}, nil
		}
		if err != io.EOF {
			return nil, err
		}
		s.partial += line

		if !s.follow {
			if s.partial != "" {
				out := s.partial
				s.partial = ""
				return &LogLine{Line: out}, nil
			}
			return nil, io.EOF
		}

		// Follow mode: keep polling while the container is alive
		info, ierr := s.driver.Inspect(s.ctx, s.clusterID)
		if ierr != nil || info.Status != types.ClusterStatusStarted {
			if s.partial != "" {
				out := s.partial
				s.partial = ""
				return &LogLine{Line: out}, nil
			}
			return nil, io.EOF
		}

		select {
		case <-s.ctx.Done():
			return nil, s.ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func (s *fileLogStream) Close() error {
	return s.file.Close()
}

// classify maps a containerd error to the driver error taxonomy. Missing
// images and malformed requests are fatal; everything else (timeouts,
// connection resets, daemon overload) is worth retrying.
func classify(op string, err error) error {
	if errdefs.IsNotFound(err) || errdefs.IsInvalidArgument(err) {
		return &FatalError{Op: op, Err: err}
	}
	return &TransientError{Op: op, Err: err}
}
