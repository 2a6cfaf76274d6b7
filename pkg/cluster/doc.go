/*
Package cluster is the thin boundary between Zoe and the container
platform.

The Driver interface covers exactly what the rest of the system needs:
spawn a container, inspect it, terminate it, stream its logs, and report
cluster-wide statistics. ContainerdDriver is the production implementation
against a containerd daemon.

# Error taxonomy

Every failure crossing the driver boundary is classified as either
TransientError (overloaded cluster, connection reset, pull timeout) or
FatalError (image not found, malformed request). The materializer and
scheduler only ever branch on this distinction; no containerd error types
leak upward.

# Logs

Container output is captured to a per-container log file at task creation
time. Logs re-reads that file; in follow mode the stream polls for new
lines until the container dies or the context is cancelled.

# Example Usage

	driver, err := cluster.NewContainerdDriver(cluster.ContainerdConfig{
		Namespace: "zoe",
		Address:   "10.0.0.4",
		LogDir:    "/var/lib/zoe/logs",
	})
	if err != nil {
		return err
	}
	defer driver.Close()

	info, err := driver.Spawn(ctx, "nginx:latest", &cluster.SpawnOptions{
		Name:        "myexec-web-prod",
		MemoryLimit: 512 * 1024 * 1024,
	})
*/
package cluster
