/*
Package metrics exposes Zoe's Prometheus metrics.

All metrics are package-level collectors registered at init time and
served through Handler, which the web front-end mounts at /metrics. The
scheduler keeps the queue and worker gauges current; the counters track
execution outcomes over the life of the master process.
*/
package metrics
