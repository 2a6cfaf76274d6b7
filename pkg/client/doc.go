// Package client implements the Go client for the Zoe REST API, used by
// the zoe command-line tool.
package client
