package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultPaths are searched, in order, when no explicit config file is given
var DefaultPaths = []string{
	"zoe.conf",
	"/etc/zoe/zoe.conf",
}

// Config holds the full configuration of a Zoe process. It is built once at
// startup and injected into each component; it is never mutated afterwards.
type Config struct {
	// Common options
	Debug          bool   `yaml:"debug"`
	DeploymentName string `yaml:"deployment-name"`
	DataDir        string `yaml:"data-dir"`

	// Cluster driver options
	ClusterSocket    string `yaml:"cluster-socket"`
	ClusterNamespace string `yaml:"cluster-namespace"`
	ClusterAddress   string `yaml:"cluster-address"`
	ContainerLogDir  string `yaml:"container-log-dir"`

	// Master options
	APIListenURI       string `yaml:"api-listen-uri"`
	WorkspaceBasePath  string `yaml:"workspace-base-path"`
	OverlayNetworkName string `yaml:"overlay-network-name"`

	// Web front-end options
	ListenAddress string `yaml:"listen-address"`
	ListenPort    int    `yaml:"listen-port"`
	MasterURL     string `yaml:"master-url"`

	// Authentication options
	AuthType      string `yaml:"auth-type"`
	AuthFile      string `yaml:"auth-file"`
	LDAPServerURI string `yaml:"ldap-server-uri"`
	LDAPBaseDN    string `yaml:"ldap-base-dn"`
	LDAPAdminGID  int    `yaml:"ldap-admin-gid"`
	LDAPUserGID   int    `yaml:"ldap-user-gid"`
	LDAPGuestGID  int    `yaml:"ldap-guest-gid"`

	// Background task period, in seconds
	BackgroundInterval int `yaml:"background-interval"`
}

// Default returns a Config populated with the stock defaults.
func Default() *Config {
	return &Config{
		DeploymentName:     "prod",
		DataDir:            "/var/lib/zoe",
		ClusterSocket:      "/run/containerd/containerd.sock",
		ClusterNamespace:   "zoe",
		ClusterAddress:     "127.0.0.1",
		ContainerLogDir:    "/var/lib/zoe/logs",
		APIListenURI:       "127.0.0.1:4850",
		WorkspaceBasePath:  "/mnt/zoe-workspaces",
		OverlayNetworkName: "zoe",
		ListenAddress:      "0.0.0.0",
		ListenPort:         5001,
		MasterURL:          "http://127.0.0.1:4850",
		AuthType:           "text",
		AuthFile:           "zoepass.csv",
		LDAPServerURI:      "ldap://localhost",
		LDAPBaseDN:         "ou=something,dc=any,dc=local",
		LDAPAdminGID:       5000,
		LDAPUserGID:        5001,
		LDAPGuestGID:       5002,
		BackgroundInterval: 60,
	}
}

// Load reads the configuration file at path on top of the defaults. An empty
// path makes Load try the DefaultPaths; a missing default file is not an
// error, the defaults are returned as-is.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		for _, p := range DefaultPaths {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
		if path == "" {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.AuthType != "text" && c.AuthType != "ldap" {
		return fmt.Errorf("auth-type must be 'text' or 'ldap', got %q", c.AuthType)
	}
	if c.ListenPort <= 0 || c.ListenPort > 65535 {
		return fmt.Errorf("listen-port out of range: %d", c.ListenPort)
	}
	if c.BackgroundInterval <= 0 {
		return fmt.Errorf("background-interval must be positive, got %d", c.BackgroundInterval)
	}
	return nil
}
