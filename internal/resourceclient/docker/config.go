package docker

import "time"

// Config holds configuration for the Docker-backed resource client.
type Config struct {
	// CreateTimeout bounds a single Create call, including image
	// resolution. Default 30s.
	CreateTimeout time.Duration
	// StatusTimeout bounds a single Status call. Default 5s.
	StatusTimeout time.Duration
	// DeleteTimeout bounds a single Delete call. Default 15s.
	DeleteTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.CreateTimeout <= 0 {
		c.CreateTimeout = 30 * time.Second
	}
	if c.StatusTimeout <= 0 {
		c.StatusTimeout = 5 * time.Second
	}
	if c.DeleteTimeout <= 0 {
		c.DeleteTimeout = 15 * time.Second
	}
	return c
}

// sparkImage maps an engine version to the Apache Spark image the original
// Kubernetes resource client hardcodes (apache/spark:<version>), per
// original_source/rucat_state_monitor/src/resource_client/k8s_client.rs.
func sparkImage(version string) string {
	return "apache/spark:" + version
}

// containerName deterministically names the container backing engineID, so
// retried Create/Delete calls target the same resource across crashes.
func containerName(engineID string) string {
	return "rucat-engine-" + engineID
}

const (
	labelManagedBy = "managed-by"
	labelEngineID  = "rucat.engine.id"
	managedByValue = "rucat"
)
