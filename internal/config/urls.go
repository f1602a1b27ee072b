// Package config resolves backend URLs and the dealstream configuration file.
//
// URL resolution follows production by default. Dev mode points at a local
// backend, probing common ports when the configured one is not listening.
// Environment variables override both.
package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"
)

const (
	// ProdBackendURL is the production backend API URL.
	ProdBackendURL = "https://api.dealdesk.io"

	// DefaultBackendPort is the local backend port used in dev mode.
	DefaultBackendPort = "8000"

	// EnvBackendURL overrides the backend URL entirely.
	EnvBackendURL = "DEALSTREAM_BACKEND_URL"

	// EnvBackendPort overrides the local port used in dev mode.
	EnvBackendPort = "DEALSTREAM_BACKEND_PORT"

	// portCheckTimeout is the timeout for checking if a port is open.
	portCheckTimeout = 100 * time.Millisecond
)

// commonBackendPorts are the ports to try when auto-detecting the backend.
// Order matters - most common ports first.
var commonBackendPorts = []string{"8000", "8001", "8080", "3000"}

// GetBackendPort returns the local backend port.
//
// Returns:
//   - string: The port from DEALSTREAM_BACKEND_PORT, or DefaultBackendPort
func GetBackendPort() string {
	if port := os.Getenv(EnvBackendPort); port != "" {
		return port
	}
	return DefaultBackendPort
}

// GetBackendPortWithAutoDetect returns the configured port if something is
// listening on it, otherwise the first common port that is.
//
// Returns:
//   - string: The backend port number (either from config or auto-detected)
func GetBackendPortWithAutoDetect() string {
	if port := os.Getenv(EnvBackendPort); port != "" {
		return port
	}

	configuredPort := GetBackendPort()
	if isPortOpen("localhost", configuredPort) {
		return configuredPort
	}

	for _, port := range commonBackendPorts {
		if port != configuredPort && isPortOpen("localhost", port) {
			return port
		}
	}

	// Let the actual request fail with a clear error
	return configuredPort
}

// isPortOpen checks if a TCP port is open on the given host.
func isPortOpen(host, port string) bool {
	address := net.JoinHostPort(host, port)
	conn, err := net.DialTimeout("tcp", address, portCheckTimeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// GetBackendURL returns the backend API URL based on the dev mode setting.
// DEALSTREAM_BACKEND_URL wins over both modes.
//
// Parameters:
//   - devMode: If true, returns localhost URL with auto-detected port
//
// Returns:
//   - string: The backend API URL, without a trailing slash
func GetBackendURL(devMode bool) string {
	if u := os.Getenv(EnvBackendURL); u != "" {
		return strings.TrimRight(u, "/")
	}
	if devMode {
		return fmt.Sprintf("http://localhost:%s", GetBackendPortWithAutoDetect())
	}
	return ProdBackendURL
}

// WebSocketURL converts an http(s) base URL to its ws(s) equivalent.
func WebSocketURL(httpURL string) string {
	switch {
	case strings.HasPrefix(httpURL, "https://"):
		return "wss://" + strings.TrimPrefix(httpURL, "https://")
	case strings.HasPrefix(httpURL, "http://"):
		return "ws://" + strings.TrimPrefix(httpURL, "http://")
	default:
		return httpURL
	}
}
