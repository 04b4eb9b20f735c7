// Package config provides configuration helpers for go-picarx commands.
package config

import (
	"fmt"
	"os"
	"strings"
)

// Default robot configuration.
const (
	DefaultBridgePort = "8000"
	DefaultWebPort    = "8080"
	DefaultLogLevel   = "info"
)

// Settings keys understood by the settings store.
const (
	// KeySteeringTrim holds the steering servo calibration offset in degrees.
	KeySteeringTrim = "picarx_dir_servo"
)

// RobotAddr returns the motor bridge address from PICARX_ADDR env var.
// Falls back to the provided default if not set. An empty result means
// the simulated controller should be used.
func RobotAddr(defaultAddr string) string {
	if addr := os.Getenv("PICARX_ADDR"); addr != "" {
		return addr
	}
	return defaultAddr
}

// RobotAPIURL returns the bridge HTTP API URL for addr.
// A bare host gets DefaultBridgePort appended.
func RobotAPIURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return strings.TrimRight(addr, "/")
	}
	if !strings.Contains(addr, ":") {
		addr = addr + ":" + DefaultBridgePort
	}
	return fmt.Sprintf("http://%s", addr)
}

// WebPort returns the dashboard port from PICARX_WEB_PORT env var or default.
// An empty result disables the web server.
func WebPort(defaultPort string) string {
	if port := os.Getenv("PICARX_WEB_PORT"); port != "" {
		return port
	}
	return defaultPort
}

// DBPath returns the settings file from PICARX_DB env var or default.
func DBPath(defaultPath string) string {
	if path := os.Getenv("PICARX_DB"); path != "" {
		return path
	}
	return defaultPath
}

// LogLevel returns LOG_LEVEL or DefaultLogLevel.
func LogLevel() string {
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		return lvl
	}
	return DefaultLogLevel
}
