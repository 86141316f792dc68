package config

import (
	"os"
	"sync"
)

var (
	dockerOnce   sync.Once
	dockerResult bool
)

// inDocker reports whether the process runs inside a Docker container,
// detected by the /.dockerenv marker. Cached after the first call.
func inDocker() bool {
	dockerOnce.Do(func() {
		_, err := os.Stat("/.dockerenv")
		dockerResult = err == nil
	})
	return dockerResult
}

// DatasourceHost returns the host a dataset reader should dial. Loopback
// addresses are rewritten to host.docker.internal when running inside
// Docker, so samplers can reach databases on the host machine.
func DatasourceHost(host string) string {
	if !inDocker() {
		return host
	}
	if host == "localhost" || host == "127.0.0.1" {
		return "host.docker.internal"
	}
	return host
}
