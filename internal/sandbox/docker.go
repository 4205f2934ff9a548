package sandbox

import (
	"context"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog/log"
)

// dockerCLI abstracts invocations of the docker binary so tests can fake the
// daemon without touching a real one.
type dockerCLI interface {
	// run executes `docker args...`, streaming stdout/stderr to the writers.
	run(ctx context.Context, stdout, stderr io.Writer, args ...string) error
	// output executes `docker args...` and returns trimmed stdout.
	output(ctx context.Context, args ...string) (string, error)
}

// systemDocker shells out to the docker CLI on the host.
type systemDocker struct {
	host string // resolved DOCKER_HOST, empty for the daemon default
}

func newSystemDocker() *systemDocker {
	return &systemDocker{host: resolveDockerHost()}
}

// resolveDockerHost figures out the Docker socket. On macOS, Docker Desktop
// uses a context-specific socket that child processes don't inherit.
func resolveDockerHost() string {
	if h := os.Getenv("DOCKER_HOST"); h != "" {
		return h
	}

	out, err := exec.Command("docker", "context", "inspect", "--format", "{{.Endpoints.docker.Host}}").Output()
	if err == nil {
		host := strings.TrimSpace(string(out))
		if host != "" {
			log.Debug().Str("docker_host", host).Msg("resolved Docker host from context")
			return host
		}
	}

	return ""
}

func (d *systemDocker) run(ctx context.Context, stdout, stderr io.Writer, args ...string) error {
	cmd := exec.CommandContext(ctx, "docker", args...) // #nosec G204 -- args built internally, not from raw user input
	if d.host != "" {
		cmd.Env = append(os.Environ(), "DOCKER_HOST="+d.host)
	}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	return cmd.Run()
}

func (d *systemDocker) output(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "docker", args...) // #nosec G204 -- args built internally, not from raw user input
	if d.host != "" {
		cmd.Env = append(os.Environ(), "DOCKER_HOST="+d.host)
	}
	out, err := cmd.Output()
	return strings.TrimSpace(string(out)), err
}
