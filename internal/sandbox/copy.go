package sandbox

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
)

// CopyIn transfers a local directory tree into the named container at
// remotePath, creating the remote directory first.
func (p *Pool) CopyIn(ctx context.Context, name, localDir, remotePath string) error {
	if err := p.docker.run(ctx, io.Discard, io.Discard,
		"exec", name, "mkdir", "-p", remotePath); err != nil {
		return &PoolError{Container: name, Op: "copy_in_mkdir", Err: err}
	}

	if err := p.docker.run(ctx, io.Discard, io.Discard,
		"cp", localDir+"/.", name+":"+remotePath); err != nil {
		return &PoolError{Container: name, Op: "copy_in", Err: err}
	}
	return nil
}

// CopyOut transfers a container directory tree back to localDir. A remote
// path that does not exist yields an empty local directory, not an error: a
// build tool that never ran produces no reports, and that must not fail the
// run.
func (p *Pool) CopyOut(ctx context.Context, name, remotePath, localDir string) error {
	if err := os.MkdirAll(localDir, 0750); err != nil {
		return &PoolError{Container: name, Op: "copy_out_mkdir", Err: err}
	}

	if err := p.docker.run(ctx, io.Discard, io.Discard,
		"exec", name, "test", "-d", remotePath); err != nil {
		log.Debug().Str("container", name).Str("remote", remotePath).
			Msg("report path absent, leaving local directory empty")
		return nil
	}

	if err := p.docker.run(ctx, io.Discard, io.Discard,
		"cp", fmt.Sprintf("%s:%s/.", name, remotePath), localDir); err != nil {
		return &PoolError{Container: name, Op: "copy_out", Err: err}
	}
	return nil
}

// CleanupWorkspace removes a run's workspace inside the container.
// Best-effort: failures are logged, never propagated.
func (p *Pool) CleanupWorkspace(ctx context.Context, name, remotePath string) {
	if err := p.docker.run(ctx, io.Discard, io.Discard,
		"exec", name, "rm", "-rf", remotePath); err != nil {
		log.Warn().Err(err).Str("container", name).Str("remote", remotePath).
			Msg("workspace cleanup failed")
	}
}
