// Package scaffold materializes the ephemeral on-disk project for one
// grading run: the build tool's config files plus a two-root layout of
// submitted source and grading tests.
package scaffold

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"classroom-grader/internal/buildtool"
	"classroom-grader/internal/grading"
)

// ErrScaffold marks local filesystem failures while writing the project.
var ErrScaffold = errors.New("project scaffolding failed")

// Setup writes the build tool's canonical config files and every requested
// source/test file under projectDir. Parent directories are created as
// needed. Content is written verbatim and never validated; the caller
// discards the whole tree on any outcome, so partially written state needs
// no rollback.
func Setup(projectDir string, req *grading.Request, tool buildtool.Tool) error {
	for rel, content := range tool.ConfigFiles(req.AssignmentID) {
		if err := writeFile(projectDir, rel, content); err != nil {
			return err
		}
	}

	for rel, content := range req.SourceFiles {
		if err := writeFile(projectDir, filepath.Join(tool.SourceRoot(), rel), content); err != nil {
			return err
		}
	}

	for rel, content := range req.TestFiles {
		if err := writeFile(projectDir, filepath.Join(tool.TestRoot(), rel), content); err != nil {
			return err
		}
	}

	return nil
}

func writeFile(projectDir, rel, content string) error {
	path := filepath.Join(projectDir, rel)

	// File names come from the request; keep them inside the project tree.
	if !strings.HasPrefix(path, filepath.Clean(projectDir)+string(os.PathSeparator)) {
		return fmt.Errorf("%w: path %q escapes project directory", ErrScaffold, rel)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("%w: %v", ErrScaffold, err)
	}
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("%w: %v", ErrScaffold, err)
	}
	return nil
}
