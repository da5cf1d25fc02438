// Package workspace manages the per-job directory layout on the local
// filesystem: inputs/{job_id}, outputs/{job_id}, and processing/{job_id}
// under a single data directory.
package workspace

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Dir names under the data directory.
const (
	inputsDir     = "inputs"
	outputsDir    = "outputs"
	processingDir = "processing"
)

// Config captures the parameters for the workspace.
type Config struct {
	// DataDir is the root directory for all job file trees.
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"`
}

// Workspace lays out and guards job file trees.
type Workspace struct {
	dataDir string
}

// New creates a workspace rooted at cfg.DataDir, creating it if needed and
// verifying it is writable.
func New(cfg Config) (*Workspace, error) {
	if strings.TrimSpace(cfg.DataDir) == "" {
		return nil, fmt.Errorf("data directory is required")
	}

	info, err := os.Stat(cfg.DataDir)
	if err != nil {
		if os.IsNotExist(err) {
			if mkErr := os.MkdirAll(cfg.DataDir, 0o750); mkErr != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", mkErr)
			}
		} else {
			return nil, fmt.Errorf("failed to stat data directory: %w", err)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("data directory path is not a directory")
	}

	testFile := filepath.Join(cfg.DataDir, ".writable_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("data directory is not writable: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		return nil, fmt.Errorf("failed to clean up test file: %w", err)
	}

	return &Workspace{dataDir: cfg.DataDir}, nil
}

// InputsDir returns the input directory for a job.
func (w *Workspace) InputsDir(jobID string) string {
	return filepath.Join(w.dataDir, inputsDir, jobID)
}

// OutputsDir returns the output directory for a job.
func (w *Workspace) OutputsDir(jobID string) string {
	return filepath.Join(w.dataDir, outputsDir, jobID)
}

// ProcessingDir returns the scratch directory for a job.
func (w *Workspace) ProcessingDir(jobID string) string {
	return filepath.Join(w.dataDir, processingDir, jobID)
}

// EnsureJobDirs creates the three per-job directories.
func (w *Workspace) EnsureJobDirs(jobID string) error {
	if err := validateComponent(jobID); err != nil {
		return err
	}
	for _, dir := range []string{w.InputsDir(jobID), w.OutputsDir(jobID), w.ProcessingDir(jobID)} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create job directory %s: %w", dir, err)
		}
	}
	return nil
}

// StageInput writes an uploaded file into inputs/{job_id}/{filename},
// returning the number of bytes written.
func (w *Workspace) StageInput(jobID, filename string, r io.Reader) (int64, error) {
	path, err := w.safeJoin(w.InputsDir(jobID), filename)
	if err != nil {
		return 0, err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600) //nolint:gosec // path validated above
	if err != nil {
		return 0, fmt.Errorf("failed to create input file: %w", err)
	}
	n, err := io.Copy(f, r)
	if err != nil {
		closeErr := f.Close()
		if closeErr != nil {
			return n, fmt.Errorf("write input file: %w (close: %v)", err, closeErr)
		}
		return n, fmt.Errorf("write input file: %w", err)
	}
	if err := f.Close(); err != nil {
		return n, fmt.Errorf("close input file: %w", err)
	}
	return n, nil
}

// InputPath resolves inputs/{job_id}/{filename}, rejecting traversal.
func (w *Workspace) InputPath(jobID, filename string) (string, error) {
	return w.safeJoin(w.InputsDir(jobID), filename)
}

// OutputPath resolves outputs/{job_id}/{filename}, rejecting traversal.
func (w *Workspace) OutputPath(jobID, filename string) (string, error) {
	return w.safeJoin(w.OutputsDir(jobID), filename)
}

// StatOutput returns file info for one output artifact, if present.
func (w *Workspace) StatOutput(jobID, filename string) (os.FileInfo, error) {
	path, err := w.OutputPath(jobID, filename)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat output %s: %w", filename, err)
	}
	return info, nil
}

// RemoveJob deletes all three directories for a job.
func (w *Workspace) RemoveJob(jobID string) error {
	if err := validateComponent(jobID); err != nil {
		return err
	}
	for _, dir := range []string{w.InputsDir(jobID), w.OutputsDir(jobID), w.ProcessingDir(jobID)} {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("failed to remove job directory %s: %w", dir, err)
		}
	}
	return nil
}

func (w *Workspace) safeJoin(base, filename string) (string, error) {
	if strings.TrimSpace(filename) == "" {
		return "", fmt.Errorf("filename is required")
	}
	if err := validateComponent(filepath.Base(base)); err != nil {
		return "", err
	}
	fullPath := filepath.Join(base, filename)
	cleanBase := filepath.Clean(base)
	cleanFull := filepath.Clean(fullPath)
	if !strings.HasPrefix(cleanFull, cleanBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	return cleanFull, nil
}

func validateComponent(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("job id is required")
	}
	if name != filepath.Base(name) || name == "." || name == ".." {
		return fmt.Errorf("invalid path component %q", name)
	}
	return nil
}
