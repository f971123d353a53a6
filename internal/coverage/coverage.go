package coverage

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/conveyorci/conveyor/internal/config"
	"github.com/conveyorci/conveyor/internal/steps"
)

// Converter turns the raw coverage data produced by the test step into the
// XML interchange artifact the tracking service accepts.
type Converter struct {
	cmd steps.CommandRunner
}

// NewConverter creates a Converter using the given command runner.
func NewConverter(cmd steps.CommandRunner) *Converter {
	return &Converter{cmd: cmd}
}

// Convert runs the configured conversion command in the workspace and returns
// the path of the produced artifact.
func (c *Converter) Convert(ctx context.Context, dir string, cfg config.Coverage) (string, error) {
	if cfg.ConvertCommand == "" {
		return "", fmt.Errorf("no coverage convert command configured")
	}

	_, stderr, exitCode, err := c.cmd.Run(ctx, dir, cfg.ConvertCommand)
	if err != nil {
		return "", fmt.Errorf("run convert command: %w", err)
	}
	if exitCode != 0 {
		return "", fmt.Errorf("convert command exited %d: %s", exitCode, stderr)
	}

	artifact := cfg.Artifact
	if artifact == "" {
		artifact = "coverage.xml"
	}
	path := filepath.Join(dir, artifact)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("coverage artifact %s not produced: %w", artifact, err)
	}
	return path, nil
}

// Tags identify which run instance a coverage report belongs to.
type Tags struct {
	Workflow string
	OS       string
	Python   string
	Ref      string
}

// Uploader pushes coverage artifacts to the external tracking service.
type Uploader struct {
	client   *http.Client
	uploadURL string
	tokenEnv string
}

// NewUploader creates an Uploader for the given service URL. The bearer token
// is read from the named environment variable at upload time, never stored.
func NewUploader(uploadURL string, tokenEnv string) *Uploader {
	return &Uploader{
		client:    &http.Client{Timeout: 60 * time.Second},
		uploadURL: uploadURL,
		tokenEnv:  tokenEnv,
	}
}

// Upload POSTs the artifact to the tracking service, tagged to the instance.
func (u *Uploader) Upload(ctx context.Context, artifactPath string, tags Tags) error {
	if u.uploadURL == "" {
		return fmt.Errorf("no upload URL configured")
	}

	f, err := os.Open(artifactPath)
	if err != nil {
		return fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	q := url.Values{}
	q.Set("workflow", tags.Workflow)
	q.Set("os", tags.OS)
	q.Set("python", tags.Python)
	q.Set("ref", tags.Ref)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.uploadURL+"?"+q.Encode(), f)
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml")
	if u.tokenEnv != "" {
		if token := os.Getenv(u.tokenEnv); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return fmt.Errorf("upload coverage: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("coverage service returned %s", resp.Status)
	}
	return nil
}
