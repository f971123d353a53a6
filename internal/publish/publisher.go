package publish

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/conveyorci/conveyor/internal/config"
	"github.com/conveyorci/conveyor/internal/trigger"
)

// DockerRunner abstracts docker CLI invocations for testability. stdin is
// piped to the process when non-empty.
type DockerRunner interface {
	Run(ctx context.Context, stdin string, args ...string) error
}

// ExecDocker implements DockerRunner by shelling out to docker, streaming
// output to the configured writers.
type ExecDocker struct {
	Stdout io.Writer
	Stderr io.Writer
}

func (d *ExecDocker) Run(ctx context.Context, stdin string, args ...string) error {
	cmd := exec.CommandContext(ctx, "docker", args...)
	cmd.Stdout = d.Stdout
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	cmd.Stderr = d.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("docker %s: %w", strings.Join(redactArgs(args), " "), err)
	}
	return nil
}

// redactArgs hides credential material from error messages.
func redactArgs(args []string) []string {
	out := make([]string, len(args))
	redactNext := false
	for i, a := range args {
		if redactNext {
			out[i] = "****"
			redactNext = false
			continue
		}
		if a == "-u" || a == "--username" {
			redactNext = true
		}
		out[i] = a
	}
	return out
}

// Result records what a publish run produced.
type Result struct {
	Ref     string          `json:"ref"`
	RefKind trigger.RefKind `json:"ref_kind"`
	Tags    []string        `json:"tags"`
}

// Publisher executes the publish stage: backend check, registry login, and a
// single multi-tag build+push.
type Publisher struct {
	docker   DockerRunner
	creds    CredentialProvider
	cfg      config.Publish
	progress io.Writer // live progress output; nil = silent
}

// NewPublisher creates a Publisher. The credential provider is injected here
// rather than read from ambient state.
func NewPublisher(docker DockerRunner, creds CredentialProvider, cfg config.Publish) *Publisher {
	return &Publisher{docker: docker, creds: creds, cfg: cfg}
}

// SetProgress sets a writer for live progress output (e.g. os.Stderr).
func (p *Publisher) SetProgress(w io.Writer) {
	p.progress = w
}

func (p *Publisher) logf(format string, args ...interface{}) {
	if p.progress != nil {
		fmt.Fprintf(p.progress, "  → "+format+"\n", args...)
	}
}

// Publish runs the stage for the given ref. Each step has a distinct failure
// meaning and is fatal: backend unavailable, misconfigured credentials, or a
// failed build/push. All tags are pushed by one build invocation; a partial
// multi-tag push is not rolled back.
func (p *Publisher) Publish(ctx context.Context, ref string, kind trigger.RefKind) (*Result, error) {
	// Backend check: buildx must be installed and answering.
	p.logf("checking image build backend")
	if err := p.docker.Run(ctx, "", "buildx", "version"); err != nil {
		return nil, fmt.Errorf("image build backend unavailable: %w", err)
	}

	// Registry login with injected credentials.
	username, password, err := p.creds.Credentials()
	if err != nil {
		return nil, fmt.Errorf("registry credentials: %w", err)
	}
	p.logf("logging in to %s as %s", p.cfg.Registry, username)
	if err := p.docker.Run(ctx, password, "login", p.cfg.Registry, "-u", username, "--password-stdin"); err != nil {
		return nil, fmt.Errorf("registry login: %w", err)
	}

	// Tag derivation: exactly one RefKind branch applies.
	tags, err := TagsFor(p.cfg.Image, ref, kind)
	if err != nil {
		return nil, fmt.Errorf("derive tags: %w", err)
	}
	p.logf("publishing tags: %s", strings.Join(tags, ", "))

	// Single build+push action carrying every tag.
	args := []string{"buildx", "build", "--push"}
	for _, t := range tags {
		args = append(args, "-t", t)
	}
	if p.cfg.Dockerfile != "" {
		args = append(args, "-f", p.cfg.Dockerfile)
	}
	buildContext := p.cfg.Context
	if buildContext == "" {
		buildContext = "."
	}
	args = append(args, buildContext)

	if err := p.docker.Run(ctx, "", args...); err != nil {
		return nil, fmt.Errorf("build and push: %w", err)
	}
	p.logf("publish complete")

	return &Result{Ref: ref, RefKind: kind, Tags: tags}, nil
}
