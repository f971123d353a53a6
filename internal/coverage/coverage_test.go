package coverage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/conveyorci/conveyor/internal/config"
)

// fakeCmd simulates the convert command, optionally creating the artifact.
type fakeCmd struct {
	exitCode       int
	createArtifact string // file name to create in dir, "" = none
	gotCommand     string
}

func (f *fakeCmd) Run(ctx context.Context, dir string, command string) (string, string, int, error) {
	f.gotCommand = command
	if f.createArtifact != "" {
		if err := os.WriteFile(filepath.Join(dir, f.createArtifact), []byte("<coverage/>"), 0o644); err != nil {
			return "", err.Error(), 1, nil
		}
	}
	return "", "conversion error", f.exitCode, nil
}

func TestConverter_Convert(t *testing.T) {
	dir := t.TempDir()
	cmd := &fakeCmd{createArtifact: "coverage.xml"}
	conv := NewConverter(cmd)

	path, err := conv.Convert(context.Background(), dir, config.Coverage{
		ConvertCommand: "coverage xml",
		Artifact:       "coverage.xml",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != filepath.Join(dir, "coverage.xml") {
		t.Errorf("unexpected artifact path: %q", path)
	}
	if cmd.gotCommand != "coverage xml" {
		t.Errorf("unexpected command: %q", cmd.gotCommand)
	}
}

func TestConverter_Convert_CommandFails(t *testing.T) {
	conv := NewConverter(&fakeCmd{exitCode: 1})

	_, err := conv.Convert(context.Background(), t.TempDir(), config.Coverage{
		ConvertCommand: "coverage xml",
	})
	if err == nil {
		t.Fatal("expected error for non-zero convert exit")
	}
}

func TestConverter_Convert_ArtifactMissing(t *testing.T) {
	conv := NewConverter(&fakeCmd{}) // exits 0 but writes nothing

	_, err := conv.Convert(context.Background(), t.TempDir(), config.Coverage{
		ConvertCommand: "coverage xml",
		Artifact:       "coverage.xml",
	})
	if err == nil {
		t.Fatal("expected error for missing artifact")
	}
}

func TestUploader_Upload(t *testing.T) {
	var gotQuery map[string][]string
	var gotAuth string
	var gotBody string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	dir := t.TempDir()
	artifact := filepath.Join(dir, "coverage.xml")
	if err := os.WriteFile(artifact, []byte("<coverage/>"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("COVERAGE_TOKEN", "sekrit")
	up := NewUploader(srv.URL, "COVERAGE_TOKEN")

	err := up.Upload(context.Background(), artifact, Tags{
		Workflow: "mosdef-gomc-ci",
		OS:       "ubuntu",
		Python:   "3.10",
		Ref:      "main",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotBody != "<coverage/>" {
		t.Errorf("unexpected body: %q", gotBody)
	}
	if gotAuth != "Bearer sekrit" {
		t.Errorf("unexpected auth header: %q", gotAuth)
	}
	for key, want := range map[string]string{"os": "ubuntu", "python": "3.10", "ref": "main", "workflow": "mosdef-gomc-ci"} {
		if len(gotQuery[key]) != 1 || gotQuery[key][0] != want {
			t.Errorf("query %s: expected %q, got %v", key, want, gotQuery[key])
		}
	}
}

func TestUploader_Upload_ServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	dir := t.TempDir()
	artifact := filepath.Join(dir, "coverage.xml")
	if err := os.WriteFile(artifact, []byte("<coverage/>"), 0o644); err != nil {
		t.Fatal(err)
	}

	up := NewUploader(srv.URL, "")
	if err := up.Upload(context.Background(), artifact, Tags{}); err == nil {
		t.Fatal("expected error for 502 response")
	}
}

func TestUploader_Upload_MissingArtifact(t *testing.T) {
	up := NewUploader("http://localhost:1", "")
	if err := up.Upload(context.Background(), "/does/not/exist.xml", Tags{}); err == nil {
		t.Fatal("expected error for missing artifact")
	}
}
