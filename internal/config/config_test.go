package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleCapabilitiesYAML = `
inputs:
  - name: RTMP
    source_match:
      - "rtmp://*"
    priority: 9
    required:
      - option: "-p"
  - name: HLS
    source_match:
      - "*.m3u8"
    priority: 5
    optional:
      - option: "--quiet"
outputs:
  - name: RTMP
    push_urls:
      - "rtmp://*"
    priority: 9
`

func writeTempCapabilities(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "capabilities.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoaderCurrent(t *testing.T) {
	t.Parallel()
	path := writeTempCapabilities(t, sampleCapabilitiesYAML)
	loader, err := NewLoader(path)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	caps, err := loader.Current()
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if len(caps.Inputs) != 2 {
		t.Fatalf("expected 2 inputs, got %d", len(caps.Inputs))
	}
	if caps.Inputs[0].Name != "RTMP" || caps.Inputs[0].Priority != 9 {
		t.Fatalf("unexpected first input: %+v", caps.Inputs[0])
	}
	if len(caps.Outputs) != 1 || caps.Outputs[0].PushURLs[0] != "rtmp://*" {
		t.Fatalf("unexpected outputs: %+v", caps.Outputs)
	}
}

func TestNewLoaderMissingFile(t *testing.T) {
	t.Parallel()
	_, err := NewLoader(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatalf("expected error for missing capabilities file")
	}
}

func TestLoadSettingsReadsEnv(t *testing.T) {
	t.Setenv("MISTPROVIDER", "1")
	t.Setenv("NOFORK", "1")
	t.Setenv("TMP", "/tmp/mist-test")
	t.Setenv("DEBUG", "3")

	s := LoadSettings()
	if !s.Provider {
		t.Fatalf("expected Provider=true")
	}
	if !s.NoFork {
		t.Fatalf("expected NoFork=true")
	}
	if s.TmpDir != "/tmp/mist-test" {
		t.Fatalf("unexpected TmpDir: %s", s.TmpDir)
	}
	if s.Debug != "3" {
		t.Fatalf("unexpected Debug: %s", s.Debug)
	}
}
