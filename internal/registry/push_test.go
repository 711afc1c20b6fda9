package registry

import (
	"testing"
	"time"

	"github.com/mistcore/mist-core/internal/config"
	coreerrors "github.com/mistcore/mist-core/internal/errors"
)

func sampleOutputCapabilities() *config.Capabilities {
	return &config.Capabilities{
		Outputs: []config.OutputDescriptor{
			{Name: "RTMP", PushURLs: []string{"rtmp://*"}, Priority: 9},
			{Name: "HLS", PushURLs: []string{"*.m3u8"}, Priority: 5},
		},
	}
}

func TestResolveOutputForPushMatchesAndExpands(t *testing.T) {
	t.Parallel()
	caps := sampleOutputCapabilities()
	now := time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC)
	desc, expanded, err := ResolveOutputForPush(caps, "live", "rtmp://cdn.example/$stream", now)
	if err != nil {
		t.Fatalf("ResolveOutputForPush: %v", err)
	}
	if desc.Name != "RTMP" {
		t.Fatalf("expected RTMP output, got %s", desc.Name)
	}
	if expanded != "rtmp://cdn.example/live" {
		t.Fatalf("unexpected expanded target: %s", expanded)
	}
}

func TestResolveOutputForPushEmptyTarget(t *testing.T) {
	t.Parallel()
	caps := sampleOutputCapabilities()
	_, _, err := ResolveOutputForPush(caps, "live", "", time.Now())
	if !coreerrors.IsNotReady(err) {
		t.Fatalf("expected NotReadyError for empty target, got %v", err)
	}
}

func TestResolveOutputForPushNoMatch(t *testing.T) {
	t.Parallel()
	caps := sampleOutputCapabilities()
	_, _, err := ResolveOutputForPush(caps, "live", "srt://cdn.example/live", time.Now())
	if !coreerrors.IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}
