package registry

import (
	"testing"

	"github.com/mistcore/mist-core/internal/config"
	coreerrors "github.com/mistcore/mist-core/internal/errors"
)

func sampleCapabilities() *config.Capabilities {
	return &config.Capabilities{
		Inputs: []config.InputDescriptor{
			{
				Name:        "RTMP",
				SourceMatch: []string{"rtmp://*"},
				Priority:    9,
				Required:    []config.ParamDescriptor{{Option: "-p"}},
			},
			{
				Name:        "Buffer",
				SourceMatch: []string{"push://*"},
				Priority:    9,
				NonProvider: true,
			},
			{
				Name:        "HLS",
				SourceMatch: []string{"*.m3u8"},
				Priority:    5,
				Optional:    []config.ParamDescriptor{{Option: "--ts-offset", Type: "int"}, {Option: "--quiet"}},
			},
		},
	}
}

func TestResolveInputSelectsHighestPriority(t *testing.T) {
	t.Parallel()
	caps := sampleCapabilities()
	desc, err := ResolveInput(caps, "rtmp://origin/live", true)
	if err != nil {
		t.Fatalf("ResolveInput: %v", err)
	}
	if desc.Name != "RTMP" {
		t.Fatalf("expected RTMP descriptor, got %s", desc.Name)
	}
}

func TestResolveInputTieBreakIsEarliestIndex(t *testing.T) {
	t.Parallel()
	caps := &config.Capabilities{
		Inputs: []config.InputDescriptor{
			{Name: "First", SourceMatch: []string{"rtmp://*"}, Priority: 9},
			{Name: "Second", SourceMatch: []string{"rtmp://*"}, Priority: 9},
		},
	}
	desc, err := ResolveInput(caps, "rtmp://origin/live", true)
	if err != nil {
		t.Fatalf("ResolveInput: %v", err)
	}
	if desc.Name != "First" {
		t.Fatalf("expected first descriptor to win the tie, got %s", desc.Name)
	}
}

func TestResolveInputRejectsNonProviderForNonProviderCaller(t *testing.T) {
	t.Parallel()
	caps := sampleCapabilities()
	_, err := ResolveInput(caps, "push://origin/live", false)
	if !coreerrors.IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestResolveInputNoMatch(t *testing.T) {
	t.Parallel()
	caps := sampleCapabilities()
	_, err := ResolveInput(caps, "srt://origin/live", true)
	if !coreerrors.IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestAssembleParametersRequiredFromOverride(t *testing.T) {
	t.Parallel()
	caps := sampleCapabilities()
	desc, err := ResolveInput(caps, "rtmp://origin/live", true)
	if err != nil {
		t.Fatalf("ResolveInput: %v", err)
	}
	args, err := AssembleParameters(desc, map[string]string{"-p": "1935"}, nil)
	if err != nil {
		t.Fatalf("AssembleParameters: %v", err)
	}
	if args["-p"] != "1935" {
		t.Fatalf("expected override value, got %q", args["-p"])
	}
}

func TestAssembleParametersRequiredFromStreamConfig(t *testing.T) {
	t.Parallel()
	caps := sampleCapabilities()
	desc, err := ResolveInput(caps, "rtmp://origin/live", true)
	if err != nil {
		t.Fatalf("ResolveInput: %v", err)
	}
	args, err := AssembleParameters(desc, nil, map[string]string{"-p": "1936"})
	if err != nil {
		t.Fatalf("AssembleParameters: %v", err)
	}
	if args["-p"] != "1936" {
		t.Fatalf("expected stream-config value, got %q", args["-p"])
	}
}

func TestAssembleParametersMissingRequiredFails(t *testing.T) {
	t.Parallel()
	caps := sampleCapabilities()
	desc, err := ResolveInput(caps, "rtmp://origin/live", true)
	if err != nil {
		t.Fatalf("ResolveInput: %v", err)
	}
	_, err = AssembleParameters(desc, nil, nil)
	if !coreerrors.IsNotReady(err) {
		t.Fatalf("expected NotReadyError for missing required parameter, got %v", err)
	}
}

func TestAssembleParametersOptionalSentinelForUntypedFlag(t *testing.T) {
	t.Parallel()
	caps := sampleCapabilities()
	desc, err := ResolveInput(caps, "stream.m3u8", true)
	if err != nil {
		t.Fatalf("ResolveInput: %v", err)
	}
	args, err := AssembleParameters(desc, map[string]string{"--quiet": "true", "--ts-offset": "5"}, nil)
	if err != nil {
		t.Fatalf("AssembleParameters: %v", err)
	}
	if v, ok := args["--quiet"]; !ok || v != "" {
		t.Fatalf("expected untyped optional flag sentinel empty string, got %q (present=%v)", v, ok)
	}
	if args["--ts-offset"] != "5" {
		t.Fatalf("expected typed optional to keep its value, got %q", args["--ts-offset"])
	}
}

func TestAssembleParametersOptionalAbsentWhenNotProvided(t *testing.T) {
	t.Parallel()
	caps := sampleCapabilities()
	desc, err := ResolveInput(caps, "stream.m3u8", true)
	if err != nil {
		t.Fatalf("ResolveInput: %v", err)
	}
	args, err := AssembleParameters(desc, nil, nil)
	if err != nil {
		t.Fatalf("AssembleParameters: %v", err)
	}
	if _, ok := args["--quiet"]; ok {
		t.Fatalf("expected absent optional parameter to be omitted entirely")
	}
}
