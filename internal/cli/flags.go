// Package cli implements the command-line surface shared by every binary
// in the core (§6 "Command-line surface"): --debug, -s, positional
// input/output, and whatever extra named options a capabilities descriptor
// declares for the specific input or output being invoked.
package cli

import (
	"flag"
	"fmt"
	"strings"
)

// ExitClean, ExitPrecondition, ExitForkExec, and ExitExecFailure are the §6
// process exit codes every cmd/ binary returns from main.
const (
	ExitClean        = 0
	ExitPrecondition = 1
	ExitForkExec     = 2
	ExitExecFailure  = 42
)

// extraFlag collects a repeated --name value pair declared by a
// capabilities descriptor's required/optional parameter list. Several
// input/output binaries accept the same option more than once (e.g. a
// relay target list), so Set appends rather than overwrites, mirroring the
// teacher's stringSliceFlag.
type extraFlag struct {
	values *[]string
}

func (f extraFlag) String() string {
	if f.values == nil {
		return ""
	}
	return strings.Join(*f.values, ",")
}

func (f extraFlag) Set(value string) error {
	*f.values = append(*f.values, value)
	return nil
}

// Config is the parsed form of the shared CLI surface.
type Config struct {
	DebugLevel string
	Stream     string
	Input      string
	Output     string
	Extra      map[string][]string
}

// Parse parses args against the shared surface plus one named flag per
// entry in extraNames (the option strings a capabilities descriptor
// declares for this particular input or output). Positional arguments
// after flag parsing are interpreted as input, then output; a bare "-"
// stands for stdio per §6. Parse failures are returned as an error; the
// caller should exit with cli.ExitPrecondition on a parse error the same
// way the teacher's rtmp-server called os.Exit(2) from main after a parse
// failure.
func Parse(progName string, args []string, extraNames []string) (*Config, error) {
	fs := flag.NewFlagSet(progName, flag.ContinueOnError)

	debugLevel := fs.String("debug", "", "log verbosity override (§6 DEBUG)")
	stream := fs.String("s", "", "stream name")

	extra := make(map[string][]string, len(extraNames))
	for _, name := range extraNames {
		trimmed := strings.TrimPrefix(name, "--")
		values := make([]string, 0)
		extra[trimmed] = values
		slot := &values
		fs.Var(extraFlag{values: slot}, trimmed, "descriptor-supplied option")
		extra[trimmed] = *slot
	}

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("cli: parsing arguments: %w", err)
	}

	// fs.Var stores into the slice the closure captured, not the map's
	// original entry, so re-read every extra flag's final slice now that
	// parsing is done.
	for name := range extra {
		if v := fs.Lookup(name); v != nil {
			if ef, ok := v.Value.(extraFlag); ok && ef.values != nil {
				extra[name] = *ef.values
			}
		}
	}

	cfg := &Config{
		DebugLevel: *debugLevel,
		Stream:     *stream,
		Extra:      extra,
	}

	rest := fs.Args()
	if len(rest) > 0 {
		cfg.Input = rest[0]
	}
	if len(rest) > 1 {
		cfg.Output = rest[1]
	}
	return cfg, nil
}

// IsStdio reports whether path is the §6 stdio sentinel.
func IsStdio(path string) bool { return path == "-" }
