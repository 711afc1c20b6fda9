package registry

import (
	"strings"

	"github.com/mistcore/mist-core/internal/config"
	coreerrors "github.com/mistcore/mist-core/internal/errors"
)

// matchGlob reports whether value matches a pattern containing exactly one
// '*' wildcard, comparing only the literal prefix and suffix around it
// (the same substring comparison getInputBySource uses, rather than a
// general glob engine, since a capabilities pattern carries at most one
// '*').
func matchGlob(pattern, value string) bool {
	star := strings.IndexByte(pattern, '*')
	if star == -1 {
		return pattern == value
	}
	front := pattern[:star]
	back := pattern[star+1:]
	if len(value) < len(front)+len(back) {
		return false
	}
	return strings.HasPrefix(value, front) && strings.HasSuffix(value, back)
}

// ResolveInput selects the highest-priority input descriptor whose
// source_match pattern matches source. On a tie, the descriptor appearing
// earliest in the snapshot's inputs list wins — the strict "curPrio <
// priority" comparison in the original resolver only ever replaces the
// current pick with a strictly higher one, so the first descriptor to
// reach a given priority keeps it. A non-provider descriptor is skipped
// entirely when isProvider is false.
func ResolveInput(caps *config.Capabilities, source string, isProvider bool) (*config.InputDescriptor, error) {
	var (
		selected           *config.InputDescriptor
		curPriority        = -1
		sawNonProviderOnly bool
	)

	for i := range caps.Inputs {
		desc := &caps.Inputs[i]
		if desc.Priority <= curPriority {
			continue
		}
		matched := false
		for _, pattern := range desc.SourceMatch {
			if matchGlob(pattern, source) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		if desc.NonProvider && !isProvider {
			sawNonProviderOnly = true
			continue
		}
		selected = desc
		curPriority = desc.Priority
	}

	if selected == nil {
		if sawNonProviderOnly {
			return nil, coreerrors.NewNotFound("registry.ResolveInput not a provider", nil)
		}
		return nil, coreerrors.NewNotFound("registry.ResolveInput no compatible input for "+source, nil)
	}
	return selected, nil
}

// AssembleParameters builds the argument map for the selected input
// descriptor: required parameters come from overrides first, then
// streamConfig, failing if neither supplies a value; optional parameters
// are included only when present, and an optional parameter with no
// declared "type" is force-set to the empty-string sentinel whenever a
// value was found for it (matching the original's literal behavior for
// flag-style options that take no argument).
func AssembleParameters(desc *config.InputDescriptor, overrides, streamConfig map[string]string) (map[string]string, error) {
	args := make(map[string]string, len(desc.Required)+len(desc.Optional))

	for _, p := range desc.Required {
		if v, ok := overrides[p.Option]; ok {
			args[p.Option] = v
			continue
		}
		v, ok := streamConfig[p.Option]
		if !ok {
			return nil, coreerrors.NewNotReady("registry.AssembleParameters", "MISSING_REQUIRED", nil)
		}
		args[p.Option] = v
	}

	for _, p := range desc.Optional {
		if v, ok := overrides[p.Option]; ok {
			args[p.Option] = v
		} else if v, ok := streamConfig[p.Option]; ok {
			args[p.Option] = v
		}
		if p.Type == "" {
			if _, ok := args[p.Option]; ok {
				args[p.Option] = ""
			}
		}
	}

	return args, nil
}
