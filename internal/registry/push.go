package registry

import (
	"time"

	"github.com/mistcore/mist-core/internal/config"
	coreerrors "github.com/mistcore/mist-core/internal/errors"
)

// ResolveOutputForPush supplements the spec distillation with the original
// Util::startPush behavior: expand target's variables against streamName,
// then match it against each output descriptor's push_urls glob list using
// the same priority/tie-break rule as ResolveInput, so a push target can
// drive a supervisor-started output process the same way a pull source
// drives a supervisor-started input.
func ResolveOutputForPush(caps *config.Capabilities, streamName, target string, now time.Time) (*config.OutputDescriptor, string, error) {
	if target == "" {
		return nil, "", coreerrors.NewNotReady("registry.ResolveOutputForPush", "EMPTY_TARGET", nil)
	}
	expanded := ExpandVariables(target, streamName, "", now)

	var (
		selected    *config.OutputDescriptor
		curPriority = -1
	)
	for i := range caps.Outputs {
		desc := &caps.Outputs[i]
		if desc.Priority <= curPriority {
			continue
		}
		matched := false
		for _, pattern := range desc.PushURLs {
			if matchGlob(pattern, expanded) {
				matched = true
				break
			}
		}
		if matched {
			selected = desc
			curPriority = desc.Priority
		}
	}

	if selected == nil {
		return nil, "", coreerrors.NewNotFound("registry.ResolveOutputForPush no compatible output for "+expanded, nil)
	}
	return selected, expanded, nil
}
