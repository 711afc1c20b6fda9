package supervisor

import "sort"

// BuildArgv assembles the argv for an input/output binary the way
// Util::startInput does: the binary path, "-s" and the sanitized stream
// name, the source/target string, an optional "--debug" <level> pair when
// the caller did not already override --debug, then every assembled
// parameter in a stable (sorted) order so argv is deterministic and
// testable — the original iterates a std::map, which is already sorted by
// key, so sorting here reproduces the same ordering rather than diverging
// from it.
func BuildArgv(binaryPath, streamName, source string, debugLevel string, params map[string]string) []string {
	argv := []string{binaryPath, "-s", streamName, source}

	if debugLevel != "" {
		if _, overridden := params["--debug"]; !overridden {
			argv = append(argv, "--debug", debugLevel)
		}
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		argv = append(argv, k)
		if v := params[k]; v != "" {
			argv = append(argv, v)
		}
	}

	return argv
}
