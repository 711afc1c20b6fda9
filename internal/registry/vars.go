package registry

import (
	"fmt"
	"strings"
	"time"
)

// ExpandVariables substitutes the §4.2 source-string tokens with literal
// values derived from streamName and source, using now for the datetime
// tokens. $datetime expands to the fixed slash-free concatenation of the
// individual date/time tokens, matching the original's substitution of
// "$year.$month.$day.$hour.$minute.$second" before those tokens are
// themselves replaced, so a template containing "$datetime" receives fully
// expanded digits rather than a literal re-expansion placeholder.
func ExpandVariables(template, streamName, source string, now time.Time) string {
	base, wildcard, hasWildcard := SplitBaseWildcard(streamName)

	year := fmt.Sprintf("%04d", now.Year())
	month := fmt.Sprintf("%02d", int(now.Month()))
	day := fmt.Sprintf("%02d", now.Day())
	hour := fmt.Sprintf("%02d", now.Hour())
	minute := fmt.Sprintf("%02d", now.Minute())
	second := fmt.Sprintf("%02d", now.Second())

	result := strings.ReplaceAll(template, "$source", source)
	result = strings.ReplaceAll(result, "$datetime", strings.Join([]string{year, month, day, hour, minute, second}, "."))
	result = strings.ReplaceAll(result, "$day", day)
	result = strings.ReplaceAll(result, "$month", month)
	result = strings.ReplaceAll(result, "$year", year)
	result = strings.ReplaceAll(result, "$hour", hour)
	result = strings.ReplaceAll(result, "$minute", minute)
	result = strings.ReplaceAll(result, "$second", second)
	result = strings.ReplaceAll(result, "$stream", streamName)

	if hasWildcard {
		result = strings.ReplaceAll(result, "$basename", base)
		result = strings.ReplaceAll(result, "$wildcard", wildcard)
		if wildcard != "" {
			result = strings.ReplaceAll(result, "$pluswildcard", "+"+wildcard)
		} else {
			result = strings.ReplaceAll(result, "$pluswildcard", "")
		}
	} else {
		result = strings.ReplaceAll(result, "$basename", streamName)
		result = strings.ReplaceAll(result, "$wildcard", "")
		result = strings.ReplaceAll(result, "$pluswildcard", "")
	}

	return result
}
