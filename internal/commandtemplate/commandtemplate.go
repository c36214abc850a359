// Package commandtemplate substitutes a job's runtime_args into a
// specification's command string. Placeholders are {{key}}; substitution
// is textual, not shell-aware, so callers are responsible for quoting
// values that need it.
package commandtemplate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	ErrMissingArgument   = errors.New("missing runtime argument for placeholder")
	ErrUnresolvedCommand = errors.New("command still contains unresolved placeholders")
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// Render replaces every {{key}} placeholder in command with args[key].
// A placeholder with no matching argument is left untouched so the error
// return can report exactly which ones are missing.
func Render(command string, args map[string]string) (string, error) {
	var missing []string

	rendered := placeholderPattern.ReplaceAllStringFunc(command, func(match string) string {
		key := placeholderPattern.FindStringSubmatch(match)[1]
		val, ok := args[key]
		if !ok {
			missing = append(missing, key)
			return match
		}
		return val
	})

	if len(missing) > 0 {
		return "", fmt.Errorf("%w: %s", ErrMissingArgument, strings.Join(missing, ", "))
	}

	if placeholderPattern.MatchString(rendered) {
		return "", ErrUnresolvedCommand
	}

	return rendered, nil
}

// RenderLenient substitutes every {{key}} placeholder it has an argument
// for and leaves the rest untouched, returning the names left unresolved.
// Used at dispatch time, where a missing runtime_args key is a warning,
// not a validation error (unlike Render, used by callers that need a
// fully-resolved command or nothing).
func RenderLenient(command string, args map[string]string) (string, []string) {
	var missing []string

	rendered := placeholderPattern.ReplaceAllStringFunc(command, func(match string) string {
		key := placeholderPattern.FindStringSubmatch(match)[1]
		val, ok := args[key]
		if !ok {
			missing = append(missing, key)
			return match
		}
		return val
	})

	return rendered, missing
}

// Placeholders returns the distinct {{key}} names referenced by command, in
// first-seen order. Used by the specification registry to validate that a
// CreateRequest's command doesn't reference a placeholder with an obviously
// bad name, and by callers wanting to know what runtime_args a spec needs.
func Placeholders(command string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(command, -1)
	seen := make(map[string]bool, len(matches))
	out := make([]string, 0, len(matches))

	for _, m := range matches {
		key := m[1]
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, key)
	}

	return out
}
