// Package semver provides function reference parsing and version resolution.
package semver

import (
	"fmt"
	"regexp"
	"strings"
)

const logPrefix = "semver:parser"

// FunctionRef holds the parsed components of a function reference string.
type FunctionRef struct {
	// Function name (e.g., "sbWebhook")
	Name string
	// Version range if specified (e.g., "^1.2.0", "1", ""); empty string means no version
	Range string
	// Raw input string
	Raw string
}

var (
	functionNameRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9._-]*$`)
	appIDRegex        = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)
	majorOnlyRegex    = regexp.MustCompile(`^\d+$`)
)

// ParseFunctionRef parses a function reference string.
//
// Supported formats:
//   - sbWebhook           (no version)
//   - sbWebhook@2         (major only)
//   - sbWebhook@2.1.0     (exact version)
//   - sbWebhook@^2.1.0    (caret range)
//   - sbWebhook@~2.1.0    (tilde range)
//   - sbWebhook@>=2.0.0   (comparison range)
func ParseFunctionRef(input string) (*FunctionRef, error) {
	raw := strings.TrimSpace(input)

	name, rangeStr, _ := strings.Cut(raw, "@")
	if name == "" {
		return nil, fmt.Errorf("%s - empty function name: %q", logPrefix, input)
	}
	if !ValidateFunctionName(name) {
		return nil, fmt.Errorf("%s - invalid function name: %q", logPrefix, name)
	}

	return &FunctionRef{
		Name:  name,
		Range: strings.TrimSpace(rangeStr),
		Raw:   raw,
	}, nil
}

// String rebuilds the reference in name[@range] form.
func (r *FunctionRef) String() string {
	if r.Range == "" {
		return r.Name
	}
	return r.Name + "@" + r.Range
}

// IsMajorOnly checks if a range is a major-only specifier (e.g., "3").
func IsMajorOnly(rangeStr string) bool {
	return majorOnlyRegex.MatchString(rangeStr)
}

// ExtractMajorFromRange extracts the major version if the range is major-only.
// Returns -1 if not a major-only range.
func ExtractMajorFromRange(rangeStr string) int {
	if !IsMajorOnly(rangeStr) {
		return -1
	}
	var major int
	fmt.Sscanf(rangeStr, "%d", &major)
	return major
}

// ValidateFunctionName validates a function name (letters, digits, dots, hyphens, underscores).
func ValidateFunctionName(name string) bool {
	return functionNameRegex.MatchString(name)
}

// ValidateAppID validates an application id.
func ValidateAppID(appID string) bool {
	return appIDRegex.MatchString(appID)
}
