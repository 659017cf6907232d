package semver

import (
	"sort"

	masterminds "github.com/Masterminds/semver/v3"
)

// Version statuses.
const (
	StatusActive     = "active"
	StatusDeprecated = "deprecated"
	StatusDisabled   = "disabled"
)

// Candidate is one registered version of a function.
type Candidate struct {
	Version string
	Status  string
}

type parsedCandidate struct {
	index   int
	version *masterminds.Version
	status  string
}

// Resolve picks the best candidate for rangeStr and returns its index.
//
// Disabled candidates and unparseable versions are never chosen. With an empty
// range the highest stable version wins (prereleases only when nothing stable
// exists). A major-only range ("2") restricts to that major. Anything else is a
// SemVer constraint; if it does not parse it is matched as an exact version
// string. Among equal choices active versions are preferred over deprecated.
func Resolve(candidates []Candidate, rangeStr string) (int, bool) {
	parsed := make([]parsedCandidate, 0, len(candidates))
	for i, c := range candidates {
		if c.Status == StatusDisabled {
			continue
		}
		v, err := masterminds.NewVersion(c.Version)
		if err != nil {
			continue
		}
		parsed = append(parsed, parsedCandidate{index: i, version: v, status: c.Status})
	}
	if len(parsed) == 0 {
		return -1, false
	}

	var matching []parsedCandidate
	switch {
	case rangeStr == "":
		matching = preferStable(parsed)
	case IsMajorOnly(rangeStr):
		major := uint64(ExtractMajorFromRange(rangeStr))
		var inMajor []parsedCandidate
		for _, p := range parsed {
			if p.version.Major() == major {
				inMajor = append(inMajor, p)
			}
		}
		matching = preferStable(inMajor)
	default:
		constraint, err := masterminds.NewConstraint(rangeStr)
		if err != nil {
			for i, c := range candidates {
				if c.Version == rangeStr && c.Status != StatusDisabled {
					return i, true
				}
			}
			return -1, false
		}
		for _, p := range parsed {
			if constraint.Check(p.version) {
				matching = append(matching, p)
			}
		}
	}
	if len(matching) == 0 {
		return -1, false
	}

	sort.SliceStable(matching, func(i, j int) bool {
		return matching[i].version.GreaterThan(matching[j].version)
	})
	for _, m := range matching {
		if m.status != StatusDeprecated {
			return m.index, true
		}
	}
	return matching[0].index, true
}

// Normalize returns the canonical form of version, or an error if it is not SemVer.
func Normalize(version string) (string, error) {
	v, err := masterminds.NewVersion(version)
	if err != nil {
		return "", err
	}
	return v.String(), nil
}

func preferStable(in []parsedCandidate) []parsedCandidate {
	var stable []parsedCandidate
	for _, p := range in {
		if p.version.Prerelease() == "" {
			stable = append(stable, p)
		}
	}
	if len(stable) > 0 {
		return stable
	}
	return in
}
