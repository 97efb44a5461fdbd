package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownKeys lists the valid keys per section. The empty section holds
// top-level keys; "profile" holds the keys inside each [profile.NAME].
var knownKeys = map[string][]string{
	"":         {"default_profile", "profile", "logging", "network", "query", "snapshot"},
	"profile":  {"url", "auth", "tenant", "client_id", "project", "domain", "username"},
	"logging":  {"log_level", "log_format"},
	"network":  {"connect_timeout", "data_timeout", "user_agent", "requests_per_second", "api_version"},
	"query":    {"batch_concurrency", "default_top"},
	"snapshot": {"db_path"},
}

// sortedKnownKeys is knownKeys with each list sorted, for deterministic
// suggestions when two candidates have the same edit distance.
var sortedKnownKeys = func() map[string][]string {
	out := make(map[string][]string, len(knownKeys))
	for section, keys := range knownKeys {
		sorted := append([]string(nil), keys...)
		sort.Strings(sorted)
		out[section] = sorted
	}

	return out
}()

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns an
// error with "did you mean?" suggestions for each one.
func checkUnknownKeys(md *toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}

	var errs []error

	// An unknown table reports once, not once per key inside it.
	seen := make(map[string]bool, len(undecoded))

	for _, key := range undecoded {
		err := unknownKeyError(key)
		if seen[err.Error()] {
			continue
		}

		seen[err.Error()] = true
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// unknownKeyError describes one undecoded key relative to its section.
func unknownKeyError(key toml.Key) error {
	var (
		section, field string
		table          []string
	)

	switch {
	case len(key) >= 3 && key[0] == "profile":
		section, field, table = "profile", key[2], key[:2]
	case len(key) >= 2 && key[0] != "profile":
		section, field, table = key[0], key[1], key[:1]
	default:
		field = key[len(key)-1]
	}

	candidates, ok := sortedKnownKeys[section]
	if !ok {
		candidates = sortedKnownKeys[""]
		field = key[0]
	}

	where := ""
	if section != "" && ok {
		where = fmt.Sprintf(" in [%s]", strings.Join(table, "."))
	}

	if suggestion := closestMatch(field, candidates); suggestion != "" && suggestion != field {
		return fmt.Errorf("unknown config key %q%s, did you mean %q?", field, where, suggestion)
	}

	return fmt.Errorf("unknown config key %q%s", field, where)
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		d := levenshtein(unknown, k)
		if d < bestDist {
			bestDist = d
			best = k
		}
	}

	if bestDist <= maxLevenshteinDistance {
		return best
	}

	return ""
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	// Single-row optimization: two rows instead of a full matrix.
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = min(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}
