package config

import (
	"errors"
	"fmt"
	"sort"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownKeys lists the valid keys of every section.
var knownKeys = map[string][]string{
	"engine":  {"concurrency", "ignore_fields", "max_retries", "retry_backoff"},
	"source":  {"desired_file", "store_path"},
	"network": {"api_base_url", "connect_timeout", "data_timeout", "requests_per_second", "user_agent"},
	"logging": {"log_format", "log_level"},
	"metrics": {"textfile"},
}

// knownSections is the sorted list of section names, for deterministic
// suggestions when two candidates have the same edit distance.
var knownSections = func() []string {
	out := make([]string, 0, len(knownKeys))
	for s := range knownKeys {
		out = append(out, s)
	}

	sort.Strings(out)

	return out
}()

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns
// an error with "did you mean?" suggestions for each unknown key.
func checkUnknownKeys(md *toml.MetaData) error {
	var errs []error

	reportedSections := make(map[string]bool)

	for _, key := range md.Undecoded() {
		section := key[0]

		if _, ok := knownKeys[section]; !ok {
			if reportedSections[section] {
				continue
			}

			reportedSections[section] = true
			errs = append(errs, unknownKeyError("config section", section, closestMatch(section, knownSections)))

			continue
		}

		if len(key) < 2 {
			continue
		}

		field := section + "." + key[1]
		errs = append(errs, unknownKeyError("config key", field, suggestInSection(section, key[1])))
	}

	return errors.Join(errs...)
}

func suggestInSection(section, field string) string {
	match := closestMatch(field, knownKeys[section])
	if match == "" {
		return ""
	}

	return section + "." + match
}

func unknownKeyError(what, name, suggestion string) error {
	if suggestion != "" {
		return fmt.Errorf("unknown %s %q, did you mean %q?", what, name, suggestion)
	}

	return fmt.Errorf("unknown %s %q", what, name)
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

// levenshtein computes the edit distance between two strings using a
// single rolling row pair.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

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
