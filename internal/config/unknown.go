package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownSections maps each table name to its valid keys. The empty name is
// the top level, where only tables are allowed.
var knownSections = map[string][]string{
	"":            {"cloud", "logging", "server", "store", "sync"},
	"cloud":       {"api_base", "fetch_timeout", "oauth", "probe_timeout", "token", "token_file", "upload_timeout", "user_agent"},
	"cloud.oauth": {"client_id", "client_secret", "scopes", "token_url"},
	"sync":        {"batch_size", "enabled", "probe_interval", "upload_interval"},
	"server":      {"allowed_origins", "listen_addr", "shutdown_timeout"},
	"store":       {"db_path"},
	"logging":     {"log_format", "log_level"},
}

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns
// an error with "did you mean?" suggestions for each unknown key.
func checkUnknownKeys(md *toml.MetaData) error {
	var errs []error

	seen := make(map[string]bool)

	for _, key := range md.Undecoded() {
		err := unknownKeyError(key)
		if err == nil || seen[err.Error()] {
			continue
		}

		seen[err.Error()] = true
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// unknownKeyError describes one undecoded key. Keys nested below an
// unknown table are reported once, at the table.
func unknownKeyError(key toml.Key) error {
	section := ""

	for i, part := range key {
		known, ok := knownSections[section]
		if !ok {
			return nil
		}

		if slices.Contains(known, part) && i < len(key)-1 {
			section = strings.Join(key[:i+1], ".")
			continue
		}

		name := strings.Join(key[:i+1], ".")

		if suggestion := closestMatch(part, known); suggestion != "" && suggestion != part {
			return fmt.Errorf("unknown config key %q, did you mean %q?", name, suggestion)
		}

		return fmt.Errorf("unknown config key %q", name)
	}

	return nil
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
