package analysis

import (
	"regexp"
	"sort"

	"github.com/forgebench/forgebench/internal/metrics"
)

// ErrorSignature is a normalized error pattern with occurrence metadata.
type ErrorSignature struct {
	Pattern           string   `json:"pattern"`
	Count             int      `json:"count"`
	AffectedScenarios []string `json:"affected_scenarios"`
	AffectedActions   []string `json:"affected_actions"`
	SampleError       string   `json:"sample_error"`
}

// Normalization patterns, most specific first so numbers do not consume
// digits belonging to UUIDs, timestamps, or addresses.
var (
	uuidPattern      = regexp.MustCompile(`[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
	timestampPattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}`)
	ipPattern        = regexp.MustCompile(`\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}`)
	pathPattern      = regexp.MustCompile(`/[a-zA-Z0-9/_.-]+`)
	numberPattern    = regexp.MustCompile(`\d+`)
)

// NormalizeError replaces dynamic values in an error message with
// placeholders so repeated failures group under one signature.
func NormalizeError(msg string) string {
	msg = uuidPattern.ReplaceAllString(msg, "<UUID>")
	msg = timestampPattern.ReplaceAllString(msg, "<TS>")
	msg = ipPattern.ReplaceAllString(msg, "<IP>")
	msg = pathPattern.ReplaceAllString(msg, "<PATH>")
	msg = numberPattern.ReplaceAllString(msg, "<NUM>")
	return msg
}

type signatureData struct {
	count     int
	scenarios map[string]struct{}
	actions   map[string]struct{}
	sample    string
}

// ExtractSignatures groups run errors by normalized pattern and returns the
// top N sorted by count descending (ties broken by pattern for stability).
func ExtractSignatures(errors []metrics.StressError, topN int) []ErrorSignature {
	if len(errors) == 0 {
		return []ErrorSignature{}
	}

	byPattern := make(map[string]*signatureData)
	for i := range errors {
		e := &errors[i]
		if e.Error == "" {
			continue
		}

		pattern := NormalizeError(e.Error)
		sig, ok := byPattern[pattern]
		if !ok {
			sig = &signatureData{
				scenarios: make(map[string]struct{}),
				actions:   make(map[string]struct{}),
				sample:    e.Error,
			}
			byPattern[pattern] = sig
		}

		sig.count++
		if e.Scenario != "" {
			sig.scenarios[e.Scenario] = struct{}{}
		}
		if e.Action != "" {
			sig.actions[e.Action] = struct{}{}
		}
	}

	out := make([]ErrorSignature, 0, len(byPattern))
	for pattern, sig := range byPattern {
		out = append(out, ErrorSignature{
			Pattern:           pattern,
			Count:             sig.count,
			AffectedScenarios: sortedKeys(sig.scenarios),
			AffectedActions:   sortedKeys(sig.actions),
			SampleError:       sig.sample,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Pattern < out[j].Pattern
	})

	if topN > 0 && len(out) > topN {
		out = out[:topN]
	}
	return out
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
