package parse

import (
	"encoding/json"
	"strings"
)

// propertySet is the normalized view of a node's vendor property bag.
// The vendor structures expose dozens of optional, inconsistently named
// keys; normalization happens exactly once here, and nothing deeper in
// the pipeline probes raw JSON again. Unrecognized keys are preserved
// as raw bytes for diagnostics only.
type propertySet struct {
	IntegrationProcedureKey string
	Bundle                  string
	ExecutionCondition      string
	ShowCondition           string
	BlockCondition          string
	LoopMarker              bool
	CacheMarker             bool

	Unknown map[string]json.RawMessage
}

// Known vendor key aliases, lowercased. First alias found wins.
var (
	ipKeyAliases           = []string{"integrationprocedurekey"}
	bundleAliases          = []string{"bundle", "datamappername", "dataraptorbundle"}
	executionCondAliases   = []string{"executionconditionalformula", "executecondition"}
	showCondAliases        = []string{"show", "showcondition"}
	blockCondAliases       = []string{"blockcondition", "condition"}
	loopMarkerAliases      = []string{"looplist", "loopiterator", "repeat"}
	cacheMarkerAliases     = []string{"cachekey", "ttl"}
)

// normalizeProperties decodes a raw property bag into a propertySet.
// A missing or malformed bag yields an empty set; property problems are
// never fatal to parsing.
func normalizeProperties(raw json.RawMessage) propertySet {
	var props propertySet
	if len(raw) == 0 {
		return props
	}

	var bag map[string]json.RawMessage
	if err := json.Unmarshal(raw, &bag); err != nil {
		return props
	}

	lower := make(map[string]json.RawMessage, len(bag))
	for key, value := range bag {
		lower[strings.ToLower(key)] = value
	}

	props.IntegrationProcedureKey = firstString(lower, ipKeyAliases)
	props.Bundle = firstString(lower, bundleAliases)
	props.ExecutionCondition = firstString(lower, executionCondAliases)
	props.ShowCondition = firstCondition(lower, showCondAliases)
	props.BlockCondition = firstCondition(lower, blockCondAliases)
	props.LoopMarker = anyPresent(lower, loopMarkerAliases)
	props.CacheMarker = anyPresent(lower, cacheMarkerAliases)

	known := make(map[string]bool)
	for _, aliases := range [][]string{
		ipKeyAliases, bundleAliases, executionCondAliases,
		showCondAliases, blockCondAliases, loopMarkerAliases, cacheMarkerAliases,
	} {
		for _, alias := range aliases {
			known[alias] = true
		}
	}
	for key, value := range lower {
		if !known[key] {
			if props.Unknown == nil {
				props.Unknown = make(map[string]json.RawMessage)
			}
			props.Unknown[key] = value
		}
	}

	return props
}

// firstString returns the first alias whose value decodes as a
// non-empty string. Non-string values are ignored, never assumed.
func firstString(bag map[string]json.RawMessage, aliases []string) string {
	for _, alias := range aliases {
		raw, ok := bag[alias]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return s
		}
	}
	return ""
}

// firstCondition reads a condition value that the vendor emits either as
// a plain string or as a structured object. Objects are surfaced as
// compact JSON text; conditions are displayed, never evaluated.
func firstCondition(bag map[string]json.RawMessage, aliases []string) string {
	for _, alias := range aliases {
		raw, ok := bag[alias]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if s != "" {
				return s
			}
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal(raw, &obj); err == nil && len(obj) > 0 {
			if compact, err := json.Marshal(obj); err == nil {
				return string(compact)
			}
		}
	}
	return ""
}

// anyPresent reports whether any alias carries a non-null, non-empty value.
func anyPresent(bag map[string]json.RawMessage, aliases []string) bool {
	for _, alias := range aliases {
		raw, ok := bag[alias]
		if !ok {
			continue
		}
		trimmed := strings.TrimSpace(string(raw))
		switch trimmed {
		case "", "null", `""`, "[]", "{}", "0", "false":
			continue
		}
		return true
	}
	return false
}
