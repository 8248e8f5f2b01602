package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// jobStringKeys are JobConfig fields decoded as strings. YAML reads bare
// values such as "group: 2024" or "trigger: 7" as numbers.
var jobStringKeys = map[string]bool{
	"name": true, "group": true, "trigger": true, "cron": true, "description": true,
	"kind": true, "command": true, "url": true, "secret": true, "message": true, "timeout": true,
}

// bareCron matches a cron value YAML cannot read unquoted: '*' starts an
// alias and '@' is reserved.
var bareCron = regexp.MustCompile(`^\s*(?:-\s+)?cron:\s*[*@]`)

// coerceToJSONBytes converts a YAML config to JSON so both formats go
// through the same strict decoder.
//
// Returns (jsonBytes, format, err) where format is "json" or "yaml".
func coerceToJSONBytes(path string, data []byte) ([]byte, string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return data, "json", nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	var v any
	if err := dec.Decode(&v); err != nil && !errors.Is(err, io.EOF) {
		return nil, "yaml", fmt.Errorf("yaml: %w%s", err, cronQuoteHint(data))
	}
	var extra any
	if err := dec.Decode(&extra); err == nil {
		return nil, "yaml", errors.New("yaml: config must be a single document")
	} else if !errors.Is(err, io.EOF) {
		return nil, "yaml", fmt.Errorf("yaml: %w", err)
	}

	v = normalizeYAML(v)
	coerceJobScalars(v)

	j, err := json.Marshal(v)
	if err != nil {
		return nil, "yaml", fmt.Errorf("yaml->json marshal: %w", err)
	}
	return j, "yaml", nil
}

// cronQuoteHint points at the first unquoted cron value YAML would reject.
func cronQuoteHint(data []byte) string {
	for i, line := range strings.Split(string(data), "\n") {
		if bareCron.MatchString(line) {
			return fmt.Sprintf(" (line %d: quote cron expressions that start with '*' or '@')", i+1)
		}
	}
	return ""
}

// normalizeYAML ensures all map keys are strings so the result can be JSON-marshaled.
func normalizeYAML(in any) any {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = normalizeYAML(v)
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[k] = normalizeYAML(v)
		}
		return m
	case []any:
		for i := range x {
			x[i] = normalizeYAML(x[i])
		}
		return x
	default:
		return in
	}
}

// coerceJobScalars turns numeric and boolean scalars under jobs[*] string
// fields back into strings.
func coerceJobScalars(root any) {
	m, ok := root.(map[string]any)
	if !ok {
		return
	}
	list, ok := m["jobs"].([]any)
	if !ok {
		return
	}
	for _, item := range list {
		job, ok := item.(map[string]any)
		if !ok {
			continue
		}
		for k, v := range job {
			if !jobStringKeys[k] {
				continue
			}
			switch v.(type) {
			case int, int64, uint64, float64, bool:
				job[k] = fmt.Sprint(v)
			}
		}
	}
}
