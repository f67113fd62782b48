// Package prompts holds the report-writing prompt templates. Each JSON file
// maps a prompt name to a text/template body and is embedded at compile time.
package prompts

import (
	"embed"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"text/template"
)

//go:embed *.json
var promptFiles embed.FS

// file is one parsed prompt file.
type file struct {
	raw       map[string]string
	templates map[string]*template.Template
}

var (
	cacheMu sync.Mutex
	cache   = make(map[string]*file)
)

// Get returns the unrendered body of a prompt.
func Get(filename, key string) (string, error) {
	f, err := load(filename)
	if err != nil {
		return "", err
	}
	body, ok := f.raw[key]
	if !ok {
		return "", fmt.Errorf("prompt key %q not found in %s", key, filename)
	}
	return body, nil
}

// Render executes a prompt against data. A placeholder with no matching
// entry in data is an error rather than an empty string.
func Render(filename, key string, data map[string]string) (string, error) {
	f, err := load(filename)
	if err != nil {
		return "", err
	}
	tmpl, ok := f.templates[key]
	if !ok {
		return "", fmt.Errorf("prompt key %q not found in %s", key, filename)
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("failed to render prompt %s/%s: %w", filename, key, err)
	}
	return sb.String(), nil
}

// Keys returns the prompt names in a file, sorted.
func Keys(filename string) ([]string, error) {
	f, err := load(filename)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(f.raw))
	for key := range f.raw {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys, nil
}

// load parses a prompt file once and caches the result, including every
// template, so a malformed prompt fails on first use of its file.
func load(filename string) (*file, error) {
	cacheMu.Lock()
	defer cacheMu.Unlock()

	if f, ok := cache[filename]; ok {
		return f, nil
	}

	data, err := promptFiles.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt file %s: %w", filename, err)
	}

	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse prompt file %s: %w", filename, err)
	}

	f := &file{raw: raw, templates: make(map[string]*template.Template, len(raw))}
	for key, body := range raw {
		tmpl, err := template.New(key).Option("missingkey=error").Parse(body)
		if err != nil {
			return nil, fmt.Errorf("failed to parse prompt %s/%s: %w", filename, key, err)
		}
		f.templates[key] = tmpl
	}

	cache[filename] = f
	return f, nil
}
