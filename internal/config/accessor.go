package config

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// GetByPath retrieves a config value by dot-notation path (e.g. "model.name").
func GetByPath(cfg *Config, path string) (any, error) {
	m, err := toMap(cfg)
	if err != nil {
		return nil, err
	}

	var current any = m
	for _, key := range strings.Split(path, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("cannot traverse into %T at %s", current, key)
		}
		current, ok = obj[key]
		if !ok {
			return nil, fmt.Errorf("key not found: %s", path)
		}
	}
	return current, nil
}

// Paths lists every leaf path of the config in sorted order.
func Paths(cfg *Config) []string {
	m, err := toMap(cfg)
	if err != nil {
		return nil
	}
	var out []string
	flatten("", m, &out)
	sort.Strings(out)
	return out
}

func flatten(prefix string, m map[string]any, out *[]string) {
	for k, v := range m {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if child, ok := v.(map[string]any); ok {
			flatten(path, child, out)
			continue
		}
		*out = append(*out, path)
	}
}

func toMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// Sanitize returns a copy of the config with credentials masked.
func Sanitize(cfg *Config) *Config {
	c := *cfg
	c.WhatsApp.AuthToken = maskString(c.WhatsApp.AuthToken)
	c.WhatsApp.VerifyToken = maskString(c.WhatsApp.VerifyToken)
	c.WhatsApp.AppSecret = maskString(c.WhatsApp.AppSecret)
	return &c
}

// maskString shows the first and last 4 chars of long secrets.
func maskString(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 8:
		return "***"
	}
	return s[:4] + "****" + s[len(s)-4:]
}
