package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// segment is one step of a dotted config path: a map key or a list index.
type segment struct {
	key   string
	index int // -1 for map keys
}

// GetValue returns the effective value at a dotted path such as
// "pipeline.allowedSenders[0]". Environment overrides are included.
func GetValue(path string) (any, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	tree, err := toTree(cfg)
	if err != nil {
		return nil, err
	}
	segs, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	v, ok := lookup(tree, segs)
	if !ok {
		return nil, fmt.Errorf("path not found: %s", path)
	}
	return v, nil
}

// SetValue writes raw (JSON, or a plain string) at path in the config file.
// The result must still decode into Config.
func SetValue(path, raw string) error {
	return editFile(path, func(tree map[string]any, segs []segment) (map[string]any, error) {
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		out, _ := assign(tree, segs, v).(map[string]any)
		return out, nil
	})
}

// UnsetValue removes path from the config file.
func UnsetValue(path string) error {
	return editFile(path, func(tree map[string]any, segs []segment) (map[string]any, error) {
		out, removed := remove(tree, segs)
		if !removed {
			return nil, fmt.Errorf("path not found: %s", path)
		}
		m, _ := out.(map[string]any)
		return m, nil
	})
}

func editFile(path string, edit func(map[string]any, []segment) (map[string]any, error)) error {
	segs, err := splitPath(path)
	if err != nil {
		return err
	}
	cfgPath, err := ConfigPath()
	if err != nil {
		return err
	}
	tree := map[string]any{}
	data, err := os.ReadFile(cfgPath)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &tree); err != nil {
			return fmt.Errorf("parse %s: %w", cfgPath, err)
		}
		if tree == nil {
			tree = map[string]any{}
		}
	case !os.IsNotExist(err):
		return err
	}

	tree, err = edit(tree, segs)
	if err != nil {
		return err
	}
	if tree == nil {
		return fmt.Errorf("invalid config root after editing %s", path)
	}
	out, err := json.MarshalIndent(tree, "", "  ")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(out, DefaultConfig()); err != nil {
		return fmt.Errorf("invalid value for %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(cfgPath), 0o700); err != nil {
		return err
	}
	return os.WriteFile(cfgPath, out, 0o600)
}

func toTree(cfg *Config) (map[string]any, error) {
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

func splitPath(path string) ([]segment, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("path is empty")
	}
	var segs []segment
	for _, part := range strings.Split(path, ".") {
		part = strings.TrimSpace(part)
		key, rest, _ := strings.Cut(part, "[")
		if key != "" {
			segs = append(segs, segment{key: key, index: -1})
		}
		for rest != "" {
			raw, after, ok := strings.Cut(rest, "]")
			if !ok {
				return nil, fmt.Errorf("invalid path: missing closing ] in %q", path)
			}
			idx, err := strconv.Atoi(strings.TrimSpace(raw))
			if err != nil || idx < 0 {
				return nil, fmt.Errorf("invalid array index %q in %q", raw, path)
			}
			segs = append(segs, segment{index: idx})
			rest = strings.TrimPrefix(after, "[")
			if after != "" && !strings.HasPrefix(after, "[") {
				return nil, fmt.Errorf("invalid path: unexpected %q in %q", after, path)
			}
		}
	}
	if len(segs) == 0 {
		return nil, fmt.Errorf("path is empty")
	}
	return segs, nil
}

func lookup(node any, segs []segment) (any, bool) {
	for _, s := range segs {
		if s.index >= 0 {
			list, ok := node.([]any)
			if !ok || s.index >= len(list) {
				return nil, false
			}
			node = list[s.index]
			continue
		}
		obj, ok := node.(map[string]any)
		if !ok {
			return nil, false
		}
		if node, ok = obj[s.key]; !ok {
			return nil, false
		}
	}
	return node, true
}

// assign sets v at segs below node, creating maps and growing lists as needed.
func assign(node any, segs []segment, v any) any {
	if len(segs) == 0 {
		return v
	}
	s := segs[0]
	if s.index >= 0 {
		list, _ := node.([]any)
		for len(list) <= s.index {
			list = append(list, nil)
		}
		list[s.index] = assign(list[s.index], segs[1:], v)
		return list
	}
	obj, ok := node.(map[string]any)
	if !ok {
		obj = map[string]any{}
	}
	obj[s.key] = assign(obj[s.key], segs[1:], v)
	return obj
}

func remove(node any, segs []segment) (any, bool) {
	s := segs[0]
	last := len(segs) == 1
	if s.index >= 0 {
		list, ok := node.([]any)
		if !ok || s.index >= len(list) {
			return node, false
		}
		if last {
			return append(list[:s.index], list[s.index+1:]...), true
		}
		child, removed := remove(list[s.index], segs[1:])
		list[s.index] = child
		return list, removed
	}
	obj, ok := node.(map[string]any)
	if !ok {
		return node, false
	}
	child, exists := obj[s.key]
	if !exists {
		return node, false
	}
	if last {
		delete(obj, s.key)
		return obj, true
	}
	child, removed := remove(child, segs[1:])
	obj[s.key] = child
	return obj, removed
}
