package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

func splitPath(path string) (string, []string, error) {
	path = strings.Trim(path, "/")
	if path == "" {
		return "", nil, ErrInvalidPath
	}
	segs := strings.Split(path, "/")
	for _, s := range segs {
		if s == "" || s == "." || s == ".." {
			return "", nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	return segs[0], segs[1:], nil
}

// decodeTree parses JSON into map/slice/json.Number/string/bool nodes.
func decodeTree(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return normalize(v), nil
}

// toTree converts an arbitrary Go value into tree nodes.
func toTree(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	if raw, ok := value.(json.RawMessage); ok {
		return decodeTree(raw)
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to encode value: %w", err)
	}
	return decodeTree(data)
}

// encodeTree renders a node canonically: object keys sorted, no spaces.
func encodeTree(node any) ([]byte, error) {
	if node == nil {
		return nil, nil
	}
	return json.Marshal(node)
}

// normalize prunes null members and empty containers, which do not exist
// as nodes.
func normalize(v any) any {
	switch n := v.(type) {
	case map[string]any:
		for k, c := range n {
			if c = normalize(c); c == nil {
				delete(n, k)
			} else {
				n[k] = c
			}
		}
		if len(n) == 0 {
			return nil
		}
		return n
	case []any:
		for i, c := range n {
			n[i] = normalize(c)
		}
		for len(n) > 0 && n[len(n)-1] == nil {
			n = n[:len(n)-1]
		}
		if len(n) == 0 {
			return nil
		}
		return n
	default:
		return v
	}
}

func getAt(node any, segs []string) any {
	cur := node
	for _, s := range segs {
		switch n := cur.(type) {
		case map[string]any:
			cur = n[s]
		case []any:
			i, err := strconv.Atoi(s)
			if err != nil || i < 0 || i >= len(n) {
				return nil
			}
			cur = n[i]
		default:
			return nil
		}
		if cur == nil {
			return nil
		}
	}
	return cur
}

// setAt places value at segs below node and returns the new node. Container
// nodes along the path are modified in place.
func setAt(node any, segs []string, value any) any {
	if len(segs) == 0 {
		return value
	}
	key := segs[0]

	switch n := node.(type) {
	case map[string]any:
		child := setAt(n[key], segs[1:], value)
		if child == nil {
			delete(n, key)
		} else {
			n[key] = child
		}
		if len(n) == 0 {
			return nil
		}
		return n
	case []any:
		i, err := strconv.Atoi(key)
		if err == nil && i >= 0 && i <= len(n) {
			var existing any
			if i < len(n) {
				existing = n[i]
			}
			child := setAt(existing, segs[1:], value)
			switch {
			case i == len(n):
				if child == nil {
					return n
				}
				return append(n, child)
			case child != nil:
				n[i] = child
				return n
			case i == len(n)-1:
				return normalize(n[:i])
			}
		}
		// Sparse writes turn the array into an object keyed by index.
		return setAt(arrayToMap(n), segs, value)
	default:
		child := setAt(nil, segs[1:], value)
		if child == nil {
			return node
		}
		return map[string]any{key: child}
	}
}

func arrayToMap(list []any) map[string]any {
	m := make(map[string]any, len(list))
	for i, v := range list {
		if v != nil {
			m[strconv.Itoa(i)] = v
		}
	}
	return m
}

// childrenOf returns the children of node in child order.
func childrenOf(node any) ([]string, map[string]any) {
	vals := make(map[string]any)
	switch n := node.(type) {
	case map[string]any:
		for k, v := range n {
			vals[k] = v
		}
	case []any:
		for i, v := range n {
			if v != nil {
				vals[strconv.Itoa(i)] = v
			}
		}
	}
	keys := make([]string, 0, len(vals))
	for k := range vals {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return childLess(keys[i], keys[j]) })
	return keys, vals
}

// childLess orders integer keys numerically ahead of all other keys, which
// sort lexicographically.
func childLess(a, b string) bool {
	ai, aerr := strconv.ParseInt(a, 10, 64)
	bi, berr := strconv.ParseInt(b, 10, 64)
	switch {
	case aerr == nil && berr == nil:
		return ai < bi
	case aerr == nil:
		return true
	case berr == nil:
		return false
	default:
		return a < b
	}
}

func lastSegment(root string, segs []string) string {
	if len(segs) == 0 {
		return root
	}
	return segs[len(segs)-1]
}

func joinPath(root string, segs []string) string {
	if len(segs) == 0 {
		return root
	}
	return root + "/" + strings.Join(segs, "/")
}
