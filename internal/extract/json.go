package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Decode parses a JSON report into a generic tree. Numbers are kept as
// json.Number so large counters survive the trip without float rounding in
// the raw view. A document that does not parse is a MalformedError carrying
// the full payload.
func Decode(data []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var root interface{}
	if err := dec.Decode(&root); err != nil {
		return nil, &MalformedError{
			Reason: fmt.Sprintf("invalid JSON: %v", err),
			Output: string(data),
		}
	}
	return root, nil
}

// FlattenJSON decodes a JSON document and flattens every numeric leaf into
// a dotted metric name. Strings and booleans never reach the numeric map;
// array elements are addressed by position. Flattening an already-flat
// object of numbers yields the same mapping unchanged.
func FlattenJSON(data []byte) (Set, error) {
	root, err := Decode(data)
	if err != nil {
		return nil, err
	}

	set := Set{}
	flatten("", root, set)
	return set, nil
}

// Lookup walks a decoded tree along a dotted path and returns the value at
// the end of it. Array elements are addressed by index, so "frames.2.avgMs"
// reaches into the third element of a frames array.
func Lookup(root interface{}, path string) (interface{}, bool) {
	node := root
	for _, key := range strings.Split(path, ".") {
		switch v := node.(type) {
		case map[string]interface{}:
			child, ok := v[key]
			if !ok {
				return nil, false
			}
			node = child
		case []interface{}:
			i, err := strconv.Atoi(key)
			if err != nil || i < 0 || i >= len(v) {
				return nil, false
			}
			node = v[i]
		default:
			return nil, false
		}
	}
	return node, true
}

// FlattenTree flattens an already-decoded JSON value, prefixing every
// metric name with the given path segment when it is non-empty.
func FlattenTree(prefix string, root interface{}) Set {
	set := Set{}
	flatten(prefix, root, set)
	return set
}

func flatten(prefix string, node interface{}, out Set) {
	switch v := node.(type) {
	case map[string]interface{}:
		for key, child := range v {
			flatten(joinPath(prefix, key), child, out)
		}
	case []interface{}:
		for i, child := range v {
			flatten(joinPath(prefix, strconv.Itoa(i)), child, out)
		}
	case json.Number:
		if prefix == "" {
			return // A bare scalar is not a metrics tree
		}
		f, err := v.Float64()
		if err != nil {
			return
		}
		out[prefix] = Sample{Value: f, Raw: v.String(), Numeric: true}
	case float64:
		// Trees decoded without UseNumber land here
		if prefix == "" {
			return
		}
		out[prefix] = Sample{Value: v, Raw: strconv.FormatFloat(v, 'g', -1, 64), Numeric: true}
	}
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
