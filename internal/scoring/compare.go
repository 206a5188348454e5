package scoring

import (
	"encoding/json"
	"reflect"
	"sort"
	"strings"
)

// CompareAnswer decides whether a submitted value matches the correct answer.
//
//   - string correct: submitted must be a string equal after trim and lower-casing.
//   - list correct, string submitted: the string must match any alternative.
//   - list correct, list submitted: both lists must hold the same normalized
//     values, ignoring order.
//   - anything else: structural equality.
func CompareAnswer(correct, submitted interface{}) bool {
	if c, ok := correct.(string); ok {
		s, ok := submitted.(string)
		if !ok {
			return false
		}
		return normalizeText(c) == normalizeText(s)
	}

	if alternatives, ok := asList(correct); ok {
		if s, ok := submitted.(string); ok {
			want := normalizeText(s)
			for _, alt := range alternatives {
				if str, ok := alt.(string); ok && normalizeText(str) == want {
					return true
				}
			}
			return false
		}
		if selected, ok := asList(submitted); ok {
			return sameSelection(alternatives, selected)
		}
	}

	return reflect.DeepEqual(correct, submitted)
}

func normalizeText(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// asList accepts any slice or array, so both decoded JSON and typed Go slices work.
func asList(v interface{}) ([]interface{}, bool) {
	if v == nil {
		return nil, false
	}
	if l, ok := v.([]interface{}); ok {
		return l, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]interface{}, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func sameSelection(correct, submitted []interface{}) bool {
	if len(correct) != len(submitted) {
		return false
	}
	a := selectionKeys(correct)
	b := selectionKeys(submitted)
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// selectionKeys normalizes each element into a comparable key and sorts them.
func selectionKeys(values []interface{}) []string {
	keys := make([]string, len(values))
	for i, v := range values {
		if s, ok := v.(string); ok {
			keys[i] = "s:" + normalizeText(s)
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			keys[i] = "?"
			continue
		}
		keys[i] = "j:" + string(raw)
	}
	sort.Strings(keys)
	return keys
}
