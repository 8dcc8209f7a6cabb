package reader

import (
	"sort"
	"strconv"
	"strings"
)

// inferColumnType picks the narrowest type every non-empty value parses as.
func inferColumnType(values []string) AttributeType {
	isInt, isFloat, isBool, seen := true, true, true, false
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		seen = true
		if _, err := strconv.ParseInt(v, 10, 64); err != nil {
			isInt = false
		}
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			isFloat = false
		}
		if _, err := strconv.ParseBool(v); err != nil {
			isBool = false
		}
	}
	switch {
	case !seen:
		return AttributeString
	case isInt:
		return AttributeInteger
	case isFloat:
		return AttributeDouble
	case isBool:
		return AttributeBoolean
	default:
		return AttributeString
	}
}

// parseScalar converts a text value to the Go value of its inferred type.
func parseScalar(v string) interface{} {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return n
	}
	if n, err := strconv.ParseFloat(v, 64); err == nil {
		return n
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return v
}

// jsonValueType maps a decoded JSON value to an attribute type.
func jsonValueType(v interface{}) (AttributeType, bool) {
	switch n := v.(type) {
	case nil:
		return "", false
	case bool:
		return AttributeBoolean, true
	case float64:
		if n == float64(int64(n)) {
			return AttributeInteger, true
		}
		return AttributeDouble, true
	default:
		return AttributeString, true
	}
}

// widen merges two observed types of the same attribute.
func widen(a, b AttributeType) AttributeType {
	switch {
	case a == "":
		return b
	case a == b:
		return a
	case (a == AttributeInteger && b == AttributeDouble) || (a == AttributeDouble && b == AttributeInteger):
		return AttributeDouble
	default:
		return AttributeString
	}
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
