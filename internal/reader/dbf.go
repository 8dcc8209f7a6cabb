package reader

import (
	"strconv"
	"strings"
	"time"

	"github.com/jonas-p/go-shp"
)

// fieldType maps a dBASE field descriptor to an attribute type.
func fieldType(f shp.Field) AttributeType {
	switch f.Fieldtype {
	case 'N':
		if f.Precision > 0 {
			return AttributeDouble
		}
		return AttributeInteger
	case 'F':
		return AttributeDouble
	case 'L':
		return AttributeBoolean
	case 'D':
		return AttributeDate
	default:
		return AttributeString
	}
}

// fieldValue decodes the text of a dBASE cell. Blank cells are nil and
// values that do not parse as their declared type are kept as text.
func fieldValue(f shp.Field, raw string) interface{} {
	s := strings.TrimSpace(strings.TrimRight(raw, "\x00"))
	if s == "" {
		return nil
	}
	switch fieldType(f) {
	case AttributeInteger:
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
	case AttributeDouble:
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return n
		}
	case AttributeBoolean:
		switch s {
		case "T", "t", "Y", "y":
			return true
		case "F", "f", "N", "n":
			return false
		}
		return nil
	case AttributeDate:
		if d, err := time.Parse("20060102", s); err == nil {
			return d.Format("2006-01-02")
		}
	}
	return s
}
