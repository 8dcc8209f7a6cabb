// Package crs parses and normalizes coordinate reference system identifiers.
package crs

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Code is a normalized EPSG authority code.
type Code int

const (
	// WGS84 is the geographic WGS 84 system (EPSG:4326).
	WGS84 Code = 4326
	// WebMercator is the spherical mercator projection (EPSG:3857).
	WebMercator Code = 3857
)

// CRS84Name is the OGC URN GeoJSON uses for longitude/latitude WGS 84.
const CRS84Name = "urn:ogc:def:crs:OGC:1.3:CRS84"

// String returns the code as "EPSG:n".
func (c Code) String() string {
	return "EPSG:" + strconv.Itoa(int(c))
}

// Valid reports whether the code is inside the range EPSG assigns.
func (c Code) Valid() bool {
	return c > 0 && c < 1000000
}

var (
	epsgPrefixes = []string{
		"epsg:",
		"urn:ogc:def:crs:epsg::",
		"urn:ogc:def:crs:epsg:",
		"urn:x-ogc:def:crs:epsg:",
		"http://www.opengis.net/def/crs/epsg/0/",
		"http://www.opengis.net/gml/srs/epsg.xml#",
	}

	authorityRe = regexp.MustCompile(`(?i)AUTHORITY\s*\[\s*"EPSG"\s*,\s*"?(\d+)"?\s*\]`)
	nameRe      = regexp.MustCompile(`^\s*(?:PROJCS|GEOGCS)\s*\[\s*"([^"]+)"`)
)

// wellKnownNames maps the leading PROJCS/GEOGCS names ESRI writes into .prj
// files, which carry no AUTHORITY clause, to EPSG codes.
var wellKnownNames = map[string]Code{
	"gcs_wgs_1984":                           4326,
	"wgs 84":                                 4326,
	"wgs84":                                  4326,
	"gcs_north_american_1983":                4269,
	"nad83":                                  4269,
	"gcs_north_american_1927":                4267,
	"nad27":                                  4267,
	"gcs_etrs_1989":                          4258,
	"wgs_1984_web_mercator_auxiliary_sphere": 3857,
	"wgs 84 / pseudo-mercator":               3857,
	"nad_1927_utm_zone_13n":                  26713,
	"nad27 / utm zone 13n":                   26713,
	"nad_1983_utm_zone_13n":                  26913,
}

// Parse normalizes a user supplied CRS identifier such as "EPSG:4326",
// "urn:ogc:def:crs:EPSG::26713" or "CRS84".
func Parse(s string) (Code, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return 0, fmt.Errorf("empty crs identifier")
	}
	lower := strings.ToLower(raw)

	switch lower {
	case "crs84", "ogc:crs84", "urn:ogc:def:crs:ogc:1.3:crs84", "urn:ogc:def:crs:ogc::crs84",
		"http://www.opengis.net/def/crs/ogc/1.3/crs84":
		return WGS84, nil
	}

	for _, prefix := range epsgPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return parseNumber(raw, lower[len(prefix):])
		}
	}

	if strings.HasPrefix(lower, "projcs[") || strings.HasPrefix(lower, "geogcs[") {
		code, ok := FromWKT(raw)
		if !ok {
			return 0, fmt.Errorf("unrecognized crs definition %q", truncate(raw, 40))
		}
		return code, nil
	}

	return 0, fmt.Errorf("unrecognized crs identifier %q", raw)
}

func parseNumber(raw, digits string) (Code, error) {
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, fmt.Errorf("invalid epsg code in %q", raw)
	}
	code := Code(n)
	if !code.Valid() {
		return 0, fmt.Errorf("epsg code out of range in %q", raw)
	}
	return code, nil
}

// FromWKT resolves the EPSG code of a WKT definition, as found in a .prj
// sidecar. The outermost AUTHORITY clause wins; otherwise the definition's
// name is looked up among well-known ESRI names.
func FromWKT(wkt string) (Code, bool) {
	matches := authorityRe.FindAllStringSubmatch(wkt, -1)
	if len(matches) > 0 {
		// The outermost authority is the last one in the text.
		n, err := strconv.Atoi(matches[len(matches)-1][1])
		if err == nil && Code(n).Valid() {
			return Code(n), true
		}
	}

	if m := nameRe.FindStringSubmatch(wkt); m != nil {
		if code, ok := wellKnownNames[strings.ToLower(m[1])]; ok {
			return code, true
		}
	}
	return 0, false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
