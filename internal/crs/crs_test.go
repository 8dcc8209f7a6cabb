package crs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name  string
		input string
		want  Code
	}{
		{name: "epsg upper", input: "EPSG:4326", want: 4326},
		{name: "epsg lower with spaces", input: "  epsg:26713 ", want: 26713},
		{name: "urn", input: "urn:ogc:def:crs:EPSG::3857", want: 3857},
		{name: "opengis uri", input: "http://www.opengis.net/def/crs/EPSG/0/4269", want: 4269},
		{name: "crs84", input: "CRS84", want: WGS84},
		{name: "crs84 urn", input: CRS84Name, want: WGS84},
		{name: "wkt with authority", input: `GEOGCS["WGS 84",DATUM["WGS_1984"],AUTHORITY["EPSG","4326"]]`, want: 4326},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Parse(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	inputs := []string{"", "EPSG:", "EPSG:abc", "EPSG:-1", "EPSG:0", "not a crs", "PROJCS[\"Unknown\"]"}
	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			_, err := Parse(input)
			assert.Error(t, err)
		})
	}
}

func TestFromWKT(t *testing.T) {
	t.Run("outermost authority wins", func(t *testing.T) {
		wkt := `PROJCS["NAD27 / UTM zone 13N",GEOGCS["NAD27",AUTHORITY["EPSG","4267"]],UNIT["metre",1],AUTHORITY["EPSG","26713"]]`
		code, ok := FromWKT(wkt)
		require.True(t, ok)
		assert.Equal(t, Code(26713), code)
	})

	t.Run("esri name without authority", func(t *testing.T) {
		wkt := `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`
		code, ok := FromWKT(wkt)
		require.True(t, ok)
		assert.Equal(t, WGS84, code)
	})

	t.Run("unknown definition", func(t *testing.T) {
		_, ok := FromWKT(`PROJCS["Local grid",UNIT["metre",1]]`)
		assert.False(t, ok)
	})
}

func TestCodeString(t *testing.T) {
	assert.Equal(t, "EPSG:4326", WGS84.String())
}
