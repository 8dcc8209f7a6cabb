// Package readertest writes small on-disk fixtures for reader, importer and
// API tests.
package readertest

import (
	"archive/zip"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"
)

// WGS84PRJ is an ESRI style projection definition without an authority clause.
const WGS84PRJ = `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`

// Field is a dBASE character field fixture.
type Field struct {
	Name   string
	Length int
}

// Shapefile describes a point shapefile fixture.
type Shapefile struct {
	Name   string
	Fields []Field
	Rows   [][]string
	PRJ    string // empty: no .prj sidecar
}

// DefaultShapefile returns a two-record point shapefile named name. Record
// i is located at PointAt(i).
func DefaultShapefile(name string, prj string) Shapefile {
	return Shapefile{
		Name:   name,
		Fields: []Field{{Name: "CAT_ID", Length: 8}, {Name: "NAME", Length: 16}},
		Rows:   [][]string{{"1", "first"}, {"2", "second"}},
		PRJ:    prj,
	}
}

// PointAt is the location of record i of a fixture shapefile.
func PointAt(i int) (x, y float64) {
	return 10 + float64(i), 20 + float64(i)
}

// WriteShapefile writes the .shp, .shx, .dbf and optional .prj files of s
// into dir and returns the .shp path.
func WriteShapefile(t testing.TB, dir string, s Shapefile) string {
	t.Helper()
	base := filepath.Join(dir, s.Name)

	shp, shx := points(len(s.Rows))
	must(t, os.WriteFile(base+".shp", shp, 0o644))
	must(t, os.WriteFile(base+".shx", shx, 0o644))
	must(t, os.WriteFile(base+".dbf", dbf(s.Fields, s.Rows), 0o644))
	if s.PRJ != "" {
		must(t, os.WriteFile(base+".prj", []byte(s.PRJ), 0o644))
	}
	return base + ".shp"
}

// WriteFile writes content to dir/name and returns the path.
func WriteFile(t testing.TB, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	must(t, os.MkdirAll(filepath.Dir(path), 0o755))
	must(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// ZipDir packs every regular file of dir, flat, into a zip archive at dst.
func ZipDir(t testing.TB, dir, dst string) string {
	t.Helper()
	out, err := os.Create(dst)
	must(t, err)
	defer out.Close()

	zw := zip.NewWriter(out)
	entries, err := os.ReadDir(dir)
	must(t, err)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		w, err := zw.Create(e.Name())
		must(t, err)
		in, err := os.Open(filepath.Join(dir, e.Name()))
		must(t, err)
		_, err = io.Copy(w, in)
		in.Close()
		must(t, err)
	}
	must(t, zw.Close())
	return dst
}

const (
	shpHeaderLen   = 100
	pointRecordLen = 8 + 20 // record header + shape type and coordinates
)

// points builds the .shp and .shx contents of n point records.
func points(n int) (shp, shx []byte) {
	shp = shpHeader(shpHeaderLen + n*pointRecordLen)
	shx = shpHeader(shpHeaderLen + n*8)
	for i := 0; i < n; i++ {
		x, y := PointAt(i)
		rec := make([]byte, pointRecordLen)
		binary.BigEndian.PutUint32(rec[0:4], uint32(i+1))
		binary.BigEndian.PutUint32(rec[4:8], 10) // content length in 16-bit words
		binary.LittleEndian.PutUint32(rec[8:12], 1)
		binary.LittleEndian.PutUint64(rec[12:20], math.Float64bits(x))
		binary.LittleEndian.PutUint64(rec[20:28], math.Float64bits(y))
		shp = append(shp, rec...)

		idx := make([]byte, 8)
		binary.BigEndian.PutUint32(idx[0:4], uint32((shpHeaderLen+i*pointRecordLen)/2))
		binary.BigEndian.PutUint32(idx[4:8], 10)
		shx = append(shx, idx...)
	}
	if n > 0 {
		minX, minY := PointAt(0)
		maxX, maxY := PointAt(n - 1)
		for _, h := range [][]byte{shp, shx} {
			binary.LittleEndian.PutUint64(h[36:44], math.Float64bits(minX))
			binary.LittleEndian.PutUint64(h[44:52], math.Float64bits(minY))
			binary.LittleEndian.PutUint64(h[52:60], math.Float64bits(maxX))
			binary.LittleEndian.PutUint64(h[60:68], math.Float64bits(maxY))
		}
	}
	return shp, shx
}

// shpHeader returns a point file header for a file of size bytes.
func shpHeader(size int) []byte {
	h := make([]byte, shpHeaderLen)
	binary.BigEndian.PutUint32(h[0:4], 9994)
	binary.BigEndian.PutUint32(h[24:28], uint32(size/2)) // length in 16-bit words
	binary.LittleEndian.PutUint32(h[28:32], 1000)
	binary.LittleEndian.PutUint32(h[32:36], 1)
	return h
}

func dbf(fields []Field, rows [][]string) []byte {
	recordLen := 1
	for _, f := range fields {
		recordLen += f.Length
	}
	headerLen := 32 + 32*len(fields) + 1

	b := make([]byte, 32, headerLen+recordLen*len(rows)+1)
	b[0] = 0x03
	binary.LittleEndian.PutUint32(b[4:8], uint32(len(rows)))
	binary.LittleEndian.PutUint16(b[8:10], uint16(headerLen))
	binary.LittleEndian.PutUint16(b[10:12], uint16(recordLen))

	for _, f := range fields {
		desc := make([]byte, 32)
		copy(desc[:11], f.Name)
		desc[11] = 'C'
		desc[16] = byte(f.Length)
		b = append(b, desc...)
	}
	b = append(b, 0x0D)

	for _, row := range rows {
		b = append(b, ' ')
		for i, f := range fields {
			v := ""
			if i < len(row) {
				v = row[i]
			}
			b = append(b, fmt.Sprintf("%-*s", f.Length, v)[:f.Length]...)
		}
	}
	return append(b, 0x1A)
}

func must(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("fixture: %v", err)
	}
}
