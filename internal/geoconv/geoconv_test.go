package geoconv

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/traditionalchinese"
)

func big5(t *testing.T, s string) string {
	t.Helper()
	out, err := traditionalchinese.Big5.NewEncoder().String(s)
	require.NoError(t, err)
	return out
}

type fixturePoint struct {
	caseNo  string
	lon     float64
	lat     float64
	address string
	date    string
}

// writeFixture creates a point shapefile with Big5-encoded field names and
// text, as MOENV publishes it.
func writeFixture(t *testing.T, dir string, points []fixturePoint) string {
	t.Helper()
	path := filepath.Join(dir, "dumpsite.shp")

	w, err := shp.Create(path, shp.POINT)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{
		shp.StringField(big5(t, "案件編號"), 20),
		shp.FloatField("Lon", 12, 6),
		shp.FloatField("Lat", 12, 6),
		shp.StringField(big5(t, "地址"), 50),
		shp.DateField(big5(t, "日期")),
	}))

	for _, p := range points {
		row := int(w.Write(&shp.Point{X: p.lon, Y: p.lat}))
		require.NoError(t, w.WriteAttribute(row, 0, big5(t, p.caseNo)))
		require.NoError(t, w.WriteAttribute(row, 1, p.lon))
		require.NoError(t, w.WriteAttribute(row, 2, p.lat))
		require.NoError(t, w.WriteAttribute(row, 3, big5(t, p.address)))
		require.NoError(t, w.WriteAttribute(row, 4, p.date))
	}
	w.Close()
	return path
}

type outputFeature struct {
	Type       string                              `json:"type"`
	Properties *orderedmap.OrderedMap[string, any] `json:"properties"`
	Geometry   *struct {
		Type        string    `json:"type"`
		Coordinates []float64 `json:"coordinates"`
	} `json:"geometry"`
}

func readOutput(t *testing.T, path string) []outputFeature {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc struct {
		Type     string          `json:"type"`
		Features []outputFeature `json:"features"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "FeatureCollection", doc.Type)
	return doc.Features
}

func propKeys(p *orderedmap.OrderedMap[string, any]) []string {
	var out []string
	for pair := p.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Key)
	}
	return out
}

func TestNative_ConvertsBig5Shapefile(t *testing.T) {
	dir := t.TempDir()
	shpPath := writeFixture(t, dir, []fixturePoint{
		{caseNo: "X1", lon: 121.0, lat: 25.0, address: "台北市信義區", date: "20240115"},
		{caseNo: "X2", lon: 120.5, lat: 23.25, address: "", date: ""},
	})
	outPath := filepath.Join(dir, "out", "output.geojson")

	require.NoError(t, (&Native{Charset: "big5"}).Convert(context.Background(), shpPath, outPath))

	features := readOutput(t, outPath)
	require.Len(t, features, 2)

	first := features[0]
	assert.Equal(t, "Feature", first.Type)
	assert.Equal(t, []string{"案件編號", "Lon", "Lat", "地址", "日期"}, propKeys(first.Properties))

	caseNo, _ := first.Properties.Get("案件編號")
	assert.Equal(t, "X1", caseNo)
	lon, _ := first.Properties.Get("Lon")
	assert.Equal(t, 121.0, lon)
	addr, _ := first.Properties.Get("地址")
	assert.Equal(t, "台北市信義區", addr)
	date, _ := first.Properties.Get("日期")
	assert.Equal(t, "2024-01-15", date)

	require.NotNil(t, first.Geometry)
	assert.Equal(t, "Point", first.Geometry.Type)
	assert.Equal(t, []float64{121.0, 25.0}, first.Geometry.Coordinates)

	blank, ok := features[1].Properties.Get("地址")
	require.True(t, ok)
	assert.Nil(t, blank)
	lat, _ := features[1].Properties.Get("Lat")
	assert.Equal(t, 23.25, lat)
}

func TestNative_CPGOverridesCharset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "utf8.shp")

	w, err := shp.Create(path, shp.POINT)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{shp.StringField("地址", 30)}))
	row := int(w.Write(&shp.Point{X: 1, Y: 2}))
	require.NoError(t, w.WriteAttribute(row, 0, "高雄市"))
	w.Close()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "utf8.cpg"), []byte("UTF-8\n"), 0o644))

	outPath := filepath.Join(dir, "output.geojson")
	require.NoError(t, (&Native{Charset: "big5"}).Convert(context.Background(), path, outPath))

	features := readOutput(t, outPath)
	require.Len(t, features, 1)
	v, ok := features[0].Properties.Get("地址")
	require.True(t, ok)
	assert.Equal(t, "高雄市", v)
}

func TestNative_UnknownCharset(t *testing.T) {
	dir := t.TempDir()
	shpPath := writeFixture(t, dir, nil)

	err := (&Native{Charset: "klingon"}).Convert(context.Background(), shpPath, filepath.Join(dir, "o.geojson"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported charset")
}

func TestNative_EmptyShapefile(t *testing.T) {
	dir := t.TempDir()
	shpPath := writeFixture(t, dir, nil)
	outPath := filepath.Join(dir, "output.geojson")

	require.NoError(t, (&Native{}).Convert(context.Background(), shpPath, outPath))

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"FeatureCollection","features":[]}`, string(data))
}

func TestNative_MissingFile(t *testing.T) {
	err := (&Native{}).Convert(context.Background(), filepath.Join(t.TempDir(), "none.shp"), "out.geojson")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open shapefile")
}

func TestAttributeValue(t *testing.T) {
	utf8 := mustEncoding(t, "utf-8")

	assert.Nil(t, attributeValue(utf8, shp.StringField("a", 5), "   \x00\x00"))
	assert.Equal(t, "abc", attributeValue(utf8, shp.StringField("a", 5), " abc  "))
	assert.Equal(t, 12.5, attributeValue(utf8, shp.FloatField("n", 8, 2), "   12.50"))
	assert.Equal(t, float64(7), attributeValue(utf8, shp.NumberField("n", 4), "   7"))
	assert.Nil(t, attributeValue(utf8, shp.NumberField("n", 4), "****"))
	assert.Equal(t, "2023-12-31", attributeValue(utf8, shp.DateField("d"), "20231231"))

	logical := shp.Field{Fieldtype: 'L'}
	assert.Equal(t, true, attributeValue(utf8, logical, "T"))
	assert.Equal(t, false, attributeValue(utf8, logical, "n"))
	assert.Nil(t, attributeValue(utf8, logical, "?"))
}

func TestNormalizeCodePage(t *testing.T) {
	assert.Equal(t, "big5", normalizeCodePage("950"))
	assert.Equal(t, "big5", normalizeCodePage(" CP950\r\n"))
	assert.Equal(t, "utf-8", normalizeCodePage("UTF-8"))
	assert.Equal(t, "windows-1252", normalizeCodePage("1252"))
	assert.Equal(t, "iso-8859-1", normalizeCodePage("ISO-8859-1"))
	assert.Equal(t, "", normalizeCodePage("  "))
}

func TestNew(t *testing.T) {
	c, err := New("", "/usr/bin/ogr2ogr", "big5")
	require.NoError(t, err)
	assert.Equal(t, &OGR2OGR{Path: "/usr/bin/ogr2ogr"}, c)

	c, err = New(ToolNative, "", "utf-8")
	require.NoError(t, err)
	assert.Equal(t, &Native{Charset: "utf-8"}, c)

	_, err = New("qgis", "", "")
	assert.Error(t, err)
}

func fakeOGR2OGR(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "ogr2ogr")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))
	return path
}

func TestOGR2OGR_PassesArguments(t *testing.T) {
	bin := fakeOGR2OGR(t, `printf '%s|' "$@" > "$5.args"
echo '{"type":"FeatureCollection","features":[]}' > "$5"
`)
	dir := t.TempDir()
	outPath := filepath.Join(dir, "output.geojson")
	require.NoError(t, os.WriteFile(outPath, []byte("stale"), 0o644))

	require.NoError(t, (&OGR2OGR{Path: bin}).Convert(context.Background(), "/data/in.shp", outPath))

	args, err := os.ReadFile(outPath + ".args")
	require.NoError(t, err)
	assert.Equal(t, "-f|GeoJSON|-t_srs|EPSG:4326|"+outPath+"|/data/in.shp|", string(args))

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "FeatureCollection")
}

func TestOGR2OGR_Failure(t *testing.T) {
	bin := fakeOGR2OGR(t, "echo 'ERROR 4: Unable to open datasource' >&2\nexit 1\n")

	err := (&OGR2OGR{Path: bin}).Convert(context.Background(), "/data/in.shp", filepath.Join(t.TempDir(), "o.geojson"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unable to open datasource")
}

func mustEncoding(t *testing.T, name string) encoding.Encoding {
	t.Helper()
	enc, err := htmlindex.Get(name)
	require.NoError(t, err)
	return enc
}
