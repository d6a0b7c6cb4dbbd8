package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeromerg/filoc/api"
)

func TestJSON_SingletonRoundTrip(t *testing.T) {
	c := JSON{}
	rec := api.RecordOf("name", "OVH", "employees", int64(2450), "public", false, "ratio", 0.5, "note", nil)

	data, err := c.Encode([]*api.Record{rec})
	require.NoError(t, err)

	got, err := c.Decode(data)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, rec.Equal(got[0]), "decoded %v", got[0])
	// field order survives
	assert.Equal(t, []string{"name", "employees", "public", "ratio", "note"}, got[0].Names())
}

func TestJSON_MultiRoundTrip(t *testing.T) {
	c := JSON{Multi: true}
	recs := []*api.Record{
		api.RecordOf("revenue", int64(100)),
		api.RecordOf("revenue", int64(200), "audited", true),
	}

	data, err := c.Encode(recs)
	require.NoError(t, err)

	got, err := c.Decode(data)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, recs[0].Equal(got[0]))
	assert.True(t, recs[1].Equal(got[1]))
}

func TestJSON_ShapeErrors(t *testing.T) {
	_, err := JSON{}.Decode([]byte(`[{"a":1}]`))
	assert.Error(t, err, "singleton must reject arrays")

	_, err = JSON{Multi: true}.Decode([]byte(`{"a":1}`))
	assert.Error(t, err, "multi must reject bare objects")

	_, err = JSON{}.Decode([]byte(`{"a":{"nested":1}}`))
	assert.Error(t, err, "nested objects are rejected")

	_, err = JSON{}.Encode([]*api.Record{api.RecordOf("a", 1), api.RecordOf("a", 2)})
	assert.Error(t, err, "singleton encodes exactly one record")
}

func TestJSON_EmptyMulti(t *testing.T) {
	data, err := JSON{Multi: true}.Encode(nil)
	require.NoError(t, err)
	got, err := JSON{Multi: true}.Decode(data)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestYAML_SingletonRoundTrip(t *testing.T) {
	c := YAML{}
	rec := api.RecordOf("city", "Paris", "zip", int64(75001), "density", 21.5)

	data, err := c.Encode([]*api.Record{rec})
	require.NoError(t, err)

	got, err := c.Decode(data)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, rec.Equal(got[0]), "decoded %v", got[0])
	assert.Equal(t, []string{"city", "zip", "density"}, got[0].Names())
}

func TestYAML_MultiRoundTrip(t *testing.T) {
	c := YAML{Multi: true}
	recs := []*api.Record{
		api.RecordOf("a", int64(1)),
		api.RecordOf("a", int64(2), "b", "x"),
	}

	data, err := c.Encode(recs)
	require.NoError(t, err)

	got, err := c.Decode(data)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, recs[1].Equal(got[1]))
}

func TestYAML_RejectsNesting(t *testing.T) {
	_, err := YAML{}.Decode([]byte("a:\n  b: 1\n"))
	assert.Error(t, err)
}

func TestCSV_RoundTrip(t *testing.T) {
	c := CSV{}
	recs := []*api.Record{
		api.RecordOf("name", "OVH", "rank", int64(1)),
		api.RecordOf("name", "DF", "rank", int64(2)),
	}

	data, err := c.Encode(recs)
	require.NoError(t, err)

	got, err := c.Decode(data)
	require.NoError(t, err)
	require.Len(t, got, 2)
	// csv is untyped: everything comes back as a string
	v, _ := got[1].Get("rank")
	assert.Equal(t, "2", v)
	assert.Equal(t, []string{"name", "rank"}, got[0].Names())
}

func TestCSV_RaggedUnionHeader(t *testing.T) {
	c := CSV{}
	recs := []*api.Record{
		api.RecordOf("a", "1"),
		api.RecordOf("b", "2"),
	}
	data, err := c.Encode(recs)
	require.NoError(t, err)

	got, err := c.Decode(data)
	require.NoError(t, err)
	require.Len(t, got, 2)
	v, ok := got[0].Get("b")
	assert.True(t, ok)
	assert.Equal(t, "", v)
}

func TestByName(t *testing.T) {
	c, err := ByName("yaml", true)
	require.NoError(t, err)
	assert.False(t, c.Singleton())

	_, err = ByName("parquet", false)
	assert.Error(t, err)
}

func TestForPath(t *testing.T) {
	assert.IsType(t, YAML{}, ForPath("/data/{id}/conf.yml", false))
	assert.IsType(t, CSV{}, ForPath("/data/{id}/rows.csv", false))
	assert.IsType(t, JSON{}, ForPath("/data/{id}/info.json", false))
	assert.IsType(t, JSON{}, ForPath("/data/{id}/blob", false))
}
