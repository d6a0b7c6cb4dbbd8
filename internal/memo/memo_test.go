package memo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeromerg/filoc/api"
	"github.com/jeromerg/filoc/internal/codec"
	"github.com/jeromerg/filoc/internal/locate"
	"github.com/jeromerg/filoc/internal/storage"
)

// fakeStore is an in-memory api.Storage with fully controlled stamps,
// so tests can simulate external modification precisely.
type fakeStore struct {
	files  map[string][]byte
	stamps map[string]time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{files: map[string][]byte{}, stamps: map[string]time.Time{}}
}

func (s *fakeStore) put(path, content string, stamp time.Time) {
	s.files[path] = []byte(content)
	s.stamps[path] = stamp
}

func (s *fakeStore) List(prefix string) ([]string, error) {
	var out []string
	for p := range s.files {
		out = append(out, p)
	}
	return out, nil
}

func (s *fakeStore) Stat(path string) (time.Time, error) {
	st, ok := s.stamps[path]
	if !ok {
		return time.Time{}, &api.NotFoundError{Path: path}
	}
	return st, nil
}

func (s *fakeStore) Read(path string) ([]byte, error) {
	data, ok := s.files[path]
	if !ok {
		return nil, &api.NotFoundError{Path: path}
	}
	return data, nil
}

func (s *fakeStore) Write(path string, data []byte) error {
	s.files[path] = data
	s.stamps[path] = time.Now()
	return nil
}

func (s *fakeStore) Delete(path string) error {
	if _, ok := s.files[path]; !ok {
		return &api.NotFoundError{Path: path}
	}
	delete(s.files, path)
	delete(s.stamps, path)
	return nil
}

func (s *fakeStore) CreateIfAbsent(path string) (bool, error) {
	if _, ok := s.files[path]; ok {
		return false, nil
	}
	s.put(path, "", time.Now())
	return true, nil
}

// countingCodec counts decode calls.
type countingCodec struct {
	api.Codec
	decodes int
}

func (c *countingCodec) Decode(data []byte) ([]*api.Record, error) {
	c.decodes++
	return c.Codec.Decode(data)
}

func cacheLocator(t *testing.T, locpath string, store api.Storage) *locate.Locator {
	t.Helper()
	loc, err := locate.New(locpath, store)
	require.NoError(t, err)
	return loc
}

func TestRead_MemoizesWhileUnmodified(t *testing.T) {
	store := newFakeStore()
	stamp := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	store.put("/data/a.json", `{"v": 1}`, stamp)

	cc := &countingCodec{Codec: codec.JSON{}}
	cacheStore := storage.NewMem()
	c := New(store, cc,
		WithPersistence(cacheLocator(t, "/cache/memo.json", cacheStore), cacheStore))

	keys := api.Binding{}
	r1, err := c.Read("/data/a.json", keys)
	require.NoError(t, err)
	r2, err := c.Read("/data/a.json", keys)
	require.NoError(t, err)

	assert.Equal(t, 1, cc.decodes, "second read must hit the memo")
	assert.True(t, r1[0].Equal(r2[0]))

	// touching the file forces a second decode
	store.put("/data/a.json", `{"v": 2}`, stamp.Add(time.Second))
	r3, err := c.Read("/data/a.json", keys)
	require.NoError(t, err)
	assert.Equal(t, 2, cc.decodes)
	v, _ := r3[0].Get("v")
	assert.Equal(t, int64(2), v)
}

func TestRead_DisabledCacheLoadsFresh(t *testing.T) {
	store := newFakeStore()
	store.put("/data/a.json", `{"v": 1}`, time.Now())

	cc := &countingCodec{Codec: codec.JSON{}}
	c := New(store, cc)

	_, err := c.Read("/data/a.json", nil)
	require.NoError(t, err)
	_, err = c.Read("/data/a.json", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, cc.decodes)
}

func TestRead_VanishedPath(t *testing.T) {
	store := newFakeStore()
	cacheStore := storage.NewMem()
	c := New(store, codec.JSON{},
		WithPersistence(cacheLocator(t, "/cache/memo.json", cacheStore), cacheStore))

	_, err := c.Read("/data/gone.json", api.Binding{})
	assert.ErrorIs(t, err, api.ErrNotFound)
}

func TestPersistence_SurvivesRestart(t *testing.T) {
	store := newFakeStore()
	stamp := time.Date(2024, 3, 1, 10, 0, 0, 123456789, time.UTC)
	store.put("/data/a.json", `{"name": "OVH", "n": 3}`, stamp)

	cacheStore := storage.NewMem()

	cc1 := &countingCodec{Codec: codec.JSON{}}
	c1 := New(store, cc1,
		WithPersistence(cacheLocator(t, "/cache/memo.json", cacheStore), cacheStore))
	got, err := c1.Read("/data/a.json", api.Binding{})
	require.NoError(t, err)
	require.NoError(t, c1.Flush())
	assert.Equal(t, 1, cc1.decodes)

	// new process: fresh cache instance over the same backing location
	cc2 := &countingCodec{Codec: codec.JSON{}}
	c2 := New(store, cc2,
		WithPersistence(cacheLocator(t, "/cache/memo.json", cacheStore), cacheStore))
	got2, err := c2.Read("/data/a.json", api.Binding{})
	require.NoError(t, err)

	assert.Equal(t, 0, cc2.decodes, "restart must reuse the persisted memo")
	assert.True(t, got[0].Equal(got2[0]))
	assert.Equal(t, got[0].Names(), got2[0].Names(), "field order survives persistence")
}

func TestPersistence_ShardedCacheLocation(t *testing.T) {
	store := newFakeStore()
	stamp := time.Now()
	store.put("/data/France/info.json", `{"v": 1}`, stamp)
	store.put("/data/Germany/info.json", `{"v": 2}`, stamp)

	cacheStore := storage.NewMem()
	c := New(store, codec.JSON{},
		WithPersistence(cacheLocator(t, "/cache/{country}.json", cacheStore), cacheStore))

	_, err := c.Read("/data/France/info.json", api.Binding{"country": "France"})
	require.NoError(t, err)
	_, err = c.Read("/data/Germany/info.json", api.Binding{"country": "Germany"})
	require.NoError(t, err)
	require.NoError(t, c.Flush())

	paths, err := cacheStore.List("/cache")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"/cache/France.json", "/cache/Germany.json"}, paths)
}

func TestWrite_RefreshesMemo(t *testing.T) {
	store := newFakeStore()
	cacheStore := storage.NewMem()
	cc := &countingCodec{Codec: codec.JSON{}}
	c := New(store, cc,
		WithPersistence(cacheLocator(t, "/cache/memo.json", cacheStore), cacheStore))

	keys := api.Binding{}
	require.NoError(t, c.Write("/data/a.json", keys, []*api.Record{api.RecordOf("v", 7)}))

	got, err := c.Read("/data/a.json", keys)
	require.NoError(t, err)
	v, _ := got[0].Get("v")
	assert.Equal(t, int64(7), v)
	assert.Equal(t, 0, cc.decodes, "read after write must be served by the refreshed memo")
}

func TestInvalidate(t *testing.T) {
	store := newFakeStore()
	store.put("/data/a.json", `{"v": 1}`, time.Now())

	cacheStore := storage.NewMem()
	cc := &countingCodec{Codec: codec.JSON{}}
	c := New(store, cc,
		WithPersistence(cacheLocator(t, "/cache/memo.json", cacheStore), cacheStore))

	_, err := c.Read("/data/a.json", api.Binding{})
	require.NoError(t, err)
	require.NoError(t, c.Flush())
	require.NoError(t, c.Invalidate(nil))

	paths, err := cacheStore.List("/cache")
	require.NoError(t, err)
	assert.Empty(t, paths)

	_, err = c.Read("/data/a.json", api.Binding{})
	require.NoError(t, err)
	assert.Equal(t, 2, cc.decodes)
}
