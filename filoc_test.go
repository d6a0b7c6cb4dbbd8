package filoc_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	filoc "github.com/jeromerg/filoc"
	"github.com/jeromerg/filoc/api"
	"github.com/jeromerg/filoc/internal/storage"
)

func seedTree(t *testing.T) api.Storage {
	t.Helper()
	store := storage.NewMem()
	files := map[string]string{
		"/data/France/OVH/info.json":  `{"phone": "+33 1", "c": "from-content"}`,
		"/data/Germany/DF/info.json":  `{"phone": "+49 30"}`,
		"/data/Germany/SAP/info.json": `{"phone": "+49 62"}`,
	}
	for p, content := range files {
		require.NoError(t, store.Write(p, []byte(content)))
	}
	return store
}

func TestReadAll_PathKeysOverrideContent(t *testing.T) {
	store := seedTree(t)
	f, err := filoc.New("/data/{c}/{k}/info.json", filoc.WithStorage(store))
	require.NoError(t, err)

	rows, err := f.ReadAll(context.Background(), api.Binding{"c": "France"})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	c, _ := rows[0].Get("c")
	assert.Equal(t, "France", c, "the path wins over the content field")
	k, _ := rows[0].Get("k")
	assert.Equal(t, "OVH", k)
	phone, _ := rows[0].Get("phone")
	assert.Equal(t, "+33 1", phone)

	// key fields lead, in template order
	names := rows[0].Names()
	assert.Equal(t, []string{"c", "k", "phone"}, names)
}

func TestReadAll_ContentConstraint(t *testing.T) {
	store := seedTree(t)
	f, err := filoc.New("/data/{c}/{k}/info.json", filoc.WithStorage(store))
	require.NoError(t, err)

	rows, err := f.ReadAll(context.Background(), api.Binding{"phone": "+49 62"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	k, _ := rows[0].Get("k")
	assert.Equal(t, "SAP", k)
}

// vanishingStore simulates a file removed by another process after it
// was listed: Read and Stat on the doomed path report not-found while
// List still returns it.
type vanishingStore struct {
	api.Storage
	gone string
}

func (s *vanishingStore) Read(path string) ([]byte, error) {
	if path == s.gone {
		return nil, &api.NotFoundError{Path: path}
	}
	return s.Storage.Read(path)
}

func (s *vanishingStore) Stat(path string) (time.Time, error) {
	if path == s.gone {
		return time.Time{}, &api.NotFoundError{Path: path}
	}
	return s.Storage.Stat(path)
}

func TestReadAll_VanishedPathDropsOneRow(t *testing.T) {
	store := &vanishingStore{Storage: seedTree(t), gone: "/data/Germany/DF/info.json"}
	f, err := filoc.New("/data/{c}/{k}/info.json", filoc.WithStorage(store))
	require.NoError(t, err)

	rows, err := f.ReadAll(context.Background(), nil)
	require.NoError(t, err, "a vanished path must not fail the whole read")
	require.Len(t, rows, 2)
	for _, row := range rows {
		k, _ := row.Get("k")
		assert.NotEqual(t, "DF", k)
	}
}

func TestReadAll_VanishedPathWithCache(t *testing.T) {
	store := &vanishingStore{Storage: seedTree(t)}
	f, err := filoc.New("/data/{c}/{k}/info.json",
		filoc.WithStorage(store), filoc.WithCache("/cache/{c}.json"))
	require.NoError(t, err)
	ctx := context.Background()

	rows, err := f.ReadAll(ctx, nil)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	// the file disappears after it was listed and cached; the memo must
	// not serve it stale
	store.gone = "/data/Germany/DF/info.json"
	rows, err = f.ReadAll(ctx, nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)
}

func TestWriteAll_ReadOnlyByDefault(t *testing.T) {
	store := seedTree(t)
	f, err := filoc.New("/data/{c}/{k}/info.json", filoc.WithStorage(store))
	require.NoError(t, err)

	var nwe *api.NotWritableError
	err = f.WriteAll(context.Background(), []*api.Record{api.RecordOf("c", "X", "k", "Y")})
	require.True(t, errors.As(err, &nwe))

	_, err = f.DeletePaths(context.Background(), nil)
	require.True(t, errors.As(err, &nwe))
}

func TestWriteAll_RoundTrip(t *testing.T) {
	store := storage.NewMem()
	f, err := filoc.New("/runs/sim={simid:int}/ep={epid:int}.json",
		filoc.WithStorage(store), filoc.WithWritable(true))
	require.NoError(t, err)
	ctx := context.Background()

	rows := []*api.Record{
		api.RecordOf("simid", int64(1), "epid", int64(10), "loss", 0.5),
		api.RecordOf("simid", int64(1), "epid", int64(20), "loss", 0.25),
	}
	require.NoError(t, f.WriteAll(ctx, rows))

	paths, err := f.ListPaths(nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"/runs/sim=1/ep=10.json", "/runs/sim=1/ep=20.json"}, paths)

	got, err := f.ReadAll(ctx, api.Binding{"epid": int64(20)})
	require.NoError(t, err)
	require.Len(t, got, 1)
	loss, _ := got[0].Get("loss")
	assert.Equal(t, 0.25, loss)
}

func TestWriteAll_IncompleteKey(t *testing.T) {
	store := storage.NewMem()
	f, err := filoc.New("/runs/sim={simid:int}/ep={epid:int}.json",
		filoc.WithStorage(store), filoc.WithWritable(true))
	require.NoError(t, err)

	var ike *api.IncompleteKeyError
	err = f.WriteAll(context.Background(), []*api.Record{api.RecordOf("simid", int64(1), "loss", 0.5)})
	require.True(t, errors.As(err, &ike))
	assert.Equal(t, "epid", ike.Name)
}

func TestWriteAll_SingletonCoalescing(t *testing.T) {
	store := storage.NewMem()
	f, err := filoc.New("/runs/sim={simid:int}/config.json",
		filoc.WithStorage(store), filoc.WithWritable(true))
	require.NoError(t, err)
	ctx := context.Background()

	same := []*api.Record{
		api.RecordOf("simid", int64(1), "algo", "Q"),
		api.RecordOf("simid", int64(1), "algo", "Q"),
	}
	require.NoError(t, f.WriteAll(ctx, same))

	differ := []*api.Record{
		api.RecordOf("simid", int64(2), "algo", "Q"),
		api.RecordOf("simid", int64(2), "algo", "R"),
	}
	assert.Error(t, f.WriteAll(ctx, differ))
}

func TestDeletePaths(t *testing.T) {
	store := seedTree(t)
	f, err := filoc.New("/data/{c}/{k}/info.json",
		filoc.WithStorage(store), filoc.WithWritable(true))
	require.NoError(t, err)
	ctx := context.Background()

	deleted, err := f.DeletePaths(ctx, api.Binding{"c": "Germany"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"/data/Germany/DF/info.json", "/data/Germany/SAP/info.json"}, deleted)

	rows, err := f.ReadAll(ctx, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	c, _ := rows[0].Get("c")
	assert.Equal(t, "France", c)
}

func TestCodecSelection(t *testing.T) {
	store := storage.NewMem()
	require.NoError(t, store.Write("/cfg/a.yaml", []byte("name: alpha\nsize: 3\n")))

	f, err := filoc.New("/cfg/{id}.yaml", filoc.WithStorage(store))
	require.NoError(t, err)

	rows, err := f.ReadAll(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	name, _ := rows[0].Get("name")
	assert.Equal(t, "alpha", name)

	_, err = filoc.New("/cfg/{id}.yaml", filoc.WithStorage(store), filoc.WithCodecName("nope"))
	assert.Error(t, err)
}

func TestCachePersistsAcrossInstances(t *testing.T) {
	store := seedTree(t)
	mk := func() *filoc.Filoc {
		f, err := filoc.New("/data/{c}/{k}/info.json",
			filoc.WithStorage(store),
			filoc.WithCache("/cache/{c}.json"))
		require.NoError(t, err)
		return f
	}
	ctx := context.Background()

	first := mk()
	rows, err := first.ReadAll(ctx, nil)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	shards, err := store.List("/cache")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"/cache/France.json", "/cache/Germany.json"}, shards)

	second := mk()
	again, err := second.ReadAll(ctx, nil)
	require.NoError(t, err)
	require.Len(t, again, 3)

	require.NoError(t, second.InvalidateCache(api.Binding{"c": "Germany"}))
	shards, err = store.List("/cache")
	require.NoError(t, err)
	assert.Equal(t, []string{"/cache/France.json"}, shards)
}

func TestLock(t *testing.T) {
	store := seedTree(t)
	f, err := filoc.New("/data/{c}/{k}/info.json", filoc.WithStorage(store))
	require.NoError(t, err)
	ctx := context.Background()

	lock, err := f.Lock(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/data/.filoc.lock", f.Locks().SentinelPath(filoc.DefaultLockName))
	require.NoError(t, lock.Release())

	ran := false
	require.NoError(t, f.WithLock(ctx, func() error {
		ran = true
		return nil
	}))
	assert.True(t, ran)
}

func TestComposite_Facade(t *testing.T) {
	store := seedTree(t)
	require.NoError(t, store.Write("/data/France/OVH/2023_revenue.json", []byte(`{"revenue": 110}`)))

	contact, err := filoc.New("/data/{c}/{k}/info.json", filoc.WithStorage(store))
	require.NoError(t, err)
	finance, err := filoc.New("/data/{c}/{k}/{year:int}_revenue.json",
		filoc.WithStorage(store), filoc.WithWritable(true))
	require.NoError(t, err)

	comp, err := filoc.NewComposite(map[string]*filoc.Filoc{
		"contact": contact,
		"finance": finance,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "k"}, comp.SharedKeys())
	assert.Equal(t, []string{"contact", "finance"}, comp.SourceNames())

	rows, err := comp.ReadAll(context.Background(), api.Binding{"c": "France"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	phone, _ := rows[0].Get("contact.phone")
	assert.Equal(t, "+33 1", phone)
	rev, _ := rows[0].Get("finance.revenue")
	assert.Equal(t, int64(110), rev)
	year, _ := rows[0].Get("shared.year")
	assert.Equal(t, int64(2023), year)
}

func TestComposite_JoinKeyError(t *testing.T) {
	store := storage.NewMem()
	a, err := filoc.New("/x/{p}/a.json", filoc.WithStorage(store))
	require.NoError(t, err)
	b, err := filoc.New("/y/{q}/b.json", filoc.WithStorage(store))
	require.NoError(t, err)

	var jke *api.JoinKeyError
	_, err = filoc.NewComposite(map[string]*filoc.Filoc{"a": a, "b": b})
	require.True(t, errors.As(err, &jke))
}
