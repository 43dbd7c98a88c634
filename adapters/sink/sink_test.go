package sink

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goharmonic/ports"
)

func TestJSONStore_SaveIsDurableAndOrdered(t *testing.T) {
	path := filepath.Join(t.TempDir(), "outputs", "results.json")
	store, err := NewJSONStore(path)
	require.NoError(t, err)

	require.NoError(t, store.Save("n_merged", 5))
	require.NoError(t, store.Save("k_statistics", map[string]float64{"k_median": 30}))

	var doc map[string]interface{}
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, 5.0, doc["n_merged"])

	require.NoError(t, store.Save("n_merged", 7))
	assert.Equal(t, []string{"n_merged", "k_statistics"}, store.Keys(), "overwrite keeps position")

	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Index(string(data), "n_merged") < strings.Index(string(data), "k_statistics"))
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, 7.0, doc["n_merged"])

	raw, ok := store.Get("n_merged")
	require.True(t, ok)
	assert.JSONEq(t, "7", string(raw.(json.RawMessage)))
}

func TestJSONStore_UnmarshalableValue(t *testing.T) {
	store, err := NewJSONStore(filepath.Join(t.TempDir(), "r.json"))
	require.NoError(t, err)

	err = store.Save("bad", make(chan int))
	require.Error(t, err)
	assert.Empty(t, store.Keys())
}

func TestTranscript_AppendsAfterHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.txt")
	tr, err := NewTranscript(path, "YU 2018 RED GIANTS")
	require.NoError(t, err)

	require.NoError(t, tr.Log("Loaded 5 stars"))
	require.NoError(t, tr.Log("Median k = 30.00"))
	require.NoError(t, tr.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Equal(t, "YU 2018 RED GIANTS", lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "Started: "))
	assert.Equal(t, "Median k = 30.00", lines[len(lines)-1])
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	var _ ports.ResultSink = m
	var _ ports.ResultSnapshot = m

	require.NoError(t, m.Save("a", 1))
	require.NoError(t, m.Save("b", 2))
	require.NoError(t, m.Save("a", 3))
	require.NoError(t, m.Log("line"))

	assert.Equal(t, []string{"a", "b"}, m.Keys())
	v, ok := m.Get("a")
	require.True(t, ok)
	assert.Equal(t, 3, v)
	assert.Equal(t, []string{"line"}, m.Lines())
}

type failingSink struct{}

func (failingSink) Save(string, interface{}) error { return errors.New("disk full") }
func (failingSink) Log(string) error               { return errors.New("disk full") }

func TestRecorder_WritesEverySinkAndReportsFailures(t *testing.T) {
	mem := NewMemory()
	rec := NewRecorder(nil, failingSink{}, mem)

	err := rec.Save("final_score", 4.6)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	v, ok := mem.Get("final_score")
	require.True(t, ok, "later sinks still receive the write")
	assert.Equal(t, 4.6, v)

	require.Error(t, rec.Log("x"))
	assert.Equal(t, []string{"x"}, mem.Lines())
}

func TestRecorder_ConcurrentWrites(t *testing.T) {
	mem := NewMemory()
	rec := NewRecorder(nil, mem)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = rec.Save("shared", i)
			_ = rec.Logf("write %d", i)
		}()
	}
	wg.Wait()

	assert.Len(t, mem.Lines(), 50)
	assert.Equal(t, []string{"shared"}, mem.Keys())
}
