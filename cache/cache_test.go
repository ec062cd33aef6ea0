package cache

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	k := Key("http://example.com/a.png")
	assert.Len(t, k, 64)
	assert.Equal(t, k, Key("http://example.com/a.png"))
	assert.NotEqual(t, k, Key("http://example.com/b.png"))
}

func TestWriteAndRead(t *testing.T) {
	c, err := New(filepath.Join(t.TempDir(), "nested", "cache"))
	require.NoError(t, err)

	url := "http://example.com/a.png"
	assert.False(t, c.Exists(url))

	require.NoError(t, c.Write(url, []byte("IMGDATA")))
	assert.True(t, c.Exists(url))

	data, err := c.Read(url)
	require.NoError(t, err)
	assert.Equal(t, []byte("IMGDATA"), data)
	assert.Equal(t, filepath.Join(c.Dir(), Key(url)), c.Path(url))
}

func TestWriteExisting(t *testing.T) {
	c, err := New(t.TempDir())
	require.NoError(t, err)

	url := "https://example.com/"
	require.NoError(t, c.Write(url, []byte("first")))
	assert.ErrorIs(t, c.Write(url, []byte("second")), ErrExists)

	data, err := c.Read(url)
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))
}

func TestWriteConcurrent(t *testing.T) {
	c, err := New(t.TempDir())
	require.NoError(t, err)

	url := "https://example.com/page"
	var wg sync.WaitGroup
	var mu sync.Mutex
	written := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Write(url, []byte("payload")); err == nil {
				mu.Lock()
				written++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.GreaterOrEqual(t, written, 1)
	data, err := c.Read(url)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	// No temp files left behind.
	entries, err := os.ReadDir(c.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWriteText(t *testing.T) {
	c, err := New(t.TempDir())
	require.NoError(t, err)

	url := "https://example.com/text"
	require.NoError(t, c.WriteText(url, []byte("a\r\nb\xff\r\n")))

	data, err := c.Read(url)
	require.NoError(t, err)
	assert.Equal(t, "a\nb�\n", string(data))
}

func TestClear(t *testing.T) {
	c, err := New(t.TempDir())
	require.NoError(t, err)

	n, err := c.Clear()
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	require.NoError(t, c.Write("https://a.example/", []byte("a")))
	require.NoError(t, c.Write("https://b.example/", []byte("b")))

	n, err = c.Clear()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.False(t, c.Exists("https://a.example/"))
}

func TestClearMissingDir(t *testing.T) {
	c, err := New(filepath.Join(t.TempDir(), "never-created"))
	require.NoError(t, err)

	n, err := c.Clear()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
