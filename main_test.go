package main

import (
	"bytes"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"urlpreview/cache"
)

// setup writes a config pointing the cache at a temp dir.
func setup(t *testing.T, extra string) (cfgPath, cacheDir string) {
	t.Helper()
	dir := t.TempDir()
	cacheDir = filepath.Join(dir, "cache")
	cfgPath = filepath.Join(dir, "config.toml")
	content := "[cache]\ndir = " + `"` + cacheDir + `"` + "\n" + extra
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o644))
	return cfgPath, cacheDir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestAnnotate(t *testing.T) {
	var img bytes.Buffer
	require.NoError(t, png.Encode(&img, image.NewGray(image.Rect(0, 0, 3, 2))))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/pic.png":
			w.Header().Set("Content-Type", "image/png")
			w.Write(img.Bytes())
		case "/crates/serde":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"crate":{"name":"serde"}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	cfgPath, cacheDir := setup(t, `
[display]
prefix = "pv"

[[template]]
name = "local"
pattern = '/crates/'
format = "crate {{.name}}"
[template.fields]
name = "crate.name"
`)

	input := filepath.Join(t.TempDir(), "notes.txt")
	text := "img " + srv.URL + "/pic.png\ncrate " + srv.URL + "/crates/serde\nmissing " + srv.URL + "/gone.png\n"
	require.NoError(t, os.WriteFile(input, []byte(text), 0o644))

	out, err := execute(t, "--config", cfgPath, "annotate", input)
	require.NoError(t, err)

	c, err := cache.New(cacheDir)
	require.NoError(t, err)
	want := "img " + srv.URL + "/pic.png\n" +
		"[pv] image: " + c.Path(srv.URL+"/pic.png") + " 3x2 png\n" +
		"crate " + srv.URL + "/crates/serde\n" +
		"[pv] local - crate serde\n" +
		"missing " + srv.URL + "/gone.png\n" +
		"[pv] image (http): 404 Not Found\n"
	assert.Equal(t, want, out)
	assert.True(t, c.Exists(srv.URL+"/pic.png"))
	assert.False(t, c.Exists(srv.URL+"/gone.png"))

	// Second run is served from the cache.
	srv.Close()
	out, err = execute(t, "--config", cfgPath, "annotate", input)
	require.NoError(t, err)
	assert.Contains(t, out, "[pv] image: "+c.Path(srv.URL+"/pic.png")+" 3x2 png\n")
	assert.Contains(t, out, "[pv] local - crate serde\n")
}

func TestAnnotateInPlace(t *testing.T) {
	cfgPath, _ := setup(t, "[modules]\ndisabled = [\"image\", \"github\", \"hackernews\", \"reddit\", \"youtube\", \"wikipedia\", \"feed\"]\n")
	input := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(input, []byte("http://example.invalid/a.png\n"), 0o600))

	out, err := execute(t, "--config", cfgPath, "annotate", "-i", input)
	require.NoError(t, err)
	assert.Empty(t, out)

	data, err := os.ReadFile(input)
	require.NoError(t, err)
	assert.Equal(t, "http://example.invalid/a.png\n", string(data))
}

func TestModulesCommand(t *testing.T) {
	cfgPath, _ := setup(t, "[modules]\nenabled = [\"page\"]\ndisabled = [\"image\"]\n")
	out, err := execute(t, "--config", cfgPath, "modules")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 10)
	assert.Regexp(t, `^NAME\s+ENABLED\s+PATTERN$`, lines[0])
	assert.Regexp(t, `^image\s+false\s`, lines[1])
	assert.Regexp(t, `^page\s+true\s`, lines[8])
	assert.Regexp(t, `^summary\s+false\s`, lines[9])
}

func TestCacheCommands(t *testing.T) {
	cfgPath, cacheDir := setup(t, "")
	c, err := cache.New(cacheDir)
	require.NoError(t, err)
	require.NoError(t, c.Write("http://example.com/a", []byte("x")))

	out, err := execute(t, "--config", cfgPath, "cache", "path", "http://example.com/a")
	require.NoError(t, err)
	assert.Equal(t, c.Path("http://example.com/a")+"\tcached\n", out)

	out, err = execute(t, "--config", cfgPath, "cache", "path", "http://example.com/b")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(out, "\tmissing\n"))

	out, err = execute(t, "--config", cfgPath, "cache", "clear")
	require.NoError(t, err)
	assert.Equal(t, "removed 1 entries from "+cacheDir+"\n", out)
	assert.False(t, c.Exists("http://example.com/a"))
}

func TestInitConfig(t *testing.T) {
	out, err := execute(t, "init-config")
	require.NoError(t, err)
	assert.Contains(t, out, "[fetcher]")

	// The printed config loads cleanly.
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(out), 0o644))
	_, err = execute(t, "--config", path, "modules")
	require.NoError(t, err)
}

func TestBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[[template]]\nname = \"x\"\npattern = \"(\"\n"), 0o644))
	_, err := execute(t, "--config", path, "modules")
	assert.ErrorContains(t, err, "invalid pattern")
}

func TestNewURLs(t *testing.T) {
	seen := make(map[string]bool)
	assert.Equal(t, []string{"http://a.com/1", "http://b.com"}, newURLs("x http://a.com/1 y http://b.com http://a.com/1", seen))
	assert.Equal(t, []string{"http://c.com"}, newURLs("http://a.com/1\nhttp://c.com\n", seen))
	assert.Nil(t, newURLs("http://b.com", seen))
}
