package preview

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"urlpreview/fetcher"
)

func tag(name string) Callback {
	return func(m *Module, in any) any {
		return fmt.Sprintf("%s(%v)", name, in)
	}
}

func TestRunChain(t *testing.T) {
	m := MustModule("m", ".")
	chain := Callbacks(tag("f1"), tag("f2"), tag("f3"))

	tests := []struct {
		name    string
		chain   Chain
		initial []any
		want    any
	}{
		{"threads initial", chain, []any{"x"}, "f3(f2(f1(x)))"},
		{"no initial starts from nil", chain, nil, "f3(f2(f1(<nil>)))"},
		{"single callback", Callbacks(tag("f")), []any{1}, "f(1)"},
		{"empty chain returns initial", nil, []any{"x"}, "x"},
		{"empty chain no initial", nil, nil, nil},
		{"nil entries skipped", Chain{nil, tag("f"), nil}, []any{"x"}, "f(x)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RunChain(tt.chain, m, tt.initial...))
		})
	}
}

func TestRunChainSeesModule(t *testing.T) {
	m := MustModule("m", ".")
	m.URL = "http://example.com"
	got := RunChain(Callbacks(func(m *Module, in any) any { return m.URL }), m)
	assert.Equal(t, "http://example.com", got)
}

func TestFormatMessage(t *testing.T) {
	m := MustModule("img", ".")
	assert.Equal(t, "[url-preview] img - hello\n", FormatMessage(m, "hello"))
	assert.Nil(t, FormatMessage(m, nil))
	assert.Nil(t, FormatMessage(m, ""))

	m.prefix = "p"
	assert.Equal(t, "[p] img - 3\n", FormatMessage(m, 3))
}

func TestFormatError(t *testing.T) {
	m := MustModule("img", ".")

	tests := []struct {
		name string
		in   any
		want any
	}{
		{"fetch error", fetcher.NewError(fetcher.KindHTTP, "404 Not Found"), "[url-preview] img (http): 404 Not Found\n"},
		{"plain error", fmt.Errorf("wrapped: %w", fetcher.NewError(fetcher.KindDNS, "no such host")), "[url-preview] img (dns): no such host\n"},
		{"other value", "oops", "[url-preview] img (error): oops\n"},
		{"nil", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatError(m, tt.in))
		})
	}
}

func TestPassthrough(t *testing.T) {
	m := MustModule("m", ".")
	assert.Nil(t, Passthrough(m, nil))

	m.Response = &fetcher.Response{Body: []byte("body")}
	assert.Equal(t, "body", Passthrough(m, nil))
	assert.Equal(t, "prev", Passthrough(m, "prev"))
}
