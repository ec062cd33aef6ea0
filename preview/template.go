package preview

import (
	"bytes"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"text/template"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"
)

// TemplateSpec declares a module without code: match a pattern, optionally
// rewrite the URL, pull fields out of the response and format them.
type TemplateSpec struct {
	Name    string
	Pattern string
	// Rewrite expands the pattern's submatches ($1, ${name}) into the URL
	// to fetch. Empty fetches the URL as found.
	Rewrite string
	Headers map[string]string
	// Fields maps a name to a gjson path into a JSON response.
	Fields map[string]string
	// Selectors maps a name to a CSS selector into an HTML response.
	Selectors map[string]string
	// Format is a text/template over the extracted values plus .url (the
	// URL found in the text) and .fetchURL. Empty joins the values with " - ".
	Format   string
	Disabled bool
}

// reservedKeys are set on every template's values and cannot name a field.
var reservedKeys = []string{"url", "fetchURL"}

// NewTemplateModule builds a module from spec.
func NewTemplateModule(spec TemplateSpec) (*Module, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("template module: name is required")
	}
	for _, key := range reservedKeys {
		_, field := spec.Fields[key]
		_, sel := spec.Selectors[key]
		if field || sel {
			return nil, fmt.Errorf("template module %s: %q is a reserved name", spec.Name, key)
		}
	}
	m, err := NewModule(spec.Name, spec.Pattern)
	if err != nil {
		return nil, err
	}
	m.Enabled = !spec.Disabled

	var tmpl *template.Template
	if spec.Format != "" {
		tmpl, err = template.New(spec.Name).Option("missingkey=zero").Parse(spec.Format)
		if err != nil {
			return nil, fmt.Errorf("template module %s: invalid format: %w", spec.Name, err)
		}
	}

	if spec.Rewrite != "" {
		re := m.Pattern
		m.RetrieveURL = func(url string) string {
			return rewrite(re, spec.Rewrite, url)
		}
	}
	if len(spec.Headers) > 0 {
		m.RetrieveArgs = func(m *Module) {
			for k, v := range spec.Headers {
				m.SetHeader(k, v)
			}
		}
	}

	extract := func(m *Module, _ any) any {
		values := extractFields(m.Body(), spec.Fields, spec.Selectors)
		if len(values) == 0 {
			return nil
		}
		values["url"] = m.Source
		values["fetchURL"] = m.URL
		if tmpl == nil {
			return joinValues(values)
		}
		var out bytes.Buffer
		if err := tmpl.Execute(&out, values); err != nil {
			m.Logger().Warn("template failed", "url", m.URL, "error", err)
			return nil
		}
		return strings.TrimSpace(out.String())
	}
	m.OnSuccess = Callbacks(SaveCache, extract, FormatMessage)
	return m, nil
}

// rewrite expands tmpl with the first match of re in url; "" if none.
func rewrite(re *regexp.Regexp, tmpl, url string) string {
	match := re.FindStringSubmatchIndex(url)
	if match == nil {
		return ""
	}
	return string(re.ExpandString(nil, tmpl, url, match))
}

func extractFields(body []byte, fields, selectors map[string]string) map[string]string {
	values := make(map[string]string)
	if len(fields) > 0 && gjson.ValidBytes(body) {
		for name, path := range fields {
			if v := gjson.GetBytes(body, path); v.Exists() {
				values[name] = strings.TrimSpace(v.String())
			}
		}
	}
	if len(selectors) > 0 {
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err == nil {
			for name, sel := range selectors {
				if text := strings.TrimSpace(doc.Find(sel).First().Text()); text != "" {
					values[name] = strings.Join(strings.Fields(text), " ")
				}
			}
		}
	}
	return values
}

func joinValues(values map[string]string) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		if !slices.Contains(reservedKeys, k) && values[k] != "" {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, values[k])
	}
	return strings.Join(parts, " - ")
}
