package templates

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"text/template"

	sprig "github.com/Masterminds/sprig/v3"
)

// Renderer compiles and executes page templates from the configured source.
// Inline fragments are supported for callers that hold template text directly.
type Renderer struct {
	source *Source
	funcs  template.FuncMap
}

// Template represents a compiled template ready for execution. Templates are
// safe for concurrent use.
type Template struct {
	name string
	tmpl *template.Template
}

// NewRenderer constructs a renderer bound to the provided source. When the
// source is nil, inline templates remain available but file-backed templates
// are disabled.
func NewRenderer(source *Source) *Renderer {
	funcs := sprig.TxtFuncMap()
	// Remove Sprig's environment and filesystem helpers so templates cannot
	// read process state or reach outside the pages root via readFile/readDir
	// style functions which bypass path resolution.
	restricted := []string{
		"env",
		"expandenv",
		"readDir",
		"mustReadDir",
		"readFile",
		"mustReadFile",
		"glob",
	}
	for _, name := range restricted {
		delete(funcs, name)
	}
	return &Renderer{source: source, funcs: funcs}
}

// Source exposes the renderer's page source primarily for observability and
// testing.
func (r *Renderer) Source() *Source { return r.source }

// CompileInline parses an inline template source. Empty or whitespace-only
// sources return nil without error to simplify optional configuration fields.
func (r *Renderer) CompileInline(name, source string) (*Template, error) {
	trimmed := strings.TrimSpace(source)
	if trimmed == "" {
		return nil, nil
	}
	if name == "" {
		name = "inline"
	}
	tmpl, err := template.New(name).Funcs(r.funcs).Option("missingkey=zero").Parse(source)
	if err != nil {
		return nil, fmt.Errorf("templates: compile %q: %w", name, err)
	}
	return &Template{name: name, tmpl: tmpl}, nil
}

// CompileFile resolves and parses a template file via the source. The provided
// path may be absolute or relative to the pages root. Attempts to escape the
// root return an error.
func (r *Renderer) CompileFile(path string) (*Template, error) {
	if r == nil || r.source == nil {
		return nil, errors.New("templates: file templates require a source")
	}
	contents, err := r.source.Read(path)
	if err != nil {
		return nil, err
	}
	return r.CompileInline(filepath.Base(path), string(contents))
}

// RenderPage compiles the page at path and executes it with the supplied
// context in one step.
func (r *Renderer) RenderPage(path string, context map[string]any) (string, error) {
	tmpl, err := r.CompileFile(path)
	if err != nil {
		return "", err
	}
	if tmpl == nil {
		return "", fmt.Errorf("templates: page %q is empty", path)
	}
	return tmpl.Render(context)
}

// Render executes the compiled template with the supplied data returning the
// rendered string. Errors are propagated for callers to surface or log.
func (t *Template) Render(data any) (string, error) {
	if t == nil {
		return "", errors.New("templates: nil template")
	}
	var buf bytes.Buffer
	if err := t.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("templates: execute %q: %w", t.name, err)
	}
	return buf.String(), nil
}

// Name exposes the logical template name which callers may embed in logs.
func (t *Template) Name() string {
	if t == nil {
		return ""
	}
	return t.name
}
