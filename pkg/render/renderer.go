package render

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/softwarefactory-project/sfconfig/pkg/log"
)

//go:embed templates/*
var builtin embed.FS

// ErrTemplateNotFound is returned when neither the template directory nor
// the built-in set provide a template
var ErrTemplateNotFound = errors.New("template not found")

// Renderer produces one file from a template and its data
type Renderer interface {
	Render(dest, name string, data interface{}) error
}

// TemplateRenderer renders Go text templates. Templates are looked up in Dir
// first, then in the built-in set.
type TemplateRenderer struct {
	Dir string
}

// NewTemplateRenderer returns a renderer reading templates from dir
func NewTemplateRenderer(dir string) *TemplateRenderer {
	return &TemplateRenderer{Dir: dir}
}

var funcs = template.FuncMap{
	"join": strings.Join,
}

// Render executes template name with data and writes the result to dest
func (r *TemplateRenderer) Render(dest, name string, data interface{}) error {
	text, err := r.load(name)
	if err != nil {
		return err
	}

	tmpl, err := template.New(name).Funcs(funcs).Option("missingkey=error").Parse(string(text))
	if err != nil {
		return fmt.Errorf("failed to parse template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("failed to render template %s: %w", name, err)
	}
	if !bytes.HasSuffix(buf.Bytes(), []byte("\n")) {
		buf.WriteByte('\n')
	}

	if err := writeFile(dest, buf.Bytes(), 0644); err != nil {
		return err
	}
	logger := log.WithComponent("render")
	logger.Info().Str("path", dest).Msg("Created file")
	return nil
}

func (r *TemplateRenderer) load(name string) ([]byte, error) {
	if r.Dir != "" {
		data, err := os.ReadFile(filepath.Join(r.Dir, name))
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read template %s: %w", name, err)
		}
	}

	data, err := builtin.ReadFile("templates/" + name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}
	return data, nil
}

// writeFile replaces path atomically
func writeFile(path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
