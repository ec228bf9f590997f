package scaffold

import (
	"bytes"
	"embed"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	hosterrors "github.com/wippyai/wasm-host/errors"
)

//go:embed templates
var templates embed.FS

const templateSuffix = ".tmpl"

// Templates returns the available project templates, sorted.
func Templates() []string {
	entries, _ := fs.ReadDir(templates, "templates")
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out
}

// New renders template tmpl for project ref into dir/<name> and returns the
// project directory. The directory must not already exist.
func New(dir, tmpl string, ref InterfaceAtRelease) (string, error) {
	root := path.Join("templates", tmpl)
	if info, err := fs.Stat(templates, root); err != nil || !info.IsDir() {
		return "", hosterrors.NotFound(hosterrors.PhaseConfig, "template", tmpl)
	}

	project := filepath.Join(dir, ref.Name)
	if _, err := os.Stat(project); err == nil {
		return "", hosterrors.New(hosterrors.PhaseConfig, hosterrors.KindDuplicate).
			Resource(project).
			Detail("project directory already exists").
			Build()
	}

	err := fs.WalkDir(templates, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel := strings.TrimPrefix(p, root+"/")
		return render(p, filepath.Join(project, filepath.FromSlash(strings.TrimSuffix(rel, templateSuffix))), ref)
	})
	if err != nil {
		return "", err
	}
	return project, nil
}

func render(src, dst string, ref InterfaceAtRelease) error {
	raw, err := templates.ReadFile(src)
	if err != nil {
		return err
	}
	t, err := template.New(path.Base(src)).Option("missingkey=error").Parse(string(raw))
	if err != nil {
		return hosterrors.Wrap(hosterrors.PhaseConfig, hosterrors.KindInvalidData, err, "parse template "+src)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, ref); err != nil {
		return hosterrors.Wrap(hosterrors.PhaseConfig, hosterrors.KindInvalidData, err, "render template "+src)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dst, buf.Bytes(), 0o644)
}
