package builders

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/poltergeist/wisp/pkg/logger"
	"github.com/poltergeist/wisp/pkg/types"
	"github.com/poltergeist/wisp/pkg/utils"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/html"
	"github.com/tdewolff/minify/v2/js"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// LayoutTemplate wraps rendered markdown pages when present in the
// templates root
const LayoutTemplate = "layout.tmpl"

// PageData is passed to every page template
type PageData struct {
	Page       string
	Production bool
	Content    template.HTML
}

// TemplatesBuilder renders pages with html/template. Markdown pages are
// converted with goldmark and wrapped in the layout.
type TemplatesBuilder struct {
	*BaseBuilder
	markdown goldmark.Markdown
	minifier *minify.M
}

// NewTemplatesBuilder creates a new templates builder
func NewTemplatesBuilder(cfg types.Config, log logger.Logger, reloader Reloader) *TemplatesBuilder {
	m := minify.New()
	m.AddFunc("text/css", css.Minify)
	m.AddFuncRegexp(regexp.MustCompile("^(application|text)/(x-)?(java|ecma)script$"), js.Minify)
	m.Add("text/html", &html.Minifier{
		KeepDocumentTags: true,
		KeepEndTags:      true,
		KeepQuotes:       true,
	})

	return &TemplatesBuilder{
		BaseBuilder: NewBaseBuilder(types.TaskTemplates, cfg, log, reloader),
		markdown:    goldmark.New(goldmark.WithExtensions(extension.GFM)),
		minifier:    m,
	}
}

// Build renders every page. The first template error stops the pipeline.
func (b *TemplatesBuilder) Build(ctx context.Context) types.Outcome {
	start := time.Now()
	cfg := b.Config.Templates

	pages, err := expandSources(b.Config.ProjectRoot, cfg.Source)
	if err != nil {
		return b.record(start, fatalf("templates: %w", err))
	}

	isPage := make(map[string]bool, len(pages))
	for _, p := range pages {
		isPage[p.Path] = true
	}

	base, serr := b.loadShared(isPage)
	if serr != nil {
		return b.record(start, serr.outcome())
	}

	dest := b.path(cfg.Destination)
	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return b.record(start, types.Fatal(err))
		}

		out, perr := b.render(base, page)
		if perr != nil {
			return b.record(start, perr.outcome())
		}

		if b.Production() {
			minified, err := b.minifier.Bytes("text/html", out)
			if err != nil {
				return b.record(start, types.Recoverable(fmt.Errorf("%s: %w", page.Path, err)))
			}
			out = minified
		}

		target := filepath.Join(dest, filepath.FromSlash(replaceExt(page.Rel, ".html")))
		if err := utils.WriteFile(target, out); err != nil {
			return b.record(start, fatalf("templates: %w", err))
		}
		b.Logger.Debug("Rendered page", logger.WithField("page", page.Rel), logger.WithField("bytes", len(out)))
	}

	b.Logger.Info(fmt.Sprintf("Rendered %d pages", len(pages)),
		logger.WithField("duration", time.Since(start).Round(time.Millisecond)))

	if !b.Production() {
		b.Reloader.ReloadPage(types.TaskTemplates)
	}

	return b.record(start, types.Succeeded())
}

// stageError separates template errors from filesystem errors
type stageError struct {
	err   error
	fatal bool
}

func (e *stageError) outcome() types.Outcome {
	if e.fatal {
		return types.Fatal(e.err)
	}
	return types.Recoverable(e.err)
}

// loadShared parses every layout and partial under the templates root.
// Templates are named by their path relative to that root.
func (b *TemplatesBuilder) loadShared(isPage map[string]bool) (*template.Template, *stageError) {
	base := template.New("")
	root := b.path(b.Config.Templates.Root)
	if !utils.DirectoryExists(root) {
		return base, nil
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".tmpl" && ext != ".html" {
			return nil
		}
		rel, err := filepath.Rel(b.Config.ProjectRoot, path)
		if err != nil {
			return err
		}
		if !isPage[filepath.ToSlash(rel)] {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, &stageError{err: fmt.Errorf("templates: %w", err), fatal: true}
	}
	sort.Strings(files)

	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			return nil, &stageError{err: fmt.Errorf("templates: %w", err), fatal: true}
		}
		name, _ := filepath.Rel(root, file)
		if _, err := base.New(filepath.ToSlash(name)).Parse(string(content)); err != nil {
			return nil, &stageError{err: err}
		}
	}

	return base, nil
}

// render executes one page against a clone of the shared set
func (b *TemplatesBuilder) render(base *template.Template, page sourceFile) ([]byte, *stageError) {
	content, err := os.ReadFile(b.path(page.Path))
	if err != nil {
		return nil, &stageError{err: fmt.Errorf("templates: %w", err), fatal: true}
	}

	set, err := base.Clone()
	if err != nil {
		return nil, &stageError{err: err}
	}

	data := PageData{Page: page.Rel, Production: b.Production()}
	var buf bytes.Buffer

	if strings.EqualFold(filepath.Ext(page.Path), ".md") {
		var md bytes.Buffer
		if err := b.markdown.Convert(content, &md); err != nil {
			return nil, &stageError{err: fmt.Errorf("%s: %w", page.Path, err)}
		}
		data.Content = template.HTML(md.String()) // #nosec G203 -- rendered from project sources

		if set.Lookup(LayoutTemplate) == nil {
			return md.Bytes(), nil
		}
		if err := set.ExecuteTemplate(&buf, LayoutTemplate, data); err != nil {
			return nil, &stageError{err: err}
		}
		return buf.Bytes(), nil
	}

	if _, err := set.New(page.Path).Parse(string(content)); err != nil {
		return nil, &stageError{err: err}
	}
	if err := set.ExecuteTemplate(&buf, page.Path, data); err != nil {
		return nil, &stageError{err: err}
	}
	return buf.Bytes(), nil
}
