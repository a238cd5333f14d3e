// Package viewer renders the web viewer for the mirror: a standalone page
// with every note inlined, or a live page that fetches index.json at runtime.
// It performs no I/O.
package viewer

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"sort"
	"strings"

	"github.com/starford/quire/internal/models"
)

// PinnedSection is the heading under which pinned notes are grouped.
const PinnedSection = "Pinned"

//go:embed templates/viewer.html.tmpl
var viewerTmpl string

var page = template.Must(template.New("viewer").Parse(viewerTmpl))

// Section is one group of notes as shown in the viewer sidebar.
type Section struct {
	Name  string                  `json:"name"`
	Notes []models.NoteIndexEntry `json:"notes"`
}

type pageData struct {
	Title          string
	Standalone     bool
	Sections       []Section
	Notes          map[string]models.Note
	DefaultSection string
	PinnedSection  string
	EventsPath     string
}

// Options tweak the rendered page.
type Options struct {
	Title string
	// EventsPath, when set on a live page, is subscribed to for reload events.
	EventsPath string
}

func (o Options) title() string {
	if strings.TrimSpace(o.Title) == "" {
		return "Notes"
	}
	return o.Title
}

// Standalone renders a self-contained HTML document with all non-archived
// notes embedded as inline JSON. Markdown is rendered with marked when the
// page can load it from its CDN; offline, a built-in renderer covers
// headings, paragraphs, lists, quotes, code, emphasis, links and images.
func Standalone(notes []models.Note, opts Options) ([]byte, error) {
	entries := make([]models.NoteIndexEntry, 0, len(notes))
	byID := make(map[string]models.Note, len(notes))
	for _, n := range notes {
		if n.Archived {
			continue
		}
		entries = append(entries, n.IndexEntry())
		byID[n.ID] = n
	}
	return render(pageData{
		Title:          opts.title(),
		Standalone:     true,
		Sections:       Sections(entries),
		Notes:          byID,
		DefaultSection: models.DefaultSection,
		PinnedSection:  PinnedSection,
	})
}

// Live renders the page the preview server answers at "/". It loads
// index.json and notes/<id>.json over HTTP.
func Live(opts Options) ([]byte, error) {
	return render(pageData{
		Title:          opts.title(),
		DefaultSection: models.DefaultSection,
		PinnedSection:  PinnedSection,
		EventsPath:     opts.EventsPath,
	})
}

func render(data pageData) ([]byte, error) {
	var buf bytes.Buffer
	if err := page.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("viewer: render: %w", err)
	}
	return buf.Bytes(), nil
}

// Sections groups entries the way the viewer displays them: pinned notes
// first, then one group per section sorted case-insensitively, with the
// default section last. Archived entries are dropped. Within a group the
// input order is kept.
func Sections(entries []models.NoteIndexEntry) []Section {
	var pinned []models.NoteIndexEntry
	groups := map[string][]models.NoteIndexEntry{}
	for _, e := range entries {
		if e.Archived {
			continue
		}
		if e.Pinned {
			pinned = append(pinned, e)
			continue
		}
		name := strings.TrimSpace(e.Section)
		if name == "" {
			name = models.DefaultSection
		}
		groups[name] = append(groups[name], e)
	}

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := names[i], names[j]
		if (a == models.DefaultSection) != (b == models.DefaultSection) {
			return b == models.DefaultSection
		}
		la, lb := strings.ToLower(a), strings.ToLower(b)
		if la != lb {
			return la < lb
		}
		return a < b
	})

	out := make([]Section, 0, len(names)+1)
	if len(pinned) > 0 {
		out = append(out, Section{Name: PinnedSection, Notes: pinned})
	}
	for _, name := range names {
		out = append(out, Section{Name: name, Notes: groups[name]})
	}
	return out
}
