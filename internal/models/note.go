// Package models defines the domain types for quire.
package models

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// DefaultSection is the section label used for notes without a section comment.
const DefaultSection = "Notes"

const previewRunes = 140

var (
	sectionRe = regexp.MustCompile(`<!--\s*section:\s*(.*?)\s*-->`)
	commentRe = regexp.MustCompile(`(?s)<!--.*?-->`)
	spaceRe   = regexp.MustCompile(`\s+`)
)

// Note is a single note as handed over by the note store.
type Note struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Pinned    bool      `json:"pinned"`
	Archived  bool      `json:"archived"`
	Color     string    `json:"color,omitempty"`
	Section   string    `json:"section,omitempty"`
}

// NoteIndexEntry is the projection of a Note published in index.json.
type NoteIndexEntry struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Preview   string    `json:"preview"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Pinned    bool      `json:"pinned"`
	Archived  bool      `json:"archived,omitempty"`
	Section   string    `json:"section,omitempty"`
}

// IndexEntry projects the note into its index.json entry.
func (n Note) IndexEntry() NoteIndexEntry {
	section := n.Section
	if section == "" {
		section = ParseSection(n.Content)
	}
	title := strings.TrimSpace(n.Title)
	if title == "" {
		title = "Untitled"
	}
	return NoteIndexEntry{
		ID:        n.ID,
		Title:     title,
		Preview:   Preview(n.Content),
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
		Pinned:    n.Pinned,
		Archived:  n.Archived,
		Section:   section,
	}
}

// ParseSection returns the label of the first `<!-- section: X -->` comment
// in content, or an empty string.
func ParseSection(content string) string {
	m := sectionRe.FindStringSubmatch(content)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// Preview returns a single-line plain-text snippet of content.
func Preview(content string) string {
	text := commentRe.ReplaceAllString(content, " ")
	var b strings.Builder
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "#>-*+ ")
		if line == "" || strings.HasPrefix(line, "```") {
			continue
		}
		b.WriteString(line)
		b.WriteByte(' ')
	}
	out := strings.TrimSpace(spaceRe.ReplaceAllString(b.String(), " "))
	if utf8.RuneCountInString(out) <= previewRunes {
		return out
	}
	runes := []rune(out)
	return strings.TrimSpace(string(runes[:previewRunes])) + "…"
}
