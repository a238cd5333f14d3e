// Package parser reads and writes note files: YAML frontmatter followed by a
// Markdown body that may carry a `<!-- section: X -->` comment.
package parser

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/starford/quire/internal/models"
)

const delim = "---"

// Meta is the frontmatter block of a note file.
type Meta struct {
	ID       string    `yaml:"id,omitempty"`
	Title    string    `yaml:"title,omitempty"`
	Created  time.Time `yaml:"created,omitempty"`
	Updated  time.Time `yaml:"updated,omitempty"`
	Pinned   bool      `yaml:"pinned,omitempty"`
	Archived bool      `yaml:"archived,omitempty"`
	Color    string    `yaml:"color,omitempty"`
}

// Result holds the output of parsing a note file.
type Result struct {
	Meta    Meta
	HasMeta bool
	Body    string
	Title   string
	Section string
}

// Parse splits data into frontmatter and body. Files without frontmatter, or
// with frontmatter that is not valid YAML, are treated as all body.
func Parse(data []byte) (*Result, error) {
	meta, body, ok := splitFrontmatter(data)
	return &Result{
		Meta:    meta,
		HasMeta: ok,
		Body:    body,
		Title:   deriveTitle(meta.Title, body),
		Section: models.ParseSection(body),
	}, nil
}

// Render serialises meta and body back into note file bytes.
func Render(meta Meta, body string) ([]byte, error) {
	fm, err := yaml.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("parser: marshal frontmatter: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString(delim + "\n")
	buf.Write(fm)
	buf.WriteString(delim + "\n")
	buf.WriteString(body)
	if body != "" && !strings.HasSuffix(body, "\n") {
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

func splitFrontmatter(data []byte) (Meta, string, bool) {
	var meta Meta
	trimmed := bytes.TrimLeft(data, "\n\r")
	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return meta, string(data), false
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return meta, string(data), false
	}

	block := rest[:idx]
	after := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(after), "\n\r")

	if err := yaml.Unmarshal(block, &meta); err != nil {
		return Meta{}, string(data), false
	}
	return meta, body, true
}

// deriveTitle prefers the frontmatter title, then the first H1 heading, then
// the first non-blank line (clipped).
func deriveTitle(title, body string) string {
	if t := strings.TrimSpace(title); t != "" {
		return t
	}
	first := ""
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
		if first == "" && trimmed != "" && !strings.HasPrefix(trimmed, "<!--") {
			first = trimmed
		}
	}
	if r := []rune(first); len(r) > 80 {
		first = string(r[:80])
	}
	return first
}
