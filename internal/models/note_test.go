package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseSection(t *testing.T) {
	cases := map[string]string{
		"<!-- section: Work -->\nbody":        "Work",
		"text\n<!--section:  Home Stuff  -->": "Home Stuff",
		"no comment here":                     "",
		"<!-- other: x -->":                   "",
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseSection(in), in)
	}
}

func TestPreviewStripsMarkup(t *testing.T) {
	got := Preview("<!-- section: Work -->\n# Title\n\n- item one\n> quoted")
	assert.Equal(t, "Title item one quoted", got)
}

func TestPreviewTruncates(t *testing.T) {
	got := Preview(strings.Repeat("word ", 100))
	assert.True(t, strings.HasSuffix(got, "…"), got)
	assert.LessOrEqual(t, len([]rune(got)), previewRunes+1)
}

func TestIndexEntry(t *testing.T) {
	now := time.Now()
	n := Note{
		ID:        "abc",
		Content:   "<!-- section: Ideas -->\nhello",
		UpdatedAt: now,
		Pinned:    true,
	}
	e := n.IndexEntry()
	assert.Equal(t, "Untitled", e.Title)
	assert.Equal(t, "Ideas", e.Section)
	assert.True(t, e.Pinned)
	assert.Equal(t, "abc", e.ID)
	assert.True(t, e.UpdatedAt.Equal(now))
}
