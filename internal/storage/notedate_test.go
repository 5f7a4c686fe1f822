package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveNoteDate(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		content  string
		want     string
	}{
		{"iso date in filename", "2024-03-01 trip.md", "", "2024-03-01"},
		{"filename wins over front matter", "2024-03-01.md", "---\ndate: 2023-01-01\n---\nbody", "2024-03-01"},
		{"invalid filename date ignored", "2024-02-30 odd.md", "", ""},
		{"front matter date", "trip.md", "---\ndate: 2024-02-10\ntitle: Trip\n---\nbody", "2024-02-10"},
		{"front matter quoted created", "trip.md", "---\ncreated: \"2024-02-11\"\n---\nbody", "2024-02-11"},
		{"front matter prose date", "trip.md", "---\ndate: March 4, 2024\n---\nbody", "2024-03-04"},
		{"date heading", "standup.md", "# 2024-01-05 Standup\n\nnotes", "2024-01-05"},
		{"prose heading", "journal.md", "## Monday, January 8, 2024\n\nentry", "2024-01-08"},
		{"first line date", "journal.txt", "March 3, 2024\nwent skiing", "2024-03-03"},
		{"date deep in body ignored", "journal.txt", "one\ntwo\nthree\n2024-01-01", ""},
		{"no date", "ideas.md", "just some text\nmore text", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveNoteDate(tt.filename, tt.content))
		})
	}
}
