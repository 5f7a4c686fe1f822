package storage

import (
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dshills/notecontext/internal/chunker"
	"github.com/dshills/notecontext/pkg/types"
)

var isoDatePattern = regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})`)

// Front-matter keys consulted for a note date, in order.
var frontMatterDateKeys = []string{"date", "created"}

// Layouts accepted for dates written out in a heading or first line.
var proseDateLayouts = []string{
	"Monday, January 2, 2006",
	"Mon, Jan 2, 2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
	"2006/01/02",
}

// headerLines bounds how far into the body a date heading is looked for.
const headerLines = 3

// DeriveNoteDate picks the date a note is about: an ISO date in the file
// name, then a front-matter date field, then a date heading or first line.
// It returns "" when none applies.
func DeriveNoteDate(name, content string) string {
	if d := validISO(isoDatePattern.FindString(name)); d != "" {
		return d
	}

	frontMatter, body := chunker.SplitFrontMatter(content)
	if frontMatter != "" {
		if d := frontMatterDate(frontMatter); d != "" {
			return d
		}
	}

	seen := 0
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			text := strings.TrimSpace(strings.TrimLeft(line, "#"))
			if d := validISO(isoDatePattern.FindString(text)); d != "" {
				return d
			}
			if d := parseProseDate(text); d != "" {
				return d
			}
		} else if d := parseProseDate(line); d != "" {
			return d
		}
		seen++
		if seen >= headerLines {
			break
		}
	}
	return ""
}

func frontMatterDate(frontMatter string) string {
	var fields map[string]any
	if err := yaml.Unmarshal([]byte(frontMatter), &fields); err != nil {
		return ""
	}
	for _, key := range frontMatterDateKeys {
		switch v := fields[key].(type) {
		case time.Time:
			return v.Format(types.DateLayout)
		case string:
			if d := parseProseDate(v); d != "" {
				return d
			}
		}
	}
	return ""
}

// parseProseDate accepts a line that is a date, optionally followed by text
// when the date is ISO formatted.
func parseProseDate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= len(types.DateLayout) {
		if d := validISO(s[:len(types.DateLayout)]); d != "" {
			return d
		}
	}
	for _, layout := range proseDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(types.DateLayout)
		}
	}
	return ""
}

func validISO(s string) string {
	if s == "" {
		return ""
	}
	t, err := time.Parse(types.DateLayout, s)
	if err != nil {
		return ""
	}
	return t.Format(types.DateLayout)
}
