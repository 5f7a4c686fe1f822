package chunker

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/dshills/notecontext/pkg/types"
)

// heading is one entry of the heading stack
type heading struct {
	level int
	text  string
}

// section is the body text that sits under one heading path
type section struct {
	path string
	body strings.Builder
}

// ChunkMarkdown chunks within heading sections instead of across the whole
// document and attaches the heading path to each passage.
func (c *Chunker) ChunkMarkdown(source string) []types.Passage {
	passages, ok := c.chunkSections(source)
	if !ok {
		_, body := SplitFrontMatter(source)
		return c.Chunk(body)
	}
	return passages
}

// chunkSections returns false when the document has no headings or when the
// sections hold no body text, in which case the plain window covers the
// heading lines themselves.
func (c *Chunker) chunkSections(source string) ([]types.Passage, bool) {
	_, body := SplitFrontMatter(source)
	src := []byte(body)
	doc := c.md.Parser().Parse(text.NewReader(src))

	var (
		stack    []heading
		sections []*section
		current  = &section{}
		found    bool
	)

	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		if h, ok := node.(*ast.Heading); ok {
			found = true
			sections = append(sections, current)

			for len(stack) > 0 && stack[len(stack)-1].level >= h.Level {
				stack = stack[:len(stack)-1]
			}
			stack = append(stack, heading{level: h.Level, text: NormalizeWhitespace(string(linesText(h, src)))})
			current = &section{path: headingPath(stack)}
			continue
		}
		writeBlockText(node, src, &current.body)
	}
	sections = append(sections, current)

	if !found {
		return nil, false
	}

	var passages []types.Passage
	for _, s := range sections {
		for _, w := range c.slide(NormalizeWhitespace(s.body.String())) {
			passages = append(passages, types.Passage{
				Index:       len(passages),
				Content:     w,
				HeadingPath: s.path,
			})
		}
	}
	if len(passages) == 0 {
		return nil, false
	}
	return passages, true
}

// writeBlockText appends the raw lines of every leaf block under n
func writeBlockText(n ast.Node, src []byte, b *strings.Builder) {
	if n.Type() != ast.TypeBlock {
		return
	}
	if lines := linesText(n, src); len(lines) > 0 {
		b.Write(lines)
	}
	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		writeBlockText(child, src, b)
	}
}

func linesText(n ast.Node, src []byte) []byte {
	lines := n.Lines()
	if lines == nil || lines.Len() == 0 {
		return nil
	}
	var buf bytes.Buffer
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(src))
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// headingPath renders the stack as "# H1 > ## H2"
func headingPath(stack []heading) string {
	parts := make([]string, 0, len(stack))
	for _, h := range stack {
		parts = append(parts, strings.Repeat("#", h.level)+" "+h.text)
	}
	return strings.Join(parts, " > ")
}
