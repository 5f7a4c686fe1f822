package chunker

import "strings"

const frontMatterDelim = "---"

// SplitFrontMatter separates a leading YAML front matter block delimited by
// "---" lines from the document body. When there is no complete block the
// whole input is returned as the body.
func SplitFrontMatter(source string) (frontMatter, body string) {
	trimmed := strings.TrimPrefix(source, "\ufeff")
	if !strings.HasPrefix(trimmed, frontMatterDelim) {
		return "", source
	}

	rest := trimmed[len(frontMatterDelim):]
	nl := strings.IndexByte(rest, '\n')
	if nl < 0 || strings.TrimSpace(rest[:nl]) != "" {
		return "", source
	}
	rest = rest[nl+1:]

	offset := 0
	for offset <= len(rest) {
		line := rest[offset:]
		end := strings.IndexByte(line, '\n')
		if end >= 0 {
			line = line[:end]
		}
		if strings.TrimRight(line, " \t\r") == frontMatterDelim {
			frontMatter = rest[:offset]
			if end < 0 {
				return frontMatter, ""
			}
			return frontMatter, rest[offset+end+1:]
		}
		if end < 0 {
			break
		}
		offset += end + 1
	}
	return "", source
}
