package indexer

import (
	"path/filepath"
	"strings"
)

var vcsDirs = map[string]bool{
	".git": true, ".hg": true, ".svn": true, ".bzr": true, "_darcs": true, "CVS": true,
	"node_modules": true,
}

var binaryExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true, ".ico": true, ".webp": true, ".heic": true, ".tiff": true,
	".pdf": true, ".zip": true, ".gz": true, ".tgz": true, ".bz2": true, ".xz": true, ".7z": true, ".rar": true, ".tar": true,
	".exe": true, ".dll": true, ".so": true, ".dylib": true, ".bin": true, ".o": true, ".a": true, ".class": true, ".jar": true,
	".mp3": true, ".mp4": true, ".m4a": true, ".wav": true, ".flac": true, ".ogg": true, ".mov": true, ".avi": true, ".mkv": true,
	".db": true, ".sqlite": true, ".sqlite3": true, ".wal": true, ".shm": true,
	".doc": true, ".docx": true, ".xls": true, ".xlsx": true, ".ppt": true, ".pptx": true, ".key": true, ".pages": true, ".numbers": true,
	".woff": true, ".woff2": true, ".ttf": true, ".otf": true, ".eot": true,
	".DS_Store": true,
}

// ShouldIgnore reports whether path should be skipped by scans and the
// watcher: any hidden component, a version-control or dependency directory,
// or a known binary extension. Only the part of path below root is checked,
// so a root inside a hidden directory still works.
func ShouldIgnore(root, path string) bool {
	rel := path
	if root != "" {
		if r, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(r, "..") {
			rel = r
		}
	}
	if rel == "." {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if part == "" || part == "." {
			continue
		}
		if strings.HasPrefix(part, ".") || vcsDirs[part] {
			return true
		}
	}
	ext := strings.ToLower(filepath.Ext(path))
	return binaryExtensions[ext] || strings.HasSuffix(path, "~")
}

// looksBinary reports whether content contains a NUL byte in its first 8KB.
func looksBinary(content []byte) bool {
	n := len(content)
	if n > 8192 {
		n = 8192
	}
	for _, b := range content[:n] {
		if b == 0 {
			return true
		}
	}
	return false
}
