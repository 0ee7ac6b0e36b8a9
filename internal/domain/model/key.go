package model

import (
	"strconv"
	"strings"
)

// Cache keys are stable across versions: version appears only in metadata and
// on the upstream transform URL. Key shape:
//
//	{mode}:{sanitizedPath}:derivative={name}          when a derivative is set
//	{mode}:{sanitizedPath}[:w=W][:h=H][:f=F][:q=Q]... otherwise
//
// Parameters appear in a fixed lexical order so that equal options always
// produce equal keys.

// CacheKey derives the base KV key for a path and fully resolved options.
func CacheKey(path string, o TransformOptions) string {
	var b strings.Builder
	b.WriteString(string(o.Mode))
	b.WriteByte(':')
	b.WriteString(sanitizePath(path))

	if o.Derivative != "" {
		b.WriteString(":derivative=")
		b.WriteString(o.Derivative)
		return sanitizeKey(b.String())
	}

	if o.Width > 0 {
		b.WriteString(":w=")
		b.WriteString(strconv.Itoa(o.Width))
	}
	if o.Height > 0 {
		b.WriteString(":h=")
		b.WriteString(strconv.Itoa(o.Height))
	}
	if o.Format != "" {
		b.WriteString(":f=")
		b.WriteString(o.Format)
	}
	if o.Quality != "" {
		b.WriteString(":q=")
		b.WriteString(o.Quality)
	}
	if o.Mode == ModeVideo || o.Mode == ModeAudio {
		if o.Compression != "" {
			b.WriteString(":c=")
			b.WriteString(o.Compression)
		}
	}
	if o.Mode == ModeFrame || o.Mode == ModeSpritesheet {
		if o.Time != "" {
			b.WriteString(":t=")
			b.WriteString(o.Time)
		}
		if o.Duration != "" {
			b.WriteString(":d=")
			b.WriteString(o.Duration)
		}
		if o.Cols > 0 {
			b.WriteString(":cols=")
			b.WriteString(strconv.Itoa(o.Cols))
		}
		if o.Rows > 0 {
			b.WriteString(":rows=")
			b.WriteString(strconv.Itoa(o.Rows))
		}
		if o.Interval != "" {
			b.WriteString(":interval=")
			b.WriteString(o.Interval)
		}
	}

	return sanitizeKey(b.String())
}

// ChunkKey derives the KV key of chunk n of a chunked entry.
func ChunkKey(baseKey string, n int) string {
	return baseKey + "_chunk_" + strconv.Itoa(n)
}

// sanitizePath strips leading separators and collapses runs of separators.
func sanitizePath(path string) string {
	path = strings.TrimLeft(path, "/")
	for strings.Contains(path, "//") {
		path = strings.ReplaceAll(path, "//", "/")
	}
	return path
}

// sanitizeKey replaces any character outside [A-Za-z0-9:/._=*-] with '-'.
func sanitizeKey(key string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == ':' || r == '/' || r == '.' || r == '_' || r == '=' || r == '*' || r == '-':
			return r
		default:
			return '-'
		}
	}, key)
}
