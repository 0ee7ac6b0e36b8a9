package model

import (
	"strconv"
	"strings"
)

// maxTagLength caps individual tag size; the whole tag set shares the KV
// metadata budget, so callers keep the set small (at most 8 in practice).
const maxTagLength = 128

// CacheTags produces the deduplicated purge-tag set for a variant.
// Tags are short, lower-case ASCII, prefixed vp-.
func CacheTags(path string, o TransformOptions) []string {
	short := shortPath(path)

	tags := make([]string, 0, 8)
	add := func(tag string) {
		tag = strings.ToLower(tag)
		if len(tag) > maxTagLength {
			tag = tag[:maxTagLength]
		}
		for _, t := range tags {
			if t == tag {
				return
			}
		}
		tags = append(tags, tag)
	}

	add("vp-p-" + short)
	if o.Derivative != "" {
		add("vp-p-" + short + "-" + o.Derivative)
		add("vp-d-" + o.Derivative)
	}
	if o.Format != "" {
		add("vp-f-" + o.Format)
	}
	if o.Mode != ModeVideo {
		add("vp-m-" + string(o.Mode))
	}
	if o.Mode == ModeFrame || o.Mode == ModeSpritesheet {
		if o.Time != "" {
			add("vp-t-" + sanitizeKey(o.Time))
		}
		if o.Cols > 0 {
			add("vp-c-" + strconv.Itoa(o.Cols))
		}
		if o.Rows > 0 {
			add("vp-r-" + strconv.Itoa(o.Rows))
		}
		if o.Interval != "" {
			add("vp-i-" + sanitizeKey(o.Interval))
		}
	}
	if o.HasIMQuery {
		add("vp-imq")
		if o.RequestedWidth > 0 {
			add("vp-requested-width-" + strconv.Itoa(o.RequestedWidth))
		}
	}

	return tags
}

// shortPath keeps the last two path segments, joined and separated by '-'.
func shortPath(path string) string {
	p := sanitizePath(path)
	segments := strings.Split(p, "/")
	if n := len(segments); n > 2 {
		segments = segments[n-2:]
	}
	return sanitizeKey(strings.ReplaceAll(strings.Join(segments, "-"), "/", "-"))
}
