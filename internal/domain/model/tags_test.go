package model

import (
	"slices"
	"testing"
)

func TestCacheTags_VideoWithDerivative(t *testing.T) {
	opts := TransformOptions{
		Mode:       ModeVideo,
		Derivative: "mobile",
		Format:     "mp4",
		Version:    1,
	}

	tags := CacheTags("/videos/sample.mp4", opts)

	want := []string{
		"vp-p-videos-sample.mp4",
		"vp-p-videos-sample.mp4-mobile",
		"vp-d-mobile",
		"vp-f-mp4",
	}
	if !slices.Equal(tags, want) {
		t.Errorf("CacheTags = %v, want %v", tags, want)
	}
}

func TestCacheTags_ModeTagOnlyForNonVideo(t *testing.T) {
	video := CacheTags("a/b.mp4", TransformOptions{Mode: ModeVideo, Version: 1})
	if slices.Contains(video, "vp-m-video") {
		t.Error("video mode must not produce a mode tag")
	}

	frame := CacheTags("a/b.mp4", TransformOptions{Mode: ModeFrame, Version: 1})
	if !slices.Contains(frame, "vp-m-frame") {
		t.Errorf("frame mode tag missing: %v", frame)
	}

	audio := CacheTags("a/b.mp4", TransformOptions{Mode: ModeAudio, Version: 1})
	if !slices.Contains(audio, "vp-m-audio") {
		t.Errorf("audio mode tag missing: %v", audio)
	}
}

func TestCacheTags_SpritesheetGrid(t *testing.T) {
	opts := TransformOptions{
		Mode:     ModeSpritesheet,
		Cols:     5,
		Rows:     4,
		Interval: "2s",
		Version:  1,
	}

	tags := CacheTags("videos/clip.mp4", opts)

	for _, want := range []string{"vp-m-spritesheet", "vp-c-5", "vp-r-4", "vp-i-2s"} {
		if !slices.Contains(tags, want) {
			t.Errorf("missing tag %q in %v", want, tags)
		}
	}
}

func TestCacheTags_IMQuery(t *testing.T) {
	opts := TransformOptions{
		Mode:           ModeVideo,
		Derivative:     "desktop",
		HasIMQuery:     true,
		RequestedWidth: 1920,
		Version:        1,
	}

	tags := CacheTags("videos/clip.mp4", opts)

	if !slices.Contains(tags, "vp-imq") {
		t.Errorf("missing vp-imq in %v", tags)
	}
	if !slices.Contains(tags, "vp-requested-width-1920") {
		t.Errorf("missing requested-width tag in %v", tags)
	}
}

func TestCacheTags_ShortPathKeepsLastTwoSegments(t *testing.T) {
	tags := CacheTags("/media/library/2024/trailer.mp4", TransformOptions{Mode: ModeVideo, Version: 1})

	if tags[0] != "vp-p-2024-trailer.mp4" {
		t.Errorf("path tag = %q, want vp-p-2024-trailer.mp4", tags[0])
	}
}

func TestCacheTags_LowercaseAndBounded(t *testing.T) {
	opts := TransformOptions{Mode: ModeVideo, Derivative: "Mobile", Version: 1}

	for _, tag := range CacheTags("Videos/UPPER.MP4", opts) {
		if tag != stringsToLower(tag) {
			t.Errorf("tag %q not lower-case", tag)
		}
		if len(tag) > maxTagLength {
			t.Errorf("tag %q exceeds %d bytes", tag, maxTagLength)
		}
	}
}

func stringsToLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 32
		}
	}
	return string(b)
}
