package model

import (
	"testing"
)

func TestCacheKey_Derivative(t *testing.T) {
	opts := TransformOptions{
		Mode:       ModeVideo,
		Derivative: "mobile",
		Width:      854,
		Height:     640,
		Quality:    QualityMedium,
		Version:    1,
	}

	got := CacheKey("/videos/sample.mp4", opts)
	want := "video:videos/sample.mp4:derivative=mobile"
	if got != want {
		t.Errorf("CacheKey = %q, want %q", got, want)
	}
}

func TestCacheKey_ParameterOrder(t *testing.T) {
	tests := []struct {
		name string
		path string
		opts TransformOptions
		want string
	}{
		{
			name: "video with all parameters",
			path: "videos/clip.mp4",
			opts: TransformOptions{
				Mode:        ModeVideo,
				Width:       1280,
				Height:      720,
				Format:      "mp4",
				Quality:     QualityHigh,
				Compression: CompressionLow,
				Version:     1,
			},
			want: "video:videos/clip.mp4:w=1280:h=720:f=mp4:q=high:c=low",
		},
		{
			name: "frame with time",
			path: "videos/clip.mp4",
			opts: TransformOptions{
				Mode:    ModeFrame,
				Width:   640,
				Format:  "jpg",
				Time:    "5s",
				Version: 1,
			},
			want: "frame:videos/clip.mp4:w=640:f=jpg:t=5s",
		},
		{
			name: "spritesheet grid",
			path: "videos/clip.mp4",
			opts: TransformOptions{
				Mode:     ModeSpritesheet,
				Cols:     5,
				Rows:     4,
				Interval: "2s",
				Version:  1,
			},
			want: "spritesheet:videos/clip.mp4:cols=5:rows=4:interval=2s",
		},
		{
			name: "compression ignored outside video and audio",
			path: "videos/clip.mp4",
			opts: TransformOptions{
				Mode:        ModeFrame,
				Width:       640,
				Compression: CompressionHigh,
				Version:     1,
			},
			want: "frame:videos/clip.mp4:w=640",
		},
		{
			name: "bare path",
			path: "videos/clip.mp4",
			opts: TransformOptions{Mode: ModeVideo, Version: 1},
			want: "video:videos/clip.mp4",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CacheKey(tt.path, tt.opts); got != tt.want {
				t.Errorf("CacheKey = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCacheKey_Sanitization(t *testing.T) {
	tests := []struct {
		name string
		path string
		want string
	}{
		{"leading separators stripped", "///videos/a.mp4", "video:videos/a.mp4"},
		{"repeated separators collapsed", "videos//nested///a.mp4", "video:videos/nested/a.mp4"},
		{"disallowed characters replaced", "videos/a b%c.mp4", "video:videos/a-b-c.mp4"},
		{"allowed special characters kept", "videos/a_b.c-d*e.mp4", "video:videos/a_b.c-d*e.mp4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CacheKey(tt.path, TransformOptions{Mode: ModeVideo, Version: 1})
			if got != tt.want {
				t.Errorf("CacheKey(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestCacheKey_Deterministic(t *testing.T) {
	opts := TransformOptions{
		Mode:    ModeVideo,
		Width:   1920,
		Height:  1080,
		Format:  "mp4",
		Quality: QualityHigh,
		Version: 1,
	}

	first := CacheKey("videos/a.mp4", opts)
	for i := 0; i < 10; i++ {
		if got := CacheKey("videos/a.mp4", opts); got != first {
			t.Fatalf("CacheKey not deterministic: %q vs %q", got, first)
		}
	}
}

func TestCacheKey_StableAcrossVersions(t *testing.T) {
	v1 := TransformOptions{Mode: ModeVideo, Derivative: "desktop", Version: 1}
	v2 := TransformOptions{Mode: ModeVideo, Derivative: "desktop", Version: 7}

	if CacheKey("videos/a.mp4", v1) != CacheKey("videos/a.mp4", v2) {
		t.Error("cache key must not depend on version")
	}
}

func TestChunkKey(t *testing.T) {
	base := "video:videos/big.mp4:derivative=desktop"

	tests := []struct {
		n    int
		want string
	}{
		{0, base + "_chunk_0"},
		{6, base + "_chunk_6"},
		{12, base + "_chunk_12"},
	}

	for _, tt := range tests {
		if got := ChunkKey(base, tt.n); got != tt.want {
			t.Errorf("ChunkKey(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}
