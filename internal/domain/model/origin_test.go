package model

import (
	"testing"
)

func testOrigin(t *testing.T) *Origin {
	t.Helper()

	o := &Origin{
		Name:    "videos",
		Matcher: `^/videos/(.+)$`,
		Sources: []Source{
			{Type: SourceRemote, Priority: 2, PathTemplate: "/media/{1}", BaseURL: "https://cdn.example.com"},
			{Type: SourceBucket, Priority: 1, PathTemplate: "{1}", Bucket: "videos"},
			{Type: SourceFallback, Priority: 3, PathTemplate: "/{1}", BaseURL: "https://backup.example.com"},
		},
	}
	if err := o.Compile(); err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	return o
}

func TestOrigin_Match(t *testing.T) {
	o := testOrigin(t)

	captures, ok := o.Match("/videos/clips/sample.mp4")
	if !ok {
		t.Fatal("expected match")
	}
	if captures[1] != "clips/sample.mp4" {
		t.Errorf("capture = %q, want clips/sample.mp4", captures[1])
	}

	if _, ok := o.Match("/images/a.png"); ok {
		t.Error("unexpected match for non-video path")
	}
}

func TestOrigin_SortedSources(t *testing.T) {
	o := testOrigin(t)

	sorted := o.SortedSources(nil)
	if len(sorted) != 3 {
		t.Fatalf("len = %d, want 3", len(sorted))
	}
	if sorted[0].Type != SourceBucket || sorted[1].Type != SourceRemote || sorted[2].Type != SourceFallback {
		t.Errorf("unexpected order: %v %v %v", sorted[0].Type, sorted[1].Type, sorted[2].Type)
	}
}

func TestOrigin_SortedSourcesExcludes(t *testing.T) {
	o := testOrigin(t)

	sorted := o.SortedSources([]SourceRef{{Origin: "videos", Type: SourceBucket, Priority: 1}})
	if len(sorted) != 2 {
		t.Fatalf("len = %d, want 2", len(sorted))
	}
	if sorted[0].Type != SourceRemote {
		t.Errorf("first source = %v, want remote", sorted[0].Type)
	}
}

func TestSource_ResolvePath(t *testing.T) {
	s := Source{Type: SourceRemote, PathTemplate: "/media/{1}/v/{2}"}

	got := s.ResolvePath([]string{"/videos/a/b", "a", "b"})
	if got != "media/a/v/b" {
		t.Errorf("ResolvePath = %q, want media/a/v/b", got)
	}
}

func TestOrigin_CompileRejectsBadMatcher(t *testing.T) {
	o := &Origin{Name: "bad", Matcher: `^/videos/(`}
	if err := o.Compile(); err == nil {
		t.Error("expected error for invalid regex")
	}

	o = &Origin{Name: "badsource", Matcher: `^/v/(.+)$`, Sources: []Source{{Type: "ftp"}}}
	if err := o.Compile(); err == nil {
		t.Error("expected error for invalid source type")
	}
}
