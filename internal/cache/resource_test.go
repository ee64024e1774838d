package cache

import (
	"bytes"
	"context"
	"io"
	"testing"
)

func TestClassify(t *testing.T) {
	cases := map[string]ResourceType{
		"/":                                     ResourceDocument,
		"/Menu/":                                ResourceDocument,
		"/pages/menu/menu-pt.html?lang=pt":      ResourceDocument,
		"/css/style.css":                        ResourceStyle,
		"/js/app.js":                            ResourceScript,
		"/assets/images/menu/pt/menu_pt-1.webp": ResourceImage,
		"/assets/images/logo.PNG":               ResourceImage,
		"https://example.test/a/b.svg":          ResourceImage,
		"/assets/videos/intro.mp4":              ResourceVideo,
		"/assets/fonts/Engravers.woff2":         ResourceFont,
		"/manifest.json":                        ResourceStatic,
		"/favicon.ico":                          ResourceStatic,
	}
	for url, want := range cases {
		if got := Classify(url); got != want {
			t.Fatalf("Classify(%q) = %s, want %s", url, got, want)
		}
	}
}

func TestBucketSetMapping(t *testing.T) {
	set := BucketSet{Version: "v6"}
	cases := map[string]string{
		"/index.html":    "documents-v6",
		"/css/style.css": "static-assets-v6",
		"/js/app.js":     "static-assets-v6",
		"/a.jpg":         "images-v6",
		"/f.ttf":         "fonts-v6",
		"/v.webm":        "videos-v6",
		"/manifest.json": "static-assets-v6",
	}
	for url, want := range cases {
		if got := set.BucketFor(url); got != want {
			t.Fatalf("BucketFor(%q) = %s, want %s", url, got, want)
		}
	}
	if !set.Contains("fonts-v6") || set.Contains("fonts-v5") {
		t.Fatalf("unexpected Contains result")
	}
	if len(set.Names()) != 5 {
		t.Fatalf("expected five buckets, got %v", set.Names())
	}
}

func TestBucketWriterMatchesAcrossBuckets(t *testing.T) {
	store := newTestStore(t)
	w := NewBucketWriter(store, BucketSet{Version: "v6"})
	ctx := context.Background()

	entry, err := w.Put(ctx, "/assets/images/menu/pt/menu_pt-1.webp?v=2", bytes.NewReader([]byte("img")), nil)
	if err != nil {
		t.Fatalf("put error: %v", err)
	}
	if entry.Locator.Bucket != "images-v6" {
		t.Fatalf("expected images bucket, got %s", entry.Locator.Bucket)
	}

	result, err := w.Match(ctx, "/assets/images/menu/pt/menu_pt-1.webp")
	if err != nil {
		t.Fatalf("match error: %v", err)
	}
	body, _ := io.ReadAll(result.Reader)
	result.Reader.Close()
	if string(body) != "img" {
		t.Fatalf("unexpected body %q", body)
	}

	if _, err := NewBucketWriter(store, BucketSet{Version: "v7"}).Match(ctx, "/assets/images/menu/pt/menu_pt-1.webp"); err != ErrNotFound {
		t.Fatalf("other versions must not match, got %v", err)
	}
	if _, err := (BucketWriter{}).Match(ctx, "/x"); err != ErrStoreUnavailable {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}
