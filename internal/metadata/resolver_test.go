package metadata

import (
	"context"
	"errors"
	"testing"

	"github.com/sassh/portal/internal/dropbox"
)

type fakeFetcher struct {
	files map[string][]byte
	calls []string
}

func (f *fakeFetcher) Download(_ context.Context, path string) ([]byte, error) {
	f.calls = append(f.calls, path)
	data, ok := f.files[path]
	if !ok {
		return nil, errors.New("not found")
	}
	return data, nil
}

func entries(folder string, names ...string) []dropbox.FileEntry {
	out := make([]dropbox.FileEntry, 0, len(names))
	for _, n := range names {
		out = append(out, dropbox.FileEntry{Name: n, Path: folder + "/" + n})
	}
	return out
}

func TestInferPairsDocumentWithImage(t *testing.T) {
	t.Parallel()

	files := entries("/tendon repairs", "Flexor Tendon Repair.pdf", "Flexor Tendon Repair.jpg", "Unrelated.png")

	got := Infer(files)
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d: %+v", len(got), got)
	}

	doc := got[0]
	if doc.Title != "Flexor Tendon Repair" {
		t.Fatalf("unexpected title: %q", doc.Title)
	}
	if doc.Path != "/tendon repairs/Flexor Tendon Repair.pdf" {
		t.Fatalf("unexpected path: %s", doc.Path)
	}
	if doc.ImageFilename != "Flexor Tendon Repair.jpg" || doc.ImagePath != "/tendon repairs/Flexor Tendon Repair.jpg" {
		t.Fatalf("unexpected image: %+v", doc)
	}

	img := got[1]
	if img.Title != "Unrelated" || img.Filename != "Unrelated.png" {
		t.Fatalf("unexpected standalone image: %+v", img)
	}
	if img.HasImage() {
		t.Fatalf("standalone image should have no cover: %+v", img)
	}
}

func TestInferImageClaimedOnce(t *testing.T) {
	t.Parallel()

	files := entries("/f", "Scaphoid.pdf", "Scaphoid Fixation.pdf", "scaphoid cover.png")

	got := Infer(files)
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %+v", got)
	}
	if got[0].ImageFilename != "scaphoid cover.png" {
		t.Fatalf("first document should claim the image: %+v", got[0])
	}
	if got[1].HasImage() {
		t.Fatalf("second document must not reuse a claimed image: %+v", got[1])
	}
}

func TestInferCopySuffix(t *testing.T) {
	t.Parallel()

	files := entries("/f", "Carpal_Tunnel-Release copy.pdf", "Carpal_Tunnel-Release copy.PNG")

	got := Infer(files)
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %+v", got)
	}
	if got[0].Title != "Carpal Tunnel Release" {
		t.Fatalf("unexpected title: %q", got[0].Title)
	}
	if got[0].ImageFilename != "Carpal_Tunnel-Release copy.PNG" {
		t.Fatalf("expected copy image to pair, got %+v", got[0])
	}
}

func TestInferIgnoresUnsyncable(t *testing.T) {
	t.Parallel()

	got := Infer(entries("/f", "notes.txt", "video.mp4", "Report.DOCX"))
	if len(got) != 1 || got[0].Title != "Report" {
		t.Fatalf("unexpected candidates: %+v", got)
	}
}

func TestHasSyncable(t *testing.T) {
	t.Parallel()

	if HasSyncable(entries("/f", "notes.txt", "metadata.json")) {
		t.Fatal("expected no syncable files")
	}
	if !HasSyncable(entries("/f", "notes.txt", "scan.JPEG")) {
		t.Fatal("expected syncable file")
	}
}

func TestResolvePrefersManifest(t *testing.T) {
	t.Parallel()

	manifest := `[
		{"filename": "Flexor.pdf", "title": "Flexor Tendon Repair", "description": "Zone II", "imageFilename": "flexor-cover.jpg"},
		{"filename": "Extensor.pdf"}
	]`
	fetcher := &fakeFetcher{files: map[string][]byte{"/tendons/Metadata.JSON": []byte(manifest)}}
	files := entries("/tendons", "Flexor.pdf", "Loose One.pdf", "Metadata.JSON", "Extensor.pdf", "flexor-cover.jpg")

	got, err := Resolve(context.Background(), fetcher, "/tendons", files)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}

	want := []Candidate{
		{
			Filename:      "Flexor.pdf",
			Path:          "/tendons/Flexor.pdf",
			Title:         "Flexor Tendon Repair",
			Description:   "Zone II",
			ImageFilename: "flexor-cover.jpg",
			ImagePath:     "/tendons/flexor-cover.jpg",
		},
		{
			Filename: "Extensor.pdf",
			Path:     "/tendons/Extensor.pdf",
			Title:    "Extensor",
		},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d candidates, got %+v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("candidate %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
	if len(fetcher.calls) != 1 || fetcher.calls[0] != "/tendons/Metadata.JSON" {
		t.Fatalf("unexpected downloads: %v", fetcher.calls)
	}
}

func TestResolveFallsBackToInference(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{}
	got, err := Resolve(context.Background(), fetcher, "/f", entries("/f", "A.pdf"))
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if len(got) != 1 || got[0].Title != "A" {
		t.Fatalf("unexpected candidates: %+v", got)
	}
	if len(fetcher.calls) != 0 {
		t.Fatalf("inference must not download anything, got %v", fetcher.calls)
	}
}

func TestResolveManifestDownloadFailure(t *testing.T) {
	t.Parallel()

	_, err := Resolve(context.Background(), &fakeFetcher{}, "/f", entries("/f", "metadata.json", "A.pdf"))
	if err == nil {
		t.Fatal("expected error when the manifest cannot be downloaded")
	}
}

func TestParseManifestRejectsMalformed(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"invalid json":     `[{"filename": `,
		"object":           `{"filename": "a.pdf"}`,
		"null":             `null`,
		"missing filename": `[{"title": "No file"}]`,
		"wrong type":       `[{"filename": 12}]`,
	}
	for name, raw := range cases {
		if _, err := ParseManifest("/f", []byte(raw)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}

	_, err := ParseManifest("/f", []byte(`{"a": 1}`))
	if !errors.Is(err, ErrNotArray) {
		t.Fatalf("expected ErrNotArray, got %v", err)
	}
}

func TestParseManifestEmptyArray(t *testing.T) {
	t.Parallel()

	got, err := ParseManifest("/f", []byte(` [] `))
	if err != nil {
		t.Fatalf("ParseManifest returned error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no candidates, got %+v", got)
	}
}

func TestTitleFromFilename(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"Flexor Tendon Repair.pdf": "Flexor Tendon Repair",
		"nerve_repair-basics.docx": "nerve repair basics",
		"Scaphoid copy.JPG":        "Scaphoid",
		"  padded .png":            "padded",
		"no-extension":             "no extension",
	}
	for in, want := range cases {
		if got := TitleFromFilename(in); got != want {
			t.Fatalf("TitleFromFilename(%q): expected %q, got %q", in, want, got)
		}
	}
}
