// Package metadata turns a folder's file listing into article candidates,
// either from a metadata.json manifest or by inferring them from filenames.
package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/sassh/portal/internal/dropbox"
)

// ManifestName is the sidecar file that overrides filename inference.
const ManifestName = "metadata.json"

// ErrNotArray is returned when a manifest is valid JSON but not an array.
var ErrNotArray = errors.New("manifest must be a JSON array")

var (
	syncableExt = regexp.MustCompile(`(?i)\.(pdf|doc|docx|jpg|jpeg|png)$`)
	documentExt = regexp.MustCompile(`(?i)\.(pdf|doc|docx)$`)
	imageExt    = regexp.MustCompile(`(?i)\.(jpg|jpeg|png)$`)
	copySuffix  = regexp.MustCompile(`(?i) copy$`)
	separators  = strings.NewReplacer("-", " ", "_", " ")
)

// Candidate is one article ready to be synced
type Candidate struct {
	Filename      string `json:"filename"`
	Path          string `json:"path"` // source identity, unique per article
	Title         string `json:"title"`
	Description   string `json:"description"`
	ImageFilename string `json:"imageFilename,omitempty"`
	ImagePath     string `json:"imagePath,omitempty"`
}

// HasImage reports whether the candidate carries a cover image
func (c Candidate) HasImage() bool {
	return c.ImagePath != ""
}

// Fetcher downloads a remote file
type Fetcher interface {
	Download(ctx context.Context, path string) ([]byte, error)
}

// Resolve builds the candidate list for a folder. A manifest, if present, wins.
func Resolve(ctx context.Context, fetcher Fetcher, folderPath string, files []dropbox.FileEntry) ([]Candidate, error) {
	if manifest, ok := findManifest(files); ok {
		raw, err := fetcher.Download(ctx, manifest.Path)
		if err != nil {
			return nil, fmt.Errorf("download %s: %w", ManifestName, err)
		}
		return ParseManifest(folderPath, raw)
	}
	return Infer(files), nil
}

// HasSyncable reports whether any file has an extension the sync imports
func HasSyncable(files []dropbox.FileEntry) bool {
	for _, f := range files {
		if syncableExt.MatchString(f.Name) {
			return true
		}
	}
	return false
}

func findManifest(files []dropbox.FileEntry) (dropbox.FileEntry, bool) {
	for _, f := range files {
		if strings.EqualFold(f.Name, ManifestName) {
			return f, true
		}
	}
	return dropbox.FileEntry{}, false
}

// manifestEntry is one object of metadata.json
type manifestEntry struct {
	Filename      string `json:"filename"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	ImageFilename string `json:"imageFilename"`
}

// ParseManifest decodes a metadata.json array into candidates rooted at folderPath
func ParseManifest(folderPath string, raw []byte) ([]Candidate, error) {
	if !bytes.HasPrefix(bytes.TrimSpace(raw), []byte("[")) {
		return nil, fmt.Errorf("parse %s: %w", ManifestName, ErrNotArray)
	}

	var entries []manifestEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse %s: %w", ManifestName, err)
	}

	candidates := make([]Candidate, 0, len(entries))
	for i, e := range entries {
		if strings.TrimSpace(e.Filename) == "" {
			return nil, fmt.Errorf("parse %s: entry %d has no filename", ManifestName, i)
		}

		c := Candidate{
			Filename:    e.Filename,
			Path:        folderPath + "/" + e.Filename,
			Title:       strings.TrimSpace(e.Title),
			Description: e.Description,
		}
		if c.Title == "" {
			c.Title = TitleFromFilename(e.Filename)
		}
		if e.ImageFilename != "" {
			c.ImageFilename = e.ImageFilename
			c.ImagePath = folderPath + "/" + e.ImageFilename
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

// Infer derives candidates from document and image filenames. Each document
// claims at most one cover image whose name starts with the document's base
// name; images left unclaimed become articles of their own.
func Infer(files []dropbox.FileEntry) []Candidate {
	var docs, images []dropbox.FileEntry
	for _, f := range files {
		switch {
		case documentExt.MatchString(f.Name):
			docs = append(docs, f)
		case imageExt.MatchString(f.Name):
			images = append(images, f)
		}
	}

	claimed := make([]bool, len(images))
	candidates := make([]Candidate, 0, len(docs)+len(images))

	for _, doc := range docs {
		c := Candidate{
			Filename: doc.Name,
			Path:     doc.Path,
			Title:    TitleFromFilename(doc.Name),
		}

		base := matchKey(documentExt.ReplaceAllString(doc.Name, ""))
		for i, img := range images {
			if claimed[i] || !strings.HasPrefix(matchKey(img.Name), base) {
				continue
			}
			claimed[i] = true
			c.ImageFilename = img.Name
			c.ImagePath = img.Path
			break
		}
		candidates = append(candidates, c)
	}

	for i, img := range images {
		if claimed[i] {
			continue
		}
		candidates = append(candidates, Candidate{
			Filename: img.Name,
			Path:     img.Path,
			Title:    TitleFromFilename(img.Name),
		})
	}

	return candidates
}

// matchKey is the lower-cased name with any " copy" suffix removed
func matchKey(name string) string {
	ext := imageExt.FindString(name)
	stem := copySuffix.ReplaceAllString(strings.TrimSuffix(name, ext), "")
	return strings.ToLower(stem + ext)
}

// TitleFromFilename makes a readable title from a file name
func TitleFromFilename(filename string) string {
	name := path.Base(filename)
	name = syncableExt.ReplaceAllString(name, "")
	name = copySuffix.ReplaceAllString(name, "")
	name = strings.TrimSpace(separators.Replace(name))
	if name == "" {
		return filename
	}
	return name
}
