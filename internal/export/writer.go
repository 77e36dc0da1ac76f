// Package export writes archived items out as files: the document as JSON,
// its metadata as YAML and a Markdown rendering, next to the media objects
// the content store already holds.
package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/qa-archiver/internal/crawler"
	"github.com/JakeFAU/qa-archiver/internal/document"
)

const (
	itemsRoot    = "items"
	manifestName = "manifest.yaml"
)

// itemMediaPrefix climbs from items/<kind>/<key>/ back to the storage root.
const itemMediaPrefix = "../../../"

// ErrNoDocument is returned for items that never produced a document.
var ErrNoDocument = errors.New("item has no document")

// ObjectWriter is the write half of a blob backend.
type ObjectWriter interface {
	PutObject(ctx context.Context, path, contentType string, r io.Reader) (string, error)
}

// Options configures a Writer.
type Options struct {
	Backend ObjectWriter
	// WriteRaw also stores the fetched payload as raw.<ext>.
	WriteRaw bool
	// Media overrides how media links are written into content.md.
	Media  MediaLinker
	Logger *zap.Logger
}

// Writer exports items through a blob backend.
type Writer struct {
	backend  ObjectWriter
	writeRaw bool
	markdown Markdown
	logger   *zap.Logger
}

// New creates a Writer.
func New(opts Options) (*Writer, error) {
	if opts.Backend == nil {
		return nil, errors.New("export backend is required")
	}
	if opts.Media == nil {
		opts.Media = StoreLink(itemMediaPrefix)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Writer{
		backend:  opts.Backend,
		writeRaw: opts.WriteRaw,
		markdown: Markdown{Media: opts.Media},
		logger:   opts.Logger,
	}, nil
}

// ItemDir is the directory an item is exported to.
func ItemDir(id crawler.ItemID) string {
	return path.Join(itemsRoot, string(id.Kind), safeKey(id.Key))
}

// Info is the metadata written to info.yaml.
type Info struct {
	ID          string       `yaml:"id"`
	Kind        crawler.Kind `yaml:"kind"`
	Key         string       `yaml:"key"`
	Title       string       `yaml:"title,omitempty"`
	Status      string       `yaml:"status"`
	Reason      string       `yaml:"reason,omitempty"`
	Depth       int          `yaml:"depth"`
	SourceURL   string       `yaml:"source_url,omitempty"`
	ContentType string       `yaml:"content_type,omitempty"`
	UpdatedAt   time.Time    `yaml:"updated_at"`
	References  []string     `yaml:"references,omitempty"`
	Related     []string     `yaml:"related,omitempty"`
	Media       []MediaInfo  `yaml:"media,omitempty"`
}

// MediaInfo describes one media reference of an item.
type MediaInfo struct {
	Digest string `yaml:"digest,omitempty"`
	URL    string `yaml:"url,omitempty"`
	Broken bool   `yaml:"broken,omitempty"`
	Reason string `yaml:"reason,omitempty"`
}

// InfoFor builds the info.yaml contents for item.
func InfoFor(item crawler.Item) Info {
	info := Info{
		ID:          item.ID.String(),
		Kind:        item.ID.Kind,
		Key:         item.ID.Key,
		Status:      string(item.Status),
		Reason:      item.Reason,
		Depth:       item.Depth,
		SourceURL:   item.SourceURL,
		ContentType: item.ContentType,
		UpdatedAt:   item.UpdatedAt.UTC(),
	}
	for _, ref := range item.References {
		info.References = append(info.References, ref.String())
	}
	if doc := item.Document; doc != nil {
		info.Title = doc.Title
		for _, l := range doc.Related {
			info.Related = append(info.Related, l.Target)
		}
		for _, m := range document.MediaRefs(doc) {
			info.Media = append(info.Media, MediaInfo{Digest: m.Digest, URL: m.URL, Broken: m.Broken, Reason: m.Reason})
		}
	}
	return info
}

// WriteItem exports one item. Items without a document return ErrNoDocument.
func (w *Writer) WriteItem(ctx context.Context, item crawler.Item) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if item.Document == nil {
		return fmt.Errorf("export %s: %w", item.ID, ErrNoDocument)
	}
	dir := ItemDir(item.ID)

	docJSON, err := document.Marshal(item.Document)
	if err != nil {
		return fmt.Errorf("export %s: %w", item.ID, err)
	}
	info, err := yaml.Marshal(InfoFor(item))
	if err != nil {
		return fmt.Errorf("export %s: encode info: %w", item.ID, err)
	}

	files := []file{
		{"document.json", "application/json", docJSON},
		{"info.yaml", "application/yaml", info},
		{"content.md", "text/markdown; charset=utf-8", []byte(w.markdown.Render(item.Document))},
	}
	if w.writeRaw && len(item.RawPayload) > 0 {
		files = append(files, file{"raw" + rawExt(item.ContentType, item.RawPayload), item.ContentType, item.RawPayload})
	}

	for _, f := range files {
		if err := w.put(ctx, path.Join(dir, f.name), f.contentType, f.data); err != nil {
			return fmt.Errorf("export %s: %w", item.ID, err)
		}
	}
	w.logger.Debug("exported item", zap.String("item", item.ID.String()), zap.String("dir", dir))
	return nil
}

type file struct {
	name        string
	contentType string
	data        []byte
}

// Summary reports what WriteAll exported.
type Summary struct {
	Written int
	Skipped int
}

// Manifest is the run-level index written to manifest.yaml.
type Manifest struct {
	RunID      string          `yaml:"run_id,omitempty"`
	ExportedAt time.Time       `yaml:"exported_at"`
	Items      []ManifestEntry `yaml:"items"`
	Media      []string        `yaml:"media,omitempty"`
}

// ManifestEntry is one item line of the manifest.
type ManifestEntry struct {
	ID     string `yaml:"id"`
	Status string `yaml:"status"`
	Reason string `yaml:"reason,omitempty"`
	Dir    string `yaml:"dir,omitempty"`
}

// WriteAll exports every item that has a document and writes the manifest.
// Items still pending or failed before producing a document are listed in the
// manifest only.
func (w *Writer) WriteAll(ctx context.Context, runID string, items []crawler.Item, media []string, now time.Time) (Summary, error) {
	sorted := append([]crawler.Item(nil), items...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID.String() < sorted[j].ID.String() })

	var sum Summary
	manifest := Manifest{RunID: runID, ExportedAt: now.UTC(), Media: media}
	for _, item := range sorted {
		entry := ManifestEntry{ID: item.ID.String(), Status: string(item.Status), Reason: item.Reason}
		err := w.WriteItem(ctx, item)
		switch {
		case err == nil:
			sum.Written++
			entry.Dir = ItemDir(item.ID)
		case errors.Is(err, ErrNoDocument):
			sum.Skipped++
		default:
			return sum, err
		}
		manifest.Items = append(manifest.Items, entry)
	}

	data, err := yaml.Marshal(manifest)
	if err != nil {
		return sum, fmt.Errorf("encode manifest: %w", err)
	}
	if err := w.put(ctx, manifestName, "application/yaml", data); err != nil {
		return sum, err
	}
	w.logger.Info("export complete", zap.Int("written", sum.Written), zap.Int("skipped", sum.Skipped))
	return sum, nil
}

func (w *Writer) put(ctx context.Context, p, contentType string, data []byte) error {
	if _, err := w.backend.PutObject(ctx, p, contentType, bytes.NewReader(data)); err != nil {
		return &crawler.IOError{Op: "put", Path: p, Err: err}
	}
	return nil
}

func rawExt(contentType string, body []byte) string {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "json"):
		return ".json"
	case strings.Contains(ct, "html"):
		return ".html"
	case ct == "" && len(body) > 0 && body[0] == '{':
		return ".json"
	case ct == "":
		return ".html"
	default:
		return ".bin"
	}
}

// safeKey keeps user tokens usable as a single path segment.
func safeKey(key string) string {
	return strings.NewReplacer("/", "_", `\`, "_", "..", "_").Replace(key)
}
