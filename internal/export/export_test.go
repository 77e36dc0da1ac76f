package export

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/qa-archiver/internal/crawler"
	"github.com/JakeFAU/qa-archiver/internal/document"
	"github.com/JakeFAU/qa-archiver/internal/storage/memory"
)

var digest = "sha256-" + strings.Repeat("ab", 32)

func text(s string) document.Inlines {
	return document.Inlines{document.Text{Value: s}}
}

func para(s string) document.Block {
	return document.Paragraph{Content: text(s)}
}

func TestMarkdownRendersEveryBlock(t *testing.T) {
	t.Parallel()

	doc := &document.Document{
		Version: document.Version,
		Title:   "Hello *world*",
		Blocks: document.Blocks{
			document.Heading{Level: 2, Content: text("Intro")},
			document.Paragraph{Content: document.Inlines{
				document.Text{Value: "a "},
				document.Strong{Content: text("b")},
				document.Text{Value: " "},
				document.Emphasis{Content: text("c")},
				document.Text{Value: " "},
				document.Code{Code: "x`y"},
				document.Text{Value: " "},
				document.Math{Tex: "E=mc^2"},
				document.Link{Target: "https://example.com", Content: text("ex")},
				document.Footnote{Text: "note", Target: "https://n.test"},
			}},
			document.List{Ordered: true, Items: []document.Blocks{
				{para("one")},
				{para("two"), document.List{Items: []document.Blocks{{para("nested")}}}},
			}},
			document.Table{Rows: []document.TableRow{
				{Header: true, Cells: []document.Blocks{{para("h1")}, {para("h2")}}},
				{Cells: []document.Blocks{{para("a|b")}}},
			}},
			document.CodeBlock{Language: "go", Code: "fmt.Println(1)"},
			document.Figure{Media: document.MediaRef{Digest: digest}, Alt: "cat", Caption: text("A cat")},
			document.Figure{Media: document.MediaRef{URL: "https://pic.test/x.png", Broken: true, Reason: "status 404"}},
			document.BlockQuote{Content: document.Blocks{para("q1"), para("q2")}},
			document.HorizontalRule{},
			document.LinkCard{Link: document.Link{Target: "https://zhuanlan.zhihu.com/p/5"}},
			document.Embed{URL: "https://v.test/1", Title: "Video"},
			document.Raw{Tag: "details", HTML: "<details><summary>s</summary><p>hidden <b>bold</b></p></details>"},
		},
	}

	md := Markdown{Media: StoreLink("")}.Render(doc)

	assert.True(t, strings.HasPrefix(md, "# Hello \\*world\\*\n\n## Intro\n\n"), md)
	for _, chunk := range []string{
		"a **b** *c* `` x`y `` $E=mc^2$[ex](https://example.com)[^1]",
		"1. one\n2. two\n\n   - nested",
		"| h1 | h2 |\n| --- | --- |\n| a\\|b |  |",
		"```go\nfmt.Println(1)\n```",
		"![cat](media/sha256/ab/" + digest + ")\n\n*A cat*",
		"![](https://pic.test/x.png)",
		"> q1\n>\n> q2",
		"\n---\n",
		"[https://zhuanlan.zhihu.com/p/5](https://zhuanlan.zhihu.com/p/5)",
		"[Video](https://v.test/1)",
		"**bold**",
	} {
		assert.Contains(t, md, chunk)
	}
	assert.True(t, strings.HasSuffix(md, "\n\n[^1]: note https://n.test\n"), md)
}

func TestMarkdownEmbedPosterAndEmptyDocument(t *testing.T) {
	t.Parallel()

	doc := &document.Document{Blocks: document.Blocks{
		document.Embed{URL: "https://v.test/2", Poster: &document.MediaRef{Digest: digest}},
	}}
	md := Markdown{Media: StoreLink("../")}.Render(doc)
	assert.Equal(t, "[![https://v.test/2](../media/sha256/ab/"+digest+")](https://v.test/2)\n", md)

	assert.Empty(t, Markdown{}.Render(nil))
	assert.Empty(t, Markdown{}.Render(&document.Document{Blocks: document.Blocks{}}))
}

func sampleItem() crawler.Item {
	return crawler.Item{
		ID:          crawler.ItemID{Kind: crawler.KindAnswer, Key: "1"},
		Status:      crawler.StatusDone,
		Depth:       1,
		SourceURL:   "https://www.zhihu.com/api/v4/answers/1",
		ContentType: "application/json",
		RawPayload:  []byte(`{"id":1}`),
		References:  []crawler.ItemID{{Kind: crawler.KindQuestion, Key: "2"}},
		UpdatedAt:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Document: &document.Document{
			Version: document.Version,
			Title:   "Why?",
			Blocks: document.Blocks{
				para("Because."),
				document.Figure{Media: document.MediaRef{Digest: digest, URL: "https://pic.test/a.png"}},
			},
			Related: []document.Link{{Target: "https://www.zhihu.com/question/2"}},
		},
	}
}

func TestWriteItem(t *testing.T) {
	t.Parallel()

	blobs := memory.NewBlobStore()
	w, err := New(Options{Backend: blobs, WriteRaw: true})
	require.NoError(t, err)

	item := sampleItem()
	require.NoError(t, w.WriteItem(context.Background(), item))
	ctx := context.Background()

	data, err := blobs.GetObject(ctx, "items/answer/1/document.json")
	require.NoError(t, err)
	doc, err := document.Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, item.Document, doc)

	data, err = blobs.GetObject(ctx, "items/answer/1/info.yaml")
	require.NoError(t, err)
	var info Info
	require.NoError(t, yaml.Unmarshal(data, &info))
	assert.Equal(t, "answer:1", info.ID)
	assert.Equal(t, "Why?", info.Title)
	assert.Equal(t, "done", info.Status)
	assert.Equal(t, 1, info.Depth)
	assert.Equal(t, []string{"question:2"}, info.References)
	assert.Equal(t, []string{"https://www.zhihu.com/question/2"}, info.Related)
	assert.Equal(t, []MediaInfo{{Digest: digest, URL: "https://pic.test/a.png"}}, info.Media)
	assert.True(t, item.UpdatedAt.Equal(info.UpdatedAt))

	data, err = blobs.GetObject(ctx, "items/answer/1/content.md")
	require.NoError(t, err)
	assert.Equal(t, "# Why?\n\nBecause.\n\n![](../../../media/sha256/ab/"+digest+")\n", string(data))

	data, err = blobs.GetObject(ctx, "items/answer/1/raw.json")
	require.NoError(t, err)
	assert.Equal(t, item.RawPayload, data)
}

func TestWriteItemWithoutDocument(t *testing.T) {
	t.Parallel()

	w, err := New(Options{Backend: memory.NewBlobStore()})
	require.NoError(t, err)
	err = w.WriteItem(context.Background(), crawler.Item{ID: crawler.ItemID{Kind: crawler.KindPin, Key: "3"}})
	require.ErrorIs(t, err, ErrNoDocument)
}

func TestWriteAllWritesManifest(t *testing.T) {
	t.Parallel()

	blobs := memory.NewBlobStore()
	w, err := New(Options{Backend: blobs})
	require.NoError(t, err)

	pending := crawler.Item{ID: crawler.ItemID{Kind: crawler.KindQuestion, Key: "2"}, Status: crawler.StatusPending}
	now := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	sum, err := w.WriteAll(context.Background(), "run-1", []crawler.Item{pending, sampleItem()}, []string{digest}, now)
	require.NoError(t, err)
	assert.Equal(t, Summary{Written: 1, Skipped: 1}, sum)

	_, err = blobs.GetObject(context.Background(), "items/answer/1/raw.json")
	require.ErrorIs(t, err, crawler.ErrNotFound)

	data, err := blobs.GetObject(context.Background(), "manifest.yaml")
	require.NoError(t, err)
	var m Manifest
	require.NoError(t, yaml.Unmarshal(data, &m))
	assert.Equal(t, "run-1", m.RunID)
	assert.Equal(t, []string{digest}, m.Media)
	assert.Equal(t, []ManifestEntry{
		{ID: "answer:1", Status: "done", Dir: "items/answer/1"},
		{ID: "question:2", Status: "pending"},
	}, m.Items)
}

type failingBackend struct{}

func (failingBackend) PutObject(context.Context, string, string, io.Reader) (string, error) {
	return "", errors.New("disk full")
}

func TestWriteItemWrapsBackendErrors(t *testing.T) {
	t.Parallel()

	w, err := New(Options{Backend: failingBackend{}})
	require.NoError(t, err)
	err = w.WriteItem(context.Background(), sampleItem())
	var ioErr *crawler.IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, "items/answer/1/document.json", ioErr.Path)
}

func TestItemDirKeepsKeysToOneSegment(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "items/user/a_b", ItemDir(crawler.ItemID{Kind: crawler.KindUser, Key: "a/b"}))
	assert.Equal(t, "items/user/_", ItemDir(crawler.ItemID{Kind: crawler.KindUser, Key: ".."}))
}
