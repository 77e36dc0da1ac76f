package document

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDocument() *Document {
	return &Document{
		Version: Version,
		Title:   "How do hash tables work?",
		Blocks: Blocks{
			Heading{Level: 2, Content: Inlines{Text{Value: "Intro"}}},
			Paragraph{Content: Inlines{
				Text{Value: "See "},
				Link{Target: "https://www.zhihu.com/question/1", Content: Inlines{Strong{Content: Inlines{Text{Value: "this"}}}}},
				Break{},
				Math{Tex: "O(1)"},
				Image{Media: MediaRef{Digest: "sha256-aa"}, Alt: "inline"},
			}},
			List{Ordered: true, Items: []Blocks{
				{Paragraph{Content: Inlines{Text{Value: "one"}}}},
				{List{Items: []Blocks{{Paragraph{Content: Inlines{Code{Code: "x := 1"}}}}}}},
			}},
			Table{Rows: []TableRow{{Header: true, Cells: []Blocks{{Paragraph{Content: Inlines{Text{Value: "k"}}}}}}}},
			CodeBlock{Language: "go", Code: "package main"},
			Figure{Media: MediaRef{URL: "https://pic1.zhimg.com/x.jpg", Broken: true, Reason: "404"}, Caption: Inlines{Emphasis{Content: Inlines{Text{Value: "cap"}}}}},
			BlockQuote{Content: Blocks{Paragraph{Content: Inlines{Footnote{Target: "https://example.com/ref"}}}}},
			HorizontalRule{},
			LinkCard{Link: Link{Target: "https://zhuanlan.zhihu.com/p/9"}},
			Embed{URL: "https://www.zhihu.com/video/5", Provider: "zhihu", Poster: &MediaRef{Digest: "sha256-bb"}},
			Raw{Tag: "marquee", HTML: "<marquee>hi</marquee>"},
		},
		Related: []Link{{Target: "https://www.zhihu.com/question/1"}},
	}
}

func TestMarshalUnmarshalPreservesTree(t *testing.T) {
	t.Parallel()

	doc := sampleDocument()
	data, err := Marshal(doc)
	require.NoError(t, err)

	got, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, doc, got)
}

func TestMarshalWritesTypeDiscriminator(t *testing.T) {
	t.Parallel()

	data, err := Marshal(&Document{Version: Version, Blocks: Blocks{HorizontalRule{}, Paragraph{Content: Inlines{Break{}}}}})
	require.NoError(t, err)

	var generic struct {
		Blocks []map[string]any `json:"blocks"`
	}
	require.NoError(t, json.Unmarshal(data, &generic))
	require.Len(t, generic.Blocks, 2)
	assert.Equal(t, TypeHorizontalRule, generic.Blocks[0]["type"])
	assert.Equal(t, TypeParagraph, generic.Blocks[1]["type"])
}

func TestUnmarshalRejectsUnknownTypes(t *testing.T) {
	t.Parallel()

	_, err := Unmarshal([]byte(`{"version":1,"blocks":[{"type":"hologram"}]}`))
	require.Error(t, err)

	_, err = Unmarshal([]byte(`{"version":99,"blocks":[]}`))
	require.Error(t, err)
}

func TestMarshalRejectsNilBlocks(t *testing.T) {
	t.Parallel()

	_, err := Marshal(&Document{Blocks: Blocks{nil}})
	require.Error(t, err)
}

func TestMediaRefsAndLinkTargets(t *testing.T) {
	t.Parallel()

	doc := sampleDocument()
	refs := MediaRefs(doc)
	require.Len(t, refs, 3)
	assert.Equal(t, "sha256-aa", refs[0].Digest)
	assert.True(t, refs[1].Broken)
	assert.Equal(t, "sha256-bb", refs[2].Digest)

	assert.Equal(t, []string{
		"https://www.zhihu.com/question/1",
		"https://example.com/ref",
		"https://zhuanlan.zhihu.com/p/9",
		"https://www.zhihu.com/video/5",
		"https://www.zhihu.com/question/1",
	}, LinkTargets(doc))
}
