package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/qa-archiver/internal/crawler"
	"github.com/JakeFAU/qa-archiver/internal/document"
)

func TestMatchPatternTable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		link string
		want crawler.ItemID
		ok   bool
	}{
		{"https://www.zhihu.com/question/1/answer/2", crawler.ItemID{Kind: crawler.KindAnswer, Key: "2"}, true},
		{"https://www.zhihu.com/answer/3", crawler.ItemID{Kind: crawler.KindAnswer, Key: "3"}, true},
		{"https://www.zhihu.com/question/4", crawler.ItemID{Kind: crawler.KindQuestion, Key: "4"}, true},
		{"http://zhihu.com/question/4/", crawler.ItemID{Kind: crawler.KindQuestion, Key: "4"}, true},
		{"https://zhuanlan.zhihu.com/p/5", crawler.ItemID{Kind: crawler.KindArticle, Key: "5"}, true},
		{"https://www.zhihu.com/pin/6", crawler.ItemID{Kind: crawler.KindPin, Key: "6"}, true},
		{"https://www.zhihu.com/collection/7", crawler.ItemID{Kind: crawler.KindCollection, Key: "7"}, true},
		{"https://www.zhihu.com/people/some-one", crawler.ItemID{Kind: crawler.KindUser, Key: "some-one"}, true},
		{"https://www.zhihu.com/org/acme/answers", crawler.ItemID{Kind: crawler.KindUser, Key: "acme"}, true},
		{"/question/8", crawler.ItemID{Kind: crawler.KindQuestion, Key: "8"}, true},
		{"//www.zhihu.com/pin/9", crawler.ItemID{Kind: crawler.KindPin, Key: "9"}, true},
		{"https://link.zhihu.com/?target=https%3A//zhuanlan.zhihu.com/p/10", crawler.ItemID{Kind: crawler.KindArticle, Key: "10"}, true},
		{"https://www.zhihu.com/question/1?utm=x#frag", crawler.ItemID{Kind: crawler.KindQuestion, Key: "1"}, true},
		{"HTTPS://WWW.ZHIHU.COM:443/pin/11#comment", crawler.ItemID{Kind: crawler.KindPin, Key: "11"}, true},
		{"http://zhihu.com:80/question/12", crawler.ItemID{Kind: crawler.KindQuestion, Key: "12"}, true},
		{"https://example.com/question/1", crawler.ItemID{}, false},
		{"https://link.zhihu.com/?target=https%3A//example.com", crawler.ItemID{}, false},
		{"https://www.zhihu.com/topic/1", crawler.ItemID{}, false},
		{"https://www.zhihu.com/question/abc", crawler.ItemID{}, false},
		{"mailto:someone@example.com", crawler.ItemID{}, false},
		{"#section", crawler.ItemID{}, false},
		{"", crawler.ItemID{}, false},
	}
	for _, tc := range tests {
		got, ok := Match(tc.link)
		assert.Equal(t, tc.ok, ok, tc.link)
		assert.Equal(t, tc.want, got, tc.link)
	}
}

func TestResolveCollectsDedupesAndSorts(t *testing.T) {
	t.Parallel()

	source := crawler.ItemID{Kind: crawler.KindAnswer, Key: "1"}
	doc := &document.Document{
		Version: document.Version,
		Blocks: document.Blocks{
			document.Paragraph{Content: document.Inlines{
				document.Link{Target: "https://zhuanlan.zhihu.com/p/5"},
				document.Strong{Content: document.Inlines{
					document.Link{Target: "https://www.zhihu.com/people/alice"},
				}},
				document.Link{Target: "https://example.com/not-platform"},
				document.Footnote{Target: "https://www.zhihu.com/question/99"},
			}},
			document.List{Items: []document.Blocks{{
				document.LinkCard{Link: document.Link{Target: "https://zhuanlan.zhihu.com/p/5"}},
			}}},
			document.Embed{URL: "https://www.zhihu.com/pin/6"},
			document.Paragraph{Content: document.Inlines{
				document.Link{Target: "https://www.zhihu.com/answer/1"},
			}},
		},
		Related: []document.Link{{Target: "https://www.zhihu.com/question/42"}},
	}

	refs := New().Resolve(source, doc)
	var got []crawler.ItemID
	for _, r := range refs {
		assert.Equal(t, source, r.Source)
		got = append(got, r.Target)
	}
	assert.Equal(t, []crawler.ItemID{
		{Kind: crawler.KindArticle, Key: "5"},
		{Kind: crawler.KindPin, Key: "6"},
		{Kind: crawler.KindQuestion, Key: "42"},
		{Kind: crawler.KindUser, Key: "alice"},
	}, got)
}

func TestResolveIsOrderIndependent(t *testing.T) {
	t.Parallel()

	links := []string{
		"https://www.zhihu.com/question/2",
		"https://www.zhihu.com/question/1",
		"https://zhuanlan.zhihu.com/p/3",
	}
	build := func(order []int) *document.Document {
		var inl document.Inlines
		for _, i := range order {
			inl = append(inl, document.Link{Target: links[i]})
		}
		return &document.Document{Blocks: document.Blocks{document.Paragraph{Content: inl}}}
	}
	source := crawler.ItemID{Kind: crawler.KindPin, Key: "1"}
	r := New()
	assert.Equal(t, r.Resolve(source, build([]int{0, 1, 2})), r.Resolve(source, build([]int{2, 0, 1, 0})))
}

func TestResolveEmptyDocument(t *testing.T) {
	t.Parallel()

	source := crawler.ItemID{Kind: crawler.KindPin, Key: "1"}
	assert.Empty(t, New().Resolve(source, nil))
	assert.Empty(t, New().Resolve(source, &document.Document{}))
}

func TestParseSeed(t *testing.T) {
	t.Parallel()

	id, err := ParseSeed("answer:12")
	require.NoError(t, err)
	assert.Equal(t, crawler.ItemID{Kind: crawler.KindAnswer, Key: "12"}, id)

	id, err = ParseSeed(" https://www.zhihu.com/question/5/answer/6 ")
	require.NoError(t, err)
	assert.Equal(t, crawler.ItemID{Kind: crawler.KindAnswer, Key: "6"}, id)

	id, err = ParseSeed("User:someone")
	require.NoError(t, err)
	assert.Equal(t, crawler.ItemID{Kind: crawler.KindUser, Key: "someone"}, id)

	for _, bad := range []string{"", "https://example.com/x", "topic:1", "answer:"} {
		_, err := ParseSeed(bad)
		assert.Error(t, err, bad)
	}
}
