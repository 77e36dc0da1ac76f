package normalize

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/JakeFAU/qa-archiver/internal/crawler"
	"github.com/JakeFAU/qa-archiver/internal/document"
)

var (
	headingLevels = map[string]int{"h1": 1, "h2": 2, "h3": 3, "h4": 4, "h5": 5, "h6": 6}

	// inlineContainers carry no meaning of their own; their children are
	// spliced into the surrounding inline run.
	inlineContainers = map[string]bool{
		"span": true, "u": true, "s": true, "del": true, "ins": true, "mark": true,
		"small": true, "sub": true, "sup": true, "font": true, "abbr": true,
		"cite": true, "q": true, "label": true, "time": true,
	}

	// blockContainers are transparent wrappers around further blocks.
	blockContainers = map[string]bool{
		"div": true, "section": true, "article": true, "main": true,
		"header": true, "footer": true, "center": true, "li": true,
	}

	skippedTags = map[string]bool{"script": true, "style": true, "noscript": true, "template": true}

	spaceRun = regexp.MustCompile(`\s+`)
)

func isInlineTag(tag string) bool {
	switch tag {
	case "b", "strong", "em", "i", "code", "br", "a", "img":
		return true
	}
	return inlineContainers[tag]
}

// walker maps DOM nodes to document nodes. media holds the stored reference
// for every source found by collectMedia. A collecting walker only records
// the sources it meets.
type walker struct {
	media map[string]document.MediaRef
	raw   []string

	collecting bool
	seen       map[string]bool
	wanted     []string
}

// blocks maps the children of parent. Consecutive inline content is gathered
// into implicit paragraphs.
func (w *walker) blocks(parent *goquery.Selection) document.Blocks {
	var (
		out document.Blocks
		run document.Inlines
	)
	flush := func() {
		if content := tidy(run); len(content) > 0 {
			out = append(out, document.Paragraph{Content: content})
		}
		run = nil
	}
	parent.Contents().Each(func(_ int, child *goquery.Selection) {
		node := child.Get(0)
		switch node.Type {
		case html.TextNode:
			run = append(run, document.Text{Value: node.Data})
		case html.ElementNode:
			tag := node.Data
			switch {
			case skippedTags[tag]:
			case tag == "a" && blockLink(child, len(tidy(run)) == 0):
				flush()
				out = append(out, w.linkBlock(child))
			case isInlineTag(tag):
				run = append(run, w.inline(child)...)
			default:
				flush()
				out = append(out, w.block(child)...)
			}
		}
	})
	flush()
	return out
}

func (w *walker) block(sel *goquery.Selection) document.Blocks {
	tag := goquery.NodeName(sel)
	if level, ok := headingLevels[tag]; ok {
		content := tidy(w.inlines(sel))
		if len(content) == 0 {
			return nil
		}
		return document.Blocks{document.Heading{Level: level, Content: content}}
	}

	switch tag {
	case "p":
		content := tidy(w.inlines(sel))
		if len(content) == 0 {
			return nil
		}
		return document.Blocks{document.Paragraph{Content: content}}
	case "hr":
		return document.Blocks{document.HorizontalRule{}}
	case "ul", "ol":
		return document.Blocks{w.list(sel, tag == "ol")}
	case "table":
		return document.Blocks{w.table(sel)}
	case "pre":
		return document.Blocks{codeBlock(sel)}
	case "figure":
		return w.figure(sel)
	case "blockquote":
		content := w.blocks(sel)
		if len(content) == 0 {
			return nil
		}
		return document.Blocks{document.BlockQuote{Content: content}}
	case "iframe":
		src := sel.AttrOr("src", "")
		if src == "" {
			return nil
		}
		target := crawler.UnwrapRedirect(mediaKey(src))
		return document.Blocks{document.Embed{URL: target, Title: sel.AttrOr("title", ""), Provider: providerOf(target)}}
	case "video":
		return w.video(sel)
	}

	if blockContainers[tag] {
		if tag == "div" && sel.HasClass("highlight") {
			if pre := sel.Find("pre").First(); pre.Length() > 0 {
				return document.Blocks{codeBlock(pre)}
			}
		}
		return w.blocks(sel)
	}

	w.raw = append(w.raw, tag)
	markup, err := goquery.OuterHtml(sel)
	if err != nil {
		markup = html.EscapeString(sel.Text())
	}
	return document.Blocks{document.Raw{Tag: tag, HTML: markup}}
}

// blockLink reports whether an anchor at block level stands on its own line.
func blockLink(a *goquery.Selection, lineStart bool) bool {
	if a.HasClass("video-box") || a.AttrOr("data-draft-type", "") == "link-card" {
		return true
	}
	return lineStart && standaloneAfter(a.Get(0))
}

func standaloneAfter(n *html.Node) bool {
	for s := n.NextSibling; s != nil; s = s.NextSibling {
		switch s.Type {
		case html.TextNode:
			if strings.TrimSpace(s.Data) != "" {
				return false
			}
		case html.ElementNode:
			if skippedTags[s.Data] {
				continue
			}
			return !isInlineTag(s.Data)
		}
	}
	return true
}

func (w *walker) linkBlock(a *goquery.Selection) document.Block {
	if a.HasClass("video-box") {
		target := crawler.UnwrapRedirect(a.AttrOr("href", ""))
		embed := document.Embed{
			URL:      target,
			Title:    collapse(strings.TrimSpace(a.Find(".title").First().Text())),
			Provider: providerOf(target),
		}
		if poster := posterOf(a); poster != "" {
			ref := w.mediaFor(poster)
			embed.Poster = &ref
		}
		return embed
	}
	return document.LinkCard{Link: w.link(a)}
}

func (w *walker) video(sel *goquery.Selection) document.Blocks {
	src := sel.AttrOr("src", "")
	if src == "" {
		src = sel.Find("source[src]").First().AttrOr("src", "")
	}
	if src == "" {
		return nil
	}
	target := mediaKey(src)
	embed := document.Embed{URL: target, Title: sel.AttrOr("title", ""), Provider: providerOf(target)}
	if poster := sel.AttrOr("poster", ""); poster != "" {
		ref := w.mediaFor(poster)
		embed.Poster = &ref
	}
	return document.Blocks{embed}
}

func (w *walker) list(sel *goquery.Selection, ordered bool) document.Block {
	l := document.List{Ordered: ordered}
	sel.ChildrenFiltered("li").Each(func(_ int, li *goquery.Selection) {
		l.Items = append(l.Items, w.blocks(li))
	})
	return l
}

func (w *walker) table(sel *goquery.Selection) document.Block {
	var t document.Table
	sel.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		if !tr.Closest("table").IsSelection(sel) {
			return
		}
		cells := tr.ChildrenFiltered("td, th")
		row := document.TableRow{Header: tr.Parent().Is("thead")}
		allHeaders := cells.Length() > 0
		cells.Each(func(_ int, cell *goquery.Selection) {
			if goquery.NodeName(cell) != "th" {
				allHeaders = false
			}
			row.Cells = append(row.Cells, w.blocks(cell))
		})
		row.Header = row.Header || allHeaders
		t.Rows = append(t.Rows, row)
	})
	return t
}

func codeBlock(pre *goquery.Selection) document.Block {
	code := pre.Find("code").First()
	lang := languageOf(code)
	if lang == "" {
		lang = languageOf(pre)
	}
	return document.CodeBlock{
		Language: lang,
		Code:     strings.TrimRight(pre.Text(), "\n"),
	}
}

func languageOf(sel *goquery.Selection) string {
	if sel.Length() == 0 {
		return ""
	}
	for _, class := range strings.Fields(sel.AttrOr("class", "")) {
		for _, prefix := range []string{"language-", "lang-"} {
			if lang, ok := strings.CutPrefix(class, prefix); ok && lang != "" {
				return lang
			}
		}
	}
	return ""
}

func (w *walker) figure(sel *goquery.Selection) document.Blocks {
	img := sel.Find("img").First()
	if img.Length() == 0 {
		return w.blocks(sel)
	}
	src := imageSource(img)
	if tex, ok := equationTex(img, src); ok {
		return document.Blocks{document.Paragraph{Content: document.Inlines{document.Math{Tex: tex}}}}
	}
	return document.Blocks{document.Figure{
		Media:   w.mediaFor(src),
		Alt:     strings.TrimSpace(img.AttrOr("alt", "")),
		Caption: tidy(w.inlines(sel.Find("figcaption").First())),
	}}
}

// inlines maps the children of parent as inline content.
func (w *walker) inlines(parent *goquery.Selection) document.Inlines {
	var out document.Inlines
	parent.Contents().Each(func(_ int, child *goquery.Selection) {
		node := child.Get(0)
		switch node.Type {
		case html.TextNode:
			out = append(out, document.Text{Value: node.Data})
		case html.ElementNode:
			out = append(out, w.inline(child)...)
		}
	})
	return out
}

func (w *walker) inline(sel *goquery.Selection) document.Inlines {
	tag := goquery.NodeName(sel)
	switch tag {
	case "b", "strong":
		content := merge(w.inlines(sel))
		if len(content) == 0 {
			return nil
		}
		return document.Inlines{document.Strong{Content: content}}
	case "em", "i":
		content := merge(w.inlines(sel))
		if len(content) == 0 {
			return nil
		}
		return document.Inlines{document.Emphasis{Content: content}}
	case "code":
		return document.Inlines{document.Code{Code: sel.Text()}}
	case "br":
		return document.Inlines{document.Break{}}
	case "a":
		if strings.TrimSpace(sel.AttrOr("href", "")) == "" {
			return w.inlines(sel)
		}
		return document.Inlines{w.link(sel)}
	case "img":
		src := imageSource(sel)
		if tex, ok := equationTex(sel, src); ok {
			return document.Inlines{document.Math{Tex: tex}}
		}
		return document.Inlines{document.Image{Media: w.mediaFor(src), Alt: strings.TrimSpace(sel.AttrOr("alt", ""))}}
	case "sup":
		if sel.AttrOr("data-draft-type", "") == "reference" {
			return document.Inlines{footnote(sel)}
		}
	case "span":
		if sel.HasClass("ztext-math") {
			tex := sel.AttrOr("data-tex", "")
			if tex == "" {
				tex = sel.Text()
			}
			return document.Inlines{document.Math{Tex: tex}}
		}
	}
	if skippedTags[tag] {
		return nil
	}
	return w.inlines(sel)
}

func (w *walker) link(a *goquery.Selection) document.Link {
	return document.Link{
		Target:  linkTarget(a.AttrOr("href", "")),
		Content: tidy(w.inlines(a)),
	}
}

func footnote(sup *goquery.Selection) document.Footnote {
	fn := document.Footnote{Text: strings.TrimSpace(sup.AttrOr("data-text", ""))}
	if target := strings.TrimSpace(sup.AttrOr("data-url", "")); target != "" {
		fn.Target = crawler.UnwrapRedirect(target)
	}
	return fn
}

// linkTarget unwraps redirects and resolves relative links against the platform.
func linkTarget(href string) string {
	target := crawler.UnwrapRedirect(href)
	if strings.HasPrefix(target, "#") {
		return target
	}
	return mediaKey(target)
}

func (w *walker) mediaFor(src string) document.MediaRef {
	key := mediaKey(src)
	if w.collecting && key != "" && !w.seen[key] {
		w.seen[key] = true
		w.wanted = append(w.wanted, key)
	}
	if ref, ok := w.media[key]; ok {
		return ref
	}
	if key == "" {
		return document.MediaRef{Broken: true, Reason: "missing media source"}
	}
	return document.MediaRef{URL: key, Broken: true, Reason: reasonUnsupported}
}

func providerOf(target string) string {
	u, err := url.Parse(target)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	host := strings.TrimPrefix(u.Hostname(), "www.")
	if strings.HasSuffix(host, "zhihu.com") {
		return "zhihu"
	}
	return host
}

func collapse(s string) string {
	return spaceRun.ReplaceAllString(s, " ")
}

// merge collapses whitespace and joins adjacent text runs.
func merge(in document.Inlines) document.Inlines {
	var out document.Inlines
	for _, node := range in {
		text, ok := node.(document.Text)
		if !ok {
			out = append(out, node)
			continue
		}
		value := collapse(text.Value)
		if value == "" {
			continue
		}
		if n := len(out); n > 0 {
			if prev, ok := out[n-1].(document.Text); ok {
				out[n-1] = document.Text{Value: collapse(prev.Value + value)}
				continue
			}
		}
		out = append(out, document.Text{Value: value})
	}
	return out
}

// tidy merges a paragraph's inline run and trims whitespace at its edges.
// A run holding only whitespace yields nil.
func tidy(in document.Inlines) document.Inlines {
	out := merge(in)
	if len(out) > 0 {
		if text, ok := out[0].(document.Text); ok {
			out[0] = document.Text{Value: strings.TrimLeft(text.Value, " ")}
		}
		last := len(out) - 1
		if text, ok := out[last].(document.Text); ok {
			out[last] = document.Text{Value: strings.TrimRight(text.Value, " ")}
		}
	}
	trimmed := out[:0]
	for _, node := range out {
		if text, ok := node.(document.Text); ok && text.Value == "" {
			continue
		}
		trimmed = append(trimmed, node)
	}
	if len(trimmed) == 0 {
		return nil
	}
	return trimmed
}
