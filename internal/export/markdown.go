package export

import (
	"fmt"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/JakeFAU/qa-archiver/internal/contentstore"
	"github.com/JakeFAU/qa-archiver/internal/document"
)

// MediaLinker maps a media reference to the link written into Markdown.
type MediaLinker func(ref document.MediaRef) string

// StoreLink links stored media to its content-store object path and broken
// media to its original URL.
func StoreLink(prefix string) MediaLinker {
	return func(ref document.MediaRef) string {
		if ref.Broken || ref.Digest == "" {
			return ref.URL
		}
		return prefix + contentstore.ObjectPath(ref.Digest)
	}
}

// Markdown renders documents as CommonMark.
type Markdown struct {
	Media MediaLinker
}

// Render returns doc as Markdown terminated by a newline. A nil document
// renders as the empty string.
func (m Markdown) Render(doc *document.Document) string {
	if doc == nil {
		return ""
	}
	r := &renderer{media: m.Media}
	if r.media == nil {
		r.media = StoreLink("")
	}

	var parts []string
	if doc.Title != "" {
		parts = append(parts, "# "+escape(doc.Title))
	}
	if body := r.blocks(doc.Blocks); body != "" {
		parts = append(parts, body)
	}
	if len(r.notes) > 0 {
		defs := make([]string, 0, len(r.notes))
		for i, n := range r.notes {
			defs = append(defs, fmt.Sprintf("[^%d]: %s", i+1, n))
		}
		parts = append(parts, strings.Join(defs, "\n"))
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, "\n\n") + "\n"
}

type renderer struct {
	media MediaLinker
	notes []string
}

func (r *renderer) blocks(bs document.Blocks) string {
	out := make([]string, 0, len(bs))
	for _, b := range bs {
		if s := r.block(b); s != "" {
			out = append(out, s)
		}
	}
	return strings.Join(out, "\n\n")
}

func (r *renderer) block(b document.Block) string {
	switch v := b.(type) {
	case document.Paragraph:
		return r.inlines(v.Content)
	case document.Heading:
		level := min(max(v.Level, 1), 6)
		return strings.Repeat("#", level) + " " + r.inlines(v.Content)
	case document.List:
		return r.list(v)
	case document.Table:
		return r.table(v)
	case document.CodeBlock:
		fence := "```"
		for strings.Contains(v.Code, fence) {
			fence += "`"
		}
		return fence + v.Language + "\n" + v.Code + "\n" + fence
	case document.Figure:
		out := r.image(v.Media, v.Alt)
		if len(v.Caption) > 0 {
			out += "\n\n*" + r.inlines(v.Caption) + "*"
		}
		return out
	case document.BlockQuote:
		return quote(r.blocks(v.Content))
	case document.HorizontalRule:
		return "---"
	case document.LinkCard:
		text := r.inlines(v.Link.Content)
		if text == "" {
			text = escape(v.Link.Target)
		}
		return "[" + text + "](" + v.Link.Target + ")"
	case document.Embed:
		return r.embed(v)
	case document.Raw:
		return raw(v)
	default:
		return ""
	}
}

func (r *renderer) list(l document.List) string {
	lines := make([]string, 0, len(l.Items))
	for i, item := range l.Items {
		marker := "- "
		if l.Ordered {
			marker = fmt.Sprintf("%d. ", i+1)
		}
		body := r.blocks(item)
		if body == "" {
			lines = append(lines, strings.TrimSpace(marker))
			continue
		}
		indent := strings.Repeat(" ", len(marker))
		for j, line := range strings.Split(body, "\n") {
			switch {
			case j == 0:
				lines = append(lines, marker+line)
			case line == "":
				lines = append(lines, "")
			default:
				lines = append(lines, indent+line)
			}
		}
	}
	return strings.Join(lines, "\n")
}

func (r *renderer) table(t document.Table) string {
	if len(t.Rows) == 0 {
		return ""
	}
	cols := 0
	for _, row := range t.Rows {
		cols = max(cols, len(row.Cells))
	}
	if cols == 0 {
		return ""
	}
	lines := make([]string, 0, len(t.Rows)+1)
	for i, row := range t.Rows {
		cells := make([]string, cols)
		for j := range cells {
			if j < len(row.Cells) {
				cells[j] = r.cell(row.Cells[j])
			}
		}
		lines = append(lines, "| "+strings.Join(cells, " | ")+" |")
		if i == 0 {
			sep := make([]string, cols)
			for j := range sep {
				sep[j] = "---"
			}
			lines = append(lines, "| "+strings.Join(sep, " | ")+" |")
		}
	}
	return strings.Join(lines, "\n")
}

// cell flattens a cell onto one line.
func (r *renderer) cell(bs document.Blocks) string {
	s := r.blocks(bs)
	s = strings.ReplaceAll(s, "\n\n", "<br>")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", `\|`)
}

func (r *renderer) embed(e document.Embed) string {
	title := e.Title
	if title == "" {
		title = e.URL
	}
	if e.Poster != nil {
		if poster := r.media(*e.Poster); poster != "" {
			return "[![" + escape(title) + "](" + poster + ")](" + e.URL + ")"
		}
	}
	return "[" + escape(title) + "](" + e.URL + ")"
}

func (r *renderer) image(ref document.MediaRef, alt string) string {
	target := r.media(ref)
	if target == "" {
		return escape(alt)
	}
	return "![" + escape(alt) + "](" + target + ")"
}

func (r *renderer) inlines(is document.Inlines) string {
	var b strings.Builder
	for _, in := range is {
		b.WriteString(r.inline(in))
	}
	return b.String()
}

func (r *renderer) inline(in document.Inline) string {
	switch v := in.(type) {
	case document.Text:
		return escape(v.Value)
	case document.Strong:
		return "**" + r.inlines(v.Content) + "**"
	case document.Emphasis:
		return "*" + r.inlines(v.Content) + "*"
	case document.Code:
		if strings.Contains(v.Code, "`") {
			return "`` " + v.Code + " ``"
		}
		return "`" + v.Code + "`"
	case document.Math:
		return "$" + v.Tex + "$"
	case document.Break:
		return "  \n"
	case document.Link:
		text := r.inlines(v.Content)
		if text == "" {
			text = escape(v.Target)
		}
		return "[" + text + "](" + v.Target + ")"
	case document.Image:
		return r.image(v.Media, v.Alt)
	case document.Footnote:
		note := strings.TrimSpace(strings.Join([]string{escape(v.Text), v.Target}, " "))
		r.notes = append(r.notes, note)
		return fmt.Sprintf("[^%d]", len(r.notes))
	default:
		return ""
	}
}

// raw converts passthrough markup, keeping the HTML when conversion fails.
func raw(v document.Raw) string {
	md, err := htmltomarkdown.ConvertString(v.HTML)
	if err != nil {
		return v.HTML
	}
	if md = strings.TrimSpace(md); md == "" {
		return v.HTML
	}
	return md
}

func quote(body string) string {
	if body == "" {
		return ""
	}
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		if line == "" {
			lines[i] = ">"
			continue
		}
		lines[i] = "> " + line
	}
	return strings.Join(lines, "\n")
}

var escaper = strings.NewReplacer(
	`\`, `\\`,
	"*", `\*`,
	"_", `\_`,
	"`", "\\`",
	"[", `\[`,
	"]", `\]`,
	"<", `\<`,
)

func escape(s string) string {
	return escaper.Replace(s)
}
