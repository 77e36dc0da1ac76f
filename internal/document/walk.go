package document

// Visitor receives every block and inline of a document in document order.
// Exactly one of b and in is non-nil per call.
type Visitor func(b Block, in Inline)

// Walk visits doc depth-first.
func Walk(doc *Document, visit Visitor) {
	if doc == nil || visit == nil {
		return
	}
	walkBlocks(doc.Blocks, visit)
}

func walkBlocks(bs Blocks, visit Visitor) {
	for _, b := range bs {
		if b == nil {
			continue
		}
		visit(b, nil)
		switch v := b.(type) {
		case Paragraph:
			walkInlines(v.Content, visit)
		case Heading:
			walkInlines(v.Content, visit)
		case List:
			for _, item := range v.Items {
				walkBlocks(item, visit)
			}
		case Table:
			for _, row := range v.Rows {
				for _, cell := range row.Cells {
					walkBlocks(cell, visit)
				}
			}
		case Figure:
			walkInlines(v.Caption, visit)
		case BlockQuote:
			walkBlocks(v.Content, visit)
		case LinkCard:
			walkInlines(v.Link.Content, visit)
		}
	}
}

func walkInlines(is Inlines, visit Visitor) {
	for _, in := range is {
		if in == nil {
			continue
		}
		visit(nil, in)
		switch v := in.(type) {
		case Strong:
			walkInlines(v.Content, visit)
		case Emphasis:
			walkInlines(v.Content, visit)
		case Link:
			walkInlines(v.Content, visit)
		}
	}
}

// MediaRefs returns every media reference in document order, including broken ones.
func MediaRefs(doc *Document) []MediaRef {
	var out []MediaRef
	Walk(doc, func(b Block, in Inline) {
		switch v := b.(type) {
		case Figure:
			out = append(out, v.Media)
		case Embed:
			if v.Poster != nil {
				out = append(out, *v.Poster)
			}
		}
		if img, ok := in.(Image); ok {
			out = append(out, img.Media)
		}
	})
	return out
}

// LinkTargets returns the targets of every link, link card, embed, footnote
// and related link in doc.
func LinkTargets(doc *Document) []string {
	if doc == nil {
		return nil
	}
	var out []string
	Walk(doc, func(b Block, in Inline) {
		switch v := b.(type) {
		case LinkCard:
			out = append(out, v.Link.Target)
		case Embed:
			out = append(out, v.URL)
		}
		switch v := in.(type) {
		case Link:
			out = append(out, v.Target)
		case Footnote:
			if v.Target != "" {
				out = append(out, v.Target)
			}
		}
	})
	for _, l := range doc.Related {
		out = append(out, l.Target)
	}
	return out
}
