// Package document defines the portable rich-document tree produced by the
// normalizer. Blocks and inlines form a closed tagged union: every variant is
// listed here, carries only the data relevant to its kind, and round-trips
// through JSON with a "type" discriminator.
package document

// Version is bumped whenever the serialized shape changes.
const Version = 1

// Block type names used as the JSON discriminator.
const (
	TypeParagraph      = "paragraph"
	TypeHeading        = "heading"
	TypeList           = "list"
	TypeTable          = "table"
	TypeCodeBlock      = "code_block"
	TypeFigure         = "figure"
	TypeBlockQuote     = "block_quote"
	TypeHorizontalRule = "horizontal_rule"
	TypeLinkCard       = "link_card"
	TypeEmbed          = "embed"
	TypeRaw            = "raw"
)

// Inline type names used as the JSON discriminator.
const (
	TypeText     = "text"
	TypeStrong   = "strong"
	TypeEmphasis = "emphasis"
	TypeCode     = "code"
	TypeMath     = "math"
	TypeBreak    = "break"
	TypeLink     = "link"
	TypeImage    = "image"
	TypeFootnote = "footnote"
)

// Document is the normalized representation of one item's content. It is built
// once by the normalizer and treated as immutable afterwards.
type Document struct {
	Version int    `json:"version"`
	Title   string `json:"title,omitempty"`
	Blocks  Blocks `json:"blocks"`
	// Related holds structural links taken from payload metadata rather than
	// from the markup, e.g. the question an answer belongs to.
	Related []Link `json:"related,omitempty"`
}

// Block is one structural unit of a document.
type Block interface {
	BlockType() string
}

// Inline is a run of content inside a block.
type Inline interface {
	InlineType() string
}

// Blocks is an ordered block sequence.
type Blocks []Block

// Inlines is an ordered inline sequence.
type Inlines []Inline

// MediaRef points at a stored media asset by digest. Broken refs keep the
// source URL and the reason the media could not be stored.
type MediaRef struct {
	Digest   string `json:"digest,omitempty"`
	URL      string `json:"url,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Broken   bool   `json:"broken,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// Paragraph is a run of inline content.
type Paragraph struct {
	Content Inlines `json:"content"`
}

// Heading is a section title, Level 1 through 6.
type Heading struct {
	Level   int     `json:"level"`
	Content Inlines `json:"content"`
}

// List holds one block sequence per item; items may nest further lists.
type List struct {
	Ordered bool     `json:"ordered"`
	Items   []Blocks `json:"items"`
}

// TableRow is one row of cells.
type TableRow struct {
	Header bool     `json:"header,omitempty"`
	Cells  []Blocks `json:"cells"`
}

// Table is a simple grid without spans.
type Table struct {
	Rows []TableRow `json:"rows"`
}

// CodeBlock is preformatted source code.
type CodeBlock struct {
	Language string `json:"language,omitempty"`
	Code     string `json:"code"`
}

// Figure is a block image with optional caption.
type Figure struct {
	Media   MediaRef `json:"media"`
	Alt     string   `json:"alt,omitempty"`
	Caption Inlines  `json:"caption,omitempty"`
}

// BlockQuote wraps quoted blocks.
type BlockQuote struct {
	Content Blocks `json:"content"`
}

// HorizontalRule is a thematic break.
type HorizontalRule struct{}

// LinkCard is a link rendered on its own line.
type LinkCard struct {
	Link Link `json:"link"`
}

// Embed is third-party or platform content shown inline, such as a video.
type Embed struct {
	URL      string    `json:"url"`
	Title    string    `json:"title,omitempty"`
	Provider string    `json:"provider,omitempty"`
	Poster   *MediaRef `json:"poster,omitempty"`
}

// Raw passes through markup the mapping table does not recognize.
type Raw struct {
	Tag  string `json:"tag"`
	HTML string `json:"html"`
}

// Text is literal text.
type Text struct {
	Value string `json:"value"`
}

// Strong is bold content.
type Strong struct {
	Content Inlines `json:"content"`
}

// Emphasis is italic content.
type Emphasis struct {
	Content Inlines `json:"content"`
}

// Code is inline code.
type Code struct {
	Code string `json:"code"`
}

// Math is a TeX formula.
type Math struct {
	Tex string `json:"tex"`
}

// Break is a hard line break.
type Break struct{}

// Link is a hyperlink. Target has already been unwrapped from redirectors.
type Link struct {
	Target  string  `json:"target"`
	Content Inlines `json:"content,omitempty"`
}

// Image is an inline image.
type Image struct {
	Media MediaRef `json:"media"`
	Alt   string   `json:"alt,omitempty"`
}

// Footnote is a reference note; either Target or Text is set.
type Footnote struct {
	Target string `json:"target,omitempty"`
	Text   string `json:"text,omitempty"`
}

func (Paragraph) BlockType() string      { return TypeParagraph }
func (Heading) BlockType() string        { return TypeHeading }
func (List) BlockType() string           { return TypeList }
func (Table) BlockType() string          { return TypeTable }
func (CodeBlock) BlockType() string      { return TypeCodeBlock }
func (Figure) BlockType() string         { return TypeFigure }
func (BlockQuote) BlockType() string     { return TypeBlockQuote }
func (HorizontalRule) BlockType() string { return TypeHorizontalRule }
func (LinkCard) BlockType() string       { return TypeLinkCard }
func (Embed) BlockType() string          { return TypeEmbed }
func (Raw) BlockType() string            { return TypeRaw }

func (Text) InlineType() string     { return TypeText }
func (Strong) InlineType() string   { return TypeStrong }
func (Emphasis) InlineType() string { return TypeEmphasis }
func (Code) InlineType() string     { return TypeCode }
func (Math) InlineType() string     { return TypeMath }
func (Break) InlineType() string    { return TypeBreak }
func (Link) InlineType() string     { return TypeLink }
func (Image) InlineType() string    { return TypeImage }
func (Footnote) InlineType() string { return TypeFootnote }
