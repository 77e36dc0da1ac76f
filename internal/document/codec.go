package document

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

var errNilNode = errors.New("nil node")

// MarshalJSON encodes each block with its type discriminator.
func (bs Blocks) MarshalJSON() ([]byte, error) {
	out := make([]json.RawMessage, 0, len(bs))
	for i, b := range bs {
		if b == nil {
			return nil, fmt.Errorf("block %d: %w", i, errNilNode)
		}
		raw, err := tagged(b.BlockType(), b)
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", i, err)
		}
		out = append(out, raw)
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes blocks by their type discriminator.
func (bs *Blocks) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return fmt.Errorf("decode blocks: %w", err)
	}
	if raws == nil {
		*bs = nil
		return nil
	}
	out := make(Blocks, 0, len(raws))
	for i, raw := range raws {
		b, err := decodeBlock(raw)
		if err != nil {
			return fmt.Errorf("block %d: %w", i, err)
		}
		out = append(out, b)
	}
	*bs = out
	return nil
}

// MarshalJSON encodes each inline with its type discriminator.
func (is Inlines) MarshalJSON() ([]byte, error) {
	out := make([]json.RawMessage, 0, len(is))
	for i, in := range is {
		if in == nil {
			return nil, fmt.Errorf("inline %d: %w", i, errNilNode)
		}
		raw, err := tagged(in.InlineType(), in)
		if err != nil {
			return nil, fmt.Errorf("inline %d: %w", i, err)
		}
		out = append(out, raw)
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes inlines by their type discriminator.
func (is *Inlines) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return fmt.Errorf("decode inlines: %w", err)
	}
	if raws == nil {
		*is = nil
		return nil
	}
	out := make(Inlines, 0, len(raws))
	for i, raw := range raws {
		in, err := decodeInline(raw)
		if err != nil {
			return fmt.Errorf("inline %d: %w", i, err)
		}
		out = append(out, in)
	}
	*is = out
	return nil
}

// Marshal encodes a document as JSON.
func Marshal(doc *Document) ([]byte, error) {
	if doc == nil {
		return nil, errNilNode
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return data, nil
}

// Unmarshal decodes a document produced by Marshal.
func Unmarshal(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if doc.Version > Version {
		return nil, fmt.Errorf("document version %d is newer than supported %d", doc.Version, Version)
	}
	return &doc, nil
}

// tagged splices {"type":typ} into the object encoding of v.
func tagged(typ string, v any) (json.RawMessage, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if len(body) < 2 || body[0] != '{' {
		return nil, fmt.Errorf("%s: expected object encoding", typ)
	}
	out := []byte(`{"type":` + strconv.Quote(typ))
	if len(body) == 2 {
		return append(out, '}'), nil
	}
	out = append(out, ',')
	return append(out, body[1:]...), nil
}

func typeOf(raw json.RawMessage) (string, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return "", err
	}
	if head.Type == "" {
		return "", errors.New("missing type")
	}
	return head.Type, nil
}

func decodeAs[T any](raw json.RawMessage) (T, error) {
	var v T
	err := json.Unmarshal(raw, &v)
	return v, err
}

func decodeBlock(raw json.RawMessage) (Block, error) {
	typ, err := typeOf(raw)
	if err != nil {
		return nil, err
	}
	switch typ {
	case TypeParagraph:
		return decodeAs[Paragraph](raw)
	case TypeHeading:
		return decodeAs[Heading](raw)
	case TypeList:
		return decodeAs[List](raw)
	case TypeTable:
		return decodeAs[Table](raw)
	case TypeCodeBlock:
		return decodeAs[CodeBlock](raw)
	case TypeFigure:
		return decodeAs[Figure](raw)
	case TypeBlockQuote:
		return decodeAs[BlockQuote](raw)
	case TypeHorizontalRule:
		return HorizontalRule{}, nil
	case TypeLinkCard:
		return decodeAs[LinkCard](raw)
	case TypeEmbed:
		return decodeAs[Embed](raw)
	case TypeRaw:
		return decodeAs[Raw](raw)
	default:
		return nil, fmt.Errorf("unknown block type %q", typ)
	}
}

func decodeInline(raw json.RawMessage) (Inline, error) {
	typ, err := typeOf(raw)
	if err != nil {
		return nil, err
	}
	switch typ {
	case TypeText:
		return decodeAs[Text](raw)
	case TypeStrong:
		return decodeAs[Strong](raw)
	case TypeEmphasis:
		return decodeAs[Emphasis](raw)
	case TypeCode:
		return decodeAs[Code](raw)
	case TypeMath:
		return decodeAs[Math](raw)
	case TypeBreak:
		return Break{}, nil
	case TypeLink:
		return decodeAs[Link](raw)
	case TypeImage:
		return decodeAs[Image](raw)
	case TypeFootnote:
		return decodeAs[Footnote](raw)
	default:
		return nil, fmt.Errorf("unknown inline type %q", typ)
	}
}
