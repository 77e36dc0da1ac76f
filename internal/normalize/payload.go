package normalize

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/JakeFAU/qa-archiver/internal/crawler"
	"github.com/JakeFAU/qa-archiver/internal/document"
)

var errEmptyPayload = errors.New("empty payload")

// source is the markup and metadata extracted from one payload.
type source struct {
	Title   string
	HTML    string
	Related []document.Link
}

// flexID accepts ids encoded either as JSON numbers or strings.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	*f = flexID(strings.Trim(string(b), `"`))
	return nil
}

type apiRef struct {
	ID       flexID `json:"id"`
	Title    string `json:"title"`
	URLToken string `json:"url_token"`
}

type pinFragment struct {
	Type        string `json:"type"`
	Content     string `json:"content"`
	URL         string `json:"url"`
	OriginalURL string `json:"original_url"`
	Title       string `json:"title"`
}

// apiObject is the union of the fields every supported kind carries.
type apiObject struct {
	ID          flexID          `json:"id"`
	Title       string          `json:"title"`
	Name        string          `json:"name"`
	Content     json.RawMessage `json:"content"`
	ContentHTML string          `json:"content_html"`
	Detail      string          `json:"detail"`
	Description string          `json:"description"`
	Headline    string          `json:"headline"`
	Question    *apiRef         `json:"question"`
	Column      *apiRef         `json:"column"`
	Repin       *apiRef         `json:"repin"`
	// Collection wraps the collection reply.
	Collection *apiObject `json:"collection"`
}

// decodePayload picks the markup field for id's kind out of a JSON payload.
// Anything that is not JSON is taken to be an HTML fragment.
func decodePayload(id crawler.ItemID, payload crawler.Payload) (source, error) {
	body := bytes.TrimSpace(payload.Body)
	if len(body) == 0 {
		return source{}, errEmptyPayload
	}
	if !isJSON(payload.ContentType, body) {
		return source{HTML: string(body)}, nil
	}

	var obj apiObject
	if err := json.Unmarshal(body, &obj); err != nil {
		return source{}, fmt.Errorf("decode %s payload: %w", id.Kind, err)
	}

	src := source{Title: obj.Title}
	switch id.Kind {
	case crawler.KindAnswer:
		content, err := stringField(obj.Content)
		if err != nil {
			return source{}, err
		}
		src.HTML = content
		if q := obj.Question; q != nil && q.ID != "" {
			src.Title = q.Title
			src.Related = append(src.Related, document.Link{
				Target:  crawler.DefaultAPIBase + "/question/" + string(q.ID),
				Content: titleInlines(q.Title),
			})
		}
	case crawler.KindArticle:
		content, err := stringField(obj.Content)
		if err != nil {
			return source{}, err
		}
		src.HTML = content
		if c := obj.Column; c != nil && c.ID != "" {
			src.Related = append(src.Related, document.Link{
				Target:  "https://zhuanlan.zhihu.com/" + string(c.ID),
				Content: titleInlines(c.Title),
			})
		}
	case crawler.KindQuestion:
		src.HTML = obj.Detail
	case crawler.KindPin:
		content, err := pinHTML(obj)
		if err != nil {
			return source{}, err
		}
		src.HTML = content
		if o := obj.Repin; o != nil && o.ID != "" {
			src.Related = append(src.Related, document.Link{Target: crawler.DefaultAPIBase + "/pin/" + string(o.ID)})
		}
	case crawler.KindCollection:
		c := obj
		if obj.Collection != nil {
			c = *obj.Collection
		}
		src.Title = c.Title
		src.HTML = c.Description
	case crawler.KindUser:
		src.Title = obj.Name
		src.HTML = obj.Description
		if strings.TrimSpace(src.HTML) == "" && obj.Headline != "" {
			src.HTML = "<p>" + html.EscapeString(obj.Headline) + "</p>"
		}
	default:
		return source{}, fmt.Errorf("unsupported kind %q", id.Kind)
	}
	return src, nil
}

func isJSON(contentType string, body []byte) bool {
	if strings.Contains(strings.ToLower(contentType), "json") {
		return true
	}
	return body[0] == '{'
}

// stringField decodes an optional JSON string.
func stringField(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("content field: %w", err)
	}
	return s, nil
}

// pinHTML prefers the rendered content_html and otherwise stitches the
// fragment list back into markup.
func pinHTML(obj apiObject) (string, error) {
	if obj.ContentHTML != "" {
		return obj.ContentHTML, nil
	}
	if len(obj.Content) == 0 || bytes.Equal(obj.Content, []byte("null")) {
		return "", nil
	}
	var frags []pinFragment
	if err := json.Unmarshal(obj.Content, &frags); err != nil {
		return "", fmt.Errorf("pin content: %w", err)
	}
	var b strings.Builder
	for _, f := range frags {
		switch f.Type {
		case "text":
			b.WriteString(f.Content)
		case "image":
			src := f.OriginalURL
			if src == "" {
				src = f.URL
			}
			fmt.Fprintf(&b, `<figure><img src="%s"></figure>`, html.EscapeString(src))
		case "link":
			title := f.Title
			if title == "" {
				title = f.URL
			}
			fmt.Fprintf(&b, `<a href="%s" data-draft-type="link-card">%s</a>`,
				html.EscapeString(f.URL), html.EscapeString(title))
		}
	}
	return b.String(), nil
}

func titleInlines(title string) document.Inlines {
	if title == "" {
		return nil
	}
	return document.Inlines{document.Text{Value: title}}
}
