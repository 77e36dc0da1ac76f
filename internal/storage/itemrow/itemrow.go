// Package itemrow flattens crawler.Item values into the column set shared by
// the SQL item tables.
package itemrow

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/JakeFAU/qa-archiver/internal/crawler"
	"github.com/JakeFAU/qa-archiver/internal/document"
)

// Row is one item table row. Document and References are JSON; UpdatedAt is
// unix nanoseconds so every driver round-trips it exactly.
type Row struct {
	Kind        string
	Key         string
	Status      string
	Reason      string
	Depth       int
	SourceURL   string
	ContentType string
	Payload     []byte
	Document    []byte
	References  []byte
	UpdatedAt   int64
}

// Encode converts an item into a row.
func Encode(item crawler.Item) (Row, error) {
	if err := item.ID.Validate(); err != nil {
		return Row{}, err
	}
	row := Row{
		Kind:        string(item.ID.Kind),
		Key:         item.ID.Key,
		Status:      string(item.Status),
		Reason:      item.Reason,
		Depth:       item.Depth,
		SourceURL:   item.SourceURL,
		ContentType: item.ContentType,
		Payload:     item.RawPayload,
	}
	if !item.UpdatedAt.IsZero() {
		row.UpdatedAt = item.UpdatedAt.UnixNano()
	}
	if item.Document != nil {
		data, err := document.Marshal(item.Document)
		if err != nil {
			return Row{}, fmt.Errorf("encode %s document: %w", item.ID, err)
		}
		row.Document = data
	}
	if len(item.References) > 0 {
		data, err := json.Marshal(item.References)
		if err != nil {
			return Row{}, fmt.Errorf("encode %s references: %w", item.ID, err)
		}
		row.References = data
	}
	return row, nil
}

// Decode converts a row back into an item.
func Decode(row Row) (crawler.Item, error) {
	kind, err := crawler.ParseKind(row.Kind)
	if err != nil {
		return crawler.Item{}, err
	}
	item := crawler.Item{
		ID:          crawler.ItemID{Kind: kind, Key: row.Key},
		Status:      crawler.Status(row.Status),
		Reason:      row.Reason,
		Depth:       row.Depth,
		SourceURL:   row.SourceURL,
		ContentType: row.ContentType,
	}
	if len(row.Payload) > 0 {
		item.RawPayload = row.Payload
	}
	if row.UpdatedAt != 0 {
		item.UpdatedAt = time.Unix(0, row.UpdatedAt).UTC()
	}
	if len(row.Document) > 0 {
		doc, err := document.Unmarshal(row.Document)
		if err != nil {
			return crawler.Item{}, fmt.Errorf("decode %s document: %w", item.ID, err)
		}
		item.Document = doc
	}
	if len(row.References) > 0 {
		if err := json.Unmarshal(row.References, &item.References); err != nil {
			return crawler.Item{}, fmt.Errorf("decode %s references: %w", item.ID, err)
		}
	}
	return item, nil
}
