package domain

import (
	"encoding/json"
	"fmt"
)

// EncodeDocument serializes the full document for local persistence.
// Derived totals are not written; DecodeDocument recomputes them.
func EncodeDocument(doc Document) ([]byte, error) {
	return json.Marshal(doc)
}

// DecodeDocument parses a persisted document, re-checking every line
// invariant. Any violation is reported as ErrCorruptDraft.
func DecodeDocument(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrCorruptDraft, err)
	}
	if doc.Status == "" {
		doc.Status = StatusDraft
	}
	if !doc.Status.Valid() {
		return Document{}, fmt.Errorf("%w: %v", ErrCorruptDraft, ErrInvalidStatus)
	}
	if doc.Lines == nil {
		doc.Lines = []Line{}
	}
	for i, line := range doc.Lines {
		if line.ID == "" {
			return Document{}, fmt.Errorf("%w: line %d has no id", ErrCorruptDraft, i+1)
		}
		restored, err := NewLine(line.ID, line.Input())
		if err != nil {
			return Document{}, fmt.Errorf("%w: line %d: %v", ErrCorruptDraft, i+1, err)
		}
		doc.Lines[i] = restored
	}
	if err := doc.Recompute(); err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrCorruptDraft, err)
	}
	return doc, nil
}
