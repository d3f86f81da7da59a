// Package xref maps internal portal customer ids to national documents.
//
// Pending payments and proposals can reference a customer by its internal
// portal id only. An Index built from the customers batch of the same harvest
// resolves those ids to the digits-only document the store is keyed by. The
// index lives for one sync pass and is never persisted.
package xref

import (
	"github.com/Sternrassler/portal-sync/pkg/records"
)

// Index maps internal customer id to cleaned national document.
type Index struct {
	docs map[string]string
}

// Build indexes every customer that carries both an internal id and a
// document with at least one digit. The first occurrence of an id wins.
func Build(customers []records.Customer) *Index {
	idx := &Index{docs: make(map[string]string, len(customers))}
	for _, c := range customers {
		idx.Add(c.InternalID.String, c.Document.String)
	}
	return idx
}

// Add records one mapping. Blank ids and documents without digits are
// ignored, as is an id already present.
func (x *Index) Add(internalID, document string) {
	if internalID == "" {
		return
	}
	doc := records.CleanDocument(document)
	if doc == "" {
		return
	}
	if _, ok := x.docs[internalID]; ok {
		return
	}
	x.docs[internalID] = doc
}

// Lookup returns the cleaned document for internalID. ok is false when the id
// is unknown; callers then fall back to a document carried by the record.
func (x *Index) Lookup(internalID string) (document string, ok bool) {
	if x == nil || internalID == "" {
		return "", false
	}
	document, ok = x.docs[internalID]
	return document, ok
}

// Resolve returns the document for a dependent record: the indexed document
// for internalID when known, otherwise the record's own document cleaned. The
// result is empty when neither yields digits.
func (x *Index) Resolve(internalID string, fallback records.Text) string {
	if doc, ok := x.Lookup(internalID); ok {
		return doc
	}
	if fallback.Blank() {
		return ""
	}
	return records.CleanDocument(fallback.String)
}

// Len returns the number of indexed customers.
func (x *Index) Len() int {
	if x == nil {
		return 0
	}
	return len(x.docs)
}
