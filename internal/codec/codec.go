// Package codec converts bookmark forests to and from the snapshot document
// stored remotely.
//
// The stored shape mirrors what a browser returns for its whole bookmark
// tree: a JSON array holding one root entry whose children are the root
// containers (bar, other, mobile).
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/MrSnakeDoc/marksync/internal/domain"
)

// ContentType is the MIME type of a marshalled snapshot.
const ContentType = "application/json"

// wireNode is the JSON form of a node. Unknown keys (id, parentId, index,
// dateAdded...) are ignored on decode and never emitted.
type wireNode struct {
	Title    string       `json:"title"`
	URL      string       `json:"url,omitempty"`
	Children *[]*wireNode `json:"children,omitempty"`
}

// Encode converts a local forest into a snapshot document.
// Local identifiers are dropped; structure, titles, URLs and order are kept.
func Encode(forest domain.Forest) domain.SnapshotDocument {
	roots := make([]*domain.BookmarkNode, 0, len(forest))
	for _, root := range forest {
		roots = append(roots, stripIDs(root))
	}
	return domain.SnapshotDocument{Roots: roots}
}

func stripIDs(n *domain.BookmarkNode) *domain.BookmarkNode {
	out := &domain.BookmarkNode{Title: n.Title, URL: n.URL}
	if !n.IsFolder() {
		return out
	}
	out.Children = make([]*domain.BookmarkNode, 0, len(n.Children))
	for _, c := range n.Children {
		out.Children = append(out.Children, stripIDs(c))
	}
	return out
}

// Marshal serializes a document to its stored byte form (indented JSON).
func Marshal(doc domain.SnapshotDocument) ([]byte, error) {
	roots := make([]*wireNode, 0, len(doc.Roots))
	for _, r := range doc.Roots {
		roots = append(roots, toWire(r))
	}
	top := []*wireNode{{Children: &roots}}

	data, err := json.MarshalIndent(top, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return data, nil
}

func toWire(n *domain.BookmarkNode) *wireNode {
	w := &wireNode{Title: n.Title, URL: n.URL}
	if !n.IsFolder() {
		return w
	}
	children := make([]*wireNode, 0, len(n.Children))
	for _, c := range n.Children {
		children = append(children, toWire(c))
	}
	w.Children = &children
	return w
}

// Decode parses stored bytes into a document.
//
// It fails with *domain.FormatError when the top-level value is not a
// non-empty array, when a node is neither a bookmark (non-empty url) nor a
// folder (children array), or when a root container is a bookmark.
func Decode(data []byte) (domain.SnapshotDocument, error) {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return domain.SnapshotDocument{}, &domain.FormatError{Message: "snapshot is not valid JSON", Err: err}
	}
	if err := compiledSchema.Validate(inst); err != nil {
		return domain.SnapshotDocument{}, &domain.FormatError{Message: "snapshot does not describe a bookmark forest", Err: err}
	}

	var top []*wireNode
	if err := json.Unmarshal(data, &top); err != nil {
		return domain.SnapshotDocument{}, &domain.FormatError{Message: "failed to decode snapshot", Err: err}
	}

	entry := top[0]
	if entry.Children == nil {
		return domain.SnapshotDocument{}, &domain.FormatError{Message: "first entry must be the root folder"}
	}

	roots := make([]*domain.BookmarkNode, 0, len(*entry.Children))
	for i, w := range *entry.Children {
		if w.Children == nil {
			return domain.SnapshotDocument{}, &domain.FormatError{Message: fmt.Sprintf("root container %d is not a folder", i)}
		}
		roots = append(roots, fromWire(w))
	}
	return domain.SnapshotDocument{Roots: roots}, nil
}

func fromWire(w *wireNode) *domain.BookmarkNode {
	n := &domain.BookmarkNode{Title: w.Title, URL: w.URL}
	if w.URL != "" {
		return n
	}
	n.Children = make([]*domain.BookmarkNode, 0, len(*w.Children))
	for _, c := range *w.Children {
		n.Children = append(n.Children, fromWire(c))
	}
	return n
}
