package domain

// DefaultFolderTitle is used when a folder is materialized without a title.
const DefaultFolderTitle = "Untitled"

// BookmarkNode is one entry of a bookmark tree.
//
// A node with a non-empty URL is a bookmark (leaf). A node without URL is a
// folder (container); its Children may be empty or nil.
type BookmarkNode struct {
	// ─────────────────────────────
	// Identity (local only)
	// ─────────────────────────────

	// ID is the local profile identifier.
	// It is only set for nodes read from a local store and is never
	// written to a snapshot.
	ID string

	// ─────────────────────────────
	// Content
	// ─────────────────────────────

	// Title is the user-visible label. May be empty.
	Title string

	// URL is the target of a bookmark. Empty for folders.
	URL string

	// Children is the ordered content of a folder. Ignored for bookmarks.
	Children []*BookmarkNode
}

// IsFolder reports whether the node is a container.
func (n *BookmarkNode) IsFolder() bool {
	return n.URL == ""
}

// Forest is the ordered list of root containers of a profile
// (conventionally: bookmarks bar, other bookmarks, mobile bookmarks).
//
// Root containers are owned by the browser. They are never created or
// removed, only their children are replaced.
type Forest []*BookmarkNode

// Count returns the number of bookmarks and folders below the roots.
func (f Forest) Count() (bookmarks, folders int) {
	stack := make([]*BookmarkNode, 0, len(f))
	for _, root := range f {
		stack = append(stack, root.Children...)
	}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !n.IsFolder() {
			bookmarks++
			continue
		}
		folders++
		stack = append(stack, n.Children...)
	}
	return bookmarks, folders
}

// SnapshotDocument is the portable form of a Forest, as stored remotely.
// Local identifiers are always stripped.
type SnapshotDocument struct {
	Roots []*BookmarkNode
}
