package reconcile

import "github.com/MrSnakeDoc/marksync/internal/domain"

// Pair binds one document root to the live root container it replaces.
type Pair struct {
	Index  int
	Source *domain.BookmarkNode
	Target *domain.BookmarkNode
}

// RootMapper decides which live root container receives which document
// root. Unmatched roots on either side are left alone.
type RootMapper interface {
	Map(document, live []*domain.BookmarkNode) []Pair
}

// PositionalMapper aligns document root i with live root i, stopping at
// the shorter of the two.
type PositionalMapper struct{}

func (PositionalMapper) Map(document, live []*domain.BookmarkNode) []Pair {
	n := min(len(document), len(live))
	pairs := make([]Pair, 0, n)
	for i := 0; i < n; i++ {
		pairs = append(pairs, Pair{Index: i, Source: document[i], Target: live[i]})
	}
	return pairs
}
