// Package local holds the local bookmark stores: an in-memory tree and the
// file drivers built on it (Chromium profile file, YAML tree file).
package local

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/MrSnakeDoc/marksync/internal/domain"
)

var (
	ErrUnknownNode   = errors.New("unknown node")
	ErrRootImmutable = errors.New("root containers cannot be removed")
	ErrNotFolder     = errors.New("parent is not a folder")
)

// Node is the stored form of a bookmark tree entry. Extra carries
// driver-specific attributes (dates, guids) that survive a load/save cycle.
type Node struct {
	ID       string
	Title    string
	URL      string
	Folder   bool
	Children []*Node
	Extra    any

	parent *Node
}

// commitFunc persists the tree after a mutation. Returning an error rolls
// the mutation back.
type commitFunc func(roots []*Node) error

// MemoryStore is a mutable bookmark tree with numeric string ids.
type MemoryStore struct {
	mu     sync.RWMutex
	roots  []*Node
	byID   map[string]*Node
	nextID int
	commit commitFunc

	// held defers commits until release; dirty records a change made
	// while held.
	held  bool
	dirty bool
}

// NewMemoryStore builds a store from a forest. Ids of the input are ignored
// and fresh ones are assigned.
func NewMemoryStore(forest domain.Forest) *MemoryStore {
	roots := make([]*Node, 0, len(forest))
	for _, r := range forest {
		roots = append(roots, fromDomain(r, true))
	}
	return newMemoryStore(roots, nil)
}

func fromDomain(n *domain.BookmarkNode, folder bool) *Node {
	out := &Node{Title: n.Title, URL: n.URL, Folder: folder}
	for _, c := range n.Children {
		out.Children = append(out.Children, fromDomain(c, c.IsFolder()))
	}
	return out
}

// newMemoryStore indexes roots. Nodes keep their id when it is set and
// unique; others get the next free numeric id.
func newMemoryStore(roots []*Node, commit commitFunc) *MemoryStore {
	m := &MemoryStore{roots: roots, byID: make(map[string]*Node), commit: commit}

	var unassigned []*Node
	walk(roots, nil, func(n, parent *Node) {
		n.parent = parent
		if _, dup := m.byID[n.ID]; n.ID == "" || dup {
			unassigned = append(unassigned, n)
			return
		}
		m.byID[n.ID] = n
		if v, err := strconv.Atoi(n.ID); err == nil && v > m.nextID {
			m.nextID = v
		}
	})
	for _, n := range unassigned {
		n.ID = m.newID()
		m.byID[n.ID] = n
	}
	return m
}

func walk(nodes []*Node, parent *Node, fn func(n, parent *Node)) {
	type frame struct {
		node   *Node
		parent *Node
	}
	stack := make([]frame, 0, len(nodes))
	for i := len(nodes) - 1; i >= 0; i-- {
		stack = append(stack, frame{nodes[i], parent})
	}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		fn(f.node, f.parent)
		for i := len(f.node.Children) - 1; i >= 0; i-- {
			stack = append(stack, frame{f.node.Children[i], f.node})
		}
	}
}

func (m *MemoryStore) newID() string {
	m.nextID++
	return strconv.Itoa(m.nextID)
}

// GetForest returns a copy of the tree, ids included.
func (m *MemoryStore) GetForest(_ context.Context) (domain.Forest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	forest := make(domain.Forest, 0, len(m.roots))
	for _, r := range m.roots {
		forest = append(forest, toDomain(r))
	}
	return forest, nil
}

func toDomain(n *Node) *domain.BookmarkNode {
	out := &domain.BookmarkNode{ID: n.ID, Title: n.Title}
	if !n.Folder {
		out.URL = n.URL
		return out
	}
	out.Children = make([]*domain.BookmarkNode, 0, len(n.Children))
	for _, c := range n.Children {
		out.Children = append(out.Children, toDomain(c))
	}
	return out
}

// RemoveSubtree deletes a node and everything below it.
func (m *MemoryStore) RemoveSubtree(_ context.Context, id string) error {
	return m.apply("remove", id, func() (func(), error) {
		n, ok := m.byID[id]
		if !ok {
			return nil, ErrUnknownNode
		}
		if n.parent == nil {
			return nil, ErrRootImmutable
		}
		parent := n.parent
		idx := indexOf(parent.Children, n)
		parent.Children = append(parent.Children[:idx:idx], parent.Children[idx+1:]...)

		var removed []*Node
		walk([]*Node{n}, nil, func(c, _ *Node) {
			removed = append(removed, c)
			delete(m.byID, c.ID)
		})

		return func() {
			parent.Children = insertAt(parent.Children, idx, n)
			for _, c := range removed {
				m.byID[c.ID] = c
			}
		}, nil
	})
}

// CreateBookmark appends a bookmark to a folder and returns its id.
func (m *MemoryStore) CreateBookmark(_ context.Context, parentID, title, url string) (string, error) {
	return m.create("create bookmark", parentID, &Node{Title: title, URL: url})
}

// CreateFolder appends a folder to a folder and returns its id.
func (m *MemoryStore) CreateFolder(_ context.Context, parentID, title string) (string, error) {
	return m.create("create folder", parentID, &Node{Title: title, Folder: true})
}

func (m *MemoryStore) create(op, parentID string, n *Node) (string, error) {
	err := m.apply(op, parentID, func() (func(), error) {
		parent, ok := m.byID[parentID]
		if !ok {
			return nil, ErrUnknownNode
		}
		if !parent.Folder {
			return nil, ErrNotFolder
		}
		prevNext := m.nextID
		n.ID = m.newID()
		n.parent = parent
		parent.Children = append(parent.Children, n)
		m.byID[n.ID] = n

		return func() {
			parent.Children = parent.Children[:len(parent.Children)-1]
			delete(m.byID, n.ID)
			m.nextID = prevNext
		}, nil
	})
	if err != nil {
		return "", err
	}
	return n.ID, nil
}

func (m *MemoryStore) apply(op, nodeID string, change func() (undo func(), err error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	undo, err := change()
	if err != nil {
		return &domain.LocalOpError{Op: op, NodeID: nodeID, Err: err}
	}
	if m.held {
		m.dirty = true
		return nil
	}
	if m.commit != nil {
		if err := m.commit(m.roots); err != nil {
			undo()
			return &domain.LocalOpError{Op: op, NodeID: nodeID, Err: err}
		}
	}
	return nil
}

// hold suspends commits. Mutations still validate and apply in memory.
func (m *MemoryStore) hold() {
	m.mu.Lock()
	m.held = true
	m.mu.Unlock()
}

// release resumes commits and persists the tree once if it changed while
// held.
func (m *MemoryStore) release() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.held = false
	if !m.dirty || m.commit == nil {
		return nil
	}
	m.dirty = false
	return m.commit(m.roots)
}

func indexOf(nodes []*Node, n *Node) int {
	for i, c := range nodes {
		if c == n {
			return i
		}
	}
	return -1
}

func insertAt(nodes []*Node, idx int, n *Node) []*Node {
	nodes = append(nodes, nil)
	copy(nodes[idx+1:], nodes[idx:])
	nodes[idx] = n
	return nodes
}
