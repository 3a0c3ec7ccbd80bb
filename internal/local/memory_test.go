package local

import (
	"context"
	"errors"
	"testing"

	"github.com/MrSnakeDoc/marksync/internal/domain"
)

func sampleForest() domain.Forest {
	return domain.Forest{
		{Title: "Bar", Children: []*domain.BookmarkNode{
			{Title: "Go", URL: "https://go.dev"},
			{Title: "Dev", Children: []*domain.BookmarkNode{
				{Title: "Chi", URL: "https://go-chi.io"},
			}},
		}},
		{Title: "Other", Children: []*domain.BookmarkNode{}},
	}
}

func TestMemoryStoreAssignsUniqueIDs(t *testing.T) {
	store := NewMemoryStore(sampleForest())
	forest, err := store.GetForest(context.Background())
	if err != nil {
		t.Fatalf("GetForest() error = %v", err)
	}

	seen := map[string]bool{}
	var visit func(nodes []*domain.BookmarkNode)
	visit = func(nodes []*domain.BookmarkNode) {
		for _, n := range nodes {
			if n.ID == "" {
				t.Errorf("node %q has no id", n.Title)
			}
			if seen[n.ID] {
				t.Errorf("duplicate id %s", n.ID)
			}
			seen[n.ID] = true
			visit(n.Children)
		}
	}
	visit(forest)

	if len(seen) != 6 {
		t.Errorf("expected 6 nodes, got %d", len(seen))
	}
}

func TestMemoryStoreGetForestReturnsCopy(t *testing.T) {
	store := NewMemoryStore(sampleForest())
	ctx := context.Background()

	first, _ := store.GetForest(ctx)
	first[0].Children[0].Title = "mutated"
	first[0].Children = nil

	second, _ := store.GetForest(ctx)
	if got := second[0].Children[0].Title; got != "Go" {
		t.Errorf("store was mutated through GetForest result: %q", got)
	}
}

func TestMemoryStoreEmptyFolderKeepsChildrenSlice(t *testing.T) {
	store := NewMemoryStore(sampleForest())
	forest, _ := store.GetForest(context.Background())
	if forest[1].Children == nil {
		t.Error("empty root folder should report an empty, non-nil children slice")
	}
	if !forest[1].IsFolder() {
		t.Error("root should be a folder")
	}
}

func TestMemoryStoreCreateAndRemove(t *testing.T) {
	store := NewMemoryStore(sampleForest())
	ctx := context.Background()
	forest, _ := store.GetForest(ctx)
	otherID := forest[1].ID

	folderID, err := store.CreateFolder(ctx, otherID, "New")
	if err != nil {
		t.Fatalf("CreateFolder() error = %v", err)
	}
	if _, err := store.CreateBookmark(ctx, folderID, "X", "http://x"); err != nil {
		t.Fatalf("CreateBookmark() error = %v", err)
	}

	forest, _ = store.GetForest(ctx)
	other := forest[1]
	if len(other.Children) != 1 || other.Children[0].Title != "New" {
		t.Fatalf("unexpected children: %+v", other.Children)
	}
	if got := other.Children[0].Children[0].URL; got != "http://x" {
		t.Errorf("bookmark url = %q", got)
	}

	if err := store.RemoveSubtree(ctx, folderID); err != nil {
		t.Fatalf("RemoveSubtree() error = %v", err)
	}
	forest, _ = store.GetForest(ctx)
	if len(forest[1].Children) != 0 {
		t.Errorf("expected folder removed, got %+v", forest[1].Children)
	}
}

func TestMemoryStoreRejectsInvalidMutations(t *testing.T) {
	store := NewMemoryStore(sampleForest())
	ctx := context.Background()
	forest, _ := store.GetForest(ctx)
	rootID := forest[0].ID
	leafID := forest[0].Children[0].ID

	tests := []struct {
		name string
		run  func() error
		want error
	}{
		{"remove root", func() error { return store.RemoveSubtree(ctx, rootID) }, ErrRootImmutable},
		{"remove unknown", func() error { return store.RemoveSubtree(ctx, "999") }, ErrUnknownNode},
		{"create under bookmark", func() error {
			_, err := store.CreateBookmark(ctx, leafID, "x", "http://x")
			return err
		}, ErrNotFolder},
		{"create under unknown", func() error {
			_, err := store.CreateFolder(ctx, "999", "x")
			return err
		}, ErrUnknownNode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
			if !errors.Is(err, domain.ErrLocalOp) {
				t.Errorf("error %v should be a LocalOpError", err)
			}
		})
	}
}

func TestMemoryStoreRollsBackOnCommitFailure(t *testing.T) {
	fail := errors.New("disk full")
	store := newMemoryStore([]*Node{
		{Title: "Bar", Folder: true, Children: []*Node{{Title: "Go", URL: "https://go.dev"}}},
	}, func([]*Node) error { return fail })
	ctx := context.Background()
	forest, _ := store.GetForest(ctx)

	if _, err := store.CreateBookmark(ctx, forest[0].ID, "X", "http://x"); !errors.Is(err, fail) {
		t.Fatalf("CreateBookmark() error = %v, want %v", err, fail)
	}
	if err := store.RemoveSubtree(ctx, forest[0].Children[0].ID); !errors.Is(err, fail) {
		t.Fatalf("RemoveSubtree() error = %v, want %v", err, fail)
	}

	after, _ := store.GetForest(ctx)
	if len(after[0].Children) != 1 || after[0].Children[0].Title != "Go" {
		t.Errorf("tree changed despite failed commit: %+v", after[0].Children)
	}
}

func TestMemoryStoreHoldDefersCommits(t *testing.T) {
	var commits int
	store := newMemoryStore([]*Node{{Title: "Bar", Folder: true}},
		func([]*Node) error { commits++; return nil })
	ctx := context.Background()
	forest, _ := store.GetForest(ctx)

	store.hold()
	dev, err := store.CreateFolder(ctx, forest[0].ID, "Dev")
	if err != nil {
		t.Fatalf("CreateFolder() error = %v", err)
	}
	for _, title := range []string{"a", "b", "c"} {
		if _, err := store.CreateBookmark(ctx, dev, title, "http://"+title); err != nil {
			t.Fatalf("CreateBookmark(%s) error = %v", title, err)
		}
	}
	if _, err := store.CreateBookmark(ctx, "missing", "x", "http://x"); !errors.Is(err, ErrUnknownNode) {
		t.Errorf("invalid mutation while held: error = %v, want %v", err, ErrUnknownNode)
	}
	if commits != 0 {
		t.Errorf("commits while held = %d, want 0", commits)
	}

	if err := store.release(); err != nil {
		t.Fatalf("release() error = %v", err)
	}
	if commits != 1 {
		t.Errorf("commits after release = %d, want 1", commits)
	}

	if err := store.release(); err != nil || commits != 1 {
		t.Errorf("release without changes: err = %v, commits = %d", err, commits)
	}
}
