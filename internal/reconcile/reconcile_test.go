package reconcile

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/multierr"

	"github.com/MrSnakeDoc/marksync/internal/domain"
	"github.com/MrSnakeDoc/marksync/internal/local"
	"github.com/MrSnakeDoc/marksync/internal/logger"
)

// flakyTree fails selected mutations and delegates the rest.
type flakyTree struct {
	*local.MemoryStore
	failRemove map[string]bool
	failCreate map[string]bool
}

var errInjected = errors.New("injected failure")

func (f *flakyTree) RemoveSubtree(ctx context.Context, id string) error {
	if f.failRemove[id] {
		return errInjected
	}
	return f.MemoryStore.RemoveSubtree(ctx, id)
}

func (f *flakyTree) CreateBookmark(ctx context.Context, parentID, title, url string) (string, error) {
	if f.failCreate[title] {
		return "", errInjected
	}
	return f.MemoryStore.CreateBookmark(ctx, parentID, title, url)
}

func (f *flakyTree) CreateFolder(ctx context.Context, parentID, title string) (string, error) {
	if f.failCreate[title] {
		return "", errInjected
	}
	return f.MemoryStore.CreateFolder(ctx, parentID, title)
}

func folder(title string, children ...*domain.BookmarkNode) *domain.BookmarkNode {
	if children == nil {
		children = []*domain.BookmarkNode{}
	}
	return &domain.BookmarkNode{Title: title, Children: children}
}

func leaf(title, url string) *domain.BookmarkNode {
	return &domain.BookmarkNode{Title: title, URL: url}
}

func newTree(forest domain.Forest) *flakyTree {
	return &flakyTree{
		MemoryStore: local.NewMemoryStore(forest),
		failRemove:  map[string]bool{},
		failCreate:  map[string]bool{},
	}
}

func live(t *testing.T, tree *flakyTree) domain.Forest {
	t.Helper()
	forest, err := tree.GetForest(context.Background())
	if err != nil {
		t.Fatalf("GetForest() error = %v", err)
	}
	return forest
}

// shape renders a subtree as titles for easy comparison.
func shape(nodes []*domain.BookmarkNode) string {
	out := ""
	for i, n := range nodes {
		if i > 0 {
			out += ","
		}
		out += n.Title
		if n.IsFolder() {
			out += "[" + shape(n.Children) + "]"
		} else {
			out += "=" + n.URL
		}
	}
	return out
}

func TestRestoreReplacesOldChildren(t *testing.T) {
	tree := newTree(domain.Forest{folder("Bar", leaf("Old", "http://old"))})
	doc := domain.SnapshotDocument{Roots: []*domain.BookmarkNode{folder("Bar", leaf("A", "http://a"))}}

	report, err := New(tree, logger.New("error", false)).Restore(context.Background(), doc, live(t, tree))
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}

	got := live(t, tree)
	if s := shape(got[0].Children); s != "A=http://a" {
		t.Errorf("root children = %s, want A=http://a", s)
	}
	if report.Removed != 1 || report.Created != 1 {
		t.Errorf("report = %+v", report)
	}
}

func TestRestoreAlignsRootsByPosition(t *testing.T) {
	tree := newTree(domain.Forest{
		folder("Bar", leaf("x", "http://x")),
		folder("Other", folder("junk", leaf("y", "http://y"))),
		folder("Mobile"),
	})
	doc := domain.SnapshotDocument{Roots: []*domain.BookmarkNode{
		folder("Bookmarks bar", leaf("A", "http://a"), folder("Dev", leaf("Go", "https://go.dev"), folder(""))),
		folder("Other bookmarks"),
		folder("Mobile bookmarks", leaf("M", "http://m")),
	}}

	before := live(t, tree)
	if _, err := New(tree, logger.New("error", false)).Restore(context.Background(), doc, before); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	after := live(t, tree)

	want := []string{
		"A=http://a,Dev[Go=https://go.dev,Untitled[]]",
		"",
		"M=http://m",
	}
	for i, w := range want {
		if s := shape(after[i].Children); s != w {
			t.Errorf("root %d children = %q, want %q", i, s, w)
		}
		if after[i].ID != before[i].ID || after[i].Title != before[i].Title {
			t.Errorf("root %d identity changed: %s/%s -> %s/%s", i, before[i].ID, before[i].Title, after[i].ID, after[i].Title)
		}
	}
}

func TestRestoreLeavesUnmatchedRootsAlone(t *testing.T) {
	tests := []struct {
		name     string
		liveRoot domain.Forest
		docRoots []*domain.BookmarkNode
		want     []string
	}{
		{
			name:     "document shorter",
			liveRoot: domain.Forest{folder("Bar", leaf("x", "http://x")), folder("Other", leaf("keep", "http://k"))},
			docRoots: []*domain.BookmarkNode{folder("Bar", leaf("A", "http://a"))},
			want:     []string{"A=http://a", "keep=http://k"},
		},
		{
			name:     "document longer",
			liveRoot: domain.Forest{folder("Bar", leaf("x", "http://x"))},
			docRoots: []*domain.BookmarkNode{folder("Bar", leaf("A", "http://a")), folder("Other", leaf("B", "http://b"))},
			want:     []string{"A=http://a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := newTree(tt.liveRoot)
			doc := domain.SnapshotDocument{Roots: tt.docRoots}
			if _, err := New(tree, logger.New("error", false)).Restore(context.Background(), doc, live(t, tree)); err != nil {
				t.Fatalf("Restore() error = %v", err)
			}
			got := live(t, tree)
			if len(got) != len(tt.want) {
				t.Fatalf("root count = %d, want %d", len(got), len(tt.want))
			}
			for i, w := range tt.want {
				if s := shape(got[i].Children); s != w {
					t.Errorf("root %d = %q, want %q", i, s, w)
				}
			}
		})
	}
}

func TestRestoreToleratesClearFailures(t *testing.T) {
	tree := newTree(domain.Forest{folder("Bar",
		leaf("a", "http://a"),
		leaf("stuck", "http://stuck"),
		leaf("c", "http://c"),
	)})
	current := live(t, tree)
	tree.failRemove[current[0].Children[1].ID] = true

	doc := domain.SnapshotDocument{Roots: []*domain.BookmarkNode{folder("Bar", leaf("New", "http://new"))}}
	report, err := New(tree, logger.New("error", false)).Restore(context.Background(), doc, current)
	if err != nil {
		t.Fatalf("clear failures must not fail the restore: %v", err)
	}

	if s := shape(live(t, tree)[0].Children); s != "stuck=http://stuck,New=http://new" {
		t.Errorf("children = %q", s)
	}
	if soft := report.Failures(SoftFail); len(soft) != 1 || soft[0].Title != "stuck" {
		t.Errorf("soft failures = %+v", soft)
	}
	if report.Removed != 2 {
		t.Errorf("removed = %d, want 2", report.Removed)
	}
}

func TestRestoreAbortsContainerOnCreateFailure(t *testing.T) {
	tree := newTree(domain.Forest{folder("Bar"), folder("Other")})
	tree.failCreate["bad"] = true

	doc := domain.SnapshotDocument{Roots: []*domain.BookmarkNode{
		folder("Bar",
			folder("Dev", leaf("one", "http://1"), leaf("bad", "http://bad"), leaf("three", "http://3")),
			leaf("after", "http://after"),
		),
		folder("Other", leaf("next-root", "http://n")),
	}}

	report, err := New(tree, logger.New("error", false)).Restore(context.Background(), doc, live(t, tree))
	if err == nil {
		t.Fatal("expected restore to fail")
	}
	if !errors.Is(err, domain.ErrLocalOp) || !errors.Is(err, errInjected) {
		t.Errorf("error = %v, want LocalOpError wrapping the injected failure", err)
	}

	got := live(t, tree)
	if s := shape(got[0].Children); s != "Dev[one=http://1],after=http://after" {
		t.Errorf("bar = %q", s)
	}
	if s := shape(got[1].Children); s != "next-root=http://n" {
		t.Errorf("other = %q", s)
	}
	if hard := report.Failures(HardFail); len(hard) != 1 {
		t.Errorf("hard failures = %+v", hard)
	}
	if report.Skipped != 2 {
		t.Errorf("skipped = %d, want 2", report.Skipped)
	}
}

func TestRestoreAggregatesFailuresAcrossRoots(t *testing.T) {
	tree := newTree(domain.Forest{folder("Bar"), folder("Other")})
	tree.failCreate["bad1"] = true
	tree.failCreate["bad2"] = true

	doc := domain.SnapshotDocument{Roots: []*domain.BookmarkNode{
		folder("Bar", leaf("bad1", "http://1")),
		folder("Other", leaf("bad2", "http://2")),
	}}

	report, err := New(tree, logger.New("error", false)).Restore(context.Background(), doc, live(t, tree))
	var opErr *domain.LocalOpError
	if !errors.As(err, &opErr) {
		t.Fatalf("error = %v, want *domain.LocalOpError", err)
	}
	if got := len(report.Failures(HardFail)); got != 2 {
		t.Errorf("hard failures = %d, want 2", got)
	}
}

func TestRestoreDeepTreeWithoutRecursion(t *testing.T) {
	tree := newTree(domain.Forest{folder("Bar")})

	root := folder("Bar")
	cur := root
	const depth = 2000
	for i := 0; i < depth; i++ {
		next := folder("f")
		cur.Children = []*domain.BookmarkNode{next}
		cur = next
	}
	cur.Children = []*domain.BookmarkNode{leaf("bottom", "http://bottom")}

	report, err := New(tree, logger.New("error", false)).Restore(context.Background(),
		domain.SnapshotDocument{Roots: []*domain.BookmarkNode{root}}, live(t, tree))
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if report.Created != depth+1 {
		t.Errorf("created = %d, want %d", report.Created, depth+1)
	}
}

// cancellingTree cancels the run right after the first removal and fails
// any later mutation that still observes the cancelled context.
type cancellingTree struct {
	*flakyTree
	cancel context.CancelFunc
}

func (c *cancellingTree) RemoveSubtree(ctx context.Context, id string) error {
	err := c.flakyTree.RemoveSubtree(ctx, id)
	c.cancel()
	return err
}

func (c *cancellingTree) CreateBookmark(ctx context.Context, parentID, title, url string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return c.flakyTree.CreateBookmark(ctx, parentID, title, url)
}

func (c *cancellingTree) CreateFolder(ctx context.Context, parentID, title string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return c.flakyTree.CreateFolder(ctx, parentID, title)
}

func TestRestoreFinishesWhenCancelledAfterClear(t *testing.T) {
	base := newTree(domain.Forest{
		folder("Bar", leaf("Old", "http://old")),
		folder("Other", leaf("Stale", "http://stale")),
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tree := &cancellingTree{flakyTree: base, cancel: cancel}

	doc := domain.SnapshotDocument{Roots: []*domain.BookmarkNode{
		folder("Bar", leaf("A", "http://a"), folder("F", leaf("B", "http://b"))),
		folder("Other", leaf("C", "http://c")),
	}}
	report, err := New(tree, logger.New("error", false)).Restore(ctx, doc, live(t, base))
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if ctx.Err() == nil {
		t.Fatal("context was never cancelled")
	}

	got := live(t, base)
	if s := shape(got[0].Children); s != "A=http://a,F[B=http://b]" {
		t.Errorf("first root = %q", s)
	}
	if s := shape(got[1].Children); s != "C=http://c" {
		t.Errorf("second root = %q", s)
	}
	if report.Created != 4 || report.Removed != 2 {
		t.Errorf("report = %+v", report)
	}
}

func TestRestoreStopsOnCancelledContext(t *testing.T) {
	tree := newTree(domain.Forest{folder("Bar", leaf("keep", "http://k"))})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	doc := domain.SnapshotDocument{Roots: []*domain.BookmarkNode{folder("Bar", leaf("A", "http://a"))}}
	if _, err := New(tree, logger.New("error", false)).Restore(ctx, doc, live(t, tree)); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if s := shape(live(t, tree)[0].Children); s != "keep=http://k" {
		t.Errorf("tree mutated after cancellation: %q", s)
	}
}

// batchingTree records how mutations are grouped into batches.
type batchingTree struct {
	*flakyTree
	batches int
	inBatch bool
	outside int
	saveErr error
}

func (b *batchingTree) Batch(ctx context.Context, fn func(ctx context.Context) error) error {
	b.batches++
	b.inBatch = true
	err := fn(ctx)
	b.inBatch = false
	if b.saveErr != nil {
		return multierr.Append(err, b.saveErr)
	}
	return err
}

func (b *batchingTree) CreateBookmark(ctx context.Context, parentID, title, url string) (string, error) {
	if !b.inBatch {
		b.outside++
	}
	return b.flakyTree.CreateBookmark(ctx, parentID, title, url)
}

func TestRestoreRunsInsideOneBatch(t *testing.T) {
	tests := []struct {
		name    string
		saveErr error
	}{
		{"saved", nil},
		{"save fails", errors.New("disk full")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := &batchingTree{
				flakyTree: newTree(domain.Forest{folder("Bar", leaf("old", "http://o")), folder("Other")}),
				saveErr:   tt.saveErr,
			}
			doc := domain.SnapshotDocument{Roots: []*domain.BookmarkNode{
				folder("Bar", leaf("A", "http://a"), leaf("B", "http://b")),
				folder("Other", leaf("C", "http://c")),
			}}

			report, err := New(tree, logger.New("error", false)).Restore(context.Background(), doc, live(t, tree.flakyTree))
			if tree.batches != 1 || tree.outside != 0 {
				t.Errorf("batches = %d, creates outside a batch = %d", tree.batches, tree.outside)
			}
			if report.Created != 3 {
				t.Errorf("created = %d, want 3", report.Created)
			}
			if tt.saveErr == nil {
				if err != nil {
					t.Fatalf("Restore() error = %v", err)
				}
				return
			}
			if !errors.Is(err, domain.ErrLocalOp) || !errors.Is(err, tt.saveErr) {
				t.Errorf("error = %v, want LocalOpError wrapping the save failure", err)
			}
		})
	}
}

func TestPositionalMapper(t *testing.T) {
	a, b, c := folder("a"), folder("b"), folder("c")
	pairs := PositionalMapper{}.Map([]*domain.BookmarkNode{a, b, c}, []*domain.BookmarkNode{c, a})
	if len(pairs) != 2 {
		t.Fatalf("pairs = %d, want 2", len(pairs))
	}
	if pairs[0].Source != a || pairs[0].Target != c || pairs[1].Source != b || pairs[1].Target != a {
		t.Errorf("unexpected pairs %+v", pairs)
	}
}
