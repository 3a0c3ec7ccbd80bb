// Package reconcile replaces the children of live root containers with the
// content of a snapshot document.
package reconcile

import (
	"context"

	"go.uber.org/multierr"

	"github.com/MrSnakeDoc/marksync/internal/domain"
	"github.com/MrSnakeDoc/marksync/internal/logger"
)

// Tree is the mutable local bookmark tree.
type Tree interface {
	RemoveSubtree(ctx context.Context, id string) error
	CreateBookmark(ctx context.Context, parentID, title, url string) (string, error)
	CreateFolder(ctx context.Context, parentID, title string) (string, error)
}

// Batcher is implemented by trees that can defer persistence across a run
// of mutations and save the result once.
type Batcher interface {
	Batch(ctx context.Context, fn func(ctx context.Context) error) error
}

// Severity classifies the outcome of one tree mutation.
type Severity int

const (
	// Ok means the mutation was applied.
	Ok Severity = iota
	// SoftFail is logged and skipped; the restore carries on.
	SoftFail
	// HardFail aborts the current container and fails the restore.
	HardFail
)

func (s Severity) String() string {
	switch s {
	case Ok:
		return "ok"
	case SoftFail:
		return "soft_fail"
	case HardFail:
		return "hard_fail"
	default:
		return "unknown"
	}
}

// Outcome is the result of a single mutation.
type Outcome struct {
	Severity Severity
	Op       string
	NodeID   string
	Title    string
	Err      error
}

// Report summarizes a restore.
type Report struct {
	Roots    int
	Removed  int
	Created  int
	Skipped  int
	Outcomes []Outcome
}

// Failures returns the outcomes with the given severity.
func (r *Report) Failures(s Severity) []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Severity == s {
			out = append(out, o)
		}
	}
	return out
}

// Reconciler applies a document to live roots.
type Reconciler struct {
	tree   Tree
	mapper RootMapper
	log    logger.Logger
}

// New returns a reconciler using positional root alignment.
func New(tree Tree, log logger.Logger) *Reconciler {
	return &Reconciler{tree: tree, mapper: PositionalMapper{}, log: log}
}

// WithMapper swaps the root alignment strategy.
func (r *Reconciler) WithMapper(m RootMapper) *Reconciler {
	r.mapper = m
	return r
}

// Restore clears each mapped live root and rebuilds it from the document.
// Clear failures are soft; creation failures abort the container being
// built and are returned together as one *domain.LocalOpError. A tree
// implementing Batcher is saved once after every root is rebuilt.
//
// ctx is only honoured before the first mutation: once a root has been
// cleared the document is always built, so cancellation never leaves
// emptied containers behind.
func (r *Reconciler) Restore(ctx context.Context, doc domain.SnapshotDocument, live domain.Forest) (*Report, error) {
	report := &Report{}
	if err := ctx.Err(); err != nil {
		return report, err
	}
	ctx = context.WithoutCancel(ctx)

	apply := func(ctx context.Context) error {
		var errs error
		for _, pair := range r.mapper.Map(doc.Roots, live) {
			report.Roots++

			r.clear(ctx, pair.Target, report)
			errs = multierr.Append(errs, r.build(ctx, pair.Source.Children, pair.Target.ID, report))
		}
		return errs
	}

	var err error
	if b, ok := r.tree.(Batcher); ok {
		err = b.Batch(ctx, apply)
	} else {
		err = apply(ctx)
	}
	if err == nil {
		return report, nil
	}
	return report, &domain.LocalOpError{Op: "restore", Err: err}
}

func (r *Reconciler) clear(ctx context.Context, root *domain.BookmarkNode, report *Report) {
	for _, child := range root.Children {
		o := Outcome{Op: "remove", NodeID: child.ID, Title: child.Title}
		if err := r.tree.RemoveSubtree(ctx, child.ID); err != nil {
			o.Severity, o.Err = SoftFail, err
			r.log.Warn("failed to remove node, continuing",
				logger.String("node_id", child.ID),
				logger.String("title", child.Title),
				logger.Error(err),
			)
		} else {
			report.Removed++
		}
		report.Outcomes = append(report.Outcomes, o)
	}
}

// frame is one container being materialized: the document nodes still to
// create and the local folder they go into.
type frame struct {
	parentID string
	nodes    []*domain.BookmarkNode
	next     int
}

func (r *Reconciler) build(ctx context.Context, nodes []*domain.BookmarkNode, rootID string, report *Report) error {
	var errs error
	stack := []*frame{{parentID: rootID, nodes: nodes}}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		if top.next >= len(top.nodes) {
			stack = stack[:len(stack)-1]
			continue
		}
		node := top.nodes[top.next]
		top.next++

		o := r.create(ctx, top.parentID, node)
		report.Outcomes = append(report.Outcomes, o)

		if o.Severity == HardFail {
			skipped := countSubtrees(top.nodes[top.next-1:])
			report.Skipped += skipped
			r.log.Error("failed to create node, abandoning container",
				logger.String("parent_id", top.parentID),
				logger.String("title", node.Title),
				logger.Int("skipped", skipped),
				logger.Error(o.Err),
			)
			errs = multierr.Append(errs, o.Err)
			stack = stack[:len(stack)-1]
			continue
		}

		report.Created++
		if node.IsFolder() && len(node.Children) > 0 {
			stack = append(stack, &frame{parentID: o.NodeID, nodes: node.Children})
		}
	}
	return errs
}

func (r *Reconciler) create(ctx context.Context, parentID string, node *domain.BookmarkNode) Outcome {
	var (
		id  string
		err error
		o   = Outcome{Title: node.Title}
	)
	if node.IsFolder() {
		o.Op = "create folder"
		title := node.Title
		if title == "" {
			title = domain.DefaultFolderTitle
			o.Title = title
		}
		id, err = r.tree.CreateFolder(ctx, parentID, title)
	} else {
		o.Op = "create bookmark"
		id, err = r.tree.CreateBookmark(ctx, parentID, node.Title, node.URL)
	}
	if err != nil {
		o.Severity, o.NodeID, o.Err = HardFail, parentID, err
		return o
	}
	o.NodeID = id
	return o
}

func countSubtrees(nodes []*domain.BookmarkNode) int {
	total := 0
	stack := append([]*domain.BookmarkNode(nil), nodes...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		total++
		stack = append(stack, n.Children...)
	}
	return total
}
