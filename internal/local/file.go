package local

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"go.uber.org/multierr"

	"github.com/MrSnakeDoc/marksync/internal/domain"
	"github.com/MrSnakeDoc/marksync/internal/logger"
	"github.com/MrSnakeDoc/marksync/internal/utils"
)

// format converts between a file's bytes and the stored tree.
type format interface {
	Name() string
	Decode(data []byte) ([]*Node, error)
	Encode(roots []*Node) ([]byte, error)
	// Empty returns the tree used when the file does not exist yet. A nil
	// result means a missing file is an error.
	Empty() []*Node
}

// FileStore is a bookmark tree persisted in a single file. The file is
// re-read on every GetForest so edits made by other programs are seen, and
// written back atomically after every mutation, or once at the end of a
// Batch.
type FileStore struct {
	path   string
	format format
	log    logger.Logger

	mu  sync.Mutex
	mem *MemoryStore
}

func newFileStore(path string, f format, log logger.Logger) *FileStore {
	return &FileStore{path: path, format: f, log: log.With(logger.String("store", f.Name()))}
}

// Path returns the file backing the store.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) load() (*MemoryStore, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		if empty := s.format.Empty(); empty != nil {
			s.log.Info("bookmark file missing, starting from empty tree", logger.String("path", s.path))
			return newMemoryStore(empty, s.save), nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read bookmark file: %w", err)
	}

	roots, err := s.format.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse bookmark file %s: %w", s.path, err)
	}
	return newMemoryStore(roots, s.save), nil
}

func (s *FileStore) save(roots []*Node) error {
	data, err := s.format.Encode(roots)
	if err != nil {
		return fmt.Errorf("failed to encode bookmark file: %w", err)
	}
	if err := utils.WriteFileAtomic(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write bookmark file: %w", err)
	}
	return nil
}

// GetForest reloads the file and returns its tree.
func (s *FileStore) GetForest(ctx context.Context) (domain.Forest, error) {
	mem, err := s.load()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.mem = mem
	s.mu.Unlock()

	return mem.GetForest(ctx)
}

// current returns the tree loaded by the last GetForest, loading it if
// nothing was read yet. Ids handed out by GetForest stay valid until the
// next call.
func (s *FileStore) current() (*MemoryStore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mem == nil {
		mem, err := s.load()
		if err != nil {
			return nil, err
		}
		s.mem = mem
	}
	return s.mem, nil
}

func (s *FileStore) RemoveSubtree(ctx context.Context, id string) error {
	mem, err := s.current()
	if err != nil {
		return &domain.LocalOpError{Op: "remove", NodeID: id, Err: err}
	}
	return mem.RemoveSubtree(ctx, id)
}

func (s *FileStore) CreateBookmark(ctx context.Context, parentID, title, url string) (string, error) {
	mem, err := s.current()
	if err != nil {
		return "", &domain.LocalOpError{Op: "create bookmark", NodeID: parentID, Err: err}
	}
	return mem.CreateBookmark(ctx, parentID, title, url)
}

func (s *FileStore) CreateFolder(ctx context.Context, parentID, title string) (string, error) {
	mem, err := s.current()
	if err != nil {
		return "", &domain.LocalOpError{Op: "create folder", NodeID: parentID, Err: err}
	}
	return mem.CreateFolder(ctx, parentID, title)
}

// Batch runs fn with writes deferred, then saves the file once. When that
// save fails the file keeps its previous content and the in-memory tree is
// dropped, so the next read starts from disk again.
func (s *FileStore) Batch(ctx context.Context, fn func(ctx context.Context) error) error {
	mem, err := s.current()
	if err != nil {
		return fmt.Errorf("failed to load bookmark file: %w", err)
	}

	mem.hold()
	runErr := fn(ctx)
	if err := mem.release(); err != nil {
		s.mu.Lock()
		if s.mem == mem {
			s.mem = nil
		}
		s.mu.Unlock()
		s.log.Error("failed to save bookmark file after batch",
			logger.String("path", s.path), logger.Error(err))
		return multierr.Append(runErr, err)
	}
	return runErr
}
