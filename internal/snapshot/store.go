// Package snapshot keeps exactly one remote snapshot object, identified by a
// fixed logical name inside a fixed backup folder.
package snapshot

import (
	"context"
	"fmt"

	"github.com/MrSnakeDoc/marksync/internal/codec"
	"github.com/MrSnakeDoc/marksync/internal/domain"
	"github.com/MrSnakeDoc/marksync/internal/drive"
	"github.com/MrSnakeDoc/marksync/internal/logger"
)

const (
	// DefaultName is the logical name of the snapshot object.
	DefaultName = "bookmarks-peasy-sync.json"
	// DefaultFolder is the remote folder holding the snapshot.
	DefaultFolder = "Backup"
)

// Remote is the object store API the snapshot store needs.
// *drive.Client satisfies it.
type Remote interface {
	Search(ctx context.Context, token, query string) ([]drive.File, error)
	CreateFolder(ctx context.Context, token, name string) (drive.File, error)
	Create(ctx context.Context, token string, meta drive.Metadata, content []byte, contentType string) (drive.File, error)
	Update(ctx context.Context, token, id string, content []byte, contentType string) (drive.File, error)
	Read(ctx context.Context, token, id string) ([]byte, error)
}

// Store finds, writes and reads the canonical snapshot object.
//
// Nothing is cached between calls: every operation resolves the object
// identity again. Callers must serialize Put calls, two concurrent Puts can
// both miss in Locate and create duplicates.
type Store struct {
	remote Remote
	name   string
	folder string
	logger logger.Logger
}

// Options names the remote artifacts. Empty Folder stores the snapshot
// wherever a file with Name is found (Drive root on create).
type Options struct {
	Name   string
	Folder string
}

// NewStore creates a snapshot store.
func NewStore(remote Remote, opts Options, log logger.Logger) *Store {
	name := opts.Name
	if name == "" {
		name = DefaultName
	}
	return &Store{
		remote: remote,
		name:   name,
		folder: opts.Folder,
		logger: log,
	}
}

// Locate returns the canonical snapshot object, or nil when none exists.
// It never creates anything remotely.
func (s *Store) Locate(ctx context.Context, tok domain.Token) (*domain.RemoteObjectRef, error) {
	folderID := ""
	if s.folder != "" {
		folder, err := s.findFolder(ctx, tok)
		if err != nil {
			return nil, err
		}
		if folder == nil {
			return nil, nil
		}
		folderID = folder.ID
	}
	return s.locateIn(ctx, tok, folderID)
}

// Put uploads the document: update-in-place when the object exists,
// create otherwise. Repeated Puts converge on a single remote object.
func (s *Store) Put(ctx context.Context, tok domain.Token, doc domain.SnapshotDocument) (domain.RemoteObjectRef, error) {
	content, err := codec.Marshal(doc)
	if err != nil {
		return domain.RemoteObjectRef{}, err
	}

	folderID := ""
	if s.folder != "" {
		folder, err := s.findOrCreateFolder(ctx, tok)
		if err != nil {
			return domain.RemoteObjectRef{}, err
		}
		folderID = folder.ID
	}

	ref, err := s.locateIn(ctx, tok, folderID)
	if err != nil {
		return domain.RemoteObjectRef{}, err
	}

	if ref != nil {
		file, err := s.remote.Update(ctx, tok.AccessToken, ref.ID, content, codec.ContentType)
		if err != nil {
			return domain.RemoteObjectRef{}, fmt.Errorf("failed to update snapshot %s: %w", ref.ID, err)
		}
		s.logger.Info("snapshot updated",
			logger.String("file_id", file.ID),
			logger.Int("bytes", len(content)))
		return domain.RemoteObjectRef{ID: file.ID, Name: s.name}, nil
	}

	meta := drive.Metadata{Name: s.name, MimeType: codec.ContentType}
	if folderID != "" {
		meta.Parents = []string{folderID}
	}
	file, err := s.remote.Create(ctx, tok.AccessToken, meta, content, codec.ContentType)
	if err != nil {
		return domain.RemoteObjectRef{}, fmt.Errorf("failed to create snapshot: %w", err)
	}
	s.logger.Info("snapshot created",
		logger.String("file_id", file.ID),
		logger.Int("bytes", len(content)))
	return domain.RemoteObjectRef{ID: file.ID, Name: s.name}, nil
}

// Get downloads the raw snapshot content. It fails with *domain.NotFoundError
// when no snapshot exists.
func (s *Store) Get(ctx context.Context, tok domain.Token) ([]byte, error) {
	ref, err := s.Locate(ctx, tok)
	if err != nil {
		return nil, err
	}
	if ref == nil {
		return nil, &domain.NotFoundError{Message: s.missingMessage()}
	}

	content, err := s.remote.Read(ctx, tok.AccessToken, ref.ID)
	if err != nil {
		if drive.IsNotFound(err) {
			// Deleted between lookup and download.
			return nil, &domain.NotFoundError{Message: s.missingMessage()}
		}
		return nil, fmt.Errorf("failed to download snapshot %s: %w", ref.ID, err)
	}
	return content, nil
}

func (s *Store) missingMessage() string {
	if s.folder == "" {
		return fmt.Sprintf("no %s found in remote store", s.name)
	}
	return fmt.Sprintf("no %s found in remote folder %s", s.name, s.folder)
}

func (s *Store) locateIn(ctx context.Context, tok domain.Token, folderID string) (*domain.RemoteObjectRef, error) {
	q := drive.NewQuery().Name(s.name)
	if folderID != "" {
		q.Parent(folderID)
	}
	files, err := s.remote.Search(ctx, tok.AccessToken, q.String())
	if err != nil {
		return nil, fmt.Errorf("failed to search snapshot: %w", err)
	}
	file := s.canonical(files, "snapshot")
	if file == nil {
		return nil, nil
	}
	return &domain.RemoteObjectRef{ID: file.ID, Name: file.Name}, nil
}

func (s *Store) findFolder(ctx context.Context, tok domain.Token) (*drive.File, error) {
	q := drive.NewQuery().Name(s.folder).MimeType(drive.FolderMimeType)
	files, err := s.remote.Search(ctx, tok.AccessToken, q.String())
	if err != nil {
		return nil, fmt.Errorf("failed to search backup folder: %w", err)
	}
	return s.canonical(files, "folder"), nil
}

func (s *Store) findOrCreateFolder(ctx context.Context, tok domain.Token) (*drive.File, error) {
	folder, err := s.findFolder(ctx, tok)
	if err != nil || folder != nil {
		return folder, err
	}
	created, err := s.remote.CreateFolder(ctx, tok.AccessToken, s.folder)
	if err != nil {
		return nil, fmt.Errorf("failed to create backup folder: %w", err)
	}
	s.logger.Info("backup folder created",
		logger.String("folder", s.folder),
		logger.String("folder_id", created.ID))
	return &created, nil
}

// canonical picks the oldest match. Search results are ordered by creation
// time, so that is the first one.
func (s *Store) canonical(files []drive.File, kind string) *drive.File {
	if len(files) == 0 {
		return nil
	}
	if len(files) > 1 {
		ids := make([]string, 0, len(files))
		for _, f := range files {
			ids = append(ids, f.ID)
		}
		s.logger.Warn("multiple remote objects share the same name, using the oldest",
			logger.String("kind", kind),
			logger.String("chosen_id", files[0].ID),
			logger.Strings("ids", ids))
	}
	return &files[0]
}
