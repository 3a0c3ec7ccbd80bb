package local

import (
	"fmt"

	"github.com/MrSnakeDoc/marksync/internal/logger"
)

const (
	KindChromium = "chromium"
	KindYAML     = "yaml"
)

// Open returns the file store for kind backed by path.
func Open(kind, path string, log logger.Logger) (*FileStore, error) {
	switch kind {
	case KindChromium:
		return newFileStore(path, newChromiumFormat(log), log), nil
	case KindYAML:
		return newFileStore(path, yamlFormat{}, log), nil
	default:
		return nil, fmt.Errorf("unknown bookmark store %q", kind)
	}
}
