package ingest

import (
	"context"
	"os"

	"go.uber.org/zap"

	"github.com/plantpulse/plantpulse/pkg/errors"
	"github.com/plantpulse/plantpulse/pkg/store"
)

// FileSource loads the dataset from a local CSV file, or from stdin when
// the path is "-". It implements engine.Loader.
type FileSource struct {
	Path      string
	Delimiter rune
	Logger    *zap.Logger
}

// Name implements engine.Loader.
func (s *FileSource) Name() string {
	if s.Path == "-" {
		return "stdin"
	}
	return s.Path
}

// Load implements engine.Loader.
func (s *FileSource) Load(ctx context.Context) (*store.Store, error) {
	parser := NewParser(s.Delimiter, s.Logger)

	if s.Path == "-" {
		return parser.Parse(ctx, os.Stdin)
	}

	f, err := os.Open(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.SourceNotFound(s.Path)
		}
		return nil, errors.Wrap(err, errors.CodeSourceRead, "failed to open dataset").
			WithContext("path", s.Path)
	}
	defer f.Close()

	return parser.Parse(ctx, f)
}
