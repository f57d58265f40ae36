package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"iuran-data/internal/service"
)

// pathPicker picks the file named by --file; an empty path means the user cancelled.
type pathPicker struct {
	path string
}

func (p pathPicker) Pick(context.Context) (service.PickedFile, error) {
	if p.path == "" {
		return service.PickedFile{Cancelled: true}, nil
	}
	abs, err := filepath.Abs(p.path)
	if err != nil {
		return service.PickedFile{}, err
	}
	return service.PickedFile{URI: abs, Name: filepath.Base(abs)}, nil
}

func (p pathPicker) ReadFile(_ context.Context, uri string) ([]byte, error) {
	return os.ReadFile(uri)
}

// dirSharer saves exported files into a directory.
type dirSharer struct {
	dir   string
	saved string
}

func (s *dirSharer) Share(_ context.Context, f *service.ExportFile) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", s.dir, err)
	}
	path := filepath.Join(s.dir, f.FileName)
	if err := os.WriteFile(path, f.Content, 0o644); err != nil {
		return err
	}
	s.saved = path
	return nil
}
