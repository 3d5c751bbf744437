package imagebuild

import (
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

// File is a file or directory to be stored in the image.
type File struct {
	// Path is slash separated and relative to the root of the source.
	Path    string
	Size    int64
	ModTime time.Time
	Dir     bool

	// Open returns the contents of the file. It is nil for directories.
	Open func() (io.ReadCloser, error)
}

//go:generate mockgen -source=source.go -destination=mock_source_test.go -package=imagebuild

type WalkFunc func(f File) error

// Source yields the files of a tree. Walk must visit the same files in
// the same order every time it is called: Build walks the source twice.
type Source interface {
	Walk(fn WalkFunc) error
}

// FsSource is a Source reading the tree below Root in Fs, in lexical order.
type FsSource struct {
	Fs   afero.Fs
	Root string

	// Skip contains glob patterns (see path.Match). Files and directories
	// whose base name or relative path match any of them are left out.
	Skip []string
}

func (s *FsSource) skip(rel string) bool {
	for _, pattern := range s.Skip {
		if ok, _ := path.Match(pattern, path.Base(rel)); ok {
			return true
		}
		if ok, _ := path.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// CheckSkip returns an error if any pattern in Skip is malformed.
func (s *FsSource) CheckSkip() error {
	for _, pattern := range s.Skip {
		if _, err := path.Match(pattern, ""); err != nil {
			return fmt.Errorf("skip pattern %q: %w", pattern, err)
		}
	}
	return nil
}

func (s *FsSource) Walk(fn WalkFunc) error {
	if err := s.CheckSkip(); err != nil {
		return err
	}
	return afero.Walk(s.Fs, s.Root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(s.Root, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if s.skip(rel) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			return fn(File{
				Path:    rel,
				ModTime: info.ModTime(),
				Dir:     true,
			})
		}
		if !info.Mode().IsRegular() {
			log.Printf("skipping %s: not a regular file (mode %v)", p, info.Mode())
			return nil
		}
		return fn(File{
			Path:    rel,
			Size:    info.Size(),
			ModTime: info.ModTime(),
			Open: func() (io.ReadCloser, error) {
				return s.Fs.Open(p)
			},
		})
	})
}
