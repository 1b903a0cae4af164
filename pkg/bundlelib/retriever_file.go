package bundlelib

import (
	"context"
	"errors"
	"net/url"
	"os"

	"github.com/spf13/afero"
)

// FileRetriever reads file:// URLs from an afero filesystem.
type FileRetriever struct {
	fs afero.Fs
}

// NewFileRetriever creates a retriever rooted at fs.
func NewFileRetriever(fs afero.Fs) *FileRetriever {
	return &FileRetriever{fs: fs}
}

func (f *FileRetriever) Retrieve(ctx context.Context, rawURL string, progress ProgressFunc) ([]byte, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, NewPermanentError("file", "parse", err)
	}
	return f.ReadPath(ctx, parsed.Path, progress)
}

// ReadPath reads a path on the retriever's filesystem.
func (f *FileRetriever) ReadPath(ctx context.Context, path string, progress ProgressFunc) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewPermanentError("file", "open", err)
	}
	fh, err := f.fs.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, NewPermanentError("file", "open", err)
		}
		return nil, NewTransientError("file", "open", err)
	}
	defer fh.Close()
	size := int64(-1)
	if fi, err := fh.Stat(); err == nil {
		size = fi.Size()
	}
	data, err := readAllWithProgress(fh, size, progress)
	if err != nil {
		return nil, NewTransientError("file", "read", err)
	}
	return data, nil
}

var _ Retriever = (*FileRetriever)(nil)
