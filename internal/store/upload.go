package store

import (
	"context"
	"os"
	"path/filepath"

	"github.com/go-logr/logr"
	"github.com/samber/do"
)

type UploadParams struct {
	Name        string
	Data        []byte
	ContentType string
	Metadata    map[string]string
}

type Uploader interface {
	Upload(context.Context, UploadParams) error
}

// FileUploader writes into Dir, creating it on demand.
type FileUploader struct {
	Dir string
}

func NewFileUploader(i *do.Injector) (*FileUploader, error) {
	return &FileUploader{Dir: do.MustInvokeNamed[string](i, "output_dir")}, nil
}

func (u *FileUploader) Path(name string) string {
	return filepath.Join(u.Dir, name)
}

func (u *FileUploader) EnsureDir() error {
	return os.MkdirAll(u.Dir, 0o755)
}

func (u *FileUploader) Upload(ctx context.Context, params UploadParams) error {
	log := logr.FromContextOrDiscard(ctx).WithName("file")
	log.Info("writing", "file", u.Path(params.Name))
	if err := u.EnsureDir(); err != nil {
		return err
	}
	return os.WriteFile(u.Path(params.Name), params.Data, 0o644)
}
