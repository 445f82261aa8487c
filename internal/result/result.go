// Package result persists a successful generation and prepares it for display.
package result

import (
	"bytes"
	"context"
	"image"
	_ "image/png"
	"os"
	"time"

	imagegen "github.com/dmorgan81/fluxui/internal/image"
	"github.com/dmorgan81/fluxui/internal/log"
	"github.com/dmorgan81/fluxui/internal/request"
	"github.com/dmorgan81/fluxui/internal/store"
	"github.com/samber/do"
)

const ContentType = "image/png"

// Download binds the image bytes to the name offered to the user, which differs from
// the storage name.
type Download struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"-"`
}

type Result struct {
	Image          image.Image `json:"-"`
	File           string      `json:"file"`
	SavedPath      string      `json:"saved_path"`
	Timestamp      string      `json:"timestamp"`
	ElapsedSeconds float64     `json:"elapsed_seconds"`
	Width          int         `json:"width"`
	Height         int         `json:"height"`
	Download       Download    `json:"download"`
}

// Slot is where a pending generation will be stored.
type Slot struct {
	store.Names
	Path string
}

type Handler struct {
	files     *store.FileUploader
	publisher *store.Publisher
	now       func() time.Time
}

func NewHandler(i *do.Injector) (*Handler, error) {
	return &Handler{
		files:     do.MustInvoke[*store.FileUploader](i),
		publisher: do.MustInvoke[*store.Publisher](i),
		now:       time.Now,
	}, nil
}

func NewHandlerWith(files *store.FileUploader, publisher *store.Publisher, now func() time.Time) *Handler {
	return &Handler{files: files, publisher: publisher, now: now}
}

// Reserve names the output file after the current time and makes sure the output
// directory exists, since an external generator writes there directly.
func (h *Handler) Reserve() (Slot, error) {
	names := store.NamesAt(h.now())
	slot := Slot{Names: names, Path: h.files.Path(names.File)}
	if err := h.files.EnsureDir(); err != nil {
		return Slot{}, &imagegen.FileError{Op: "mkdir", Path: h.files.Dir, Err: err}
	}
	return slot, nil
}

// Complete persists gen into slot unless the generator already wrote it, then loads
// the image back for display. A file that cannot be decoded is removed.
func (h *Handler) Complete(ctx context.Context, req request.Request, slot Slot, gen imagegen.Generation) (*Result, error) {
	log := log.FromContextOrDiscard(ctx).WithGroup("result").With("file", slot.File)

	if !gen.Written {
		err := h.files.Upload(ctx, store.UploadParams{
			Name:        slot.File,
			Data:        gen.Data,
			ContentType: ContentType,
			Metadata:    req.Metadata(),
		})
		if err != nil {
			_ = os.Remove(slot.Path)
			return nil, &imagegen.FileError{Op: "write", Path: slot.Path, Err: err}
		}
	}

	data, err := os.ReadFile(slot.Path)
	if err != nil {
		return nil, &imagegen.FileError{Op: "read", Path: slot.Path, Err: err}
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		_ = os.Remove(slot.Path)
		return nil, &imagegen.FileError{Op: "decode", Path: slot.Path, Err: err}
	}
	log.Info("stored image", "format", format, "bytes", len(data))

	if h.publisher.Enabled() {
		err := h.publisher.Publish(ctx, store.UploadParams{
			Name:        slot.File,
			Data:        data,
			ContentType: ContentType,
			Metadata:    req.Metadata(),
		})
		if err != nil {
			log.Warn("publishing image failed", "error", err)
		}
	}

	bounds := img.Bounds()
	return &Result{
		Image:          img,
		File:           slot.File,
		SavedPath:      slot.Path,
		Timestamp:      slot.Timestamp,
		ElapsedSeconds: gen.Elapsed.Seconds(),
		Width:          bounds.Dx(),
		Height:         bounds.Dy(),
		Download: Download{
			Name:        slot.Download,
			ContentType: ContentType,
			Data:        data,
		},
	}, nil
}

// Open loads a previously stored image for download.
func (h *Handler) Open(file string) (Download, error) {
	names, ok := store.ParseFile(file)
	if !ok {
		return Download{}, &imagegen.FileError{Op: "open", Path: file, Err: os.ErrNotExist}
	}
	data, err := os.ReadFile(h.files.Path(names.File))
	if err != nil {
		return Download{}, &imagegen.FileError{Op: "open", Path: names.File, Err: err}
	}
	return Download{Name: names.Download, ContentType: ContentType, Data: data}, nil
}

func (h *Handler) Dir() string {
	return h.files.Dir
}
