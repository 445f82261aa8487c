package result

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	imagegen "github.com/dmorgan81/fluxui/internal/image"
	"github.com/dmorgan81/fluxui/internal/request"
	"github.com/dmorgan81/fluxui/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.Local) }

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 16, 8))))
	return buf.Bytes()
}

func newHandler(t *testing.T, publisher *store.Publisher) *Handler {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "generated_images")
	return NewHandlerWith(&store.FileUploader{Dir: dir}, publisher, fixedNow)
}

func testRequest(t *testing.T) request.Request {
	t.Helper()
	req, err := request.Collect(request.Input{Prompt: "a red fox"})
	require.NoError(t, err)
	return req
}

func TestReserve(t *testing.T) {
	h := newHandler(t, nil)
	slot, err := h.Reserve()
	require.NoError(t, err)
	assert.Equal(t, "image_20240102-030405.png", slot.File)
	assert.Equal(t, "ai_generated_20240102-030405.png", slot.Download)
	assert.Equal(t, filepath.Join(h.Dir(), slot.File), slot.Path)
	assert.DirExists(t, h.Dir())
	assert.NoFileExists(t, slot.Path)

	_, err = h.Reserve()
	require.NoError(t, err, "reserving twice is fine")
}

func TestCompleteWritesData(t *testing.T) {
	h := newHandler(t, nil)
	slot, err := h.Reserve()
	require.NoError(t, err)

	data := pngBytes(t)
	res, err := h.Complete(context.Background(), testRequest(t), slot, imagegen.Generation{Data: data, Elapsed: 1500 * time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, slot.Path, res.SavedPath)
	assert.Equal(t, 1.5, res.ElapsedSeconds)
	assert.Equal(t, 16, res.Width)
	assert.Equal(t, 8, res.Height)
	assert.NotNil(t, res.Image)
	assert.Equal(t, "ai_generated_20240102-030405.png", res.Download.Name)
	assert.NotEqual(t, res.File, res.Download.Name)
	assert.Equal(t, data, res.Download.Data)

	onDisk, err := os.ReadFile(slot.Path)
	require.NoError(t, err)
	assert.Equal(t, data, onDisk)
}

func TestCompleteAlreadyWritten(t *testing.T) {
	h := newHandler(t, nil)
	slot, err := h.Reserve()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(slot.Path, pngBytes(t), 0o644))

	res, err := h.Complete(context.Background(), testRequest(t), slot, imagegen.Generation{Written: true, Elapsed: time.Second})
	require.NoError(t, err)
	assert.Equal(t, 16, res.Width)
}

func TestCompleteCorruptImage(t *testing.T) {
	h := newHandler(t, nil)
	slot, err := h.Reserve()
	require.NoError(t, err)

	_, err = h.Complete(context.Background(), testRequest(t), slot, imagegen.Generation{Data: []byte("not a png")})
	var ferr *imagegen.FileError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, "decode", ferr.Op)
	assert.NoFileExists(t, slot.Path)
}

type failingUploader struct{ calls int }

func (u *failingUploader) Upload(context.Context, store.UploadParams) error {
	u.calls++
	return errors.New("access denied")
}

func TestCompletePublishFailureIsNotFatal(t *testing.T) {
	u := &failingUploader{}
	h := newHandler(t, &store.Publisher{Uploader: u})
	slot, err := h.Reserve()
	require.NoError(t, err)

	_, err = h.Complete(context.Background(), testRequest(t), slot, imagegen.Generation{Data: pngBytes(t)})
	require.NoError(t, err)
	assert.Equal(t, 1, u.calls)
}

func TestOpen(t *testing.T) {
	h := newHandler(t, nil)
	slot, err := h.Reserve()
	require.NoError(t, err)
	_, err = h.Complete(context.Background(), testRequest(t), slot, imagegen.Generation{Data: pngBytes(t)})
	require.NoError(t, err)

	d, err := h.Open(slot.File)
	require.NoError(t, err)
	assert.Equal(t, slot.Download, d.Name)
	assert.Equal(t, ContentType, d.ContentType)

	_, err = h.Open("../secret.png")
	assert.ErrorIs(t, err, os.ErrNotExist)
	_, err = h.Open("image_20990101-000000.png")
	assert.ErrorIs(t, err, os.ErrNotExist)
}
