package upload

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/therealutkarshpriyadarshi/vidtube/internal/logging"
	"github.com/therealutkarshpriyadarshi/vidtube/pkg/models"
)

type fakeHost struct {
	uploaded []string
	deleted  []string
	err      error
}

func (f *fakeHost) UploadFile(ctx context.Context, localPath, folder string) (*models.MediaAsset, error) {
	if _, err := os.Stat(localPath); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	f.uploaded = append(f.uploaded, localPath)
	return &models.MediaAsset{URL: "https://cdn.test/" + folder + "/x.png", PublicID: folder + "/x.png"}, nil
}

func (f *fakeHost) Delete(ctx context.Context, publicID string) error {
	f.deleted = append(f.deleted, publicID)
	return nil
}

func fileHeader(t *testing.T, field, filename string, content []byte) *multipart.FileHeader {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	form, err := multipart.NewReader(&body, w.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { form.RemoveAll() })

	return form.File[field][0]
}

func TestStage(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "temp")
	stager, err := NewStager(dir)
	require.NoError(t, err)

	fh := fileHeader(t, "avatar", "Me.PNG", []byte("png-bytes"))

	path, err := stager.Stage(fh)
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))
	assert.Equal(t, ".png", filepath.Ext(path))
	assert.NotContains(t, path, "Me")

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(content))

	second, err := stager.Stage(fh)
	require.NoError(t, err)
	assert.NotEqual(t, path, second)
}

func TestUploadRemovesLocalCopyOnSuccess(t *testing.T) {
	host := &fakeHost{}
	u := NewUploader(host, logging.Nop())

	path := filepath.Join(t.TempDir(), "a.png")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	asset, err := u.Upload(context.Background(), path, "avatars")
	require.NoError(t, err)
	assert.Equal(t, "avatars/x.png", asset.PublicID)
	assert.Len(t, host.uploaded, 1)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestUploadRemovesLocalCopyOnFailure(t *testing.T) {
	host := &fakeHost{err: errors.New("media host unavailable")}
	u := NewUploader(host, logging.Nop())

	path := filepath.Join(t.TempDir(), "a.png")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	_, err := u.Upload(context.Background(), path, "avatars")
	assert.Error(t, err)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestUploadWithoutFile(t *testing.T) {
	u := NewUploader(&fakeHost{}, logging.Nop())

	_, err := u.Upload(context.Background(), "", "avatars")
	assert.Error(t, err)
}

func TestDiscard(t *testing.T) {
	u := NewUploader(&fakeHost{}, logging.Nop())

	dir := t.TempDir()
	a := filepath.Join(dir, "a.png")
	require.NoError(t, os.WriteFile(a, []byte("x"), 0644))

	u.Discard(a, "", filepath.Join(dir, "missing.png"))

	_, err := os.Stat(a)
	assert.True(t, os.IsNotExist(err))
}

func TestDelete(t *testing.T) {
	host := &fakeHost{}
	u := NewUploader(host, logging.Nop())

	require.NoError(t, u.Delete(context.Background(), "avatars/old.png"))
	assert.Equal(t, []string{"avatars/old.png"}, host.deleted)
}
