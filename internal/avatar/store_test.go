package avatar

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"ridematch/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	pngHeader  = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01")
	jpegHeader = []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00\x01")
	webpHeader = []byte("RIFF\x24\x00\x00\x00WEBPVP8 ")
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		wantExt string
		wantOK  bool
	}{
		{name: "png", data: pngHeader, wantExt: ".png", wantOK: true},
		{name: "jpeg", data: jpegHeader, wantExt: ".jpg", wantOK: true},
		{name: "webp", data: webpHeader, wantExt: ".webp", wantOK: true},
		{name: "gif", data: []byte("GIF89a\x01\x00\x01\x00"), wantOK: false},
		{name: "text", data: []byte("hello there"), wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ext, ok := Detect(tt.data)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantExt, ext)
		})
	}
}

func TestValidName(t *testing.T) {
	assert.True(t, ValidName("avatar_1_abcd1234.png"))
	assert.True(t, ValidName("a.JPEG"))
	assert.False(t, ValidName(""))
	assert.False(t, ValidName("../secret.png"))
	assert.False(t, ValidName("dir/a.png"))
	assert.False(t, ValidName(`dir\a.png`))
	assert.False(t, ValidName("a.gif"))
	assert.False(t, ValidName("noext"))
}

func TestDiskStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewDiskStore(filepath.Join(dir, "avatars"))
	require.NoError(t, err)
	ctx := context.Background()

	info, err := store.Put(ctx, "avatar_1_x.png", pngHeader, "image/png")
	require.NoError(t, err)
	assert.Equal(t, int64(len(pngHeader)), info.Size)

	data, info, err := store.Get(ctx, "avatar_1_x.png")
	require.NoError(t, err)
	assert.Equal(t, pngHeader, data)
	assert.Equal(t, "image/png", info.ContentType)

	// no temp files left behind
	entries, err := os.ReadDir(filepath.Join(dir, "avatars"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	require.NoError(t, store.Delete(ctx, "avatar_1_x.png"))
	require.NoError(t, store.Delete(ctx, "avatar_1_x.png"))
	_, _, err = store.Get(ctx, "avatar_1_x.png")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestDiskStoreRejectsUnsafeNames(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Put(ctx, "../escape.png", pngHeader, "image/png")
	assert.ErrorIs(t, err, ErrInvalidName)
	_, _, err = store.Get(ctx, "../../etc/passwd")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
	assert.ErrorIs(t, store.Delete(ctx, "x.exe"), ErrInvalidName)
}
