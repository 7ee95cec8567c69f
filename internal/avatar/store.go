// Package avatar stores user avatar images.
package avatar

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ridematch/internal/models"

	"github.com/gabriel-vasile/mimetype"
)

// ErrInvalidName is returned for names that could escape the store or carry
// an extension other than an accepted image type.
var ErrInvalidName = fmt.Errorf("%w: invalid avatar name", models.ErrInvalidInput)

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

var contentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
}

// Store defines the avatar storage operations.
type Store interface {
	Put(ctx context.Context, name string, data []byte, contentType string) (*Info, error)
	Get(ctx context.Context, name string) ([]byte, *Info, error)
	Delete(ctx context.Context, name string) error
}

// Info describes a stored avatar.
type Info struct {
	Name        string
	Size        int64
	ContentType string
	ModTime     time.Time
}

// Detect sniffs an image's content type and returns the extension it is
// stored under. ok is false for anything but JPEG, PNG and WebP.
func Detect(data []byte) (contentType, ext string, ok bool) {
	mt := mimetype.Detect(data)
	for m := mt; m != nil; m = m.Parent() {
		if e, found := extensions[m.String()]; found {
			return m.String(), e, true
		}
	}
	return mt.String(), "", false
}

// ValidName reports whether name is a plain file name with an image
// extension.
func ValidName(name string) bool {
	if name == "" || strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return false
	}
	_, ok := contentTypes[strings.ToLower(filepath.Ext(name))]
	return ok
}

// DiskStore keeps avatars as files in a single directory.
type DiskStore struct {
	dir string
}

func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create avatar dir: %w", err)
	}
	return &DiskStore{dir: dir}, nil
}

// Put writes through a temp file so readers never see a partial image.
func (s *DiskStore) Put(_ context.Context, name string, data []byte, contentType string) (*Info, error) {
	if !ValidName(name) {
		return nil, ErrInvalidName
	}
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create avatar file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to write avatar: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to write avatar: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write avatar: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return nil, fmt.Errorf("failed to store avatar: %w", err)
	}

	return &Info{
		Name:        name,
		Size:        int64(len(data)),
		ContentType: contentType,
		ModTime:     time.Now(),
	}, nil
}

func (s *DiskStore) Get(_ context.Context, name string) ([]byte, *Info, error) {
	if !ValidName(name) {
		return nil, nil, ErrInvalidName
	}
	path := filepath.Join(s.dir, name)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, fmt.Errorf("%w: avatar %s", models.ErrNotFound, name)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read avatar: %w", err)
	}
	st, err := os.Stat(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to stat avatar: %w", err)
	}
	return data, &Info{
		Name:        name,
		Size:        st.Size(),
		ContentType: contentTypes[strings.ToLower(filepath.Ext(name))],
		ModTime:     st.ModTime(),
	}, nil
}

// Delete removes an avatar. Deleting a missing avatar is not an error.
func (s *DiskStore) Delete(_ context.Context, name string) error {
	if !ValidName(name) {
		return ErrInvalidName
	}
	err := os.Remove(filepath.Join(s.dir, name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete avatar: %w", err)
	}
	return nil
}
