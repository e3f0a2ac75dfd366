package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

const (
	// MaxUploadBytes caps a single image upload.
	MaxUploadBytes = 5 << 20
	maxDimension   = 512
	jpegQuality    = 85
)

var ErrInvalidImage = errors.New("invalid image")

// Store persists normalized profile images and returns their public URL.
type Store interface {
	Save(ctx context.Context, kind string, r io.Reader) (string, error)
}

// LocalStore writes images under a directory that is served at baseURL.
type LocalStore struct {
	dir     string
	baseURL string
}

func NewLocalStore(dir, baseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &LocalStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *LocalStore) Dir() string {
	return s.dir
}

// Save decodes r, fits it into a square bounding box and writes it as JPEG.
func (s *LocalStore) Save(ctx context.Context, kind string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	img, err := Normalize(io.LimitReader(r, MaxUploadBytes+1))
	if err != nil {
		return "", err
	}

	name := fmt.Sprintf("%s-%s.jpg", kind, uuid.NewString())
	if err := imaging.Save(img, filepath.Join(s.dir, name), imaging.JPEGQuality(jpegQuality)); err != nil {
		return "", fmt.Errorf("save image: %w", err)
	}

	return s.baseURL + "/" + name, nil
}

// Normalize decodes an image, applies EXIF orientation and shrinks it to
// fit within the maximum dimension. Smaller images are left as they are.
func Normalize(r io.Reader) (image.Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if len(data) > MaxUploadBytes {
		return nil, fmt.Errorf("%w: larger than %d bytes", ErrInvalidImage, MaxUploadBytes)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	b := img.Bounds()
	if b.Dx() > maxDimension || b.Dy() > maxDimension {
		img = imaging.Fit(img, maxDimension, maxDimension, imaging.Lanczos)
	}
	return img, nil
}
