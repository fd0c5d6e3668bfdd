package utils

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"overlay-llm-client/llm"
)

// ImageLoader turns screenshots and image files into chat attachments
type ImageLoader struct {
	maxFileSize  int64 // Maximum file size in bytes
	maxImageSize uint  // Maximum image dimension (width or height)
}

// NewImageLoader creates a new image loader with default settings
func NewImageLoader() *ImageLoader {
	return &ImageLoader{
		maxFileSize:  20 * 1024 * 1024, // 20MB
		maxImageSize: 2048,
	}
}

// WithMaxDimension sets the longest side images are scaled down to
func (l *ImageLoader) WithMaxDimension(px uint) *ImageLoader {
	l.maxImageSize = px
	return l
}

// LoadFile reads an image file and returns an attachment
func (l *ImageLoader) LoadFile(filePath string) (*llm.Attachment, error) {
	fileInfo, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("file not found: %w", err)
	}
	if fileInfo.Size() > l.maxFileSize {
		return nil, fmt.Errorf("file too large: %s (max %s)", FormatFileSize(fileInfo.Size()), FormatFileSize(l.maxFileSize))
	}
	if !IsImageFile(filePath) {
		return nil, fmt.Errorf("file type not supported: %s", GetMimeType(filePath))
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	return l.LoadBytes(data, filepath.Base(filePath))
}

// LoadBytes decodes raw image bytes (e.g. a captured screenshot) and
// re-encodes them as PNG
func (l *ImageLoader) LoadBytes(data []byte, filename string) (*llm.Attachment, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	img = l.fit(img)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	return &llm.Attachment{
		Type:     "image",
		MimeType: "image/png",
		Data:     buf.Bytes(),
		Filename: filename,
	}, nil
}

// fit scales img down so neither side exceeds maxImageSize, keeping the
// aspect ratio
func (l *ImageLoader) fit(img image.Image) image.Image {
	bounds := img.Bounds()
	width := uint(bounds.Dx())
	height := uint(bounds.Dy())

	if width <= l.maxImageSize && height <= l.maxImageSize {
		return img
	}
	if width > height {
		return resize.Resize(l.maxImageSize, 0, img, resize.Lanczos3)
	}
	return resize.Resize(0, l.maxImageSize, img, resize.Lanczos3)
}
