package preview

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"

	"quotefiles/internal/domain"
)

const jpegQuality = 85

// Thumbnail уменьшает изображение, если его сторона больше maxSize.
// Формат, который не удаётся декодировать (svg, heic), возвращается как есть.
func Thumbnail(blob domain.Blob, maxSize int) (domain.Blob, error) {
	if maxSize <= 0 || len(blob.Data) == 0 {
		return blob, nil
	}

	img, err := imaging.Decode(bytes.NewReader(blob.Data), imaging.AutoOrientation(true))
	if err != nil {
		return blob, nil
	}

	bounds := img.Bounds()
	if bounds.Dx() <= maxSize && bounds.Dy() <= maxSize {
		return blob, nil
	}

	resized := imaging.Fit(img, maxSize, maxSize, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return blob, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return domain.Blob{Data: buf.Bytes(), ContentType: "image/jpeg"}, nil
}
