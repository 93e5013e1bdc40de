package storage

import (
	"bytes"
	"errors"
	"io"

	"github.com/h2non/filetype"
)

// ErrNotImage - содержимое не является поддерживаемым изображением.
var ErrNotImage = errors.New("storage: unsupported image type")

// Разрешённые типы изображений для аватаров и селфи.
var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/heif": true,
}

// SniffImage определяет тип изображения по сигнатуре (magic bytes) и возвращает
// расширение, MIME и reader, который снова начинается с прочитанных байтов.
func SniffImage(r io.Reader) (ext, mime string, body io.Reader, err error) {
	head := make([]byte, 261)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", "", nil, err
	}
	head = head[:n]

	kind, err := filetype.Match(head)
	if err != nil || kind == filetype.Unknown || !allowedImageTypes[kind.MIME.Value] {
		return "", "", nil, ErrNotImage
	}

	return kind.Extension, kind.MIME.Value, io.MultiReader(bytes.NewReader(head), r), nil
}
