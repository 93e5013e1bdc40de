// Package storage - файловое объектное хранилище с бакетами и публичными ссылками.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrTooLarge - файл больше разрешённого размера.
var ErrTooLarge = errors.New("storage: file too large")

// ErrObjectExists - объект уже есть, а перезапись не разрешена.
var ErrObjectExists = errors.New("storage: object already exists")

// ErrInvalidPath - путь выходит за пределы бакета.
var ErrInvalidPath = errors.New("storage: invalid object path")

// ObjectStorage хранит объекты в каталоге root/bucket/path и отдаёт их по publicURL.
type ObjectStorage struct {
	rootPath       string
	publicURL      string
	maxUploadBytes int64
}

// NewObjectStorage создаёт хранилище.
func NewObjectStorage(rootPath, publicURL string, maxUploadMB int64) (*ObjectStorage, error) {
	if err := os.MkdirAll(rootPath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: не удалось создать каталог %s: %w", rootPath, err)
	}

	return &ObjectStorage{
		rootPath:       rootPath,
		publicURL:      strings.TrimRight(publicURL, "/"),
		maxUploadBytes: maxUploadMB * 1024 * 1024,
	}, nil
}

// Root возвращает каталог хранилища для раздачи статики.
func (s *ObjectStorage) Root() string {
	return s.rootPath
}

// Upload записывает объект. При upsert=false существующий объект не перезаписывается.
func (s *ObjectStorage) Upload(ctx context.Context, bucket, objectPath string, r io.Reader, upsert bool) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	target, err := s.resolve(bucket, objectPath)
	if err != nil {
		return 0, err
	}

	if !upsert {
		if _, err := os.Stat(target); err == nil {
			return 0, ErrObjectExists
		}
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, fmt.Errorf("storage: не удалось создать каталог: %w", err)
	}

	tempPath := target + ".tmp"
	f, err := os.Create(tempPath)
	if err != nil {
		return 0, fmt.Errorf("storage: не удалось создать файл: %w", err)
	}
	defer f.Close()

	limitedReader := io.LimitedReader{R: r, N: s.maxUploadBytes + 1}
	written, err := io.Copy(f, &limitedReader)
	if err != nil {
		_ = os.Remove(tempPath)
		return 0, fmt.Errorf("storage: ошибка записи файла: %w", err)
	}

	if written > s.maxUploadBytes {
		_ = os.Remove(tempPath)
		return 0, ErrTooLarge
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(tempPath)
		return 0, fmt.Errorf("storage: ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tempPath, target); err != nil {
		_ = os.Remove(tempPath)
		return 0, fmt.Errorf("storage: не удалось переименовать файл: %w", err)
	}

	return written, nil
}

// PublicURL возвращает публичную ссылку на объект.
func (s *ObjectStorage) PublicURL(bucket, objectPath string) string {
	return s.publicURL + "/" + path.Join(bucket, objectPath)
}

// ObjectPath восстанавливает путь объекта из публичной ссылки этого бакета.
func (s *ObjectStorage) ObjectPath(bucket, url string) (string, bool) {
	prefix := s.publicURL + "/" + bucket + "/"
	if !strings.HasPrefix(url, prefix) || len(url) == len(prefix) {
		return "", false
	}
	return strings.TrimPrefix(url, prefix), true
}

// Delete удаляет объект. Отсутствующий объект не считается ошибкой.
func (s *ObjectStorage) Delete(ctx context.Context, bucket, objectPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	target, err := s.resolve(bucket, objectPath)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage: не удалось удалить файл: %w", err)
	}
	return nil
}

// resolve строит путь к файлу и не даёт выйти за пределы бакета.
func (s *ObjectStorage) resolve(bucket, objectPath string) (string, error) {
	if bucket == "" || strings.ContainsAny(bucket, `/\`) || bucket == "." || bucket == ".." {
		return "", ErrInvalidPath
	}
	clean := path.Clean("/" + strings.ReplaceAll(objectPath, "\\", "/"))
	if clean == "/" {
		return "", ErrInvalidPath
	}
	return filepath.Join(s.rootPath, bucket, filepath.FromSlash(clean)), nil
}
