// Package storage — утилиты работы с локальным хранилищем шлюза:
//   - EnsureDir / EnsureDirPath гарантируют наличие каталогов (кэш пиров, загрузки);
//   - Remove удаляет временный файл; отсутствие файла не считается ошибкой;
//   - StagedUploadName / IsStagedUpload именуют и распознают файлы загрузок шлюза.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// stagedUploadPrefix отличает файлы шлюза от чужих в общем каталоге загрузок.
const stagedUploadPrefix = "tggw-upload-"

// DefaultFilePerm — права для файлов, создаваемых шлюзом (только владелец).
const DefaultFilePerm = 0o600

// dirPerm — права для создаваемых каталогов.
const dirPerm = 0o700

// EnsureDir гарантирует наличие каталога для указанного файла.
// Если путь не содержит директорию ("." или пустая строка), ничего не делает.
func EnsureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return EnsureDirPath(dir)
}

// EnsureDirPath создаёт сам каталог dir (вместе с родителями).
func EnsureDirPath(dir string) error {
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}
	return nil
}

// Remove удаляет файл; уже удалённый файл считается успехом.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

// StagedUploadName возвращает уникальное имя для временного файла загрузки.
func StagedUploadName() string {
	return stagedUploadPrefix + uuid.NewString()
}

// IsStagedUpload сообщает, создан ли файл с таким именем через StagedUploadName.
func IsStagedUpload(name string) bool {
	rest, ok := strings.CutPrefix(name, stagedUploadPrefix)
	if !ok {
		return false
	}
	_, err := uuid.Parse(rest)
	return err == nil
}
