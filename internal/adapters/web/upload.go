package web

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"telegram-gateway/internal/domain/gateway"
	"telegram-gateway/internal/infra/storage"
)

const (
	channelIDField = "channelId"
	// maxFieldBytes ограничивает размер текстового поля формы.
	maxFieldBytes = 1 << 10
)

// sendForm — разобранная форма /send.
type sendForm struct {
	ChannelID string
	Files     []gateway.Upload
}

// stageUploads потоково читает multipart-форму и сохраняет каждый файл во
// временный каталог под уникальным именем. Уже сохранённые файлы возвращаются
// и при ошибке, чтобы вызывающий мог их удалить.
func stageUploads(r *http.Request, dir string) (sendForm, error) {
	var form sendForm

	reader, err := r.MultipartReader()
	if errors.Is(err, http.ErrNotMultipart) {
		// форма без файлов
		if err := r.ParseForm(); err != nil {
			return form, invalidForm(err)
		}
		form.ChannelID = r.PostFormValue(channelIDField)
		return form, nil
	}
	if err != nil {
		return form, invalidForm(err)
	}

	if err := storage.EnsureDirPath(dir); err != nil {
		return form, err
	}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			return form, nil
		}
		if err != nil {
			return form, invalidForm(err)
		}

		if part.FileName() == "" {
			if part.FormName() == channelIDField {
				value, err := io.ReadAll(io.LimitReader(part, maxFieldBytes))
				if err != nil {
					_ = part.Close()
					return form, invalidForm(err)
				}
				form.ChannelID = strings.TrimSpace(string(value))
			}
			_ = part.Close()
			continue
		}

		upload, err := stagePart(part, dir)
		_ = part.Close()
		if upload.Path != "" {
			form.Files = append(form.Files, upload)
		}
		if err != nil {
			return form, err
		}
	}
}

// stagePart копирует одну файловую часть на диск.
func stagePart(part *multipart.Part, dir string) (gateway.Upload, error) {
	path := filepath.Join(dir, storage.StagedUploadName())
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, storage.DefaultFilePerm)
	if err != nil {
		return gateway.Upload{}, fmt.Errorf("stage upload: %w", err)
	}

	upload := gateway.Upload{
		Path: path,
		Name: filepath.Base(part.FileName()),
		MIME: part.Header.Get("Content-Type"),
	}

	size, copyErr := io.Copy(f, part)
	closeErr := f.Close()
	upload.Size = size
	if copyErr != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(copyErr, &tooLarge) {
			return upload, copyErr
		}
		return upload, invalidForm(copyErr)
	}
	if closeErr != nil {
		return upload, fmt.Errorf("stage upload: %w", closeErr)
	}
	return upload, nil
}

func invalidForm(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return err
	}
	return &gateway.Error{Kind: gateway.KindValidation, Msg: "invalid multipart form", Err: err}
}
