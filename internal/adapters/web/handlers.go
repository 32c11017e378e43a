package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"telegram-gateway/internal/domain/gateway"
	"telegram-gateway/internal/infra/logger"
	"telegram-gateway/internal/infra/storage"
)

const (
	mediumTimeOut = 30 * time.Second
	longTimeOut   = 120 * time.Second
)

// apiID принимает идентификатор приложения числом или строкой из цифр.
type apiID int

func (id *apiID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = bytes.TrimSpace([]byte(s))
		if len(data) == 0 {
			*id = 0
			return nil
		}
	}
	n, err := strconv.Atoi(string(data))
	if err != nil {
		return errors.New("apiId must be an integer")
	}
	*id = apiID(n)
	return nil
}

type credentialsRequest struct {
	APIID   apiID  `json:"apiId"`
	APIHash string `json:"apiHash"`
}

func (c credentialsRequest) credentials() gateway.Credentials {
	return gateway.Credentials{APIID: int(c.APIID), APIHash: c.APIHash}
}

type sendCodeRequest struct {
	Phone string `json:"phone"`
}

type verifyRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

// decodeJSON читает тело запроса в dst. Пустое тело допустимо: тогда
// обязательные поля проверит сервис.
func decodeJSON(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return err
	}
	return &gateway.Error{Kind: gateway.KindValidation, Msg: "invalid JSON body", Err: err}
}

// handleHealth проверка здоровья сервера
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// handleStart подключает основной клиент
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), mediumTimeOut)
	defer cancel()

	if err := s.svc.Start(ctx, req.credentials()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// handleSendCode запрашивает код подтверждения
func (s *Server) handleSendCode(w http.ResponseWriter, r *http.Request) {
	var req sendCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), mediumTimeOut)
	defer cancel()

	if err := s.svc.SendCode(ctx, req.Phone); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// handleVerify входит по коду и возвращает токен сессии
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), mediumTimeOut)
	defer cancel()

	session, err := s.svc.Verify(ctx, req.Phone, req.Code)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, verifyResponse{OK: true, Session: session})
}

// handleQRStart запрашивает токен входа по QR
func (s *Server) handleQRStart(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), mediumTimeOut)
	defer cancel()

	data, err := s.svc.QRStart(ctx, req.credentials())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, qrStartResponse{OK: true, QRData: data})
}

// handleQRStatus опрашивает подтверждение входа по QR
func (s *Server) handleQRStatus(w http.ResponseWriter, r *http.Request) {
	loggedIn, err := s.svc.QRStatus(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, qrStatusResponse{LoggedIn: loggedIn})
}

// handleQRCancel отменяет ожидающий вход по QR
func (s *Server) handleQRCancel(w http.ResponseWriter, _ *http.Request) {
	s.svc.QRCancel()
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// handleChannels возвращает список каналов
func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), longTimeOut)
	defer cancel()

	channels, err := s.svc.Channels(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, channels)
}

// handleSend принимает multipart-форму и пересылает файлы в канал
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	form, err := stageUploads(r, s.opts.UploadDir)
	defer cleanupUploads(form.Files)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.svc.Send(r.Context(), form.ChannelID, form.Files); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sendResponse{Status: "sent"})
}

// cleanupUploads удаляет файлы, оставшиеся после обработки запроса.
func cleanupUploads(files []gateway.Upload) {
	for _, f := range files {
		if err := storage.Remove(f.Path); err != nil {
			logger.Warn("staged file cleanup failed", zap.String("path", f.Path), zap.Error(err))
		}
	}
}
