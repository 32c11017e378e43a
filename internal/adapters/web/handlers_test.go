package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-gateway/internal/domain/gateway"
	"telegram-gateway/internal/infra/storage"
)

// stubService отвечает заданными значениями и запоминает аргументы.
type stubService struct {
	mu sync.Mutex

	err      error
	session  string
	qrData   string
	loggedIn bool
	channels []gateway.Channel

	creds       gateway.Credentials
	phone, code string
	target      string
	uploads     []gateway.Upload
	uploadData  []string
	cancelled   int
}

func (s *stubService) Start(_ context.Context, creds gateway.Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = creds
	return s.err
}

func (s *stubService) SendCode(_ context.Context, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phone = phone
	return s.err
}

func (s *stubService) Verify(_ context.Context, phone, code string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phone, s.code = phone, code
	return s.session, s.err
}

func (s *stubService) QRStart(_ context.Context, creds gateway.Credentials) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = creds
	return s.qrData, s.err
}

func (s *stubService) QRStatus(_ context.Context) (bool, error) {
	return s.loggedIn, s.err
}

func (s *stubService) QRCancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled++
}

func (s *stubService) Channels(_ context.Context) ([]gateway.Channel, error) {
	return s.channels, s.err
}

func (s *stubService) Send(_ context.Context, target string, files []gateway.Upload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.target = target
	s.uploads = files
	for _, f := range files {
		data, err := os.ReadFile(f.Path)
		if err != nil {
			return err
		}
		s.uploadData = append(s.uploadData, string(data))
	}
	return s.err
}

func newTestServer(t *testing.T, svc Service) (http.Handler, string) {
	t.Helper()

	dir := t.TempDir()
	srv := NewServer(svc, Options{BodyLimitBytes: 1 << 20, UploadDir: dir})
	return srv.Handler(), dir
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestStartAcceptsNumericAndStringAPIID(t *testing.T) {
	t.Parallel()

	for _, body := range []string{
		`{"apiId":12345,"apiHash":"abc"}`,
		`{"apiId":"12345","apiHash":"abc"}`,
	} {
		svc := &stubService{}
		h, _ := newTestServer(t, svc)

		rec := doJSON(t, h, http.MethodPost, "/auth/start", body)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
		assert.Equal(t, gateway.Credentials{APIID: 12345, APIHash: "abc"}, svc.creds)
	}
}

func TestStartRejectsMalformedInput(t *testing.T) {
	t.Parallel()

	h, _ := newTestServer(t, &stubService{})

	rec := doJSON(t, h, http.MethodPost, "/auth/start", `{"apiId":"abc","apiHash":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "apiId must be an integer")

	rec = doJSON(t, h, http.MethodPost, "/auth/start", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestErrorKindsMapToStatus(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want int
	}{
		{name: "validation", err: &gateway.Error{Kind: gateway.KindValidation, Msg: "phone is required"}, want: http.StatusBadRequest},
		{name: "precondition", err: &gateway.Error{Kind: gateway.KindPrecondition, Msg: "not started"}, want: http.StatusBadRequest},
		{name: "unsupported", err: &gateway.Error{Kind: gateway.KindUnsupported, Msg: "no qr"}, want: http.StatusNotImplemented},
		{name: "upstreamContract", err: &gateway.Error{Kind: gateway.KindUpstreamContract, Msg: "no hash"}, want: http.StatusInternalServerError},
		{name: "external", err: errors.New("PHONE_NUMBER_INVALID"), want: http.StatusInternalServerError},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			h, _ := newTestServer(t, &stubService{err: tc.err})
			rec := doJSON(t, h, http.MethodPost, "/auth/sendCode", `{"phone":"+10000000000"}`)
			assert.Equal(t, tc.want, rec.Code)
			assert.Equal(t, tc.err.Error(), decodeBody(t, rec)["error"])
		})
	}
}

func TestVerifyReturnsSession(t *testing.T) {
	t.Parallel()

	svc := &stubService{session: "token-1"}
	h, _ := newTestServer(t, svc)

	rec := doJSON(t, h, http.MethodPost, "/auth/verify", `{"phone":"+1","code":"12345"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true,"session":"token-1"}`, rec.Body.String())
	assert.Equal(t, "+1", svc.phone)
	assert.Equal(t, "12345", svc.code)
}

func TestQREndpoints(t *testing.T) {
	t.Parallel()

	svc := &stubService{qrData: gateway.QRDataPrefix + "dG9rZW4=", loggedIn: true}
	h, _ := newTestServer(t, svc)

	rec := doJSON(t, h, http.MethodPost, "/auth/qr/start", `{"apiId":1,"apiHash":"h"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true,"qrData":"data:text/plain;base64,dG9rZW4="}`, rec.Body.String())

	rec = doJSON(t, h, http.MethodGet, "/auth/qr/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"loggedIn":true}`, rec.Body.String())

	rec = doJSON(t, h, http.MethodPost, "/auth/qr/cancel", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
	assert.Equal(t, 1, svc.cancelled)
}

func TestQRStartUnsupported(t *testing.T) {
	t.Parallel()

	svc := &stubService{err: &gateway.Error{Kind: gateway.KindUnsupported, Msg: "qr login is not supported by the client"}}
	h, _ := newTestServer(t, svc)

	rec := doJSON(t, h, http.MethodPost, "/auth/qr/start", `{"apiId":1,"apiHash":"h"}`)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestChannelsResponse(t *testing.T) {
	t.Parallel()

	svc := &stubService{channels: []gateway.Channel{{ID: "-1001234567890123", Title: "News"}}}
	h, _ := newTestServer(t, svc)

	rec := doJSON(t, h, http.MethodGet, "/channels", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"id":"-1001234567890123","title":"News"}]`, rec.Body.String())
}

func TestChannelsEmptyListIsArray(t *testing.T) {
	t.Parallel()

	h, _ := newTestServer(t, &stubService{channels: []gateway.Channel{}})

	rec := doJSON(t, h, http.MethodGet, "/channels", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func multipartBody(t *testing.T, channelID string, files map[string]string, order []string) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	if channelID != "" {
		require.NoError(t, mw.WriteField("channelId", channelID))
	}
	for _, name := range order {
		part, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write([]byte(files[name]))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func TestSendStagesFilesInOrderAndCleansUp(t *testing.T) {
	t.Parallel()

	svc := &stubService{}
	h, dir := newTestServer(t, svc)

	body, contentType := multipartBody(t, "-1001",
		map[string]string{"a.txt": "alpha", "b.txt": "beta"},
		[]string{"a.txt", "b.txt"})
	req := httptest.NewRequest(http.MethodPost, "/send", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"status":"sent"}`, rec.Body.String())
	assert.Equal(t, "-1001", svc.target)
	require.Len(t, svc.uploads, 2)
	assert.Equal(t, "a.txt", svc.uploads[0].Name)
	assert.Equal(t, "b.txt", svc.uploads[1].Name)
	assert.Equal(t, int64(5), svc.uploads[0].Size)
	assert.Equal(t, []string{"alpha", "beta"}, svc.uploadData)
	for _, u := range svc.uploads {
		assert.Equal(t, dir, filepath.Dir(u.Path))
		assert.True(t, storage.IsStagedUpload(filepath.Base(u.Path)), u.Path)
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSendCleansUpOnServiceError(t *testing.T) {
	t.Parallel()

	svc := &stubService{err: &gateway.Error{Kind: gateway.KindPrecondition, Msg: "not logged in"}}
	h, dir := newTestServer(t, svc)

	body, contentType := multipartBody(t, "-1001", map[string]string{"a.txt": "alpha"}, []string{"a.txt"})
	req := httptest.NewRequest(http.MethodPost, "/send", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"not logged in"}`, rec.Body.String())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSendWithoutFiles(t *testing.T) {
	t.Parallel()

	svc := &stubService{}
	h, _ := newTestServer(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/send", strings.NewReader("channelId=-1002"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "-1002", svc.target)
	assert.Empty(t, svc.uploads)
}

func TestSendRejectsOversizedBody(t *testing.T) {
	t.Parallel()

	svc := &stubService{}
	dir := t.TempDir()
	h := NewServer(svc, Options{BodyLimitBytes: 64, UploadDir: dir}).Handler()

	body, contentType := multipartBody(t, "-1001",
		map[string]string{"big.bin": strings.Repeat("x", 4096)}, []string{"big.bin"})
	req := httptest.NewRequest(http.MethodPost, "/send", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()

	h, _ := newTestServer(t, &stubService{})

	req := httptest.NewRequest(http.MethodOptions, "/auth/start", nil)
	req.Header.Set("Origin", "https://example.org")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = doJSON(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestWrongMethodIsRejected(t *testing.T) {
	t.Parallel()

	h, _ := newTestServer(t, &stubService{})

	rec := doJSON(t, h, http.MethodGet, "/auth/start", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestPanicRecovered(t *testing.T) {
	t.Parallel()

	h := loggingMiddleware(recoverMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
}
