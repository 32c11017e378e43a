package gateway

import (
	"context"
	"errors"
	"sync"
)

type sentFile struct {
	shape   string
	target  string
	name    string
	caption string
}

// fakeClient записывает вызовы и отвечает заранее заданными значениями.
type fakeClient struct {
	mu sync.Mutex

	requestCodeResp any
	requestCodeErr  error
	sendCodeResp    any
	sendCodeErr     error

	validCode    string
	signInErr    error
	signInRawErr error
	signedIn     bool

	dialogs    []Dialog
	dialogsErr error

	sendFileErr    func(Upload) error
	sendMessageErr func(Upload) error
	sent           []sentFile

	session    string
	sessionErr error

	calls  []string
	closed int
}

func (c *fakeClient) record(call string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call)
}

func (c *fakeClient) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func (c *fakeClient) Closed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeClient) RequestCode(_ context.Context, _ string) (any, error) {
	c.record("RequestCode")
	return c.requestCodeResp, c.requestCodeErr
}

func (c *fakeClient) SendCode(_ context.Context, _ string) (any, error) {
	c.record("SendCode")
	return c.sendCodeResp, c.sendCodeErr
}

func (c *fakeClient) signIn(req SignInRequest, shapeErr error) error {
	if shapeErr != nil {
		return shapeErr
	}
	if c.validCode != "" && req.Code != c.validCode {
		return errors.New("PHONE_CODE_INVALID")
	}
	c.mu.Lock()
	c.signedIn = true
	c.mu.Unlock()
	return nil
}

func (c *fakeClient) SignIn(_ context.Context, req SignInRequest) error {
	c.record("SignIn")
	return c.signIn(req, c.signInErr)
}

func (c *fakeClient) SignInRaw(_ context.Context, req SignInRequest) error {
	c.record("SignInRaw")
	return c.signIn(req, c.signInRawErr)
}

func (c *fakeClient) Dialogs(_ context.Context) ([]Dialog, error) {
	c.record("Dialogs")
	return c.dialogs, c.dialogsErr
}

func (c *fakeClient) send(shape, target string, file Upload, caption string, fail func(Upload) error) error {
	c.record(shape)
	if fail != nil {
		if err := fail(file); err != nil {
			return err
		}
	}
	c.mu.Lock()
	c.sent = append(c.sent, sentFile{shape: shape, target: target, name: file.Name, caption: caption})
	c.mu.Unlock()
	return nil
}

func (c *fakeClient) SendFile(_ context.Context, target string, file Upload, caption string) error {
	return c.send("SendFile", target, file, caption, c.sendFileErr)
}

func (c *fakeClient) SendMessage(_ context.Context, target string, file Upload, caption string) error {
	return c.send("SendMessage", target, file, caption, c.sendMessageErr)
}

func (c *fakeClient) Session(_ context.Context) (string, error) {
	c.record("Session")
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessionErr != nil {
		return "", c.sessionErr
	}
	if !c.signedIn {
		return "", nil
	}
	return c.session, nil
}

func (c *fakeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

// fakeQRClient дополняет fakeClient способностью входа по QR.
type fakeQRClient struct {
	*fakeClient
	attempt  *fakeAttempt
	loginErr error
}

func (c *fakeQRClient) QRLogin(_ context.Context) (QRAttempt, error) {
	c.record("QRLogin")
	if c.loginErr != nil {
		return nil, c.loginErr
	}
	return c.attempt, nil
}

type fakeAttempt struct {
	token     []byte
	confirmed chan struct{}
	client    *fakeClient
}

func newFakeAttempt(token string, client *fakeClient) *fakeAttempt {
	return &fakeAttempt{token: []byte(token), confirmed: make(chan struct{}), client: client}
}

func (a *fakeAttempt) Token() []byte { return a.token }

func (a *fakeAttempt) Wait(ctx context.Context) error {
	select {
	case <-a.confirmed:
		a.client.mu.Lock()
		a.client.signedIn = true
		a.client.mu.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *fakeAttempt) confirm() { close(a.confirmed) }

type dialCall struct {
	creds   Credentials
	session string
}

// fakeDialer отдаёт клиентов из очереди по порядку вызовов Dial.
type fakeDialer struct {
	mu      sync.Mutex
	clients []Client
	err     error
	calls   []dialCall
}

func (d *fakeDialer) Dial(_ context.Context, creds Credentials, session string) (Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, dialCall{creds: creds, session: session})
	if d.err != nil {
		return nil, d.err
	}
	if len(d.clients) == 0 {
		return nil, errors.New("no client queued")
	}
	c := d.clients[0]
	d.clients = d.clients[1:]
	return c, nil
}

func (d *fakeDialer) push(c Client) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clients = append(d.clients, c)
}

func (d *fakeDialer) Calls() []dialCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]dialCall(nil), d.calls...)
}

var testCreds = Credentials{APIID: 12345, APIHash: "abc"}
