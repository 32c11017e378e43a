// Package gateway — доменное ядро HTTP-шлюза: единственный на процесс контекст
// сессии внешнего мессенджер-клиента и операции над ним (старт, вход по коду,
// вход по QR, список каналов, пересылка файлов).
//
// Сетевой протокол здесь не реализуется: все вызовы уходят во внешний клиент
// через контракт Dialer/Client, описанный в этом файле. Рабочая реализация —
// адаптер gotd (internal/adapters/telegram/client), в тестах — фейки.
package gateway

import (
	"context"
	"errors"
)

// Credentials содержит учётные данные приложения Telegram API.
type Credentials struct {
	APIID   int
	APIHash string
}

// valid сообщает, что оба поля заданы.
func (c Credentials) valid() bool {
	return c.APIID > 0 && c.APIHash != ""
}

// Dialer подключает внешний клиент (connect). session — ранее сохранённый
// SessionToken или пустая строка для новой сессии.
type Dialer interface {
	Dial(ctx context.Context, creds Credentials, session string) (Client, error)
}

// SignInRequest описывает параметры входа по коду подтверждения.
type SignInRequest struct {
	Phone    string
	Code     string
	CodeHash string
}

// Dialog это запись списка диалогов внешнего клиента.
type Dialog struct {
	ID        int64
	Title     string
	IsChannel bool
}

// Upload описывает файл, уже сохранённый HTTP-слоем во временный каталог.
type Upload struct {
	Path string // путь к временному файлу
	Name string // исходное имя файла у клиента
	MIME string // Content-Type части multipart, может быть пустым
	Size int64
}

// Client — подключённый внешний клиент (ClientHandle).
//
// Пары RequestCode/SendCode, SignIn/SignInRaw и SendFile/SendMessage — две
// формы одного вызова. Шлюз пробует первую и при любой ошибке повторяет второй.
type Client interface {
	// RequestCode запрашивает код подтверждения. Результат — сырой ответ
	// провайдера, хеш кода ищется в нём по известным псевдонимам полей.
	RequestCode(ctx context.Context, phone string) (any, error)
	// SendCode: альтернативная форма запроса кода.
	SendCode(ctx context.Context, phone string) (any, error)

	SignIn(ctx context.Context, req SignInRequest) error
	SignInRaw(ctx context.Context, req SignInRequest) error

	// Dialogs возвращает диалоги в порядке, который отдаёт провайдер.
	Dialogs(ctx context.Context) ([]Dialog, error)

	// SendFile отправляет файл вложением-документом с подписью caption.
	SendFile(ctx context.Context, target string, file Upload, caption string) error
	// SendMessage отправляет обычное сообщение, несущее тот же файл.
	SendMessage(ctx context.Context, target string, file Upload, caption string) error

	// Session сериализует текущую сессию (session.save()).
	Session(ctx context.Context) (string, error)

	// Close останавливает соединение. Повторный вызов безопасен.
	Close() error
}

// QRLoginer описывает необязательную способность клиента входить по QR.
type QRLoginer interface {
	QRLogin(ctx context.Context) (QRAttempt, error)
}

// QRAttempt — выданный провайдером токен входа и способ дождаться подтверждения.
type QRAttempt interface {
	// Token возвращает непрозрачные байты токена для показа в виде QR-кода.
	Token() []byte
	// Wait блокирует до подтверждения входа на другом устройстве (nil) или
	// до отмены ctx. Может вызываться повторно после таймаута.
	Wait(ctx context.Context) error
}

// ErrQRUnsupported возвращается адаптером, если провайдер не поддерживает вход по QR.
var ErrQRUnsupported = errors.New("qr login is not supported")
