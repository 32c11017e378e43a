package session

// Пакет session содержит хранилище MTProto-сессий шлюза.
// Сессия живёт только в памяти процесса (tdsession.StorageMemory) и наружу
// отдаётся как непрозрачная строка (SessionToken): base64 от байтов, которые
// gotd сохраняет в хранилище. Токен возвращается клиенту в /auth/verify и
// переиспользуется при следующем /auth/start, чтобы не проходить вход заново.

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/go-faster/errors"

	tdsession "github.com/gotd/td/session"
)

// MemoryStorage добавляет к tdsession.StorageMemory сериализацию в токен.
// Потокобезопасность обеспечивает само хранилище gotd.
type MemoryStorage struct {
	*tdsession.StorageMemory
}

// Компиляторная проверка соответствия интерфейсу tdsession.Storage.
var _ tdsession.Storage = (*MemoryStorage)(nil)

// NewMemoryStorage создаёт хранилище, предзаполненное токеном. Пустой токен —
// пустое хранилище (клиент начнёт с новым ключом авторизации).
func NewMemoryStorage(token string) (*MemoryStorage, error) {
	s := &MemoryStorage{StorageMemory: new(tdsession.StorageMemory)}
	token = strings.TrimSpace(token)
	if token == "" {
		return s, nil
	}
	data, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, errors.Wrap(err, "decode session token")
	}
	if err := s.StoreSession(context.Background(), data); err != nil {
		return nil, errors.Wrap(err, "seed session")
	}
	return s, nil
}

// Token сериализует текущую сессию в строку. Пустое хранилище — пустая строка.
func (s *MemoryStorage) Token() string {
	data := s.Bytes(nil)
	if len(data) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(data)
}
