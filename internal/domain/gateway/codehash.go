package gateway

import (
	"fmt"
	"strings"

	"github.com/kr/pretty"
	"go.uber.org/zap"

	"telegram-gateway/internal/infra/logger"
)

// codeHashAliases — имена полей, под которыми провайдер отдаёт хеш кода.
var codeHashAliases = []string{"phoneCodeHash", "phone_code_hash", "codeHash", "hash"}

// phoneCodeHasher — ответ gotd (tg.AuthSentCode и родственные типы).
type phoneCodeHasher interface {
	GetPhoneCodeHash() string
}

// extractCodeHash ищет хеш кода в сыром ответе запроса кода. Пустое значение
// считается отсутствующим.
func extractCodeHash(resp any) (string, error) {
	switch v := resp.(type) {
	case phoneCodeHasher:
		if h := strings.TrimSpace(v.GetPhoneCodeHash()); h != "" {
			return h, nil
		}
	case map[string]string:
		for _, key := range codeHashAliases {
			if h := strings.TrimSpace(v[key]); h != "" {
				return h, nil
			}
		}
	case map[string]any:
		for _, key := range codeHashAliases {
			if h, ok := v[key].(string); ok && strings.TrimSpace(h) != "" {
				return strings.TrimSpace(h), nil
			}
		}
	}

	if logger.IsDebugEnabled() {
		logger.Debug("code request response without hash", zap.String("response", pretty.Sprint(resp)))
	}
	return "", upstreamContractError(fmt.Sprintf("code request response has no hash (%T)", resp))
}
