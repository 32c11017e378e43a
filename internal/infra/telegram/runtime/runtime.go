// Package telegramruntime — вспомогательные утилиты рантайма MTProto-клиента:
// паузы случайной длительности между последовательными RPC, уважающие отмену контекста.
package telegramruntime

import (
	"context"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"telegram-gateway/internal/infra/logger"
)

// WaitRandomTimeMs блокирует горутину на случайный интервал из [minMs, maxMs).
// Возвращает ctx.Err(), если контекст отменён раньше срабатывания таймера.
// При minMs == maxMs ждёт ровно minMs; некорректное окно логируется и не ждёт.
func WaitRandomTimeMs(ctx context.Context, minMs, maxMs int) error {
	if minMs <= 0 || maxMs < minMs {
		logger.Error("WaitRandomTimeMs: invalid window", zap.Int("min_ms", minMs), zap.Int("max_ms", maxMs))
		return nil
	}

	delta := minMs
	if maxMs > minMs {
		delta = rand.IntN(maxMs-minMs) + minMs // #nosec G404
	}

	timer := time.NewTimer(time.Duration(delta) * time.Millisecond)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
