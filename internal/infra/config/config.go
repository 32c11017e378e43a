// Пакет config отвечает за сбор и предоставление конфигурации HTTP-шлюза
// к MTProto-клиенту. Он:
//  1. читает переменные окружения из .env (через godotenv), если файл есть,
//  2. нормализует и валидирует входные значения,
//  3. подставляет значения по умолчанию и копит предупреждения о них,
//  4. фиксирует результат в singleton, доступном через Env().
//
// Учетные данные Telegram API (API_ID/API_HASH) сюда не входят: шлюз получает
// их от вызывающей стороны в /auth/start и /auth/qr/start.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"
)

// EnvConfig описывает операционные настройки шлюза: адрес HTTP-сервера, лимиты
// тела запроса, каталог для загружаемых файлов, поведение QR-опроса и пакетной
// отправки, параметры MTProto-клиента и логирования.
//
// NB: значения уже проходят минимальную валидацию и нормализацию в loadConfig.
type EnvConfig struct {
	HTTPAddress         string
	BodyLimitMB         int
	UploadDir           string
	QRPollTimeoutMS     int
	SendContinueOnError bool
	ThrottleRPS         int
	TestDC              bool
	PeersCacheFile      string
	LogLevel            string
	// Файловое логирование
	LogFile           string
	LogFileLevel      string
	LogFileMaxSize    int
	LogFileMaxBackups int
	LogFileMaxAge     int
	LogFileCompress   bool
}

// BodyLimitBytes возвращает лимит тела запроса в байтах.
func (e EnvConfig) BodyLimitBytes() int64 {
	return int64(e.BodyLimitMB) << 20 //nolint:mnd // МБ -> байты
}

// Config хранит конфигурацию среды.
//
// Потокобезопасность: публичные геттеры берут RLock.
type Config struct {
	Env      EnvConfig
	warnings []string     // предупреждения, накопленные при чтении окружения
	mu       sync.RWMutex // защита конкурентного доступа к конфигурации
}

// Значения по умолчанию для параметров окружения.
const (
	defaultHTTPAddress         = ":3000"
	defaultBodyLimitMB         = 50
	defaultQRPollTimeoutMS     = 1000
	defaultSendContinueOnError = false
	defaultThrottleRPS         = 5
	defaultPeersCacheFile      = "data/peers_cache.bbolt"
	defaultLogLevel            = "info"
	// Файловое логирование (LOG_FILE не имеет дефолта - должен быть явно указан для активации)
	defaultLogFileLevel      = "debug"
	defaultLogFileMaxSize    = 50
	defaultLogFileMaxBackups = 3
	defaultLogFileMaxAge     = 7
	defaultLogFileCompress   = true
)

// defaultUploadDir — общий каталог для временных файлов загрузок.
var defaultUploadDir = filepath.Join(os.TempDir(), "telegram-gateway-uploads")

var (
	cfgInstance = &Config{}
	cfgDone     bool
)

// Load — точка входа для инициализации глобальной конфигурации.
// Повторный вызов запрещен (возвращается ошибка), чтобы избежать гонок
// конфигурации на старте.
func Load(envPath string) error {
	if cfgDone {
		return errors.New("config already loaded")
	}
	newCfg, err := loadConfig(envPath)
	if err != nil {
		return err
	}
	cfgInstance.mu.Lock()
	cfgInstance.Env = newCfg.Env
	cfgInstance.warnings = newCfg.warnings
	cfgInstance.mu.Unlock()
	cfgDone = true
	return nil
}

// loadConfig выполняет фактическую загрузку/валидацию без установки глобального
// состояния. Удобно для тестов: можно собрать временный Config и проверить его.
// Отсутствующий .env не является ошибкой: шлюз можно настроить одним окружением.
func loadConfig(envPath string) (*Config, error) {
	var warnings []string

	if path := strings.TrimSpace(envPath); path != "" {
		if err := godotenv.Load(path); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to load .env: %w", err)
			}
			appendWarningf(&warnings, "env file %q not found; using process environment", path)
		}
	}

	env := EnvConfig{
		HTTPAddress:         sanitizeValue("HTTP_ADDRESS", os.Getenv("HTTP_ADDRESS"), defaultHTTPAddress, &warnings),
		BodyLimitMB:         parseIntDefault("BODY_LIMIT_MB", defaultBodyLimitMB, greaterThanZero, &warnings),
		UploadDir:           sanitizeValue("UPLOAD_DIR", os.Getenv("UPLOAD_DIR"), defaultUploadDir, &warnings),
		QRPollTimeoutMS:     parseIntDefault("QR_POLL_TIMEOUT_MS", defaultQRPollTimeoutMS, greaterThanZero, &warnings),
		SendContinueOnError: parseBoolDefault("SEND_CONTINUE_ON_ERROR", defaultSendContinueOnError, &warnings),
		ThrottleRPS:         parseIntDefault("THROTTLE_RPS", defaultThrottleRPS, greaterThanZero, &warnings),
		TestDC:              strings.EqualFold(strings.TrimSpace(os.Getenv("TEST_DC")), "true"),
		PeersCacheFile: sanitizeValue("PEERS_CACHE_FILE", os.Getenv("PEERS_CACHE_FILE"),
			defaultPeersCacheFile, &warnings),
		LogLevel: sanitizeLogLevel("LOG_LEVEL", os.Getenv("LOG_LEVEL"), defaultLogLevel, &warnings),
		// Файловое логирование
		LogFile:           strings.TrimSpace(os.Getenv("LOG_FILE")),
		LogFileLevel:      sanitizeLogLevel("LOG_FILE_LEVEL", os.Getenv("LOG_FILE_LEVEL"), defaultLogFileLevel, &warnings),
		LogFileMaxSize:    parseIntDefault("LOG_FILE_MAX_SIZE_MB", defaultLogFileMaxSize, greaterThanZero, &warnings),
		LogFileMaxBackups: parseIntDefault("LOG_FILE_MAX_BACKUPS", defaultLogFileMaxBackups, nonNegative, &warnings),
		LogFileMaxAge:     parseIntDefault("LOG_FILE_MAX_AGE_DAYS", defaultLogFileMaxAge, nonNegative, &warnings),
		LogFileCompress:   parseBoolDefault("LOG_FILE_COMPRESS", defaultLogFileCompress, &warnings),
	}

	return &Config{
		Env:      env,
		warnings: warnings,
	}, nil
}

// Warnings возвращает накопленные предупреждения, возникшие при загрузке .env
// (например, когда подставлено значение по умолчанию). Возвращается копия.
func Warnings() []string {
	cfgInstance.mu.RLock()
	defer cfgInstance.mu.RUnlock()
	result := make([]string, len(cfgInstance.warnings))
	copy(result, cfgInstance.warnings)
	return result
}

// Env возвращает EnvConfig из глобального singleton. Это неизменяемый снимок
// на момент загрузки.
func Env() EnvConfig {
	cfgInstance.mu.RLock()
	defer cfgInstance.mu.RUnlock()
	return cfgInstance.Env
}

// parseIntDefault читает name как int. Если пусто/некорректно/не проходит
// дополнительную проверку validator — возвращает defaultVal и пишет предупреждение.
func parseIntDefault(name string, defaultVal int, validator func(int) bool, warnings *[]string) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		appendWarningf(warnings, "env %s is not set; using default %d", name, defaultVal)
		return defaultVal
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		appendWarningf(warnings, "env %s value %q is not a valid integer; using default %d", name, value, defaultVal)
		return defaultVal
	}
	if validator != nil && !validator(v) {
		appendWarningf(warnings, "env %s value %d does not satisfy constraints; using default %d", name, v, defaultVal)
		return defaultVal
	}
	return v
}

// appendWarningf — служебная функция для накопления предупреждений о некорректных
// переменных окружения. Список затем доступен через Warnings().
func appendWarningf(warnings *[]string, format string, args ...any) {
	if warnings == nil {
		return
	}
	*warnings = append(*warnings, fmt.Sprintf(format, args...))
}

func greaterThanZero(v int) bool { return v > 0 }
func nonNegative(v int) bool     { return v >= 0 }

// parseBoolDefault читает name как bool. Если пусто/некорректно — возвращает defaultVal и пишет предупреждение.
func parseBoolDefault(name string, defaultVal bool, warnings *[]string) bool {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		appendWarningf(warnings, "env %s is not set; using default %v", name, defaultVal)
		return defaultVal
	}
	v, err := strconv.ParseBool(value)
	if err != nil {
		appendWarningf(warnings, "env %s value %q is not a valid boolean; using default %v", name, value, defaultVal)
		return defaultVal
	}
	return v
}

// sanitizeLogLevel нормализует уровень логирования и ограничивает значения набором
// {debug, info, warn, error}. Всё остальное превращается в defaultVal.
func sanitizeLogLevel(name, level, defaultVal string, warnings *[]string) string {
	lvl := strings.ToLower(strings.TrimSpace(level))
	if lvl == "" {
		appendWarningf(warnings, "env %s is not set; using default %q", name, defaultVal)
		return defaultVal
	}
	switch lvl {
	case "debug", "info", "warn", "error":
		return lvl
	default:
		appendWarningf(warnings, "env %s value %q is invalid; using default %q", name, level, defaultVal)
		return defaultVal
	}
}

// sanitizeValue возвращает непустое строковое значение. Если переменная не
// задана, подставляет fallback и пишет предупреждение.
func sanitizeValue(name, value, fallback string, warnings *[]string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		appendWarningf(warnings, "env %s is not set; using default %q", name, fallback)
		return fallback
	}
	return v
}
