// Package logger создает zap-логгеры для сервера и клиента.
package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const logFilePermissions = 0o666

// New создает логгер, пишущий в stderr.
// В режиме debug используется человекочитаемый консольный формат и уровень Debug,
// иначе - JSON и уровень Info.
func New(debug bool) (*zap.Logger, error) {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "time"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	l, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("ошибка создания логгера: %w", err)
	}
	return l, nil
}

// NewFile создает логгер, пишущий в файл path (директория создается при необходимости).
// Используется клиентом: терминал занят TUI.
// Возвращает функцию закрытия файла.
func NewFile(path string, debug bool) (*zap.Logger, func() error, error) {
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return nil, nil, fmt.Errorf("не удалось создать директорию для логов: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermissions)
	if err != nil {
		return nil, nil, fmt.Errorf("не удалось открыть лог-файл: %w", err)
	}

	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(f), level)

	return zap.New(core), f.Close, nil
}

// Nop возвращает логгер, который ничего не пишет. Удобен в тестах.
func Nop() *zap.Logger {
	return zap.NewNop()
}
