package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/maynagashev/gophvault/server/internal/ledger"
)

const (
	// Порт по умолчанию (непривилегированный).
	defaultServerPort = "8443"

	defaultMinioEndpoint = "localhost:9000"
	defaultMinioUser     = "minioadmin"
	defaultMinioPassword = "minioadmin"
	defaultMinioBucket   = "gophvault-statements"

	// Переменные окружения.
	envServerPort    = "SERVER_PORT"
	envTLSCertFile   = "TLS_CERT_FILE"
	envTLSKeyFile    = "TLS_KEY_FILE"
	envDatabaseDSN   = "DATABASE_DSN"
	envJWTSecret     = "JWT_SECRET" //nolint:gosec // Имя переменной окружения, а не секрет
	envMinioEndpoint = "MINIO_ENDPOINT"
	envMinioUser     = "MINIO_USER"
	envMinioPassword = "MINIO_PASSWORD" //nolint:gosec // Имя переменной окружения, а не секрет
	envMinioBucket   = "MINIO_BUCKET"
	envMinioUseSSL   = "MINIO_USE_SSL"
	envLedgerShards  = "LEDGER_SHARDS"
	envDebug         = "DEBUG"
)

// config хранит конфигурацию сервера.
type config struct {
	Port        string
	CertFile    string
	KeyFile     string
	DatabaseDSN string
	JWTSecret   string

	MinioEndpoint string
	MinioUser     string
	MinioPassword string
	MinioBucket   string
	MinioUseSSL   bool

	LedgerShards int
	Debug        bool
}

// TLSEnabled сообщает, заданы ли сертификат и ключ.
func (c *config) TLSEnabled() bool {
	return c.CertFile != "" && c.KeyFile != ""
}

// parseFlags разбирает флаги и переменные окружения, возвращает config или ошибку.
// Флаг имеет приоритет над переменной окружения, переменная - над значением по умолчанию.
func parseFlags(fs *flag.FlagSet, args []string) (*config, error) {
	cfg := &config{}

	fs.StringVar(&cfg.Port, "port", "",
		fmt.Sprintf("Порт HTTP(S)-сервера (env: %s, default: %s)", envServerPort, defaultServerPort))
	fs.StringVar(&cfg.CertFile, "cert-file", "",
		fmt.Sprintf("Путь к файлу TLS-сертификата, без него сервер работает по HTTP (env: %s)", envTLSCertFile))
	fs.StringVar(&cfg.KeyFile, "key-file", "",
		fmt.Sprintf("Путь к файлу TLS-ключа (env: %s)", envTLSKeyFile))
	fs.StringVar(&cfg.DatabaseDSN, "database-dsn", "",
		fmt.Sprintf("Строка подключения к базе данных (env: %s)", envDatabaseDSN))
	fs.StringVar(&cfg.JWTSecret, "jwt-secret", "",
		fmt.Sprintf("Секрет подписи JWT (env: %s)", envJWTSecret))
	fs.StringVar(&cfg.MinioEndpoint, "minio-endpoint", "",
		fmt.Sprintf("Адрес MinIO (env: %s, default: %s)", envMinioEndpoint, defaultMinioEndpoint))
	fs.StringVar(&cfg.MinioUser, "minio-user", "",
		fmt.Sprintf("Access key MinIO (env: %s)", envMinioUser))
	fs.StringVar(&cfg.MinioPassword, "minio-password", "",
		fmt.Sprintf("Secret key MinIO (env: %s)", envMinioPassword))
	fs.StringVar(&cfg.MinioBucket, "minio-bucket", "",
		fmt.Sprintf("Бакет для выписок (env: %s, default: %s)", envMinioBucket, defaultMinioBucket))
	minioSSL := fs.String("minio-use-ssl", "",
		fmt.Sprintf("Подключаться к MinIO по HTTPS (env: %s)", envMinioUseSSL))
	shards := fs.Int("ledger-shards", 0,
		fmt.Sprintf("Количество шардов блокировок движка (env: %s, default: %d)", envLedgerShards, ledger.DefaultShards))
	fs.BoolVar(&cfg.Debug, "debug", false, fmt.Sprintf("Подробное логирование (env: %s)", envDebug))

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	applyEnv(&cfg.Port, envServerPort, defaultServerPort)
	applyEnv(&cfg.CertFile, envTLSCertFile, "")
	applyEnv(&cfg.KeyFile, envTLSKeyFile, "")
	applyEnv(&cfg.DatabaseDSN, envDatabaseDSN, "")
	applyEnv(&cfg.JWTSecret, envJWTSecret, "")
	applyEnv(&cfg.MinioEndpoint, envMinioEndpoint, defaultMinioEndpoint)
	applyEnv(&cfg.MinioUser, envMinioUser, defaultMinioUser)
	applyEnv(&cfg.MinioPassword, envMinioPassword, defaultMinioPassword)
	applyEnv(&cfg.MinioBucket, envMinioBucket, defaultMinioBucket)
	applyEnv(minioSSL, envMinioUseSSL, "false")

	var err error
	if cfg.MinioUseSSL, err = strconv.ParseBool(*minioSSL); err != nil {
		return nil, fmt.Errorf("неверное значение minio-use-ssl %q: %w", *minioSSL, err)
	}

	cfg.LedgerShards = *shards
	if cfg.LedgerShards == 0 {
		cfg.LedgerShards = ledger.DefaultShards
		if value, ok := os.LookupEnv(envLedgerShards); ok && value != "" {
			if cfg.LedgerShards, err = strconv.Atoi(value); err != nil {
				return nil, fmt.Errorf("неверное значение %s %q: %w", envLedgerShards, value, err)
			}
		}
	}
	if cfg.LedgerShards <= 0 {
		return nil, fmt.Errorf("количество шардов должно быть положительным, получено %d", cfg.LedgerShards)
	}

	if !cfg.Debug {
		if value, ok := os.LookupEnv(envDebug); ok && value != "" {
			if cfg.Debug, err = strconv.ParseBool(value); err != nil {
				return nil, fmt.Errorf("неверное значение %s %q: %w", envDebug, value, err)
			}
		}
	}

	// Проверяем обязательные параметры
	if cfg.DatabaseDSN == "" {
		return nil, errors.New("не указана строка подключения к БД (--database-dsn или " + envDatabaseDSN + ")")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("не указан секрет JWT (--jwt-secret или " + envJWTSecret + ")")
	}
	if (cfg.CertFile == "") != (cfg.KeyFile == "") {
		return nil, errors.New("сертификат и ключ TLS задаются только вместе (--cert-file и --key-file)")
	}

	return cfg, nil
}

// applyEnv подставляет значение переменной окружения, если флаг не задан.
// Пустая переменная считается незаданной.
func applyEnv(dst *string, env, fallback string) {
	if *dst != "" {
		return
	}
	if value, ok := os.LookupEnv(env); ok && value != "" {
		*dst = value
		return
	}
	*dst = fallback
}
