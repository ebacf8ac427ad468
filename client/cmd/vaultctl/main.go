package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/maynagashev/gophvault/client/internal/tui"
	"github.com/maynagashev/gophvault/internal/logger"
)

const (
	logDir      = "logs"
	logFileName = "client.log"
	// Имя переменной окружения для пути к файлу сессии.
	sessionPathEnvVar = "GOPHVAULT_SESSION_PATH"
	// Путь к файлу сессии по умолчанию.
	defaultSessionPath = "gophvault-session.kdbx"
)

// Переменные для версии и даты сборки, устанавливаются через ldflags.
//
//nolint:gochecknoglobals // Устанавливается через ldflags при сборке
var (
	version    = "dev"
	buildDate  = "unknown"
	commitHash = "N/A"
)

type options struct {
	sessionPath string
	source      string
	serverURL   string
	debug       bool
	version     bool
}

// parseFlags разбирает флаги. Флаг -session имеет приоритет над переменной окружения.
func parseFlags(fs *flag.FlagSet, args []string, getenv func(string) string) (*options, error) {
	opts := &options{}
	sessionFlag := fs.String("session", defaultSessionPath,
		"Путь к файлу сессии (переопределяет "+sessionPathEnvVar+")")
	fs.StringVar(&opts.serverURL, "server-url", "", "URL сервера GophVault (например, https://localhost:8443)")
	fs.BoolVar(&opts.debug, "debug", false, "Включить режим отладки")
	fs.BoolVar(&opts.version, "version", false, "Показать версию и дату сборки")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	opts.sessionPath = defaultSessionPath
	opts.source = "по умолчанию"
	if envPath := getenv(sessionPathEnvVar); envPath != "" {
		opts.sessionPath = envPath
		opts.source = "переменная окружения (" + sessionPathEnvVar + ")"
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "session" {
			opts.sessionPath = *sessionFlag
			opts.source = "флаг -session"
		}
	})

	if opts.sessionPath == "" {
		return nil, errors.New("путь к файлу сессии не может быть пустым: проверьте флаг -session и " +
			sessionPathEnvVar)
	}
	return opts, nil
}

func printVersion(w io.Writer) {
	fmt.Fprintln(w, "GophVault Client")
	fmt.Fprintf(w, "Version: %s\n", version)
	fmt.Fprintf(w, "Build Date: %s\n", buildDate)
	fmt.Fprintf(w, "Commit Hash: %s\n", commitHash)
}

func main() {
	opts, err := parseFlags(flag.CommandLine, os.Args[1:], os.Getenv)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if opts.version {
		printVersion(os.Stdout)
		return
	}

	log, closeLog, err := logger.NewFile(filepath.Join(logDir, logFileName), opts.debug)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log.Info("[Main] Запуск GophVault",
		zap.String("session_path", opts.sessionPath),
		zap.String("source", opts.source),
		zap.Bool("debug", opts.debug),
		zap.String("server_url", opts.serverURL),
	)

	err = tui.Start(tui.Options{
		SessionPath: opts.sessionPath,
		ServerURL:   opts.serverURL,
		Debug:       opts.debug,
		Version:     version,
		Log:         log,
	})
	if err != nil {
		log.Error("[Main] Ошибка TUI", zap.Error(err))
	}
	_ = log.Sync()
	_ = closeLog()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
