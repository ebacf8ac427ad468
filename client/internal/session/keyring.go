// Package session хранит данные входа клиента (URL сервера, имя пользователя, JWT)
// в зашифрованном KDBX файле. Писать в файл может только один процесс.
package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/tobischo/gokeepasslib/v3"
	"go.uber.org/zap"
)

const (
	keyServerURL = "GophVaultServerURL"
	keyUsername  = "GophVaultUsername"
	keyAuthToken = "GophVaultAuthToken" //nolint:gosec // Это имя ключа, а не сам токен
)

var (
	// ErrReadOnly - файл сессии заблокирован другим экземпляром клиента.
	ErrReadOnly = errors.New("сессия открыта другим процессом, изменения не сохраняются")
	// ErrUnlock - файл не расшифровывается этим паролем или поврежден.
	ErrUnlock = errors.New("не удалось открыть файл сессии: неверный пароль или поврежденный файл")
	// ErrEmptyPassword - пароль файла сессии не задан.
	ErrEmptyPassword = errors.New("пароль файла сессии не может быть пустым")
)

// Data - сохраненные данные входа.
type Data struct {
	ServerURL string
	Username  string
	Token     string
}

// Keyring - открытый файл сессии.
type Keyring struct {
	path     string
	password string
	lock     *flock.Flock
	locked   bool
	db       *gokeepasslib.Database
	log      *zap.Logger
}

// Open открывает файл сессии или создает новый в памяти, если файла нет.
// Если блокировку <path>.lock держит другой процесс, сессия открывается только для чтения.
func Open(path, password string, log *zap.Logger) (*Keyring, error) {
	if password == "" {
		return nil, ErrEmptyPassword
	}

	k := &Keyring{
		path:     path,
		password: password,
		lock:     flock.New(path + ".lock"),
		log:      log,
	}

	var err error
	k.locked, err = k.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("ошибка блокировки файла сессии %s: %w", path, err)
	}
	if !k.locked {
		log.Warn("[Session] Блокировка не получена (файл используется?). Read-Only.", zap.String("path", path))
	}

	k.db, err = k.readFile()
	switch {
	case errors.Is(err, os.ErrNotExist):
		log.Info("[Session] Файл сессии не найден, будет создан при сохранении", zap.String("path", path))
		k.db = newDatabase(password)
	case err != nil:
		_ = k.unlock()
		return nil, err
	}
	return k, nil
}

func newDatabase(password string) *gokeepasslib.Database {
	db := gokeepasslib.NewDatabase()
	db.Credentials = gokeepasslib.NewPasswordCredentials(password)
	db.Content = gokeepasslib.NewContent()
	db.Content.Meta.CustomData = []gokeepasslib.CustomData{}

	root := gokeepasslib.NewGroup()
	root.Name = "GophVault"
	db.Content.Root = &gokeepasslib.RootData{Groups: []gokeepasslib.Group{root}}
	return db
}

func (k *Keyring) readFile() (*gokeepasslib.Database, error) {
	file, err := os.Open(k.path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	db := gokeepasslib.NewDatabase()
	db.Credentials = gokeepasslib.NewPasswordCredentials(k.password)
	if err = gokeepasslib.NewDecoder(file).Decode(db); err != nil {
		k.log.Debug("[Session] Ошибка дешифрования", zap.String("path", k.path), zap.Error(err))
		return nil, ErrUnlock
	}
	if err = db.UnlockProtectedEntries(); err != nil {
		return nil, fmt.Errorf("ошибка разблокировки защищенных полей: %w", err)
	}
	return db, nil
}

// ReadOnly сообщает, что файл сессии заблокирован другим процессом.
func (k *Keyring) ReadOnly() bool {
	return !k.locked
}

// Load возвращает сохраненные данные входа. Отсутствующие значения пусты.
func (k *Keyring) Load() Data {
	var d Data
	for _, item := range k.db.Content.Meta.CustomData {
		switch item.Key {
		case keyServerURL:
			d.ServerURL = item.Value
		case keyUsername:
			d.Username = item.Value
		case keyAuthToken:
			d.Token = item.Value
		}
	}
	return d
}

// Save записывает данные входа в файл. Пустые значения удаляются.
func (k *Keyring) Save(d Data) error {
	if k.ReadOnly() {
		return ErrReadOnly
	}

	meta := k.db.Content.Meta
	meta.CustomData = setValue(meta.CustomData, keyServerURL, d.ServerURL)
	meta.CustomData = setValue(meta.CustomData, keyUsername, d.Username)
	meta.CustomData = setValue(meta.CustomData, keyAuthToken, d.Token)

	if err := k.writeFile(); err != nil {
		return err
	}
	k.log.Debug("[Session] Сессия сохранена", zap.String("path", k.path), zap.String("server", d.ServerURL))
	return nil
}

// ClearToken удаляет токен, оставляя URL сервера и имя пользователя.
func (k *Keyring) ClearToken() error {
	d := k.Load()
	d.Token = ""
	return k.Save(d)
}

// setValue обновляет, добавляет или (для пустого value) удаляет значение в CustomData.
func setValue(items []gokeepasslib.CustomData, key, value string) []gokeepasslib.CustomData {
	out := items[:0]
	found := false
	for _, item := range items {
		if item.Key != key {
			out = append(out, item)
			continue
		}
		if value != "" && !found {
			item.Value = value
			out = append(out, item)
			found = true
		}
	}
	if value != "" && !found {
		out = append(out, gokeepasslib.CustomData{Key: key, Value: value})
	}
	return out
}

// writeFile кодирует базу во временный файл и атомарно заменяет им файл сессии.
func (k *Keyring) writeFile() error {
	if err := os.MkdirAll(filepath.Dir(k.path), 0o700); err != nil {
		return fmt.Errorf("ошибка создания каталога сессии: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(k.path), filepath.Base(k.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("ошибка создания временного файла: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpPath)
		}
	}()

	if err = k.db.LockProtectedEntries(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("ошибка блокировки защищенных полей: %w", err)
	}
	encodeErr := gokeepasslib.NewEncoder(tmp).Encode(k.db)
	if unlockErr := k.db.UnlockProtectedEntries(); unlockErr != nil {
		k.log.Warn("[Session] Не удалось разблокировать поля после сохранения", zap.Error(unlockErr))
	}
	closeErr := tmp.Close()
	if err = errors.Join(encodeErr, closeErr); err != nil {
		return fmt.Errorf("ошибка записи файла сессии %s: %w", k.path, err)
	}

	if err = os.Rename(tmpPath, k.path); err != nil {
		return fmt.Errorf("ошибка замены файла сессии %s: %w", k.path, err)
	}
	return nil
}

// Close снимает блокировку файла сессии.
func (k *Keyring) Close() error {
	return k.unlock()
}

func (k *Keyring) unlock() error {
	if !k.locked {
		return nil
	}
	k.locked = false
	if err := k.lock.Unlock(); err != nil {
		return fmt.Errorf("ошибка снятия блокировки: %w", err)
	}
	return nil
}
