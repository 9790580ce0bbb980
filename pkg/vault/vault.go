// Package vault предоставляет симметричное шифрование секретов подключений
// (пароли SFTP/FTP/S3) для хранения в конфигурационной базе.
//
// Формат зашифрованного значения:
//
//	hex(nonce):hex(ciphertext)
//
// nonce:      12 байт из crypto/rand (уникален для каждого вызова Encrypt)
// ciphertext: AES-256-GCM ciphertext + 16-байтный GCM-тег
//
// Ключ выводится из парольной фразы процесса через PBKDF2-SHA256 с фиксированной
// солью. Смена парольной фразы делает все сохраненные секреты нечитаемыми —
// механизма ротации нет. Per-secret соль потребует версионирования формата
// (места под соль в текущем формате нет).
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	nonceSize = 12
	keySize   = 32 // AES-256
	kdfIters  = 120000
)

// kdfSalt фиксирована для всех секретов: ciphertext не несет соль,
// а все секреты шифруются одной парольной фразой процесса.
var kdfSalt = []byte("feedbridge.vault.v1")

// ErrDecrypt возвращается когда ciphertext поврежден или ключ не подходит.
var ErrDecrypt = errors.New("vault: decryption failed")

// Vault шифрует и расшифровывает секреты одним ключом,
// выведенным из парольной фразы.
type Vault struct {
	key []byte
}

// New создает Vault из парольной фразы процесса.
// Пустая парольная фраза — ошибка конфигурации: молчаливый дефолт недопустим.
func New(passphrase string) (*Vault, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("vault: passphrase is required")
	}

	key := pbkdf2.Key([]byte(passphrase), kdfSalt, kdfIters, keySize, sha256.New)
	return &Vault{key: key}, nil
}

// Encrypt шифрует секрет и возвращает строку "hex(nonce):hex(ciphertext)".
// Nonce генерируется заново при каждом вызове.
func (v *Vault) Encrypt(secret string) (string, error) {
	gcm, err := v.newGCM()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("vault: generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, []byte(secret), nil)

	return hex.EncodeToString(nonce) + ":" + hex.EncodeToString(ciphertext), nil
}

// Decrypt расшифровывает строку, созданную Encrypt.
// Возвращает ErrDecrypt (обернутый) если формат нарушен или ключ не совпадает.
func (v *Vault) Decrypt(encoded string) (string, error) {
	nonceHex, cipherHex, ok := strings.Cut(encoded, ":")
	if !ok {
		return "", fmt.Errorf("%w: missing nonce segment", ErrDecrypt)
	}

	nonce, err := hex.DecodeString(nonceHex)
	if err != nil || len(nonce) != nonceSize {
		return "", fmt.Errorf("%w: malformed nonce", ErrDecrypt)
	}

	ciphertext, err := hex.DecodeString(cipherHex)
	if err != nil {
		return "", fmt.Errorf("%w: malformed ciphertext", ErrDecrypt)
	}

	gcm, err := v.newGCM()
	if err != nil {
		return "", err
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: authentication failed (wrong key or corrupted data)", ErrDecrypt)
	}

	return string(plaintext), nil
}

// newGCM собирает AEAD на текущем ключе.
func (v *Vault) newGCM() (cipher.AEAD, error) {
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return nil, fmt.Errorf("vault: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault: create GCM: %w", err)
	}
	return gcm, nil
}
