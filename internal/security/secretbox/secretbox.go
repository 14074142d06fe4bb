// Package secretbox cifra los vectores biométricos (face encodings) en
// reposo con AES-256-GCM. El blob guardado es base64(nonce|tag|ciphertext);
// el plaintext es el vector serializado como JSON.
package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

const (
	nonceSizeGCM      = 12 // AES-GCM nonce recomendado (96 bits)
	tagSizeGCM        = 16
	requiredKeyLength = 32 // 32 bytes => AES-256
)

var (
	// ErrNotInitialized: Init no fue llamado. Es condición fatal de arranque,
	// no un error por-request.
	ErrNotInitialized = errors.New("secretbox: master key not initialized")

	// ErrDecryptionFailed: tag inválido o clave incorrecta. Nunca se devuelve
	// plaintext parcial.
	ErrDecryptionFailed = errors.New("secretbox: decryption failed")
)

var (
	mu        sync.RWMutex
	masterKey []byte
)

// Init carga la clave maestra (base64 de 32 bytes) una sola vez al arranque.
// Una clave ausente o de tamaño incorrecto es fatal: el proceso no debe
// servir tráfico sin poder descifrar sus datos.
func Init(keyB64 string) error {
	if keyB64 == "" {
		return fmt.Errorf("secretbox: empty master key; genere una con: openssl rand -base64 32")
	}
	k, err := base64.StdEncoding.DecodeString(keyB64)
	if err != nil {
		return fmt.Errorf("secretbox: decode master key: %w", err)
	}
	if len(k) != requiredKeyLength {
		return fmt.Errorf("secretbox: master key debe decodificar a %d bytes, obtuvo %d", requiredKeyLength, len(k))
	}
	mu.Lock()
	masterKey = make([]byte, len(k))
	copy(masterKey, k)
	mu.Unlock()
	return nil
}

// Ready expone si la clave está cargada (útil para readyz/config print).
func Ready() bool {
	mu.RLock()
	defer mu.RUnlock()
	return len(masterKey) == requiredKeyLength
}

func gcm() (cipher.AEAD, error) {
	mu.RLock()
	key := masterKey
	mu.RUnlock()
	if len(key) != requiredKeyLength {
		return nil, ErrNotInitialized
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// EncryptVector cifra un vector numérico y retorna el blob base64 para
// guardar. Nonce aleatorio por llamada.
func EncryptVector(nums []float64) (string, error) {
	aead, err := gcm()
	if err != nil {
		return "", err
	}
	plaintext, err := json.Marshal(nums)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, nonceSizeGCM)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	// Seal devuelve ct||tag; el formato guardado es nonce|tag|ct.
	sealed := aead.Seal(nil, nonce, plaintext, nil)
	ct := sealed[:len(sealed)-tagSizeGCM]
	tag := sealed[len(sealed)-tagSizeGCM:]

	blob := make([]byte, 0, nonceSizeGCM+tagSizeGCM+len(ct))
	blob = append(blob, nonce...)
	blob = append(blob, tag...)
	blob = append(blob, ct...)
	return base64.StdEncoding.EncodeToString(blob), nil
}

// DecryptVector descifra un blob guardado. Cualquier fallo de autenticación
// retorna ErrDecryptionFailed, nunca datos corruptos.
func DecryptVector(blobB64 string) ([]float64, error) {
	aead, err := gcm()
	if err != nil {
		return nil, err
	}
	blob, err := base64.StdEncoding.DecodeString(blobB64)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	if len(blob) < nonceSizeGCM+tagSizeGCM {
		return nil, ErrDecryptionFailed
	}
	nonce := blob[:nonceSizeGCM]
	tag := blob[nonceSizeGCM : nonceSizeGCM+tagSizeGCM]
	ct := blob[nonceSizeGCM+tagSizeGCM:]

	sealed := make([]byte, 0, len(ct)+tagSizeGCM)
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	var nums []float64
	if err := json.Unmarshal(plaintext, &nums); err != nil {
		return nil, ErrDecryptionFailed
	}
	return nums, nil
}

// UnsafeResetForTests limpia la clave cargada. Solo para tests.
func UnsafeResetForTests() {
	mu.Lock()
	masterKey = nil
	mu.Unlock()
}
