// Package snapshot persists the account registry between process runs.
//
// The payload is versioned JSON sealed in an encrypted envelope; the
// daemon restores it at boot and rewrites it whenever the registry
// revision advances.
package snapshot

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	envelopeVersion = 1
	saltSize        = 16
	filePrefix      = "LPENC1\n"

	kdfTime     = 2
	kdfMemoryKB = 64 * 1024
	kdfThreads  = 1

	// Ceilings for stored KDF parameters, so a corrupted envelope cannot
	// turn key derivation into a memory or CPU bomb at boot.
	maxKDFTime     = 16
	maxKDFMemoryKB = 1024 * 1024
	maxKDFThreads  = 8
)

var (
	ErrAuthFailed = errors.New("snapshot: authentication failed")
	ErrInvalid    = errors.New("snapshot: envelope is invalid")
)

type envelope struct {
	Version     uint32 `json:"version"`
	KDF         string `json:"kdf"`
	KDFTime     uint32 `json:"kdf_time"`
	KDFMemoryKB uint32 `json:"kdf_memory_kb"`
	KDFThreads  uint8  `json:"kdf_threads"`
	Salt        []byte `json:"salt"`
	Nonce       []byte `json:"nonce"`
	Ciphertext  []byte `json:"ciphertext"`
}

func seal(secret string, plaintext []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	key := deriveKey(secret, salt, kdfTime, kdfMemoryKB, kdfThreads)
	defer zeroBytes(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	env := envelope{
		Version:     envelopeVersion,
		KDF:         "argon2id",
		KDFTime:     kdfTime,
		KDFMemoryKB: kdfMemoryKB,
		KDFThreads:  kdfThreads,
		Salt:        salt,
		Nonce:       nonce,
		Ciphertext:  aead.Seal(nil, nonce, plaintext, nil),
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	return append([]byte(filePrefix), raw...), nil
}

func open(secret string, data []byte) ([]byte, error) {
	if !strings.HasPrefix(string(data), filePrefix) {
		return nil, ErrInvalid
	}
	var env envelope
	if err := json.Unmarshal(data[len(filePrefix):], &env); err != nil {
		return nil, ErrInvalid
	}
	if env.Version != envelopeVersion || env.KDF != "argon2id" {
		return nil, ErrInvalid
	}
	// Field lengths come from file input; aead.Open panics on a wrong
	// nonce length, so reject malformed envelopes before touching it.
	if len(env.Nonce) != chacha20poly1305.NonceSizeX || len(env.Salt) != saltSize {
		return nil, ErrInvalid
	}
	if env.KDFTime == 0 || env.KDFTime > maxKDFTime ||
		env.KDFMemoryKB == 0 || env.KDFMemoryKB > maxKDFMemoryKB ||
		env.KDFThreads == 0 || env.KDFThreads > maxKDFThreads {
		return nil, ErrInvalid
	}
	key := deriveKey(secret, env.Salt, env.KDFTime, env.KDFMemoryKB, env.KDFThreads)
	defer zeroBytes(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, env.Nonce, env.Ciphertext, nil)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return plaintext, nil
}

// deriveKey stretches the secret with the envelope's stored parameters,
// so files sealed under older cost settings stay readable.
func deriveKey(secret string, salt []byte, time, memoryKB uint32, threads uint8) []byte {
	return argon2.IDKey([]byte(secret), salt, time, memoryKB, threads, chacha20poly1305.KeySize)
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
