package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"fmt"
)

// Cipher encrypts and decrypts tenant secrets at rest using AES-256-CBC.
// Key and IV are loaded once at process start; construction fails fast on
// bad key material so a misconfigured deploy never serves traffic.
type Cipher struct {
	block cipher.Block
	iv    []byte
}

// NewCipher creates a cipher from a 32-byte key and a 16-byte IV.
func NewCipher(key, iv []byte) (*Cipher, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("encryption IV must be %d bytes, got %d", aes.BlockSize, len(iv))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}

	return &Cipher{block: block, iv: iv}, nil
}

// NewCipherFromHex builds a cipher from hex-encoded key material, the form
// it takes in environment configuration.
func NewCipherFromHex(keyHex, ivHex string) (*Cipher, error) {
	if keyHex == "" || ivHex == "" {
		return nil, fmt.Errorf("encryption key material not configured")
	}

	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key encoding: %w", err)
	}
	iv, err := hex.DecodeString(ivHex)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption IV encoding: %w", err)
	}

	return NewCipher(key, iv)
}

// Encrypt returns the hex-encoded AES-256-CBC ciphertext of plaintext.
// Empty input is rejected.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", fmt.Errorf("cannot encrypt empty input")
	}

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	out := make([]byte, len(padded))

	enc := cipher.NewCBCEncrypter(c.block, c.iv)
	enc.CryptBlocks(out, padded)

	return hex.EncodeToString(out), nil
}

// Decrypt reverses Encrypt. Empty input is rejected.
func (c *Cipher) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", fmt.Errorf("cannot decrypt empty input")
	}

	raw, err := hex.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("invalid ciphertext encoding: %w", err)
	}
	if len(raw) == 0 || len(raw)%aes.BlockSize != 0 {
		return "", fmt.Errorf("ciphertext length %d is not a multiple of the block size", len(raw))
	}

	out := make([]byte, len(raw))
	dec := cipher.NewCBCDecrypter(c.block, c.iv)
	dec.CryptBlocks(out, raw)

	unpadded, err := pkcs7Unpad(out, aes.BlockSize)
	if err != nil {
		return "", err
	}

	return string(unpadded), nil
}

// SelfTest round-trips a probe value. Used at startup and by the health
// endpoint for operational verification.
func (c *Cipher) SelfTest() error {
	const probe = "chatcart-crypto-selftest"

	ct, err := c.Encrypt(probe)
	if err != nil {
		return fmt.Errorf("self-test encrypt failed: %w", err)
	}

	pt, err := c.Decrypt(ct)
	if err != nil {
		return fmt.Errorf("self-test decrypt failed: %w", err)
	}
	if pt != probe {
		return fmt.Errorf("self-test round-trip mismatch")
	}

	return nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	pad := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(pad)}, pad)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty padded data")
	}

	pad := int(data[len(data)-1])
	if pad == 0 || pad > blockSize || pad > len(data) {
		return nil, fmt.Errorf("invalid padding")
	}
	for _, b := range data[len(data)-pad:] {
		if int(b) != pad {
			return nil, fmt.Errorf("invalid padding")
		}
	}

	return data[:len(data)-pad], nil
}
