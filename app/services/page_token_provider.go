// Package services provides external service integrations and technical concerns like messaging transport and tokens
package services

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/pagepulse/pagepulse/models"
)

// PageTokenProvider yields a usable platform access token for a page.
// Tokens are stored encrypted at rest; only this provider sees plaintext.
type PageTokenProvider interface {
	AccessToken(page *models.Page) (string, error)
}

// SealedTokenProvider decrypts AES-GCM sealed page tokens
type SealedTokenProvider struct {
	key []byte
}

// NewSealedTokenProvider creates a provider from a 16, 24 or 32 byte key
func NewSealedTokenProvider(key []byte) (*SealedTokenProvider, error) {
	if len(key) != 16 && len(key) != 24 && len(key) != 32 {
		return nil, errors.New("invalid page token key length")
	}
	return &SealedTokenProvider{key: key}, nil
}

// AccessToken decrypts the page's sealed access token
func (p *SealedTokenProvider) AccessToken(page *models.Page) (string, error) {
	data, err := base64.StdEncoding.DecodeString(page.AccessToken)
	if err != nil {
		return "", fmt.Errorf("failed to decode sealed page token: %w", err)
	}

	block, err := aes.NewCipher(p.key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("sealed page token too short")
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to unseal page token: %w", err)
	}

	return string(plaintext), nil
}

// Seal encrypts a plaintext access token for storage
func (p *SealedTokenProvider) Seal(token string) (string, error) {
	block, err := aes.NewCipher(p.key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nonce, nonce, []byte(token), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// PlainTokenProvider returns stored tokens as-is. Used in tests and local
// development.
type PlainTokenProvider struct{}

// AccessToken returns the page's stored token unchanged
func (PlainTokenProvider) AccessToken(page *models.Page) (string, error) {
	return page.AccessToken, nil
}
