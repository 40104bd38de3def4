package config

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode"
)

// MinPreviewSecretLength is the shortest link signing key accepted in
// production.
const MinPreviewSecretLength = 32

var weakSecrets = []string{
	"secret",
	"changeme",
	"password",
	"example",
	"default",
	"placeholder",
	"replace-me",
	"preview",
}

// ValidatePreviewSecret enforces a strong link signing key.
func ValidatePreviewSecret(secret string) error {
	if len(secret) < MinPreviewSecretLength {
		return fmt.Errorf("must be at least %d characters", MinPreviewSecretLength)
	}

	lower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if strings.Contains(lower, weak) {
			return fmt.Errorf("contains weak/placeholder value %q", weak)
		}
	}

	allAlpha, allDigit := true, true
	for _, c := range secret {
		if !unicode.IsLetter(c) {
			allAlpha = false
		}
		if !unicode.IsDigit(c) {
			allDigit = false
		}
	}
	if allAlpha {
		return errors.New("must contain non-alphabetic characters")
	}
	if allDigit {
		return errors.New("must contain non-numeric characters")
	}

	if entropy := shannonEntropy(secret); entropy < 3.0 {
		return fmt.Errorf("entropy too low (%.1f bits/char, need >= 3.0)", entropy)
	}
	if hasRepeatingPattern(secret) {
		return errors.New("appears to contain a repeating pattern")
	}
	return nil
}

// validateSecrets checks the preview signing keys. Production requires a
// configured key so links survive restarts and work across instances.
func (c *Config) validateSecrets() error {
	if !c.IsProduction() {
		return nil
	}
	if c.Preview.Secret == "" {
		return errors.New("PREVIEW_SECRET is required in production")
	}
	if err := ValidatePreviewSecret(c.Preview.Secret); err != nil {
		return fmt.Errorf("PREVIEW_SECRET: %w", err)
	}
	if c.Preview.PreviousSecret != "" {
		if err := ValidatePreviewSecret(c.Preview.PreviousSecret); err != nil {
			return fmt.Errorf("PREVIEW_SECRET_PREVIOUS: %w", err)
		}
	}
	return nil
}

// shannonEntropy returns the entropy of s in bits per character.
func shannonEntropy(s string) float64 {
	if s == "" {
		return 0
	}
	freq := make(map[rune]float64)
	for _, c := range s {
		freq[c]++
	}
	length := float64(len([]rune(s)))
	entropy := 0.0
	for _, count := range freq {
		p := count / length
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// hasRepeatingPattern detects strings made of one repeated unit ("abcabc").
func hasRepeatingPattern(s string) bool {
	n := len(s)
	if n < 6 {
		return false
	}
	for patLen := 1; patLen <= n/2; patLen++ {
		repeat := true
		for i := patLen; i < n; i++ {
			if s[i] != s[i%patLen] {
				repeat = false
				break
			}
		}
		if repeat {
			return true
		}
	}
	return false
}

// GenerateSecureSecret returns a random URL-safe secret of length random
// bytes.
func GenerateSecureSecret(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
