package preview

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidLink is returned for tokens that fail verification.
	ErrInvalidLink = errors.New("preview: invalid link")
	// ErrLinkExpired is returned for tokens past their expiry.
	ErrLinkExpired = errors.New("preview: link expired")
)

// LinkClaims are carried by a preview link token. Subject is the artifact ID,
// Audience the surface.
type LinkClaims struct {
	jwt.RegisteredClaims
}

// Signer issues and verifies preview link tokens.
type Signer struct {
	secret   []byte
	previous []byte
	ttl      time.Duration
	now      func() time.Time
}

// NewSigner creates a signer. An empty secret is replaced by a random one, so
// links do not survive a restart.
func NewSigner(secret string, ttl time.Duration) (*Signer, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate link secret: %w", err)
		}
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Signer{secret: key, ttl: ttl, now: time.Now}, nil
}

// AcceptPrevious makes Verify also accept tokens signed with secret, the key
// in use before a rotation. An empty secret disables the fallback.
func (s *Signer) AcceptPrevious(secret string) {
	s.previous = nil
	if secret != "" {
		s.previous = []byte(secret)
	}
}

// Sign returns a token addressing artifactID on surface.
func (s *Signer) Sign(artifactID, surface string) (string, error) {
	now := s.now()
	claims := LinkClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   artifactID,
			Audience:  jwt.ClaimStrings{surface},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign link: %w", err)
	}
	return token, nil
}

// Verify parses token and returns the artifact ID and surface it addresses.
func (s *Signer) Verify(token string) (artifactID, surface string, err error) {
	claims, err := s.parse(token, s.secret)
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) && s.previous != nil {
		claims, err = s.parse(token, s.previous)
	}
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", "", ErrLinkExpired
		}
		return "", "", ErrInvalidLink
	}
	if claims.Subject == "" || len(claims.Audience) != 1 {
		return "", "", ErrInvalidLink
	}
	return claims.Subject, claims.Audience[0], nil
}

func (s *Signer) parse(token string, key []byte) (*LinkClaims, error) {
	claims := &LinkClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return key, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, ErrInvalidLink
	}
	return claims, nil
}
