package tokens

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// KindAgent marks tokens minted for the reserved automated participant.
const KindAgent = "agent"

// VideoGrant mirrors the room-service "video" claim. Publish/subscribe flags are
// pointers because the media server distinguishes "unset" from false.
type VideoGrant struct {
	RoomCreate     bool   `json:"roomCreate,omitempty"`
	RoomList       bool   `json:"roomList,omitempty"`
	RoomRecord     bool   `json:"roomRecord,omitempty"`
	RoomAdmin      bool   `json:"roomAdmin,omitempty"`
	RoomJoin       bool   `json:"roomJoin,omitempty"`
	Room           string `json:"room,omitempty"`
	CanPublish     *bool  `json:"canPublish,omitempty"`
	CanSubscribe   *bool  `json:"canSubscribe,omitempty"`
	CanPublishData *bool  `json:"canPublishData,omitempty"`
	Agent          bool   `json:"agent,omitempty"`
}

type Claims struct {
	jwt.RegisteredClaims
	Name     string      `json:"name,omitempty"`
	Kind     string      `json:"kind,omitempty"`
	Video    *VideoGrant `json:"video,omitempty"`
	Metadata string      `json:"metadata,omitempty"`
}

func (c Claims) Identity() string {
	return c.Subject
}

// Signer mints and verifies HS256 tokens for one API key/secret pair. It holds no
// mutable state after construction.
type Signer struct {
	apiKey string
	secret []byte
	now    func() time.Time
}

func NewSigner(apiKey, apiSecret string) (*Signer, error) {
	apiKey = strings.TrimSpace(apiKey)
	apiSecret = strings.TrimSpace(apiSecret)
	if apiKey == "" || apiSecret == "" {
		return nil, errors.New("api key and secret are required")
	}
	return &Signer{apiKey: apiKey, secret: []byte(apiSecret), now: time.Now}, nil
}

func (s *Signer) APIKey() string {
	return s.apiKey
}

func (s *Signer) Sign(identity string, grant VideoGrant, kind string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", fmt.Errorf("token ttl must be > 0")
	}
	now := s.now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.apiKey,
			Subject:   identity,
			ID:        identity,
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Kind:  kind,
		Video: &grant,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies signature, issuer and validity window.
func (s *Signer) Parse(token string) (Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(
		strings.TrimSpace(token),
		&claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.apiKey),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("parse token: %w", err)
	}
	return claims, nil
}

func boolPtr(v bool) *bool {
	return &v
}
