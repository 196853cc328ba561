// internal/auth/session.go
package auth

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrRoomMismatch is returned when a token was issued for a different room.
var ErrRoomMismatch = errors.New("token issued for another room")

// Claims binds a token to one player in one room.
type Claims struct {
	RoomID string `json:"room"`
	jwt.RegisteredClaims
}

// Signer issues and verifies player tokens with an ed25519 key pair.
type Signer struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
	ttl  time.Duration // 0 => no exp claim
	now  func() time.Time
}

// NewSigner generates a fresh key pair. Tokens die with the process.
func NewSigner(ttl time.Duration) (*Signer, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 key pair: %w", err)
	}
	return &Signer{priv: priv, pub: pub, ttl: ttl, now: time.Now}, nil
}

// Issue creates a signed token with sub = playerID and room = roomID.
func (s *Signer) Issue(playerID, roomID uuid.UUID) (string, error) {
	now := s.now()
	claims := Claims{
		RoomID: roomID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  playerID.String(),
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if s.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(s.ttl))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(s.priv)
}

// Verify checks a token and returns the player and room it names.
func (s *Signer) Verify(tokenString string) (playerID, roomID uuid.UUID, err error) {
	var claims Claims
	t, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.pub, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("jwt parse error: %w", err)
	}
	if !t.Valid {
		return uuid.Nil, uuid.Nil, errors.New("invalid token")
	}
	if playerID, err = uuid.Parse(claims.Subject); err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("invalid sub in jwt: %w", err)
	}
	if roomID, err = uuid.Parse(claims.RoomID); err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("invalid room in jwt: %w", err)
	}
	return playerID, roomID, nil
}

// VerifyFor checks that tokenString names exactly playerID in roomID.
func (s *Signer) VerifyFor(tokenString string, playerID, roomID uuid.UUID) error {
	pid, rid, err := s.Verify(tokenString)
	if err != nil {
		return err
	}
	if pid != playerID {
		return errors.New("token issued for another player")
	}
	if rid != roomID {
		return ErrRoomMismatch
	}
	return nil
}
