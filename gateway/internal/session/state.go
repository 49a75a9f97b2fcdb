package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// StateTTL bounds how long an OAuth round trip may take
const StateTTL = 10 * time.Minute

// ErrInvalidState is returned for a missing, forged, expired or mismatched state
var ErrInvalidState = errors.New("invalid oauth state")

// StateClaims binds a nonce to one provider
type StateClaims struct {
	Platform string `json:"platform"`
	jwt.RegisteredClaims
}

// StateSigner issues and verifies the OAuth state parameter: a random nonce
// inside an HS256 token. The nonce is also kept in the session, so a state
// minted for one browser cannot complete another's flow.
type StateSigner struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewStateSigner derives the signing key from the session secret
func NewStateSigner(secret []byte) *StateSigner {
	key := blake2b.Sum256(append([]byte("oauth-state:"), secret...))
	return &StateSigner{key: key[:], ttl: StateTTL, now: time.Now}
}

// Issue returns a signed state for platform and the nonce to keep in the session
func (s *StateSigner) Issue(platform string) (state, nonce string, err error) {
	nonce = uuid.NewString()
	now := s.now()
	claims := StateClaims{
		Platform: platform,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        nonce,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	state, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", "", fmt.Errorf("failed to sign state: %w", err)
	}
	return state, nonce, nil
}

// Verify checks the signature, expiry, platform binding and session nonce
func (s *StateSigner) Verify(state, platform, sessionNonce string) error {
	if state == "" || sessionNonce == "" {
		return ErrInvalidState
	}

	var claims StateClaims
	_, err := jwt.ParseWithClaims(state, &claims, func(*jwt.Token) (any, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	}

	if claims.Platform != platform {
		return fmt.Errorf("%w: issued for %q", ErrInvalidState, claims.Platform)
	}
	if claims.ID != sessionNonce {
		return fmt.Errorf("%w: nonce mismatch", ErrInvalidState)
	}
	return nil
}
