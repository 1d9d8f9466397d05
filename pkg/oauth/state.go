package oauth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"github.com/beam-cloud/salesmap/pkg/common"
	"github.com/beam-cloud/salesmap/pkg/types"
)

const stateIssuer = "salesmap"

// StateClaims carries the user's template choice through the consent redirect
type StateClaims struct {
	Template *types.Template `json:"tpl,omitempty"`
	jwt.RegisteredClaims
}

// StateCodec signs and verifies the OAuth state parameter
type StateCodec struct {
	secret []byte
	ttl    time.Duration
}

// NewStateCodec creates a codec. An empty secret generates a random key, so
// states issued before a restart will no longer verify.
func NewStateCodec(secret string, ttl time.Duration) *StateCodec {
	if secret == "" {
		b := make([]byte, 32)
		rand.Read(b)
		secret = hex.EncodeToString(b)
	}
	if ttl <= 0 {
		ttl = types.DefaultStateTTL
	}
	return &StateCodec{secret: []byte(secret), ttl: ttl}
}

// Encode produces a signed state value. A nil template is allowed.
func (s *StateCodec) Encode(tmpl *types.Template) (string, error) {
	now := time.Now()
	claims := StateClaims{
		Template: tmpl,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        common.GenerateRandomID(16),
			Issuer:    stateIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Decode verifies a state value and returns the template it carries. A
// template that fails validation is dropped rather than failing the decode.
func (s *StateCodec) Decode(state string) (*types.Template, error) {
	token, err := jwt.ParseWithClaims(state, &StateClaims{}, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(stateIssuer),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidState, err)
	}

	claims, ok := token.Claims.(*StateClaims)
	if !ok || !token.Valid {
		return nil, types.ErrInvalidState
	}

	if claims.Template == nil {
		return nil, nil
	}
	if err := claims.Template.Validate(); err != nil {
		log.Debug().Err(err).Msg("discarding invalid template from oauth state")
		return nil, nil
	}
	return claims.Template, nil
}
