package tokenizer

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"

	"github.com/golang-jwt/jwt/v5"
	"github.com/layer-3/certify/core"
	"github.com/layer-3/certify/ports"
	"github.com/pkg/errors"
)

const AudienceProof = "certify:proof"

// JWTTokenizer implements the ProofTokenizer interface using ES256 JWTs
type JWTTokenizer struct {
	signKey *ecdsa.PrivateKey
}

var _ ports.ProofTokenizer = (*JWTTokenizer)(nil)

// NewJWTTokenizer creates a new JWT tokenizer
func NewJWTTokenizer(signKey *ecdsa.PrivateKey) *JWTTokenizer {
	return &JWTTokenizer{signKey: signKey}
}

// NewJWTTokenizerFromPEM loads a P-256 private key in PEM form.
func NewJWTTokenizerFromPEM(pemKey []byte) (*JWTTokenizer, error) {
	key, err := jwt.ParseECPrivateKeyFromPEM(pemKey)
	if err != nil {
		return nil, errors.Wrapf(core.ErrInvalidArgument, "proof signing key: %v", err)
	}
	return NewJWTTokenizer(key), nil
}

// NewEphemeralJWTTokenizer signs with a fresh key. Tokens do not survive a
// restart.
func NewEphemeralJWTTokenizer() (*JWTTokenizer, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate proof signing key")
	}
	return NewJWTTokenizer(key), nil
}

// ProofToToken converts proof claims to a signed JWT
func (j *JWTTokenizer) ProofToToken(proof *ports.ProofClaims) (string, error) {
	claims := ProofClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   proof.Address,
			ID:        proof.ID,
			ExpiresAt: jwt.NewNumericDate(proof.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(proof.IssuedAt),
			Audience:  jwt.ClaimStrings{AudienceProof},
		},
		TokenID:  proof.TokenID,
		Contract: proof.Contract,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)

	signedToken, err := token.SignedString(j.signKey)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign proof")
	}

	return signedToken, nil
}

// TokenToProof verifies a JWT and returns its proof claims
func (j *JWTTokenizer) TokenToProof(tokenStr string) (*ports.ProofClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &ProofClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, errors.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return &j.signKey.PublicKey, nil
	}, jwt.WithAudience(AudienceProof), jwt.WithExpirationRequired())
	if err != nil {
		return nil, errors.Wrap(core.ErrInvalidProof, err.Error())
	}

	if !token.Valid {
		return nil, core.ErrInvalidProof
	}

	claims, ok := token.Claims.(*ProofClaims)
	if !ok {
		return nil, errors.Wrap(core.ErrInvalidProof, "invalid claims type")
	}
	if claims.TokenID == 0 || claims.Subject == "" {
		return nil, errors.Wrap(core.ErrInvalidProof, "missing certificate claims")
	}

	proof := &ports.ProofClaims{
		ID:        claims.ID,
		Address:   claims.Subject,
		TokenID:   claims.TokenID,
		Contract:  claims.Contract,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		proof.IssuedAt = claims.IssuedAt.Time
	}

	return proof, nil
}
