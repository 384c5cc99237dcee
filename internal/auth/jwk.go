package auth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"courtside.org/internal/ids"
)

// AlgorithmES256 is the only algorithm new pairs are created with. ECDSA
// over P-256 keeps signatures compact and avoids distributing a shared
// secret to verifiers.
const AlgorithmES256 = "ES256"

// jwk is the minimal JSON Web Key representation used to persist P-256
// pairs. The private half carries "d"; the public half omits it.
type jwk struct {
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
	D   string `json:"d,omitempty"`
}

const p256CoordLen = 32

// GenerateKeyPair creates a fresh P-256 pair with a sortable id. The pair
// is immutable: rotation creates a successor, it never rewrites a pair.
func GenerateKeyPair(createdAt time.Time) (*SigningKeyPair, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	public, err := json.Marshal(jwk{
		Kty: "EC",
		Crv: "P-256",
		X:   encodeCoord(key.PublicKey.X),
		Y:   encodeCoord(key.PublicKey.Y),
	})
	if err != nil {
		return nil, err
	}
	private, err := json.Marshal(jwk{
		Kty: "EC",
		Crv: "P-256",
		X:   encodeCoord(key.PublicKey.X),
		Y:   encodeCoord(key.PublicKey.Y),
		D:   encodeCoord(key.D),
	})
	if err != nil {
		return nil, err
	}
	return &SigningKeyPair{
		ID:         ids.New(),
		Algorithm:  AlgorithmES256,
		PublicJWK:  public,
		PrivateJWK: private,
		CreatedAt:  createdAt.UTC(),
	}, nil
}

// PublicKey decodes the pair's public JWK.
func (k *SigningKeyPair) PublicKey() (*ecdsa.PublicKey, error) {
	var parsed jwk
	if err := json.Unmarshal(k.PublicJWK, &parsed); err != nil {
		return nil, fmt.Errorf("parse public jwk: %w", err)
	}
	return publicKeyFromJWK(parsed)
}

// PrivateKey decodes the pair's private JWK.
func (k *SigningKeyPair) PrivateKey() (*ecdsa.PrivateKey, error) {
	var parsed jwk
	if err := json.Unmarshal(k.PrivateJWK, &parsed); err != nil {
		return nil, fmt.Errorf("parse private jwk: %w", err)
	}
	if parsed.D == "" {
		return nil, errors.New("jwk is missing the private scalar")
	}
	pub, err := publicKeyFromJWK(parsed)
	if err != nil {
		return nil, err
	}
	d, err := decodeCoord(parsed.D)
	if err != nil {
		return nil, err
	}
	return &ecdsa.PrivateKey{PublicKey: *pub, D: d}, nil
}

func publicKeyFromJWK(parsed jwk) (*ecdsa.PublicKey, error) {
	if parsed.Kty != "EC" || parsed.Crv != "P-256" {
		return nil, fmt.Errorf("unsupported jwk type %s/%s", parsed.Kty, parsed.Crv)
	}
	x, err := decodeCoord(parsed.X)
	if err != nil {
		return nil, err
	}
	y, err := decodeCoord(parsed.Y)
	if err != nil {
		return nil, err
	}
	pub := &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}
	if !pub.Curve.IsOnCurve(pub.X, pub.Y) {
		return nil, errors.New("jwk point is not on P-256")
	}
	return pub, nil
}

func encodeCoord(v *big.Int) string {
	return base64.RawURLEncoding.EncodeToString(v.FillBytes(make([]byte, p256CoordLen)))
}

func decodeCoord(s string) (*big.Int, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode jwk coordinate: %w", err)
	}
	if len(raw) != p256CoordLen {
		return nil, fmt.Errorf("jwk coordinate has %d bytes, want %d", len(raw), p256CoordLen)
	}
	return new(big.Int).SetBytes(raw), nil
}
