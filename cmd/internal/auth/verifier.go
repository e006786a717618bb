// Package auth verifies bearer access tokens presented at the gateway.
//
// Loom never issues production tokens; issuance belongs to the external
// identity provider. This package only checks PASETO v4.public tokens against
// the provider's published public key.
package auth

import (
	"errors"
	"strings"
	"time"

	paseto "aidanwoods.dev/go-paseto"
)

var (
	// ErrInvalidToken covers malformed, unsigned, expired, or foreign tokens.
	ErrInvalidToken = errors.New("invalid access token")
	// ErrConfig reports an unusable verifier configuration.
	ErrConfig = errors.New("invalid verifier configuration")
)

// Claims is the minimal identity envelope extracted from a verified token.
type Claims struct {
	UserID    string
	Label     string
	ExpiresAt time.Time
	IssuedAt  time.Time
	Issuer    string
}

// Verifier checks bearer tokens and returns their claims.
type Verifier interface {
	Verify(token string, now time.Time) (Claims, error)
}

// Config parameterizes the PASETO verifier.
type Config struct {
	// PublicKeyHex is the identity provider's Ed25519 public key (hex).
	PublicKeyHex string
	// Issuer must match the token's "iss" claim when non-empty.
	Issuer string
	// ClockSkew is tolerated in both directions during validation.
	ClockSkew time.Duration
}

type pasetoV4Verifier struct {
	issuer    string
	clockSkew time.Duration
	public    paseto.V4AsymmetricPublicKey
}

// NewPasetoV4Verifier builds a Verifier for PASETO v4.public tokens.
func NewPasetoV4Verifier(cfg Config) (Verifier, error) {
	key := strings.TrimSpace(cfg.PublicKeyHex)
	if key == "" {
		return nil, ErrConfig
	}
	public, err := paseto.NewV4AsymmetricPublicKeyFromHex(key)
	if err != nil {
		return nil, ErrConfig
	}

	skew := cfg.ClockSkew
	if skew < 0 {
		skew = 0
	}

	return &pasetoV4Verifier{
		issuer:    strings.TrimSpace(cfg.Issuer),
		clockSkew: skew,
		public:    public,
	}, nil
}

// Verify parses and validates a token at the given time.
func (v *pasetoV4Verifier) Verify(token string, now time.Time) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, ErrInvalidToken
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	parser := paseto.MakeParser([]paseto.Rule{
		paseto.ValidAt(now.Add(-v.clockSkew)),
	})
	if v.issuer != "" {
		parser.AddRule(paseto.IssuedBy(v.issuer))
	}

	tok, err := parser.ParseV4Public(v.public, token, nil)
	if err != nil {
		// Retry at the late edge of the skew window before rejecting.
		lateParser := paseto.MakeParser([]paseto.Rule{
			paseto.ValidAt(now.Add(v.clockSkew)),
		})
		if v.issuer != "" {
			lateParser.AddRule(paseto.IssuedBy(v.issuer))
		}
		tok, err = lateParser.ParseV4Public(v.public, token, nil)
		if err != nil {
			return Claims{}, ErrInvalidToken
		}
	}

	sub, err := tok.GetSubject()
	if err != nil || strings.TrimSpace(sub) == "" {
		return Claims{}, ErrInvalidToken
	}

	out := Claims{UserID: sub}
	if iss, err := tok.GetIssuer(); err == nil {
		out.Issuer = iss
	}
	if exp, err := tok.GetExpiration(); err == nil {
		out.ExpiresAt = exp
	}
	if iat, err := tok.GetIssuedAt(); err == nil {
		out.IssuedAt = iat
	}
	if label, err := tok.GetString("label"); err == nil {
		out.Label = label
	}
	return out, nil
}
