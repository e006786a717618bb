package app

import (
	"errors"
	"fmt"

	"loom/cmd/internal/auth"
)

// ValidateSecurityConfig enforces Loom's token policy at startup.
//
// Fail-fast is intentional: running a gateway that silently accepts no tokens
// (or a key that never parses) should be caught at boot, not at the first
// handshake.
func ValidateSecurityConfig(cfg Config) error {
	if cfg.TokenPublicKeyHex == "" {
		if cfg.RequireTokenVerifier {
			return errors.New("security policy: LOOM_REQUIRE_TOKEN_VERIFIER=true but LOOM_TOKEN_PUBLIC_KEY is missing")
		}
		return nil
	}

	// A configured key must actually construct a verifier; a typo'd hex key
	// discovered here is an operator error, not a per-request condition.
	if _, err := auth.NewPasetoV4Verifier(auth.Config{
		PublicKeyHex: cfg.TokenPublicKeyHex,
		Issuer:       cfg.TokenIssuer,
		ClockSkew:    cfg.TokenSkew,
	}); err != nil {
		return fmt.Errorf("security policy: LOOM_TOKEN_PUBLIC_KEY is not a usable Ed25519 public key: %w", err)
	}

	return nil
}
