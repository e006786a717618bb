package identity

import "strings"

// Principal is an authenticated identity acting within the system.
// It exists only while authenticated; sign-out destroys it.
type Principal struct {
	ID    string
	Label string
	Token string
}

// Valid reports whether the principal carries a usable identity and token.
func (p Principal) Valid() bool {
	return strings.TrimSpace(p.ID) != "" && strings.TrimSpace(p.Token) != ""
}
