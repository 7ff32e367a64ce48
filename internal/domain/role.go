package domain

import "strings"

// Role is the permission tier resolved from a caller's email.
type Role string

const (
	RoleRegular  Role = "regular"
	RoleSecurity Role = "security"
	RoleAdmin    Role = "admin"
)

// IsStaff reports whether the role may moderate reports and review claims.
func (r Role) IsStaff() bool {
	return r == RoleSecurity || r == RoleAdmin
}

// ResolveRole maps an email to a permission tier. The admin address wins
// outright; otherwise an email whose local part or domain carries "security"
// as a whole token resolves to RoleSecurity. Pure and deterministic so that
// authorization decisions are reproducible across retries.
func ResolveRole(email, adminEmail string) Role {
	e := strings.ToLower(strings.TrimSpace(email))
	if adminEmail != "" && e == strings.ToLower(strings.TrimSpace(adminEmail)) {
		return RoleAdmin
	}
	local, dom, ok := strings.Cut(e, "@")
	if !ok {
		return RoleRegular
	}
	if containsToken(local, "security") || containsToken(dom, "security") {
		return RoleSecurity
	}
	return RoleRegular
}

// containsToken reports whether s contains word as a whole token, with tokens
// delimited by dots, hyphens, underscores and plus signs. "security.officer"
// matches; "securemail" does not.
func containsToken(s, word string) bool {
	for _, tok := range strings.FieldsFunc(s, func(r rune) bool {
		return r == '.' || r == '-' || r == '_' || r == '+'
	}) {
		if tok == word {
			return true
		}
	}
	return false
}
