package auth

import "strings"

// Permission strings are dot-segmented scope paths, e.g. "admin.keys.write".
// A held permission ending in ".*" covers every scope under its prefix, and
// a bare "*" covers everything. Comparison is byte-exact; there is no
// case folding or partial segment matching.

// Matches reports whether the required scope is covered by any of the held
// permissions. It is a pure function: the empty held set never matches, and
// order and duplicates in held are irrelevant.
func Matches(held []string, required string) bool {
	for _, p := range held {
		if p == required {
			return true
		}
		if p == "*" {
			return true
		}
		// "admin.*" covers "admin.reports.read" but not "admin" itself:
		// the required scope must extend past the separator.
		if strings.HasSuffix(p, ".*") && strings.HasPrefix(required, p[:len(p)-1]) {
			return true
		}
	}
	return false
}

// Authorized is the authorization policy applied to requests. It extends
// Matches with one explicit cross-namespace rule: a held "admin.<rest>"
// scope also grants the corresponding "public.<rest>" scope, so keys minted
// for administrative use can call the public surface without carrying both
// namespaces. The rule lives here, not in Matches, so the matcher itself
// stays a pure prefix test.
func Authorized(held []string, required string) bool {
	if Matches(held, required) {
		return true
	}
	if rest, ok := strings.CutPrefix(required, "public."); ok {
		return Matches(held, "admin."+rest)
	}
	return false
}
