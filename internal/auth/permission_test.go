package auth

import "testing"

func TestMatches(t *testing.T) {
	tests := []struct {
		name     string
		held     []string
		required string
		want     bool
	}{
		{"exact match", []string{"public.watch.read"}, "public.watch.read", true},
		{"exact match among several", []string{"public.comments.write", "public.watch.read"}, "public.watch.read", true},
		{"no match", []string{"public.watch.read"}, "public.watch.write", false},
		{"empty held", nil, "public.watch.read", false},
		{"empty held slice", []string{}, "public.watch.read", false},
		{"global wildcard", []string{"*"}, "admin.keys.write", true},
		{"namespace wildcard covers child", []string{"admin.*"}, "admin.keys.write", true},
		{"namespace wildcard covers deep child", []string{"admin.*"}, "admin.keys.write.all", true},
		{"namespace wildcard does not cover bare namespace", []string{"admin.*"}, "admin", false},
		{"namespace wildcard does not cover sibling", []string{"admin.*"}, "public.watch.read", false},
		{"wildcard must be trailing", []string{"admin.*.write"}, "admin.keys.write", false},
		{"no partial segment match", []string{"admin.key"}, "admin.keys", false},
		{"prefix without wildcard is not a wildcard", []string{"admin"}, "admin.keys.write", false},
		{"case sensitive", []string{"Admin.*"}, "admin.keys.write", false},
		{"duplicates are harmless", []string{"a.b", "a.b"}, "a.b", true},
		{"deep wildcard", []string{"a.b.*"}, "a.b.c.d", true},
		{"deep wildcard wrong branch", []string{"a.b.*"}, "a.c.d", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Matches(tt.held, tt.required); got != tt.want {
				t.Errorf("Matches(%v, %q) = %v, want %v", tt.held, tt.required, got, tt.want)
			}
		})
	}
}

func TestAuthorized(t *testing.T) {
	tests := []struct {
		name     string
		held     []string
		required string
		want     bool
	}{
		{"direct match", []string{"public.watch.read"}, "public.watch.read", true},
		{"admin scope grants public twin", []string{"admin.watch.read"}, "public.watch.read", true},
		{"admin wildcard grants public surface", []string{"admin.*"}, "public.comments.write", true},
		{"public scope does not grant admin twin", []string{"public.keys.write"}, "admin.keys.write", false},
		{"unrelated admin scope does not grant public", []string{"admin.watch.read"}, "public.comments.read", false},
		{"no credentials", nil, "public.watch.read", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Authorized(tt.held, tt.required); got != tt.want {
				t.Errorf("Authorized(%v, %q) = %v, want %v", tt.held, tt.required, got, tt.want)
			}
		})
	}
}
