package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                        "/",
		"/metrics":                "/metrics",
		"/v1/users/abc":           "/v1/users/:id",
		"/v1/users/abc/status":    "/v1/users/:id/status",
		"/v1/roles/abc":           "/v1/roles/:id",
		"/v1/roles/r1/permissions": "/v1/roles/:id/permissions",
		"/v1/auth/login":          "/v1/auth/login",
		"/v1/auth/me?verbose=1":   "/v1/auth/me",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
