package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                            "/",
		"/metrics":                    "/metrics",
		"/v1/users/abc":               "/v1/users/:id",
		"/v1/users/abc/roles":         "/v1/users/:id/roles",
		"/v1/users/abc/extra":         "/v1/users/abc/extra",
		"/v1/auth/login":              "/v1/auth/login",
		"/v1/auth/session?verbose=1":  "/v1/auth/session",
		"/v1/roles":                   "/v1/roles",
		"/v1/roles/abc/permissions":   "/v1/roles/:id/permissions",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
