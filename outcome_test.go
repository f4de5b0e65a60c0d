package otpflow

import (
	"testing"
	"time"
)

func TestRedirectURL(t *testing.T) {
	cases := []struct {
		name     string
		redirect Redirect
		want     string
	}{
		{"entry", Redirect{Route: RouteEntry}, "/auth"},
		{"entry denied", redirectEntryDenied(), "/auth?error=invite-only"},
		{"verify", redirectVerify("a@test.com"), "/auth/verify?email=a%40test.com"},
		{"verify resent", Redirect{Route: RouteVerify, Email: "a@test.com", Resent: true}, "/auth/verify?email=a%40test.com&resent=true"},
		{"account", redirectAccount(), "/account"},
		{"failure", redirectFailure(), "/error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.redirect.URL(); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestResentActiveWindow(t *testing.T) {
	now := time.Now()
	redirect := Redirect{
		Route:       RouteVerify,
		Resent:      true,
		ResentUntil: now.Add(3 * time.Second).Unix(),
	}

	if !redirect.ResentActive(now) {
		t.Fatal("expected acknowledgment active inside the window")
	}
	if redirect.ResentActive(now.Add(5 * time.Second)) {
		t.Fatal("expected acknowledgment inactive after the window")
	}

	if (Redirect{Route: RouteVerify}).ResentActive(now) {
		t.Fatal("expected no acknowledgment without Resent")
	}
}
