package auth

import (
	"testing"
	"time"
)

func TestIssueAndValidateRoundTrip(t *testing.T) {
	mgr := NewManager("test-secret", time.Hour)
	token, expires, err := mgr.Issue("u-1", "org-1", "member")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !expires.After(time.Now()) {
		t.Fatal("expiry must be in the future")
	}

	ctx, err := mgr.Validate(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if ctx.UserID != "u-1" || ctx.OrgID != "org-1" || ctx.Role != "member" {
		t.Fatalf("unexpected context: %+v", ctx)
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	token, _, err := NewManager("secret-a", time.Hour).Issue("u-1", "", "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := NewManager("secret-b", time.Hour).Validate(token); err == nil {
		t.Fatal("expected validation failure with wrong secret")
	}
}

func TestValidateRejectsExpired(t *testing.T) {
	mgr := NewManager("test-secret", time.Hour)
	// NewManager replaces non-positive expiries with the default, so set the
	// field directly to issue a token that is already past its expiry.
	mgr.expiry = -time.Minute
	token, _, err := mgr.Issue("u-1", "", "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := mgr.Validate(token); err != ErrTokenExpired {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestFromBearerHeader(t *testing.T) {
	if tok, ok := FromBearerHeader("Bearer abc.def.ghi"); !ok || tok != "abc.def.ghi" {
		t.Fatalf("got (%q, %v)", tok, ok)
	}
	if _, ok := FromBearerHeader("Basic dXNlcg=="); ok {
		t.Fatal("basic auth must not parse as bearer")
	}
	if _, ok := FromBearerHeader(""); ok {
		t.Fatal("empty header must not parse")
	}
}

func TestIsAdmin(t *testing.T) {
	if !(Context{Role: "Admin"}).IsAdmin() {
		t.Fatal("role comparison should be case-insensitive")
	}
	if (Context{Role: "member"}).IsAdmin() {
		t.Fatal("member is not admin")
	}
}
