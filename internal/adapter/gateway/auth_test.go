package gateway

import (
	"errors"
	"testing"

	"relay-ai/internal/domain"
	"relay-ai/internal/infra/config"
)

func TestStaticTokenAuthValid(t *testing.T) {
	auth := NewStaticTokenAuth([]config.GatewayToken{
		{Token: "secret-123", Name: "slack-shim"},
		{Token: "secret-456", Name: "cli"},
	})

	info, err := auth.Authenticate("secret-456")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if info.Name != "cli" {
		t.Errorf("Name = %q", info.Name)
	}
}

func TestStaticTokenAuthInvalid(t *testing.T) {
	auth := NewStaticTokenAuth([]config.GatewayToken{
		{Token: "secret-123", Name: "slack-shim"},
	})

	_, err := auth.Authenticate("wrong-token")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, domain.ErrGatewayAuth) {
		t.Errorf("err = %v, want ErrGatewayAuth", err)
	}
}

func TestStaticTokenAuthEmpty(t *testing.T) {
	auth := NewStaticTokenAuth(nil)

	if _, err := auth.Authenticate("anything"); err == nil {
		t.Fatal("expected error for empty token list")
	}
}
