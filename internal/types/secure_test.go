package types

import (
	"encoding/json"
	"fmt"
	"testing"
)

func TestSecretStringRedaction(t *testing.T) {
	secret := SecretString("sk-very-secret")

	if got := fmt.Sprintf("%s", secret); got != "***REDACTED***" {
		t.Errorf("formatted secret = %q", got)
	}
	if got := fmt.Sprintf("%v", secret); got != "***REDACTED***" {
		t.Errorf("formatted secret = %q", got)
	}

	raw, err := json.Marshal(struct {
		Key SecretString `json:"key"`
	}{Key: secret})
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != `{"key":"***REDACTED***"}` {
		t.Errorf("marshalled secret = %s", raw)
	}

	if secret.Unmask() != "sk-very-secret" {
		t.Error("Unmask must return the raw value")
	}
}
