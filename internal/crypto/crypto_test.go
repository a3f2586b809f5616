package crypto

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ruleforge/ruleforge/internal/models"
	"github.com/ruleforge/ruleforge/internal/policydoc"
)

func testKeys(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	priv := filepath.Join(dir, "private.key")
	pub := filepath.Join(dir, "public.key")
	if err := GenerateKeys(priv, pub); err != nil {
		t.Fatalf("GenerateKeys failed: %v", err)
	}
	return priv, pub
}

func testPolicy(t *testing.T) []byte {
	t.Helper()
	p := models.NewPolicy()
	p.Ensure(models.CollectionExe, models.EnforcementAuditOnly).Rules = []models.Rule{{
		ID:              "9f2b7e32-2b3c-4c62-a1aa-3f5a2b1c0d11",
		Name:            "Contoso (Publisher: CONTOSO)",
		Type:            models.RuleTypePublisher,
		Action:          models.ActionAllow,
		CollectionType:  models.CollectionExe,
		TargetPrincipal: models.DefaultPrincipal,
		Condition:       models.NewPublisherCondition("O=CONTOSO, L=REDMOND, C=US"),
	}}
	data, err := policydoc.Marshal(p)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	return data
}

func TestGenerateKeys_Permissions(t *testing.T) {
	priv, _ := testKeys(t)
	info, err := os.Stat(priv)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		t.Errorf("private key is readable by others: %v", perm)
	}
}

func TestSignVerify_RoundTrip(t *testing.T) {
	priv, pub := testKeys(t)
	doc := testPolicy(t)

	sig, err := SignPolicy(doc, priv)
	if err != nil {
		t.Fatalf("SignPolicy failed: %v", err)
	}
	if err := VerifyPolicy(doc, sig, pub); err != nil {
		t.Errorf("VerifyPolicy failed: %v", err)
	}
}

func TestVerify_IgnoresFormatting(t *testing.T) {
	priv, pub := testKeys(t)
	doc := testPolicy(t)
	sig, _ := SignPolicy(doc, priv)

	reformatted := bytes.ReplaceAll(doc, []byte("\n  "), []byte("\n\t\t"))
	if err := VerifyPolicy(reformatted, sig, pub); err != nil {
		t.Errorf("whitespace change should not break the signature: %v", err)
	}
}

func TestVerify_DetectsTampering(t *testing.T) {
	priv, pub := testKeys(t)
	doc := testPolicy(t)
	sig, _ := SignPolicy(doc, priv)

	tampered := bytes.Replace(doc, []byte(`Action="Allow"`), []byte(`Action="Deny"`), 1)
	err := VerifyPolicy(tampered, sig, pub)
	if !errors.Is(err, ErrDigestMismatch) {
		t.Errorf("expected ErrDigestMismatch, got %v", err)
	}
}

func TestVerify_WrongKey(t *testing.T) {
	priv, _ := testKeys(t)
	_, otherPub := testKeys(t)
	doc := testPolicy(t)
	sig, _ := SignPolicy(doc, priv)

	if err := VerifyPolicy(doc, sig, otherPub); !errors.Is(err, ErrBadSignature) {
		t.Errorf("expected ErrBadSignature, got %v", err)
	}
}

func TestSign_RejectsPublicKey(t *testing.T) {
	_, pub := testKeys(t)
	_, err := SignPolicy(testPolicy(t), pub)
	if err == nil || !strings.Contains(err.Error(), "invalid key type") {
		t.Errorf("expected key type error, got %v", err)
	}
}

func TestParseEnvelope(t *testing.T) {
	env := Envelope{
		Header:    Header{CanonVersion: CanonVersion, SigType: SigTypeEd25519, PolicyDigest: "sha256:00"},
		Signature: []byte{0xde, 0xad, 0xbe, 0xef},
	}
	encoded := env.Encode()
	if !strings.HasSuffix(string(encoded), "\ndeadbeef\n") {
		t.Errorf("unexpected encoding: %q", encoded)
	}

	got, err := ParseEnvelope(encoded)
	if err != nil {
		t.Fatalf("ParseEnvelope failed: %v", err)
	}
	if got.Header != env.Header || !bytes.Equal(got.Signature, env.Signature) {
		t.Errorf("round trip mismatch: %+v", got)
	}

	bad := []string{
		"deadbeef",
		`{"canon_version":"applocker-xml-v1","sig_type":"sigstore_bundle"}` + "\nabcd",
		`{"canon_version":"v0","sig_type":"ed25519"}` + "\nabcd",
		`{"canon_version":"applocker-xml-v1","sig_type":"ed25519"}` + "\nnot-hex",
	}
	for _, in := range bad {
		if _, err := ParseEnvelope([]byte(in)); err == nil {
			t.Errorf("ParseEnvelope(%q) should fail", in)
		}
	}
}
