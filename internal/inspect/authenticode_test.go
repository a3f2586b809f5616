package inspect

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"math/big"
	"testing"
	"time"

	"go.mozilla.org/pkcs7"

	"github.com/ruleforge/ruleforge/internal/artifact"
)

type testCert struct {
	cert *x509.Certificate
	key  *rsa.PrivateKey
}

func newTestCert(t *testing.T, serial int64, subject pkix.Name, parent *testCert) *testCert {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(serial),
		Subject:      subject,
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	signerCert, signerKey := tmpl, key
	if parent == nil {
		tmpl.IsCA = true
		tmpl.BasicConstraintsValid = true
		tmpl.KeyUsage |= x509.KeyUsageCertSign
	} else {
		signerCert, signerKey = parent.cert, parent.key
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, signerCert, &key.PublicKey, signerKey)
	if err != nil {
		t.Fatalf("failed to create certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("failed to parse certificate: %v", err)
	}
	return &testCert{cert: cert, key: key}
}

// signedBlob signs with signer and orders the certificate set as
// [timestamp leaf, signer, root].
func signedBlob(t *testing.T, signer, timestamp, root *testCert) []byte {
	t.Helper()
	sd, err := pkcs7.NewSignedData([]byte("indirect data"))
	if err != nil {
		t.Fatalf("NewSignedData failed: %v", err)
	}
	sd.SetDigestAlgorithm(pkcs7.OIDDigestAlgorithmSHA256)
	sd.AddCertificate(timestamp.cert)
	if err := sd.AddSigner(signer.cert, signer.key, pkcs7.SignerInfoConfig{}); err != nil {
		t.Fatalf("AddSigner failed: %v", err)
	}
	sd.AddCertificate(root.cert)
	der, err := sd.Finish()
	if err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	return der
}

func TestPKCS7Subject_UsesSignerInfoCertificate(t *testing.T) {
	root := newTestCert(t, 1, pkix.Name{CommonName: "Test Root", Organization: []string{"Test CA"}}, nil)
	signer := newTestCert(t, 2, pkix.Name{
		CommonName:   "Contoso Code Signing",
		Organization: []string{"Contoso"},
		Country:      []string{"US"},
	}, root)
	tsa := newTestCert(t, 3, pkix.Name{CommonName: "Timestamp Service", Organization: []string{"TimestampCo"}}, root)

	got, err := pkcs7Subject(signedBlob(t, signer, tsa, root))
	if err != nil {
		t.Fatalf("pkcs7Subject failed: %v", err)
	}
	if want := "CN=Contoso Code Signing, O=Contoso, C=US"; got != want {
		t.Errorf("subject = %q, want %q", got, want)
	}
}

func TestPKCS7Subject_OrganizationWithComma(t *testing.T) {
	root := newTestCert(t, 1, pkix.Name{CommonName: "Test Root"}, nil)
	signer := newTestCert(t, 2, pkix.Name{
		CommonName:   "Oracle Code Signing",
		Organization: []string{"Oracle America, Inc."},
		Locality:     []string{"Redwood City"},
	}, root)

	got, err := pkcs7Subject(signedBlob(t, signer, root, root))
	if err != nil {
		t.Fatalf("pkcs7Subject failed: %v", err)
	}
	if want := `CN=Oracle Code Signing, O="Oracle America, Inc.", L=Redwood City`; got != want {
		t.Errorf("subject = %q, want %q", got, want)
	}

	pattern := artifact.ExtractPublisher(&got)
	if pattern == nil || *pattern != "O=Oracle America, Inc.*" {
		t.Errorf("publisher pattern = %v, want O=Oracle America, Inc.*", pattern)
	}
}

func TestPKCS7Subject_NotSignedData(t *testing.T) {
	if _, err := pkcs7Subject([]byte{0x01, 0x02}); err == nil {
		t.Error("expected error for malformed signature blob")
	}

	// ContentInfo{data, [0] OCTET STRING "x"}
	data := []byte{0x30, 0x10, 0x06, 0x09, 0x2a, 0x86, 0x48, 0x86, 0xf7, 0x0d, 0x01, 0x07, 0x01, 0xa0, 0x03, 0x04, 0x01, 'x'}
	if _, err := pkcs7Subject(data); !errors.Is(err, ErrUnsigned) {
		t.Errorf("error = %v, want ErrUnsigned", err)
	}
}

func TestSubjectString_FallsBackToRDNSequence(t *testing.T) {
	name := pkix.Name{OrganizationalUnit: []string{"Build"}}
	if got := subjectString(name); got != "OU=Build" {
		t.Errorf("subject = %q, want OU=Build", got)
	}
}
