// Package crypto signs exported policy documents with ed25519 keys.
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"github.com/ruleforge/ruleforge/internal/policydoc"
)

const (
	privateKeyType = "ED25519 PRIVATE KEY"
	publicKeyType  = "ED25519 PUBLIC KEY"
)

var (
	// ErrDigestMismatch means the policy changed after signing.
	ErrDigestMismatch = errors.New("policy digest does not match signature")
	ErrBadSignature   = errors.New("signature verification failed")
)

// GenerateKeys writes a PEM keypair. The private key is created 0600.
func GenerateKeys(privateKeyPath, publicKeyPath string) error {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("failed to generate keypair: %w", err)
	}
	if err := writePEM(privateKeyPath, privateKeyType, priv, 0o600); err != nil {
		return fmt.Errorf("failed to write private key: %w", err)
	}
	if err := writePEM(publicKeyPath, publicKeyType, pub, 0o644); err != nil {
		return fmt.Errorf("failed to write public key: %w", err)
	}
	return nil
}

// SignPolicy signs the canonical form of an exported policy document.
func SignPolicy(policyXML []byte, privateKeyPath string) ([]byte, error) {
	key, err := readPEM(privateKeyPath, privateKeyType, ed25519.PrivateKeySize)
	if err != nil {
		return nil, err
	}
	canonical, err := canonicalize(policyXML)
	if err != nil {
		return nil, err
	}

	env := Envelope{
		Header: Header{
			CanonVersion: CanonVersion,
			SigType:      SigTypeEd25519,
			PolicyDigest: policydoc.Digest(canonical),
		},
		Signature: ed25519.Sign(ed25519.PrivateKey(key), canonical),
	}
	return env.Encode(), nil
}

// VerifyPolicy checks a signature file against a policy document. Cosmetic
// changes to the XML (whitespace, attribute order) do not invalidate it.
func VerifyPolicy(policyXML, signature []byte, publicKeyPath string) error {
	key, err := readPEM(publicKeyPath, publicKeyType, ed25519.PublicKeySize)
	if err != nil {
		return err
	}
	env, err := ParseEnvelope(signature)
	if err != nil {
		return err
	}
	canonical, err := canonicalize(policyXML)
	if err != nil {
		return err
	}

	if got := policydoc.Digest(canonical); got != env.Header.PolicyDigest {
		return fmt.Errorf("%w: signed %s, got %s", ErrDigestMismatch, env.Header.PolicyDigest, got)
	}
	if !ed25519.Verify(ed25519.PublicKey(key), canonical, env.Signature) {
		return ErrBadSignature
	}
	return nil
}

func canonicalize(policyXML []byte) ([]byte, error) {
	p, err := policydoc.Unmarshal(policyXML)
	if err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}
	out, err := policydoc.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize policy: %w", err)
	}
	return out, nil
}

func writePEM(path, blockType string, der []byte, perm os.FileMode) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if err := pem.Encode(f, &pem.Block{Type: blockType, Bytes: der}); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func readPEM(path, blockType string, size int) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block in %s", path)
	}
	if block.Type != blockType {
		return nil, fmt.Errorf("invalid key type: expected %s, got %s", blockType, block.Type)
	}
	if len(block.Bytes) != size {
		return nil, fmt.Errorf("invalid %s size", blockType)
	}
	return block.Bytes, nil
}
