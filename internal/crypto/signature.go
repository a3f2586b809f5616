package crypto

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	SigTypeEd25519 = "ed25519"
	// CanonVersion names the policy canonicalization the signature covers:
	// the document as re-rendered by policydoc.Marshal.
	CanonVersion = "applocker-xml-v1"
)

// Header is the first line of a signature file.
type Header struct {
	CanonVersion string `json:"canon_version"`
	SigType      string `json:"sig_type"`
	PolicyDigest string `json:"policy_digest"`
}

// Envelope header + signature
type Envelope struct {
	Header    Header
	Signature []byte
}

// Encode renders the envelope as a JSON header line followed by the hex
// signature.
func (e Envelope) Encode() []byte {
	header, _ := json.Marshal(e.Header)
	return []byte(string(header) + "\n" + hex.EncodeToString(e.Signature) + "\n")
}

// ParseEnvelope reads an encoded signature file.
func ParseEnvelope(data []byte) (*Envelope, error) {
	headerLine, payload, ok := strings.Cut(strings.TrimSpace(string(data)), "\n")
	if !ok {
		return nil, fmt.Errorf("invalid signature format: expected header and signature lines")
	}

	var h Header
	if err := json.Unmarshal([]byte(headerLine), &h); err != nil {
		return nil, fmt.Errorf("invalid signature header: %w", err)
	}
	if h.SigType != SigTypeEd25519 {
		return nil, fmt.Errorf("unsupported sig_type %q", h.SigType)
	}
	if h.CanonVersion != CanonVersion {
		return nil, fmt.Errorf("unsupported canon_version %q", h.CanonVersion)
	}

	sig, err := hex.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return nil, fmt.Errorf("invalid signature hex: %w", err)
	}
	return &Envelope{Header: h, Signature: sig}, nil
}
