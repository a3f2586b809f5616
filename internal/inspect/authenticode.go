package inspect

import (
	"crypto/x509/pkix"
	"debug/pe"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.mozilla.org/pkcs7"
)

const (
	winCertTypePKCSSignedData = 0x0002
	maxCertificateTable       = 16 << 20
)

// authenticodeSubject pulls the signing certificate subject out of the PE
// certificate table.
func authenticodeSubject(r io.ReaderAt) (string, error) {
	f, err := pe.NewFile(r)
	if err != nil {
		return "", ErrUnsigned
	}
	defer f.Close()

	var dir pe.DataDirectory
	switch oh := f.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		if oh.NumberOfRvaAndSizes <= pe.IMAGE_DIRECTORY_ENTRY_SECURITY {
			return "", ErrUnsigned
		}
		dir = oh.DataDirectory[pe.IMAGE_DIRECTORY_ENTRY_SECURITY]
	case *pe.OptionalHeader64:
		if oh.NumberOfRvaAndSizes <= pe.IMAGE_DIRECTORY_ENTRY_SECURITY {
			return "", ErrUnsigned
		}
		dir = oh.DataDirectory[pe.IMAGE_DIRECTORY_ENTRY_SECURITY]
	default:
		return "", ErrUnsigned
	}
	if dir.VirtualAddress == 0 || dir.Size <= 8 || dir.Size > maxCertificateTable {
		return "", ErrUnsigned
	}

	// the security directory address is a file offset, not an RVA
	table := make([]byte, dir.Size)
	if _, err := r.ReadAt(table, int64(dir.VirtualAddress)); err != nil {
		return "", fmt.Errorf("failed to read certificate table: %w", err)
	}

	length := binary.LittleEndian.Uint32(table[0:4])
	certType := binary.LittleEndian.Uint16(table[6:8])
	if certType != winCertTypePKCSSignedData || length <= 8 || int(length) > len(table) {
		return "", ErrUnsigned
	}

	return pkcs7Subject(table[8:length])
}

// pkcs7Subject returns the subject of the certificate the SignerInfo names by
// issuer and serial. Timestamp and chain certificates in the same set are
// ignored.
func pkcs7Subject(der []byte) (string, error) {
	p7, err := pkcs7.Parse(der)
	if err != nil {
		if errors.Is(err, pkcs7.ErrUnsupportedContentType) {
			return "", ErrUnsigned
		}
		return "", fmt.Errorf("failed to parse signature: %w", err)
	}
	signer := p7.GetOnlySigner()
	if signer == nil {
		return "", ErrUnsigned
	}
	return subjectString(signer.Subject), nil
}

// subjectString renders CN, O, L, S and C unescaped. Values holding a comma
// are quoted so the O= attribute survives publisher extraction intact.
func subjectString(name pkix.Name) string {
	var parts []string
	add := func(key string, values []string) {
		for _, v := range values {
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			if strings.ContainsAny(v, `,"`) {
				v = `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
			}
			parts = append(parts, key+"="+v)
		}
	}
	if name.CommonName != "" {
		add("CN", []string{name.CommonName})
	}
	add("O", name.Organization)
	add("L", name.Locality)
	add("S", name.Province)
	add("C", name.Country)
	if len(parts) == 0 {
		return strings.TrimSpace(name.String())
	}
	return strings.Join(parts, ", ")
}
