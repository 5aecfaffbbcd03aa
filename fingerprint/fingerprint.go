// Package fingerprint derives stable cache keys from (PDF bytes, label,
// schema). Collision resistance matters here, cryptographic strength does
// not, so keys are built from two xxhash64 digests.
package fingerprint

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/extrato-ai/extrato/schema"
)

// Key is a 128-bit content-addressed fingerprint: a 64-bit digest of the
// PDF bytes and a 64-bit digest of the raw label plus canonical schema.
type Key struct {
	PDF   uint64
	Label string
	Scope uint64
}

// String renders the key in the {pdf_hash}:{label}:{scope_hash} form used
// by the cache tiers. The label is sanitised for filesystem safety only;
// its raw form is folded into the scope digest, so labels that sanitise
// to the same text still render distinct keys.
func (k Key) String() string {
	return fmt.Sprintf("%016x:%s:%016x", k.PDF, sanitizeLabel(k.Label), k.Scope)
}

// New computes the fingerprint for a request. The same bytes, label, and
// schema always produce the same key; schema key order is irrelevant.
func New(pdfBytes []byte, label string, s schema.Schema) Key {
	d := xxhash.New()
	d.WriteString(label)
	d.Write([]byte{0})
	d.Write(s.CanonicalJSON())
	return Key{
		PDF:   xxhash.Sum64(pdfBytes),
		Label: label,
		Scope: d.Sum64(),
	}
}

// ForRequest computes the fingerprint of an extraction request.
func ForRequest(req *schema.ExtractionRequest) Key {
	return New(req.PDFBytes, req.Label, req.Schema)
}

func sanitizeLabel(label string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, label)
}
