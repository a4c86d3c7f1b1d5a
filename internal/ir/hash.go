package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for fingerprints.
// Version suffix enables future algorithm migration.
const (
	DomainPredicate = "querykit/predicate/v1"
	DomainFetch     = "querykit/fetch/v1"
	DomainRecord    = "querykit/record/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte (0x00) separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint computes a stable content-addressed identifier for v under
// the given domain. v must be canonically marshalable.
func Fingerprint(domain string, v any) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", domain, err)
	}
	return hashWithDomain(domain, canonical), nil
}

// RecordKey returns an identity for a record: its "id" field when present,
// otherwise the fingerprint of the whole record.
func RecordKey(rec IRObject) string {
	if id, ok := rec["id"]; ok && !IsNull(id) {
		if b, err := MarshalCanonical(id); err == nil {
			return "id:" + string(b)
		}
	}
	fp, err := Fingerprint(DomainRecord, rec)
	if err != nil {
		// Only non-finite floats fail canonical encoding; fall back to plain JSON.
		b, _ := rec.MarshalJSON()
		return "json:" + string(b)
	}
	return "fp:" + fp
}

// MustFingerprint is like Fingerprint but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustFingerprint(domain string, v any) string {
	fp, err := Fingerprint(domain, v)
	if err != nil {
		panic(err)
	}
	return fp
}
