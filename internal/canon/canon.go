// Package canon implements deterministic JSON canonicalization and the
// per-aggregate hash chain primitives (spec §4.3). No single teacher file
// chains prevHash the way this package does; the canonicalization shape is
// generalized from small, independently-tested pure-function packages the
// way the teacher's common/gold/transaction package is structured.
package canon

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// JSON returns the canonical serialization of v: keys sorted lexicographically
// at every depth, undefined (Go: absent/nil map entries never occur because
// maps only ever hold keys that were set) fields stripped is naturally true
// of map[string]any, null is preserved, minimal whitespace, UTF-8.
func JSON(v any) ([]byte, error) {
	normalized, err := normalize(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := encode(&buf, normalized); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// normalize round-trips v through encoding/json to obtain a tree of
// map[string]any / []any / primitives, which is the representation encode
// walks deterministically.
func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	return generic, nil
}

func encode(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := encode(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case []any:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encode(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case json.Number:
		buf.WriteString(val.String())
	case string:
		b, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(b)
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(b)
	}
	return nil
}

// Hasher computes event hashes; plain SHA-256 unless a secret is configured,
// in which case HMAC-SHA-256 is used (spec §4.3).
type Hasher struct {
	secret []byte
}

// NewHasher builds a Hasher. An empty secret selects plain SHA-256.
func NewHasher(secret string) *Hasher {
	return &Hasher{secret: []byte(secret)}
}

// EventHash computes hash = H(prevHash || canonical(eventData)). A nil or
// empty-string prevHash both mean "no predecessor" and must hash identically.
func (h *Hasher) EventHash(prevHash string, eventData any) (string, error) {
	data, err := JSON(eventData)
	if err != nil {
		return "", err
	}
	input := append([]byte(prevHash), data...)
	return h.sum(input), nil
}

func (h *Hasher) sum(input []byte) string {
	if len(h.secret) == 0 {
		sum := sha256.Sum256(input)
		return hex.EncodeToString(sum[:])
	}
	mac := hmac.New(sha256.New, h.secret)
	mac.Write(input)
	return hex.EncodeToString(mac.Sum(nil))
}

// BalanceChecksum computes the HMAC over the fixed-order balance tuple
// (spec §4.3). Uses the same keying as EventHash for consistency.
func (h *Hasher) BalanceChecksum(balance, creditBalance, debitBalance, pendingDebit, pendingCredit, version int64) string {
	input := []byte(fmt.Sprintf("%d|%d|%d|%d|%d|%d", balance, creditBalance, debitBalance, pendingDebit, pendingCredit, version))
	return h.sum(input)
}

// VerifyEventHash recomputes a single event's hash and compares.
func (h *Hasher) VerifyEventHash(prevHash, wantHash string, eventData any) (bool, error) {
	got, err := h.EventHash(prevHash, eventData)
	if err != nil {
		return false, err
	}
	return got == wantHash, nil
}
