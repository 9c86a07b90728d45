package codec

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// SignatureFieldName is excluded from the signing base string at every
// nesting level.
const SignatureFieldName = "signature"

// ErrBooleanValue is returned when a boolean reaches the signing codec.
// Booleans are stringified inconsistently across gateway integrations and
// must never participate in a signed payload.
var ErrBooleanValue = errors.New("boolean values must not appear in signed payloads")

// Field is one named value of a request or response object. Requests and
// responses expose their signable fields as an ordered []Field so the
// codec can operate generically over any operation's field set.
//
// A nil Value marks the field as absent; it is skipped entirely. An empty
// string is a distinct, present value and participates in the join.
type Field struct {
	Name  string
	Value any
}

// BaseString produces the deterministic signing base string: fields are
// sorted byte-wise by name, the signature field and absent fields are
// skipped, each remaining value is rendered and the tokens are joined
// with "|". Signer and verifier compute byte-identical input regardless
// of field construction order.
func BaseString(fields []Field) (string, error) {
	present := make([]Field, 0, len(fields))
	for _, f := range fields {
		if f.Name == SignatureFieldName || f.Value == nil {
			continue
		}
		present = append(present, f)
	}
	sort.Slice(present, func(i, j int) bool {
		return present[i].Name < present[j].Name
	})

	tokens := make([]string, 0, len(present))
	for _, f := range present {
		tok, err := renderValue(f.Value)
		if err != nil {
			return "", fmt.Errorf("field %q: %w", f.Name, err)
		}
		tokens = append(tokens, tok)
	}
	return strings.Join(tokens, "|"), nil
}

// Sign computes the RSA-SHA256 signature of the base string built from
// fields, returned base64-encoded.
func Sign(fields []Field, key *rsa.PrivateKey) (string, error) {
	base, err := BaseString(fields)
	if err != nil {
		return "", err
	}
	digest := sha256.Sum256([]byte(base))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("failed to sign payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Verify recomputes the base string from fields and checks signature
// against it with the counterparty's public key. A structurally valid but
// cryptographically invalid signature is a normal false result, not an
// error; errors are reserved for payloads that cannot be serialized.
func Verify(fields []Field, signature string, pub *rsa.PublicKey) (bool, error) {
	base, err := BaseString(fields)
	if err != nil {
		return false, err
	}
	raw, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false, nil
	}
	digest := sha256.Sum256([]byte(base))
	return rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], raw) == nil, nil
}

func renderValue(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case int:
		return strconv.Itoa(val), nil
	case int32:
		return strconv.FormatInt(int64(val), 10), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case bool:
		return "", ErrBooleanValue
	case []string:
		// Element order is semantically significant; lists are never re-sorted.
		return strings.Join(val, "|"), nil
	case []any:
		parts := make([]string, 0, len(val))
		for _, elem := range val {
			tok, err := renderValue(elem)
			if err != nil {
				return "", err
			}
			parts = append(parts, tok)
		}
		return strings.Join(parts, "|"), nil
	case map[string]any:
		return renderNested(val)
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}

// renderNested serializes a nested mapping as a single compact JSON token.
// encoding/json emits map keys in sorted order, which fixes the inner key
// order with the same rule as the top level and keeps the token stable
// across invocations.
func renderNested(m map[string]any) (string, error) {
	clean, err := sanitizeNested(m)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(clean)
	if err != nil {
		return "", fmt.Errorf("failed to serialize nested object: %w", err)
	}
	return string(b), nil
}

func sanitizeNested(m map[string]any) (map[string]any, error) {
	clean := make(map[string]any, len(m))
	for k, v := range m {
		if k == SignatureFieldName {
			continue
		}
		switch val := v.(type) {
		case bool:
			return nil, ErrBooleanValue
		case map[string]any:
			inner, err := sanitizeNested(val)
			if err != nil {
				return nil, err
			}
			clean[k] = inner
		case []any:
			list := make([]any, 0, len(val))
			for _, elem := range val {
				switch e := elem.(type) {
				case bool:
					return nil, ErrBooleanValue
				case map[string]any:
					inner, err := sanitizeNested(e)
					if err != nil {
						return nil, err
					}
					list = append(list, inner)
				default:
					list = append(list, elem)
				}
			}
			clean[k] = list
		default:
			clean[k] = v
		}
	}
	return clean, nil
}
