package codec

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func TestBaseString_SortsByFieldName(t *testing.T) {
	constructed := []Field{
		{Name: "merchantId", Value: "M1"},
		{Name: "dttm", Value: "20260828120000"},
		{Name: "payId", Value: "p-1"},
	}
	reversed := []Field{
		{Name: "payId", Value: "p-1"},
		{Name: "merchantId", Value: "M1"},
		{Name: "dttm", Value: "20260828120000"},
	}

	a, err := BaseString(constructed)
	require.NoError(t, err)
	b, err := BaseString(reversed)
	require.NoError(t, err)

	// Construction order never matters; field-name sort always does.
	assert.Equal(t, a, b)
	assert.Equal(t, "20260828120000|M1|p-1", a)
}

func TestBaseString_SkipsSignatureAndAbsentFields(t *testing.T) {
	base, err := BaseString([]Field{
		{Name: "payId", Value: "p-1"},
		{Name: "signature", Value: "should-never-appear"},
		{Name: "merchantData", Value: nil},
		{Name: "resultCode", Value: 0},
	})
	require.NoError(t, err)
	assert.Equal(t, "p-1|0", base)
	assert.NotContains(t, base, "should-never-appear")
}

func TestBaseString_EmptyStringIsPresent(t *testing.T) {
	base, err := BaseString([]Field{
		{Name: "b", Value: "2"},
		{Name: "a", Value: "1"},
		{Name: "c", Value: ""},
	})
	require.NoError(t, err)
	// c is empty but present: it still claims its slot in the join.
	assert.Equal(t, "1|2|", base)
}

func TestBaseString_NumbersRenderNaturally(t *testing.T) {
	base, err := BaseString([]Field{
		{Name: "totalAmount", Value: int64(18950)},
		{Name: "quantity", Value: 2},
		{Name: "rate", Value: 1.5},
		{Name: "whole", Value: 2.0},
	})
	require.NoError(t, err)
	assert.Equal(t, "2|1.5|18950|2", base)
}

func TestBaseString_ListsKeepElementOrder(t *testing.T) {
	base, err := BaseString([]Field{
		{Name: "cart", Value: []string{"zeta", "alpha"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "zeta|alpha", base)
}

func TestBaseString_NestedObjectsAreStable(t *testing.T) {
	fields := []Field{
		{Name: "cart", Value: []any{
			map[string]any{"name": "widget", "quantity": 2, "amount": int64(18950)},
		}},
	}
	first, err := BaseString(fields)
	require.NoError(t, err)
	for range 50 {
		again, err := BaseString(fields)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	// Compact JSON token with keys in sorted order, opaque to the outer join.
	assert.Equal(t, `{"amount":18950,"name":"widget","quantity":2}`, first)
}

func TestBaseString_SignatureExcludedUnderNesting(t *testing.T) {
	base, err := BaseString([]Field{
		{Name: "extensions", Value: map[string]any{
			"signature": "nested-forgery",
			"note":      "ok",
		}},
	})
	require.NoError(t, err)
	assert.NotContains(t, base, "nested-forgery")
	assert.Contains(t, base, "ok")
}

func TestBaseString_RejectsBooleans(t *testing.T) {
	_, err := BaseString([]Field{{Name: "closePayment", Value: true}})
	assert.ErrorIs(t, err, ErrBooleanValue)

	_, err = BaseString([]Field{
		{Name: "extensions", Value: map[string]any{"flag": false}},
	})
	assert.ErrorIs(t, err, ErrBooleanValue)
}

func TestSignVerify_RoundTrip(t *testing.T) {
	key := testKey(t)
	fields := []Field{
		{Name: "merchantId", Value: "M1"},
		{Name: "payId", Value: "p-42"},
		{Name: "resultCode", Value: 0},
		{Name: "resultMessage", Value: "OK"},
	}

	sig, err := Sign(fields, key)
	require.NoError(t, err)
	require.NotEmpty(t, sig)

	ok, err := Verify(fields, sig, &key.PublicKey)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerify_FailsAfterMutatingAnyField(t *testing.T) {
	key := testKey(t)
	fields := []Field{
		{Name: "payId", Value: "p-42"},
		{Name: "resultCode", Value: 0},
		{Name: "resultMessage", Value: "OK"},
	}
	sig, err := Sign(fields, key)
	require.NoError(t, err)

	for i := range fields {
		mutated := make([]Field, len(fields))
		copy(mutated, fields)
		mutated[i] = Field{Name: fields[i].Name, Value: "tampered"}

		ok, err := Verify(mutated, sig, &key.PublicKey)
		require.NoError(t, err)
		assert.False(t, ok, "mutating %q must break the signature", fields[i].Name)
	}
}

func TestVerify_WrongKeyIsFalseNotError(t *testing.T) {
	fields := []Field{{Name: "payId", Value: "p-42"}}
	sig, err := Sign(fields, testKey(t))
	require.NoError(t, err)

	other := testKey(t)
	ok, err := Verify(fields, sig, &other.PublicKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerify_MalformedSignatureIsFalseNotError(t *testing.T) {
	fields := []Field{{Name: "payId", Value: "p-42"}}
	key := testKey(t)

	ok, err := Verify(fields, "not-base64!!!", &key.PublicKey)
	require.NoError(t, err)
	assert.False(t, ok)
}
