// Copyright 2025 James Ross
package canon

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalizeIsIdempotent(t *testing.T) {
	v := map[string]interface{}{
		"z": 1,
		"a": map[string]interface{}{"y": true, "x": nil},
		"m": []interface{}{3, 1, 2},
	}
	first, err := Canonicalize(v)
	require.NoError(t, err)

	var reparsed interface{}
	require.NoError(t, fromJSONInto(first, &reparsed))

	second, err := Canonicalize(reparsed)
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
}

func TestCanonicalizeSortsKeysAtEveryLevel(t *testing.T) {
	v := map[string]interface{}{
		"b": 2,
		"a": map[string]interface{}{"d": 4, "c": 3},
	}
	out, err := Canonicalize(v)
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"c":3,"d":4},"b":2}`, string(out))
}

func TestCanonicalizePreservesListOrder(t *testing.T) {
	v := []interface{}{3, 1, 2}
	out, err := Canonicalize(v)
	require.NoError(t, err)
	assert.Equal(t, `[3,1,2]`, string(out))
}

func TestCanonicalizeNFCNormalizesStrings(t *testing.T) {
	// "é" as e + combining acute accent (NFD) must canonicalize the same
	// as the precomposed form (NFC).
	decomposed := "é"
	precomposed := "é"

	a, err := Canonicalize(decomposed)
	require.NoError(t, err)
	b, err := Canonicalize(precomposed)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestHashStableAcrossCanonicalization(t *testing.T) {
	v := map[string]interface{}{"b": 1, "a": 2}
	digest1, canonical, err := HashValue(v)
	require.NoError(t, err)

	var reparsed interface{}
	require.NoError(t, fromJSONInto(canonical, &reparsed))
	digest2, _, err := HashValue(reparsed)
	require.NoError(t, err)

	assert.Equal(t, digest1, digest2)
}

type fakeExchange struct {
	exchangeType string
	request      string
	response     string
	observedAt   string
}

func (f fakeExchange) HashFields() map[string]interface{} {
	return map[string]interface{}{
		"exchange_type": f.exchangeType,
		"request":       f.request,
		"response":      f.response,
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	e := fakeExchange{exchangeType: "fetch", request: "GET /x", response: "200 ok", observedAt: "2026-01-01T00:00:00Z"}
	digest, err := HashRecord(e)
	require.NoError(t, err)

	ok, err := Verify(e, digest)
	require.NoError(t, err)
	assert.True(t, ok)

	tampered := e
	tampered.response = "500 error"
	ok, err = Verify(tampered, digest)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyIgnoresEphemeralFields(t *testing.T) {
	e1 := fakeExchange{exchangeType: "fetch", request: "GET /x", response: "200 ok", observedAt: "2026-01-01T00:00:00Z"}
	e2 := e1
	e2.observedAt = "2026-06-01T00:00:00Z"

	d1, err := HashRecord(e1)
	require.NoError(t, err)
	d2, err := HashRecord(e2)
	require.NoError(t, err)

	assert.Equal(t, d1, d2)
}

func fromJSONInto(b []byte, v *interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	return dec.Decode(v)
}
