package cachekey

import (
	"testing"

	"github.com/cyberphone/json-canonicalization/go/src/webpki.org/jsoncanonicalizer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalize_MatchesRFC8785ForDoubleSafeDocuments(t *testing.T) {
	docs := []string{
		sampleConfig,
		sampleRequest,
		`{"b":[1,2.5,-0,1e3,0.000001,1E-7],"a":{"z":null,"y":true,"x":"tab\there"}}`,
		`[{"€":1,"a":"<&>"},"line\nbreak","\u0001"]`,
		`{"n":9007199254740991,"f":123.456e10}`,
	}
	for _, doc := range docs {
		want, err := jsoncanonicalizer.Transform([]byte(doc))
		require.NoError(t, err)
		got, err := Canonicalize([]byte(doc))
		require.NoError(t, err)
		assert.Equal(t, string(want), string(got), doc)
	}
}

func TestCanonicalize_IntegersKeptExact(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"above 2^53", `{"x":9007199254740993}`, `{"x":9007199254740993}`},
		{"negative", `{"x":-18446744073709551617}`, `{"x":-18446744073709551617}`},
		{"large power of ten", `[100000000000000000000000]`, `[100000000000000000000000]`},
		{"negative zero", `[-0]`, `[0]`},
		{"fraction goes through doubles", `[2.50]`, `[2.5]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Canonicalize([]byte(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestBuilder_LargeIntegersDoNotCollide(t *testing.T) {
	b := NewBuilder()
	ka, err := b.Build([]byte(sampleConfig), []byte(`{"x":9007199254740993}`))
	require.NoError(t, err)
	kb, err := b.Build([]byte(sampleConfig), []byte(`{"x":9007199254740992}`))
	require.NoError(t, err)

	assert.Equal(t, ka.ConfigHash, kb.ConfigHash)
	assert.NotEqual(t, ka.CombinedHash, kb.CombinedHash)
	assert.Equal(t, `{"x":9007199254740993}`, string(ka.RequestBytes))
}

func TestBuilder_AliasRewriteKeepsLargeIntegers(t *testing.T) {
	keys, err := NewBuilder().Build([]byte(`{"regionStr":"TEST_US","seed":12345678901234567890}`), []byte(sampleRequest))
	require.NoError(t, err)
	assert.Equal(t, `{"regionStr":"US","seed":12345678901234567890}`, string(keys.PersistedConfig))
}

func TestCanonicalize_KeysSortedByUTF16(t *testing.T) {
	got, err := Canonicalize([]byte("{\"\uE000\":1,\"\U0001F600\":2,\"a\":3}"))
	require.NoError(t, err)
	assert.Equal(t, "{\"a\":3,\"\U0001F600\":2,\"\uE000\":1}", string(got))
}

func TestCanonicalize_Rejects(t *testing.T) {
	for _, in := range []string{``, `{"a":1} {}`, `{"a":1e400}`, `{"a":}`} {
		_, err := Canonicalize([]byte(in))
		assert.Error(t, err, in)
	}
}
