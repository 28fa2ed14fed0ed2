package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/duet/internal/domain"
)

const (
	alice = "did:example:aaa"
	bob   = "did:example:bbb"
)

func TestValidateDID(t *testing.T) {
	tests := []struct {
		name  string
		did   string
		valid bool
	}{
		{"example method", "did:example:123456789abcdefghi", true},
		{"verida", "did:vda:polamoy:0x6B2a1bE81ee770cbB4648801e343E135e8D2Aa6F", true},
		{"percent encoded", "did:web:example.com%3A8443", true},
		{"empty", "", false},
		{"no prefix", "alice", false},
		{"uppercase method", "did:EXAMPLE:abc", false},
		{"missing id", "did:example:", false},
		{"missing method", "did::abc", false},
		{"trailing colon", "did:example:abc:", false},
		{"whitespace", "did:example:a b", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDID(tt.did)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			var idErr *domain.InvalidIdentifierError
			require.ErrorAs(t, err, &idErr)
			assert.Equal(t, tt.did, idErr.Identifier)
		})
	}
}

func TestValidatorMethods(t *testing.T) {
	v := NewValidator("vda")
	assert.NoError(t, v.Validate("did:vda:mainnet:0xabc"))

	err := v.Validate(alice)
	var idErr *domain.InvalidIdentifierError
	require.ErrorAs(t, err, &idErr)
	assert.Contains(t, idErr.Reason, `"example"`)
}

func TestDeriveConversationIDOrderIndependent(t *testing.T) {
	ab, err := DeriveConversationID(alice, bob)
	require.NoError(t, err)
	ba, err := DeriveConversationID(bob, alice)
	require.NoError(t, err)

	assert.Equal(t, ab, ba)
	assert.Len(t, ab, 64)
}

func TestDeriveConversationIDDeterministic(t *testing.T) {
	first, err := DeriveConversationID(alice, bob)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := DeriveConversationID(alice, bob)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestDeriveConversationIDDistinctPairs(t *testing.T) {
	ab, err := DeriveConversationID(alice, bob)
	require.NoError(t, err)
	ac, err := DeriveConversationID(alice, "did:example:ccc")
	require.NoError(t, err)
	assert.NotEqual(t, ab, ac)

	// naive concatenation would collide here
	x, err := DeriveConversationID("did:example:a", "did:example:bc")
	require.NoError(t, err)
	y, err := DeriveConversationID("did:example:ab", "did:example:c")
	require.NoError(t, err)
	assert.NotEqual(t, x, y)
}

func TestDeriveConversationIDInvalid(t *testing.T) {
	_, err := DeriveConversationID(alice, "bob")
	var idErr *domain.InvalidIdentifierError
	require.ErrorAs(t, err, &idErr)
	assert.Equal(t, "bob", idErr.Identifier)

	_, err = DeriveConversationID("", bob)
	require.ErrorAs(t, err, &idErr)
}

func TestDeriveConversationName(t *testing.T) {
	name := DeriveConversationName(alice, "Alice", bob, "Bob")
	assert.Equal(t, "Alice (did:example:aaa) & Bob (did:example:bbb)", name)

	// stable for the same ordered pair
	assert.Equal(t, name, DeriveConversationName(alice, "Alice", bob, "Bob"))

	long := "did:vda:0x6B2a1bE81ee770cbB4648801e343E135e8D2Aa6F"
	name = DeriveConversationName(alice, "  ", long, "")
	assert.Equal(t, "did:example:aaa (did:example:aaa) & did:vda:0x6B2a…Aa6F ("+long+")", name)
}

func TestShortDID(t *testing.T) {
	assert.Equal(t, "did:example:aaa", ShortDID("did:example:aaa"))
	assert.Equal(t, "not-a-did", ShortDID("not-a-did"))
	assert.Equal(t, "did:vda:0x6B2a…Aa6F", ShortDID("did:vda:0x6B2a1bE81ee770cbB4648801e343E135e8D2Aa6F"))
}
