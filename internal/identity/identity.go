// Package identity validates decentralized identifiers and derives the
// deterministic conversation id and display name for a pair of participants.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strings"

	"github.com/soyeahso/duet/internal/domain"
)

// didPattern follows the W3C DID syntax: did:<method>:<method-specific-id>.
var didPattern = regexp.MustCompile(`^did:[a-z0-9]+:[A-Za-z0-9._%:-]*[A-Za-z0-9._%-]$`)

// Validator checks identifiers, optionally restricted to a set of DID methods.
type Validator struct {
	methods []string
}

// NewValidator creates a Validator. An empty method list accepts any method.
func NewValidator(methods ...string) *Validator {
	return &Validator{methods: methods}
}

// Validate returns an InvalidIdentifierError if did is malformed or uses a
// method outside the allow-list.
func (v *Validator) Validate(did string) error {
	if did == "" {
		return &domain.InvalidIdentifierError{Identifier: did, Reason: "empty identifier"}
	}
	if !strings.HasPrefix(did, "did:") {
		return &domain.InvalidIdentifierError{Identifier: did, Reason: "missing did: prefix"}
	}
	if !didPattern.MatchString(did) {
		return &domain.InvalidIdentifierError{Identifier: did, Reason: "malformed decentralized identifier"}
	}
	if len(v.methods) > 0 {
		method := strings.SplitN(did, ":", 3)[1]
		if !slices.Contains(v.methods, method) {
			return &domain.InvalidIdentifierError{
				Identifier: did,
				Reason:     fmt.Sprintf("method %q not in %v", method, v.methods),
			}
		}
	}
	return nil
}

// ConversationID returns the order-independent conversation id for a and b.
// The id is the hex SHA-256 of the sorted pair joined by a NUL byte.
func (v *Validator) ConversationID(a, b string) (string, error) {
	if err := v.Validate(a); err != nil {
		return "", err
	}
	if err := v.Validate(b); err != nil {
		return "", err
	}
	pair := []string{a, b}
	sort.Strings(pair)
	sum := sha256.Sum256([]byte(pair[0] + "\x00" + pair[1]))
	return hex.EncodeToString(sum[:]), nil
}

var defaultValidator = NewValidator()

// ValidateDID checks did against the generic DID syntax.
func ValidateDID(did string) error {
	return defaultValidator.Validate(did)
}

// DeriveConversationID returns the conversation id for a pair of DIDs
// using the generic DID syntax.
func DeriveConversationID(a, b string) (string, error) {
	return defaultValidator.ConversationID(a, b)
}

// DeriveConversationName builds the human-readable label for a conversation.
// The label depends on argument order, so callers derive it once when the
// conversation is first created and reuse it.
func DeriveConversationName(idA, nameA, idB, nameB string) string {
	return fmt.Sprintf("%s (%s) & %s (%s)", displayOrShort(nameA, idA), idA, displayOrShort(nameB, idB), idB)
}

func displayOrShort(name, did string) string {
	if n := strings.TrimSpace(name); n != "" {
		return n
	}
	return ShortDID(did)
}

// ShortDID abbreviates the method-specific part of a DID for display,
// e.g. did:vda:0x1234…cdef.
func ShortDID(did string) string {
	parts := strings.SplitN(did, ":", 3)
	if len(parts) != 3 || len(parts[2]) <= 12 {
		return did
	}
	id := parts[2]
	return parts[0] + ":" + parts[1] + ":" + id[:6] + "…" + id[len(id)-4:]
}
