package types

import (
	"crypto/ed25519"
)

// AccountName is the human-meaningful identity of a validator. It is carried in
// votes and proposals so peers can attribute messages without a separate address
// lookup.
type AccountName struct {
	Name string `msgpack:"name"`
}

// NewAccountName creates an AccountName from a string.
func NewAccountName(name string) AccountName {
	return AccountName{Name: name}
}

// AccountNameString returns the account name as a string.
func AccountNameString(a AccountName) string {
	return a.Name
}

// IsAccountNameEmpty returns true if the account name is unset.
func IsAccountNameEmpty(a AccountName) bool {
	return a.Name == ""
}

// AccountNameEqual compares two account names.
func AccountNameEqual(a, b AccountName) bool {
	return a.Name == b.Name
}

// CopyAccountName returns a as-is; AccountName has no internal mutable state to copy.
func CopyAccountName(a AccountName) AccountName {
	return a
}

// VerifySignature verifies an Ed25519 signature over message.
func VerifySignature(pubKey PublicKey, message []byte, sig Signature) bool {
	if len(pubKey.Data) != ed25519.PublicKeySize {
		return false
	}
	if len(sig.Data) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pubKey.Data, message, sig.Data)
}
