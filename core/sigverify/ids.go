package sigverify

import (
	"crypto/rand"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

// Hash prefixes binding identity hashes to their channel. These strings are
// part of the wire format shared with off-chain signers.
const (
	phoneHashPrefix = "BOSagora Phone Number"
	emailHashPrefix = "BOSagora Email"
)

// NewSalt returns 32 random bytes used to make derived identifiers
// collision-resistant.
func NewSalt() [32]byte {
	var salt [32]byte
	if _, err := rand.Read(salt[:]); err != nil {
		panic(err)
	}
	return salt
}

// ShopID derives a shop identifier from its owner and a random salt.
func ShopID(owner [20]byte, salt [32]byte) [32]byte {
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256(owner[:], salt[:]))
	return out
}

// PaymentID derives a payment identifier from the paying account and a salt.
func PaymentID(account [20]byte, salt [32]byte) [32]byte {
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256(account[:], salt[:]))
	return out
}

// RequestID derives a link-request identifier. Including the requester's
// current nonce prevents two concurrent requests from colliding.
func RequestID(identityHash [32]byte, account [20]byte, nonce uint64, salt [32]byte) [32]byte {
	enc := (&encoder{}).hash(identityHash).address(account).uint64Word(nonce).hash(salt)
	return enc.sum()
}

// PurchaseID mints a fresh purchase identifier for off-chain purchase feeds.
func PurchaseID() [32]byte {
	u := uuid.New()
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256(u[:], []byte(u.String())))
	return out
}

// PhoneHash hashes a phone number into its registry identity hash.
func PhoneHash(phone string) [32]byte {
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256([]byte(phoneHashPrefix), []byte(phone)))
	return out
}

// EmailHash hashes an email address into its registry identity hash.
func EmailHash(email string) [32]byte {
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256([]byte(emailHashPrefix), []byte(email)))
	return out
}

// EmptyIdentityHash is the hash of the empty string; the link registry
// rejects it to guard against null-identity registrations.
func EmptyIdentityHash() [32]byte {
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256(nil))
	return out
}

// IsEmptyIdentity reports whether hash encodes the empty identity: the hash
// of the empty string or the hash of an empty phone number or email address.
func IsEmptyIdentity(hash [32]byte) bool {
	return hash == EmptyIdentityHash() || hash == PhoneHash("") || hash == EmailHash("")
}
