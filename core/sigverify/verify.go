package sigverify

import (
	"bytes"
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"pointchain/crypto"
)

// ErrInvalidSignature is returned when a signature does not recover to the
// claimed signer.
var ErrInvalidSignature = errors.New("sigverify: invalid signature")

// Sign produces a 65-byte recoverable signature over the canonical hash.
// It exists for off-chain callers and tests; the ledger itself only verifies.
func Sign(hash [32]byte, key *crypto.PrivateKey) ([]byte, error) {
	if key == nil {
		return nil, fmt.Errorf("sigverify: nil signing key")
	}
	return ethcrypto.Sign(hash[:], key.PrivateKey)
}

// Verify recovers the signer from (hash, signature) and requires it to equal
// the claimed address.
func Verify(hash [32]byte, signature []byte, signer [20]byte) error {
	recovered, err := Recover(hash, signature)
	if err != nil {
		return err
	}
	if recovered != signer {
		return ErrInvalidSignature
	}
	return nil
}

// Recover returns the address that produced the signature over hash.
func Recover(hash [32]byte, signature []byte) ([20]byte, error) {
	var addr [20]byte
	if len(signature) != 65 {
		return addr, fmt.Errorf("%w: signature must be 65 bytes", ErrInvalidSignature)
	}
	sig := append([]byte(nil), signature...)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	pub, err := ethcrypto.SigToPub(hash[:], sig)
	if err != nil {
		return addr, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	recovered := ethcrypto.PubkeyToAddress(*pub)
	if bytes.Equal(recovered.Bytes(), make([]byte, 20)) {
		return addr, ErrInvalidSignature
	}
	copy(addr[:], recovered.Bytes())
	return addr, nil
}
