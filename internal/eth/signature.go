package eth

import (
	"context"
	"crypto/ecdsa"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/certify/core"
	"github.com/pkg/errors"
)

// SignatureLength is the size of an r || s || v signature
const SignatureLength = crypto.SignatureLength

// TextHash is the EIP-191 personal_sign digest of msg.
func TextHash(msg []byte) []byte {
	return accounts.TextHash(msg)
}

// DecodeSignature decodes a 0x-prefixed hex signature.
func DecodeSignature(s string) ([]byte, error) {
	sig, err := hexutil.Decode(s)
	if err != nil {
		return nil, errors.Wrapf(core.ErrInvalidSignature, "signature: %v", err)
	}
	return sig, nil
}

// RecoverAddress returns the address whose key produced sig over the
// personal_sign digest of msg. V may be 0/1 or 27/28.
func RecoverAddress(msg, sig []byte) (common.Address, error) {
	if len(sig) != SignatureLength {
		return common.Address{}, errors.Wrapf(core.ErrInvalidSignature, "signature must be %d bytes, got %d", SignatureLength, len(sig))
	}

	normalized := make([]byte, SignatureLength)
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}
	if normalized[crypto.RecoveryIDOffset] > 1 {
		return common.Address{}, errors.Wrap(core.ErrInvalidSignature, "invalid recovery id")
	}

	pub, err := crypto.SigToPub(TextHash(msg), normalized)
	if err != nil {
		return common.Address{}, errors.Wrapf(core.ErrInvalidSignature, "recover: %v", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// SignText signs msg the way wallets implement personal_sign (V = 27/28).
func SignText(key *ecdsa.PrivateKey, msg []byte) ([]byte, error) {
	sig, err := crypto.Sign(TextHash(msg), key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign message")
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// KeySigner signs challenges with a local private key
type KeySigner struct {
	key *ecdsa.PrivateKey
}

// NewKeySigner creates a signer for key.
func NewKeySigner(key *ecdsa.PrivateKey) *KeySigner {
	return &KeySigner{key: key}
}

// NewKeySignerFromHex loads a secp256k1 key from hex, with or without 0x.
func NewKeySignerFromHex(hexKey string) (*KeySigner, error) {
	if len(hexKey) > 1 && (hexKey[:2] == "0x" || hexKey[:2] == "0X") {
		hexKey = hexKey[2:]
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, errors.Wrapf(core.ErrInvalidArgument, "private key: %v", err)
	}
	return NewKeySigner(key), nil
}

// Address returns the signer's address.
func (s *KeySigner) Address() common.Address {
	return crypto.PubkeyToAddress(s.key.PublicKey)
}

// SignMessage signs message. Local signing never blocks, but a canceled
// context is still honoured.
func (s *KeySigner) SignMessage(ctx context.Context, message string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(core.ErrSigningCanceled, err.Error())
	}
	return SignText(s.key, []byte(message))
}
