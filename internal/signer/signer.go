// Package signer holds the trusted key and the EIP-712 event signing scheme.
package signer

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/tyler-smith/go-bip39"
)

const (
	domainName    = "CloutCardsEvents"
	domainVersion = "1"
)

// Signer signs every log event and every withdrawal authorization with the
// trusted secp256k1 key. The key is derived once from MNEMONIC at startup
// and never leaves this package.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
	chainID int64
}

// FromMnemonic derives the trusted key at the standard Ethereum path
// m/44'/60'/0'/0/0.
func FromMnemonic(mnemonic string, chainID int64) (*Signer, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("invalid mnemonic")
	}
	seed := bip39.NewSeed(mnemonic, "")
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("derive master key: %w", err)
	}
	path := []uint32{
		hdkeychain.HardenedKeyStart + 44,
		hdkeychain.HardenedKeyStart + 60,
		hdkeychain.HardenedKeyStart + 0,
		0,
		0,
	}
	k := master
	for _, step := range path {
		k, err = k.Derive(step)
		if err != nil {
			return nil, fmt.Errorf("derive path step %d: %w", step, err)
		}
	}
	ecPriv, err := k.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("extract private key: %w", err)
	}
	key, err := crypto.ToECDSA(ecPriv.Serialize())
	if err != nil {
		return nil, fmt.Errorf("convert private key: %w", err)
	}
	return &Signer{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainID: chainID,
	}, nil
}

// Address is published as the TEE public key.
func (s *Signer) Address() common.Address {
	return s.address
}

func (s *Signer) ChainID() int64 {
	return s.chainID
}

// Signature is a 65-byte secp256k1 signature split into its components,
// with V in Ethereum convention (27/28).
type Signature struct {
	R [32]byte
	S [32]byte
	V uint8
}

func splitSignature(sig []byte) (Signature, error) {
	if len(sig) != 65 {
		return Signature{}, fmt.Errorf("unexpected signature length %d", len(sig))
	}
	var out Signature
	copy(out.R[:], sig[:32])
	copy(out.S[:], sig[32:64])
	out.V = sig[64] + 27
	return out, nil
}

// EventDigest computes the EIP-712 typed-data hash of (kind, payload, nonce)
// under the fixed CloutCardsEvents domain. A nil nonce hashes as zero.
func EventDigest(chainID int64, kind, payload string, nonce *big.Int) ([32]byte, error) {
	n := nonce
	if n == nil {
		n = big.NewInt(0)
	}
	typed := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"RPCPayload": []apitypes.Type{
				{Name: "kind", Type: "string"},
				{Name: "payload", Type: "string"},
				{Name: "nonce", Type: "uint256"},
			},
		},
		PrimaryType: "RPCPayload",
		Domain: apitypes.TypedDataDomain{
			Name:              domainName,
			Version:           domainVersion,
			ChainId:           math.NewHexOrDecimal256(chainID),
			VerifyingContract: common.Address{}.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"kind":    kind,
			"payload": payload,
			"nonce":   (*math.HexOrDecimal256)(n),
		},
	}
	hash, _, err := apitypes.TypedDataAndHash(typed)
	if err != nil {
		return [32]byte{}, fmt.Errorf("hash typed data: %w", err)
	}
	var out [32]byte
	copy(out[:], hash)
	return out, nil
}

// SignEvent hashes and signs an event payload. The returned digest is stored
// alongside the signature so readers can re-verify without re-canonicalizing.
func (s *Signer) SignEvent(kind, payload string, nonce *big.Int) ([32]byte, Signature, error) {
	digest, err := EventDigest(s.chainID, kind, payload, nonce)
	if err != nil {
		return [32]byte{}, Signature{}, err
	}
	sig, err := crypto.Sign(digest[:], s.key)
	if err != nil {
		return [32]byte{}, Signature{}, fmt.Errorf("sign event: %w", err)
	}
	split, err := splitSignature(sig)
	if err != nil {
		return [32]byte{}, Signature{}, err
	}
	return digest, split, nil
}

// SignDigest signs a precomputed 32-byte digest (the contract's withdrawal
// digest) without further hashing.
func (s *Signer) SignDigest(digest [32]byte) (Signature, error) {
	sig, err := crypto.Sign(digest[:], s.key)
	if err != nil {
		return Signature{}, fmt.Errorf("sign digest: %w", err)
	}
	return splitSignature(sig)
}

// Recover returns the address that produced sig over digest.
func Recover(digest [32]byte, sig Signature) (common.Address, error) {
	raw := make([]byte, 65)
	copy(raw[:32], sig.R[:])
	copy(raw[32:64], sig.S[:])
	if sig.V < 27 {
		return common.Address{}, fmt.Errorf("signature V %d below 27", sig.V)
	}
	raw[64] = sig.V - 27
	pub, err := crypto.SigToPub(digest[:], raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Verify recomputes the event digest and checks both digest consistency and
// the recovered signer address.
func Verify(chainID int64, kind, payload string, nonce *big.Int, storedDigest [32]byte, sig Signature, expected common.Address) error {
	digest, err := EventDigest(chainID, kind, payload, nonce)
	if err != nil {
		return err
	}
	if digest != storedDigest {
		return fmt.Errorf("digest mismatch")
	}
	addr, err := Recover(digest, sig)
	if err != nil {
		return err
	}
	if addr != expected {
		return fmt.Errorf("signer mismatch: recovered %s want %s", addr.Hex(), expected.Hex())
	}
	return nil
}
