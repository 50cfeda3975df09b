package chain

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// personalHash computes the EIP-191 personal-sign digest:
//
//	keccak256("\x19Ethereum Signed Message:\n" || len(msg) || msg)
func personalHash(msg []byte) []byte {
	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(msg))
	return ethcrypto.Keccak256(append([]byte(prefix), msg...))
}

// SignPersonal signs msg with the given hex-encoded private key using the
// EIP-191 personal-sign scheme. Used by tests and tooling; API clients sign
// with their own wallets.
func SignPersonal(privateKeyHex string, msg []byte) (string, error) {
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return "", fmt.Errorf("chain: invalid private key: %w", err)
	}
	sig, err := ethcrypto.Sign(personalHash(msg), pk)
	if err != nil {
		return "", fmt.Errorf("chain: signing: %w", err)
	}
	// go-ethereum returns v in {0,1}; wallets emit v in {27,28}.
	if sig[64] < 27 {
		sig[64] += 27
	}
	return "0x" + hex.EncodeToString(sig), nil
}

// VerifyPersonal recovers the signer of an EIP-191 personal-sign signature
// over msg and reports whether it matches the claimed address. Signatures
// are the usual hex-encoded 65 bytes (r || s || v).
func VerifyPersonal(claimed string, msg []byte, signature string) (bool, error) {
	sigHex := strings.TrimPrefix(signature, "0x")
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return false, fmt.Errorf("chain: signature is not hex: %w", err)
	}
	if len(sig) != 65 {
		return false, fmt.Errorf("chain: signature must be 65 bytes, got %d", len(sig))
	}

	// Normalise v back to {0,1} for recovery.
	recSig := make([]byte, 65)
	copy(recSig, sig)
	if recSig[64] >= 27 {
		recSig[64] -= 27
	}

	pubkey, err := ethcrypto.SigToPub(personalHash(msg), recSig)
	if err != nil {
		return false, fmt.Errorf("chain: recover signer: %w", err)
	}

	recovered := ethcrypto.PubkeyToAddress(*pubkey)
	return recovered == common.HexToAddress(claimed), nil
}
