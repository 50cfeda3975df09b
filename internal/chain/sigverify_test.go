package chain

import (
	"encoding/hex"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerifyPersonal(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	addr := ethcrypto.PubkeyToAddress(key.PublicKey).Hex()
	keyHex := "0x" + hex.EncodeToString(ethcrypto.FromECDSA(key))

	msg := []byte("accept market 42 with stake 100")
	sig, err := SignPersonal(keyHex, msg)
	require.NoError(t, err)
	require.Len(t, sig, 2+65*2, "0x-prefixed 65-byte signature")

	ok, err := VerifyPersonal(addr, msg, sig)
	require.NoError(t, err)
	require.True(t, ok)

	other, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	otherAddr := ethcrypto.PubkeyToAddress(other.PublicKey).Hex()
	ok, err = VerifyPersonal(otherAddr, msg, sig)
	require.NoError(t, err)
	require.False(t, ok, "signature does not match a different address")

	ok, err = VerifyPersonal(addr, []byte("tampered message"), sig)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVerifyPersonalMalformedSignatures(t *testing.T) {
	msg := []byte("m")

	_, err := VerifyPersonal("0x0000000000000000000000000000000000000001", msg, "0xzz")
	require.Error(t, err)

	_, err = VerifyPersonal("0x0000000000000000000000000000000000000001", msg, "0xdead")
	require.Error(t, err, "signature must be 65 bytes")
}

func TestSignPersonalBadKey(t *testing.T) {
	_, err := SignPersonal("not-a-key", []byte("m"))
	require.Error(t, err)
}
