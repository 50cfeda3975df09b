package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// erc20TransferABI is the minimal ABI needed to call transfer(address,uint256).
const erc20TransferABI = `[{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"}]`

// ERC20Transferor moves ERC-20 collateral from the operator's custody
// account to a recipient. It implements the vault's TokenTransferor
// interface for markets settled on-chain. The "token" argument to Transfer
// is the ERC-20 contract address.
type ERC20Transferor struct {
	client     *ethclient.Client
	privateKey *ecdsa.PrivateKey
	from       common.Address
	chainID    *big.Int
	abi        abi.ABI
	gasLimit   uint64
}

// NewERC20Transferor dials the RPC endpoint and prepares a transferor
// signing with the given hex-encoded operator key.
func NewERC20Transferor(ctx context.Context, rpcURL, privateKeyHex string, chainID int64, gasLimit uint64) (*ERC20Transferor, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", rpcURL, err)
	}

	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("chain: invalid operator key: %w", err)
	}

	parsed, err := abi.JSON(strings.NewReader(erc20TransferABI))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("chain: parse erc20 abi: %w", err)
	}

	if gasLimit == 0 {
		gasLimit = 90_000
	}

	return &ERC20Transferor{
		client:     client,
		privateKey: pk,
		from:       ethcrypto.PubkeyToAddress(pk.PublicKey),
		chainID:    big.NewInt(chainID),
		abi:        parsed,
		gasLimit:   gasLimit,
	}, nil
}

// From returns the operator address transfers are sent from.
func (t *ERC20Transferor) From() common.Address { return t.from }

// Transfer submits a signed transfer(recipient, amount) call against the
// token contract and returns once the transaction is accepted by the node.
// Confirmation is not awaited; the ledger has already debited and the
// transaction hash is recoverable from the node for retries.
func (t *ERC20Transferor) Transfer(ctx context.Context, token, recipient string, amount *big.Int) error {
	if !common.IsHexAddress(token) {
		return fmt.Errorf("chain: token %q is not a contract address", token)
	}
	if !common.IsHexAddress(recipient) {
		return fmt.Errorf("chain: recipient %q is not an address", recipient)
	}

	calldata, err := t.abi.Pack("transfer", common.HexToAddress(recipient), amount)
	if err != nil {
		return fmt.Errorf("chain: pack transfer: %w", err)
	}

	nonce, err := t.client.PendingNonceAt(ctx, t.from)
	if err != nil {
		return fmt.Errorf("chain: pending nonce: %w", err)
	}

	gasPrice, err := t.client.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("chain: suggest gas price: %w", err)
	}

	contract := common.HexToAddress(token)
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &contract,
		Value:    big.NewInt(0),
		Gas:      t.gasLimit,
		GasPrice: gasPrice,
		Data:     calldata,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(t.chainID), t.privateKey)
	if err != nil {
		return fmt.Errorf("chain: sign tx: %w", err)
	}

	if err := t.client.SendTransaction(ctx, signed); err != nil {
		return fmt.Errorf("chain: send tx %s: %w", signed.Hash().Hex(), err)
	}
	return nil
}

func (t *ERC20Transferor) Name() string { return "erc20" }

// Close releases the underlying RPC connection.
func (t *ERC20Transferor) Close() { t.client.Close() }
