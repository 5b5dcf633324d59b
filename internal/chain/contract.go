// Package chain bridges the on-chain escrow contract into the ledger.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// escrowABI covers the two observed event topics and the one pure function
// the backend calls. It must match CloutCardsEscrow.sol exactly.
const escrowABI = `[
	{"anonymous":false,"inputs":[{"indexed":true,"name":"player","type":"address"},{"indexed":true,"name":"depositor","type":"address"},{"indexed":false,"name":"amount","type":"uint256"}],"name":"Deposited","type":"event"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"player","type":"address"},{"indexed":true,"name":"to","type":"address"},{"indexed":false,"name":"amount","type":"uint256"},{"indexed":false,"name":"nonce","type":"uint256"}],"name":"WithdrawalExecuted","type":"event"},
	{"inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amountWei","type":"uint256"},{"name":"expiry","type":"uint256"}],"name":"computeWithdrawDigest","outputs":[{"name":"digest","type":"bytes32"},{"name":"nonce","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

// EthClient is the slice of ethclient.Client the bridge needs; narrowed so
// tests can stub the chain.
type EthClient interface {
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	HeaderByHash(ctx context.Context, hash common.Hash) (*types.Header, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

func parseEscrowABI() (abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(escrowABI))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("parse escrow abi: %w", err)
	}
	return parsed, nil
}

// Contract wraps the escrow contract address for calls and balance reads.
type Contract struct {
	client  EthClient
	address common.Address
	abi     abi.ABI
}

func NewContract(client EthClient, address common.Address) (*Contract, error) {
	parsed, err := parseEscrowABI()
	if err != nil {
		return nil, err
	}
	return &Contract{client: client, address: address, abi: parsed}, nil
}

func (c *Contract) Address() common.Address {
	return c.address
}

// ComputeWithdrawDigest asks the contract which digest and nonce it would
// require for this withdrawal.
func (c *Contract) ComputeWithdrawDigest(ctx context.Context, from, to common.Address, amountWei, expiry *big.Int) ([32]byte, *big.Int, error) {
	input, err := c.abi.Pack("computeWithdrawDigest", from, to, amountWei, expiry)
	if err != nil {
		return [32]byte{}, nil, fmt.Errorf("pack computeWithdrawDigest: %w", err)
	}
	out, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &c.address, Data: input}, nil)
	if err != nil {
		return [32]byte{}, nil, fmt.Errorf("call computeWithdrawDigest: %w", err)
	}
	results, err := c.abi.Unpack("computeWithdrawDigest", out)
	if err != nil {
		return [32]byte{}, nil, fmt.Errorf("unpack computeWithdrawDigest: %w", err)
	}
	if len(results) != 2 {
		return [32]byte{}, nil, fmt.Errorf("computeWithdrawDigest returned %d values", len(results))
	}
	digest, ok := results[0].([32]byte)
	if !ok {
		return [32]byte{}, nil, fmt.Errorf("unexpected digest type %T", results[0])
	}
	nonce, ok := results[1].(*big.Int)
	if !ok {
		return [32]byte{}, nil, fmt.Errorf("unexpected nonce type %T", results[1])
	}
	return digest, nonce, nil
}

// OnChainBalanceGwei reads the contract's ETH balance and converts wei to
// gwei by floor division.
func (c *Contract) OnChainBalanceGwei(ctx context.Context) (*big.Int, error) {
	wei, err := c.client.BalanceAt(ctx, c.address, nil)
	if err != nil {
		return nil, fmt.Errorf("contract balance: %w", err)
	}
	return new(big.Int).Div(wei, big.NewInt(1_000_000_000)), nil
}
