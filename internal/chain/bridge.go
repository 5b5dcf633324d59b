package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"

	"github.com/Layr-Labs/clout-cards-sub002/internal/escrow"
	"github.com/Layr-Labs/clout-cards-sub002/internal/evtlog"
)

// Bridge subscribes to the escrow contract's Deposited and
// WithdrawalExecuted topics and ingests them into the ledger. Failures are
// logged but never crash the subscription; ordering per wallet is whatever
// the chain provides.
type Bridge struct {
	client   EthClient
	contract *Contract
	ledger   *escrow.Ledger
	log      *evtlog.Log
	pool     evtlog.Querier
	lg       *logrus.Logger
}

func NewBridge(client EthClient, contract *Contract, ledger *escrow.Ledger, log *evtlog.Log, pool evtlog.Querier, lg *logrus.Logger) *Bridge {
	return &Bridge{client: client, contract: contract, ledger: ledger, log: log, pool: pool, lg: lg}
}

func (b *Bridge) topics() [][]common.Hash {
	return [][]common.Hash{{
		b.contract.abi.Events["Deposited"].ID,
		b.contract.abi.Events["WithdrawalExecuted"].ID,
	}}
}

// Run subscribes and processes logs until ctx is done, reconnecting with
// backoff when the subscription drops.
func (b *Bridge) Run(ctx context.Context) {
	for {
		if err := b.subscribeOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			b.lg.WithError(err).Error("chain subscription dropped; reconnecting")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
	}
}

func (b *Bridge) subscribeOnce(ctx context.Context) error {
	logs := make(chan types.Log, 64)
	sub, err := b.client.SubscribeFilterLogs(ctx, ethereum.FilterQuery{
		Addresses: []common.Address{b.contract.address},
		Topics:    b.topics(),
	}, logs)
	if err != nil {
		return fmt.Errorf("subscribe filter logs: %w", err)
	}
	defer sub.Unsubscribe()

	b.lg.WithField("contract", b.contract.address.Hex()).Info("chain listener subscribed")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return err
		case lg := <-logs:
			if err := b.processLog(ctx, lg); err != nil {
				b.lg.WithError(err).WithField("txHash", lg.TxHash.Hex()).Error("chain event ingestion failed")
			}
		}
	}
}

func (b *Bridge) blockTime(ctx context.Context, blockHash common.Hash) (time.Time, error) {
	header, err := b.client.HeaderByHash(ctx, blockHash)
	if err != nil {
		return time.Time{}, fmt.Errorf("fetch block header: %w", err)
	}
	return time.Unix(int64(header.Time), 0).UTC(), nil
}

func weiToGwei(wei *big.Int) (*uint256.Int, error) {
	gwei := new(big.Int).Div(wei, big.NewInt(1_000_000_000))
	out, overflow := uint256.FromBig(gwei)
	if overflow {
		return nil, fmt.Errorf("gwei amount overflows 256 bits")
	}
	return out, nil
}

func (b *Bridge) processLog(ctx context.Context, lg types.Log) error {
	if len(lg.Topics) == 0 {
		return fmt.Errorf("log without topics")
	}
	blockTs, err := b.blockTime(ctx, lg.BlockHash)
	if err != nil {
		return err
	}

	switch lg.Topics[0] {
	case b.contract.abi.Events["Deposited"].ID:
		if len(lg.Topics) < 3 {
			return fmt.Errorf("deposited log missing topics")
		}
		player := common.HexToAddress(lg.Topics[1].Hex())
		values, err := b.contract.abi.Unpack("Deposited", lg.Data)
		if err != nil {
			return fmt.Errorf("unpack Deposited: %w", err)
		}
		amountWei, ok := values[0].(*big.Int)
		if !ok {
			return fmt.Errorf("unexpected Deposited amount type %T", values[0])
		}
		amountGwei, err := weiToGwei(amountWei)
		if err != nil {
			return err
		}
		applied, err := b.ledger.CreditDeposit(ctx, player.Hex(), amountGwei, lg.TxHash.Hex(), lg.BlockNumber, blockTs)
		if err != nil {
			return err
		}
		if applied {
			b.lg.WithFields(logrus.Fields{
				"wallet": strings.ToLower(player.Hex()),
				"gwei":   amountGwei.Dec(),
				"txHash": lg.TxHash.Hex(),
			}).Info("deposit ingested")
		}
		return nil

	case b.contract.abi.Events["WithdrawalExecuted"].ID:
		if len(lg.Topics) < 3 {
			return fmt.Errorf("withdrawalExecuted log missing topics")
		}
		player := common.HexToAddress(lg.Topics[1].Hex())
		values, err := b.contract.abi.Unpack("WithdrawalExecuted", lg.Data)
		if err != nil {
			return fmt.Errorf("unpack WithdrawalExecuted: %w", err)
		}
		amountWei, ok := values[0].(*big.Int)
		if !ok {
			return fmt.Errorf("unexpected WithdrawalExecuted amount type %T", values[0])
		}
		nonce, ok := values[1].(*big.Int)
		if !ok {
			return fmt.Errorf("unexpected WithdrawalExecuted nonce type %T", values[1])
		}
		amountGwei, err := weiToGwei(amountWei)
		if err != nil {
			return err
		}
		applied, err := b.ledger.ApplyWithdrawalExecuted(ctx, player.Hex(), amountGwei, nonce, lg.TxHash.Hex(), lg.BlockNumber, blockTs)
		if err != nil {
			return err
		}
		if applied {
			b.lg.WithFields(logrus.Fields{
				"wallet": strings.ToLower(player.Hex()),
				"gwei":   amountGwei.Dec(),
				"nonce":  nonce.String(),
			}).Info("withdrawal execution ingested")
		}
		return nil
	}
	return fmt.Errorf("unknown topic %s", lg.Topics[0].Hex())
}

// ReprocessStatus is the per-event outcome of a reprocess run.
type ReprocessStatus string

const (
	StatusProcessed ReprocessStatus = "processed"
	StatusSkipped   ReprocessStatus = "skipped"
	StatusError     ReprocessStatus = "error"
)

type ReprocessResult struct {
	TxHash      string          `json:"txHash"`
	Kind        string          `json:"kind"`
	BlockNumber uint64          `json:"blockNumber"`
	Status      ReprocessStatus `json:"status"`
	Detail      string          `json:"detail,omitempty"`
}

type ReprocessSummary struct {
	FromBlock uint64            `json:"fromBlock"`
	ToBlock   *uint64           `json:"toBlock,omitempty"`
	DryRun    bool              `json:"dryRun"`
	Processed int               `json:"processed"`
	Skipped   int               `json:"skipped"`
	Errors    int               `json:"errors"`
	Results   []ReprocessResult `json:"results"`
}

// ReprocessEvents replays a block range through the same idempotent
// ingestion path. Per-event errors go into the summary instead of failing
// the batch.
func (b *Bridge) ReprocessEvents(ctx context.Context, fromBlock uint64, toBlock *uint64, dryRun bool) (*ReprocessSummary, error) {
	query := ethereum.FilterQuery{
		Addresses: []common.Address{b.contract.address},
		Topics:    b.topics(),
		FromBlock: new(big.Int).SetUint64(fromBlock),
	}
	if toBlock != nil {
		query.ToBlock = new(big.Int).SetUint64(*toBlock)
	}
	logs, err := b.client.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("filter logs: %w", err)
	}

	summary := &ReprocessSummary{FromBlock: fromBlock, ToBlock: toBlock, DryRun: dryRun, Results: []ReprocessResult{}}
	for _, lg := range logs {
		res := ReprocessResult{TxHash: lg.TxHash.Hex(), BlockNumber: lg.BlockNumber}
		switch lg.Topics[0] {
		case b.contract.abi.Events["Deposited"].ID:
			res.Kind = evtlog.KindDeposit
		case b.contract.abi.Events["WithdrawalExecuted"].ID:
			res.Kind = evtlog.KindWithdrawalExecuted
		default:
			res.Kind = "unknown"
		}

		seen, err := b.log.HasTxHash(ctx, b.pool, lg.TxHash.Hex())
		if err != nil {
			res.Status = StatusError
			res.Detail = err.Error()
			summary.Errors++
			summary.Results = append(summary.Results, res)
			continue
		}
		if seen {
			res.Status = StatusSkipped
			res.Detail = "already ingested"
			summary.Skipped++
			summary.Results = append(summary.Results, res)
			continue
		}
		if dryRun {
			res.Status = StatusSkipped
			res.Detail = "dry run"
			summary.Skipped++
			summary.Results = append(summary.Results, res)
			continue
		}
		if err := b.processLog(ctx, lg); err != nil {
			res.Status = StatusError
			res.Detail = err.Error()
			summary.Errors++
		} else {
			res.Status = StatusProcessed
			summary.Processed++
		}
		summary.Results = append(summary.Results, res)
	}
	return summary, nil
}
