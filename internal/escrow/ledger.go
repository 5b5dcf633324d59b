// Package escrow keeps the per-wallet balance ledger that mirrors the
// on-chain escrow contract, plus the withdrawal signing protocol.
package escrow

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/Layr-Labs/clout-cards-sub002/internal/db"
	"github.com/Layr-Labs/clout-cards-sub002/internal/evtlog"
	"github.com/Layr-Labs/clout-cards-sub002/internal/faults"
)

// Balance is one escrow row. Amounts are gwei.
type Balance struct {
	WalletAddress             string
	BalanceGwei               *uint256.Int
	NextWithdrawalNonce       *big.Int
	WithdrawalSignatureExpiry *time.Time
}

// PendingWithdrawal reports whether a signed-but-unexecuted withdrawal
// reservation is still live.
func (b *Balance) PendingWithdrawal(now time.Time) bool {
	return b.WithdrawalSignatureExpiry != nil && b.WithdrawalSignatureExpiry.After(now)
}

type Ledger struct {
	pool *pgxpool.Pool
	log  *evtlog.Log
	lg   *logrus.Logger
}

func NewLedger(pool *pgxpool.Pool, log *evtlog.Log, lg *logrus.Logger) *Ledger {
	return &Ledger{pool: pool, log: log, lg: lg}
}

// Normalize lower-cases a wallet for storage and comparison.
func Normalize(wallet string) string {
	return strings.ToLower(wallet)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func scanBalance(row pgx.Row) (*Balance, error) {
	var (
		b        Balance
		balStr   string
		nonceStr *string
	)
	err := row.Scan(&b.WalletAddress, &balStr, &nonceStr, &b.WithdrawalSignatureExpiry)
	if err != nil {
		return nil, err
	}
	bal, parseErr := uint256.FromDecimal(balStr)
	if parseErr != nil {
		return nil, fmt.Errorf("parse balance %q: %w", balStr, parseErr)
	}
	b.BalanceGwei = bal
	if nonceStr != nil {
		n, ok := new(big.Int).SetString(*nonceStr, 10)
		if !ok {
			return nil, fmt.Errorf("parse nonce %q", *nonceStr)
		}
		b.NextWithdrawalNonce = n
	}
	return &b, nil
}

const balanceColumns = `wallet_address, balance_gwei::text, next_withdrawal_nonce::text, withdrawal_signature_expiry`

// Get returns the wallet's balance, zero-valued when no row exists yet.
func (l *Ledger) Get(ctx context.Context, q querier, wallet string) (*Balance, error) {
	w := Normalize(wallet)
	b, err := scanBalance(q.QueryRow(ctx,
		`SELECT `+balanceColumns+` FROM escrow_balances WHERE wallet_address = $1`, w))
	if err == pgx.ErrNoRows {
		return &Balance{WalletAddress: w, BalanceGwei: uint256.NewInt(0)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load escrow balance: %w", err)
	}
	return b, nil
}

// lockRow is Get under FOR UPDATE, creating the row first so there is always
// something to lock.
func (l *Ledger) lockRow(ctx context.Context, tx pgx.Tx, wallet string) (*Balance, error) {
	w := Normalize(wallet)
	if _, err := tx.Exec(ctx, `
		INSERT INTO escrow_balances (wallet_address) VALUES ($1)
		ON CONFLICT (wallet_address) DO NOTHING`, w); err != nil {
		return nil, fmt.Errorf("ensure escrow row: %w", err)
	}
	b, err := scanBalance(tx.QueryRow(ctx,
		`SELECT `+balanceColumns+` FROM escrow_balances WHERE wallet_address = $1 FOR UPDATE`, w))
	if err != nil {
		return nil, fmt.Errorf("lock escrow balance: %w", err)
	}
	return b, nil
}

func (l *Ledger) writeBalance(ctx context.Context, tx pgx.Tx, b *Balance) error {
	var nonceStr *string
	if b.NextWithdrawalNonce != nil {
		s := b.NextWithdrawalNonce.String()
		nonceStr = &s
	}
	_, err := tx.Exec(ctx, `
		UPDATE escrow_balances
		SET balance_gwei = $2::numeric,
		    next_withdrawal_nonce = $3::numeric,
		    withdrawal_signature_expiry = $4,
		    updated_at = now()
		WHERE wallet_address = $1`,
		b.WalletAddress, b.BalanceGwei.Dec(), nonceStr, b.WithdrawalSignatureExpiry)
	if err != nil {
		return fmt.Errorf("write escrow balance: %w", err)
	}
	return nil
}

// CreditDeposit applies an on-chain deposit. Idempotent by txHash: replaying
// the same chain event is a no-op. Returns true when applied.
func (l *Ledger) CreditDeposit(ctx context.Context, wallet string, amountGwei *uint256.Int, txHash string, blockNumber uint64, blockTs time.Time) (bool, error) {
	applied := false
	err := db.InTx(ctx, l.pool, func(tx pgx.Tx) error {
		seen, err := l.log.HasTxHash(ctx, tx, txHash)
		if err != nil {
			return err
		}
		if seen {
			return nil
		}
		b, err := l.lockRow(ctx, tx, wallet)
		if err != nil {
			return err
		}
		b.BalanceGwei = new(uint256.Int).Add(b.BalanceGwei, amountGwei)
		if err := l.writeBalance(ctx, tx, b); err != nil {
			return err
		}

		payload, err := evtlog.MarshalPayload(evtlog.DepositPayload{
			WalletAddress:  b.WalletAddress,
			AmountGwei:     amountGwei.Dec(),
			TxHash:         strings.ToLower(txHash),
			BlockNumber:    blockNumber,
			BlockTimestamp: evtlog.Timestamp(blockTs),
		})
		if err != nil {
			return err
		}
		if _, err := l.log.Append(ctx, tx, evtlog.KindDeposit, payload, &b.WalletAddress, nil); err != nil {
			return err
		}
		applied = true
		return nil
	})
	return applied, err
}

// debitGuard validates a buy-in against the locked balance row. A live
// withdrawal reservation blocks buy-ins until it executes or expires.
func debitGuard(b *Balance, amountGwei *uint256.Int, now time.Time) error {
	if b.PendingWithdrawal(now) {
		return faults.Conflictf("withdrawal pending for %s; buy-in blocked until it executes or expires", b.WalletAddress)
	}
	if b.BalanceGwei.Lt(amountGwei) {
		return faults.Validationf("insufficient escrow balance: have %s need %s", b.BalanceGwei.Dec(), amountGwei.Dec())
	}
	return nil
}

// DebitInTx removes table buy-in funds inside the caller's transaction.
// Rejected with a conflict while a withdrawal reservation is pending.
func (l *Ledger) DebitInTx(ctx context.Context, tx pgx.Tx, wallet string, amountGwei *uint256.Int) error {
	b, err := l.lockRow(ctx, tx, wallet)
	if err != nil {
		return err
	}
	if err := debitGuard(b, amountGwei, time.Now()); err != nil {
		return err
	}
	b.BalanceGwei = new(uint256.Int).Sub(b.BalanceGwei, amountGwei)
	return l.writeBalance(ctx, tx, b)
}

// CreditInTx returns table funds (stand-up, rake to the house) inside the
// caller's transaction.
func (l *Ledger) CreditInTx(ctx context.Context, tx pgx.Tx, wallet string, amountGwei *uint256.Int) error {
	b, err := l.lockRow(ctx, tx, wallet)
	if err != nil {
		return err
	}
	b.BalanceGwei = new(uint256.Int).Add(b.BalanceGwei, amountGwei)
	return l.writeBalance(ctx, tx, b)
}

// ApplyWithdrawalExecuted settles an on-chain withdrawal: debit saturating
// at zero, clear the pending reservation, append the event. The chain is
// authoritative, so a nonce mismatch is logged loudly but still applied.
func (l *Ledger) ApplyWithdrawalExecuted(ctx context.Context, wallet string, amountGwei *uint256.Int, nonce *big.Int, txHash string, blockNumber uint64, blockTs time.Time) (bool, error) {
	applied := false
	err := db.InTx(ctx, l.pool, func(tx pgx.Tx) error {
		seen, err := l.log.HasTxHash(ctx, tx, txHash)
		if err != nil {
			return err
		}
		if seen {
			return nil
		}
		b, err := l.lockRow(ctx, tx, wallet)
		if err != nil {
			return err
		}

		if b.NextWithdrawalNonce != nil && b.NextWithdrawalNonce.Cmp(nonce) != 0 {
			l.lg.WithFields(logrus.Fields{
				"wallet":      b.WalletAddress,
				"storedNonce": b.NextWithdrawalNonce.String(),
				"chainNonce":  nonce.String(),
			}).Warn("withdrawal nonce mismatch; chain is authoritative, applying anyway")
		}

		if b.BalanceGwei.Lt(amountGwei) {
			b.BalanceGwei = uint256.NewInt(0)
		} else {
			b.BalanceGwei = new(uint256.Int).Sub(b.BalanceGwei, amountGwei)
		}
		b.NextWithdrawalNonce = nil
		b.WithdrawalSignatureExpiry = nil
		if err := l.writeBalance(ctx, tx, b); err != nil {
			return err
		}

		payload, err := evtlog.MarshalPayload(evtlog.WithdrawalExecutedPayload{
			WalletAddress:  b.WalletAddress,
			AmountGwei:     amountGwei.Dec(),
			Nonce:          nonce.String(),
			TxHash:         strings.ToLower(txHash),
			BlockNumber:    blockNumber,
			BlockTimestamp: evtlog.Timestamp(blockTs),
		})
		if err != nil {
			return err
		}
		if _, err := l.log.Append(ctx, tx, evtlog.KindWithdrawalExecuted, payload, &b.WalletAddress, nonce); err != nil {
			return err
		}
		applied = true
		return nil
	})
	return applied, err
}

// TotalEscrow sums all escrow balances for the solvency view.
func (l *Ledger) TotalEscrow(ctx context.Context, q querier) (*uint256.Int, error) {
	var sum string
	if err := q.QueryRow(ctx, `SELECT COALESCE(sum(balance_gwei), 0)::text FROM escrow_balances`).Scan(&sum); err != nil {
		return nil, fmt.Errorf("sum escrow balances: %w", err)
	}
	out, err := uint256.FromDecimal(sum)
	if err != nil {
		return nil, fmt.Errorf("parse escrow sum %q: %w", sum, err)
	}
	return out, nil
}
