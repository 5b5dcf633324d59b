package escrow

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"

	"github.com/Layr-Labs/clout-cards-sub002/internal/db"
	"github.com/Layr-Labs/clout-cards-sub002/internal/evtlog"
	"github.com/Layr-Labs/clout-cards-sub002/internal/faults"
	"github.com/Layr-Labs/clout-cards-sub002/internal/signer"
)

// GweiPerEth converts between the contract's wei amounts and the ledger's
// gwei amounts.
var weiPerGwei = uint256.NewInt(1_000_000_000)

// DigestCaller is the contract's pure computeWithdrawDigest function. It is
// an interface so tests can stub the chain.
type DigestCaller interface {
	ComputeWithdrawDigest(ctx context.Context, from, to common.Address, amountWei, expiry *big.Int) ([32]byte, *big.Int, error)
}

// Authorization is the signed withdrawal the player submits on-chain.
type Authorization struct {
	Nonce  *big.Int
	Expiry time.Time
	V      uint8
	R      [32]byte
	S      [32]byte
}

type WithdrawalSigner struct {
	ledger *Ledger
	signer *signer.Signer
	caller DigestCaller
}

func NewWithdrawalSigner(ledger *Ledger, s *signer.Signer, caller DigestCaller) *WithdrawalSigner {
	return &WithdrawalSigner{ledger: ledger, signer: s, caller: caller}
}

// SignWithdrawal authorizes a single pending withdrawal per wallet:
// learn the contract's next nonce, install the reservation and append the
// withdrawal_request event in one transaction, then sign the digest.
func (w *WithdrawalSigner) SignWithdrawal(ctx context.Context, from, to string, amountGwei *uint256.Int, expirySeconds int64) (*Authorization, error) {
	fromAddr := Normalize(from)
	toAddr := Normalize(to)
	if fromAddr != toAddr {
		return nil, faults.Validationf("withdrawal recipient must equal payer")
	}
	if amountGwei == nil || amountGwei.IsZero() {
		return nil, faults.Validationf("withdrawal amount must be positive")
	}
	bal, err := w.ledger.Get(ctx, w.ledger.pool, fromAddr)
	if err != nil {
		return nil, err
	}
	if bal.BalanceGwei.Lt(amountGwei) {
		return nil, faults.Validationf("withdrawal amount exceeds balance")
	}

	amountWei := new(uint256.Int).Mul(amountGwei, weiPerGwei)
	expiry := time.Now().UTC().Add(time.Duration(expirySeconds) * time.Second).Truncate(time.Second)
	expiryUnix := big.NewInt(expiry.Unix())

	digest, nonce, err := w.caller.ComputeWithdrawDigest(ctx,
		common.HexToAddress(fromAddr), common.HexToAddress(toAddr), amountWei.ToBig(), expiryUnix)
	if err != nil {
		return nil, fmt.Errorf("compute withdraw digest: %w", err)
	}

	err = db.InTx(ctx, w.ledger.pool, func(tx pgx.Tx) error {
		b, err := w.ledger.lockRow(ctx, tx, fromAddr)
		if err != nil {
			return err
		}
		// Re-check under the row lock: one pending withdrawal at a time.
		if b.PendingWithdrawal(time.Now()) {
			return faults.Conflictf("withdrawal already pending for %s", fromAddr)
		}
		if b.BalanceGwei.Lt(amountGwei) {
			return faults.Validationf("withdrawal amount exceeds balance")
		}
		b.NextWithdrawalNonce = nonce
		b.WithdrawalSignatureExpiry = &expiry
		if err := w.ledger.writeBalance(ctx, tx, b); err != nil {
			return err
		}

		payload, err := evtlog.MarshalPayload(evtlog.WithdrawalRequestPayload{
			WalletAddress: fromAddr,
			ToAddress:     toAddr,
			AmountGwei:    amountGwei.Dec(),
			AmountWei:     amountWei.Dec(),
			Nonce:         nonce.String(),
			Expiry:        evtlog.Timestamp(expiry),
			Digest:        strings.ToLower(hexutil.Encode(digest[:])),
		})
		if err != nil {
			return err
		}
		_, err = w.ledger.log.Append(ctx, tx, evtlog.KindWithdrawalRequest, payload, &fromAddr, nonce)
		return err
	})
	if err != nil {
		return nil, err
	}

	sig, err := w.signer.SignDigest(digest)
	if err != nil {
		return nil, err
	}
	return &Authorization{Nonce: nonce, Expiry: expiry, V: sig.V, R: sig.R, S: sig.S}, nil
}
