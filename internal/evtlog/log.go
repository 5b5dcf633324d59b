// Package evtlog is the signed append-only event log, the single authority
// on what happened. Every append runs inside the database transaction that
// carries the domain mutation, so partial states are unobservable.
package evtlog

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"

	"github.com/Layr-Labs/clout-cards-sub002/internal/signer"
)

// Event is one immutable log row.
type Event struct {
	ID          int64
	BlockTs     time.Time
	Kind        string
	PayloadJSON string
	Digest      [32]byte
	Sig         signer.Signature
	Nonce       *big.Int
	Player      *string
	TableID     *int64
	TEEVersion  int
	TEEPubkey   string
	IngestedAt  time.Time
}

// Querier is satisfied by both pgx.Tx and *pgxpool.Pool.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Log struct {
	signer     *signer.Signer
	teeVersion int
}

func New(s *signer.Signer, teeVersion int) *Log {
	return &Log{signer: s, teeVersion: teeVersion}
}

// Append signs and inserts one event inside the caller's transaction.
// player, when set, is normalized to lower-case; nonce is required for
// withdrawal kinds and nil otherwise.
func (l *Log) Append(ctx context.Context, tx pgx.Tx, kind, payloadJSON string, player *string, nonce *big.Int) (*Event, error) {
	if !KnownKind(kind) {
		return nil, fmt.Errorf("unknown event kind %q", kind)
	}
	digest, sig, err := l.signer.SignEvent(kind, payloadJSON, nonce)
	if err != nil {
		return nil, fmt.Errorf("sign %s event: %w", kind, err)
	}

	var playerLower *string
	if player != nil {
		p := strings.ToLower(*player)
		playerLower = &p
	}
	tableID := ExtractTableID(payloadJSON)

	var nonceStr *string
	if nonce != nil {
		s := nonce.String()
		nonceStr = &s
	}

	ev := &Event{
		BlockTs:     time.Now().UTC(),
		Kind:        kind,
		PayloadJSON: payloadJSON,
		Digest:      digest,
		Sig:         sig,
		Nonce:       nonce,
		Player:      playerLower,
		TableID:     tableID,
		TEEVersion:  l.teeVersion,
		TEEPubkey:   strings.ToLower(l.signer.Address().Hex()),
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO events (block_ts, kind, payload_json, digest, sig_r, sig_s, sig_v,
		                    nonce, player, table_id, tee_version, tee_pubkey)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9, $10, $11, $12)
		RETURNING event_id, ingested_at`,
		ev.BlockTs, kind, payloadJSON, ev.Digest[:], ev.Sig.R[:], ev.Sig.S[:], int16(ev.Sig.V),
		nonceStr, playerLower, tableID, l.teeVersion, ev.TEEPubkey,
	).Scan(&ev.ID, &ev.IngestedAt)
	if err != nil {
		return nil, fmt.Errorf("insert %s event: %w", kind, err)
	}
	return ev, nil
}

const eventColumns = `event_id, block_ts, kind, payload_json, digest, sig_r, sig_s, sig_v,
	nonce::text, player, table_id, tee_version, tee_pubkey, ingested_at`

func scanEvent(row pgx.Row) (*Event, error) {
	var (
		ev       Event
		digest   []byte
		r, s     []byte
		v        int16
		nonceStr *string
	)
	err := row.Scan(&ev.ID, &ev.BlockTs, &ev.Kind, &ev.PayloadJSON, &digest, &r, &s, &v,
		&nonceStr, &ev.Player, &ev.TableID, &ev.TEEVersion, &ev.TEEPubkey, &ev.IngestedAt)
	if err != nil {
		return nil, err
	}
	copy(ev.Digest[:], digest)
	copy(ev.Sig.R[:], r)
	copy(ev.Sig.S[:], s)
	ev.Sig.V = uint8(v)
	if nonceStr != nil {
		n, ok := new(big.Int).SetString(*nonceStr, 10)
		if !ok {
			return nil, fmt.Errorf("event %d: bad stored nonce %q", ev.ID, *nonceStr)
		}
		ev.Nonce = n
	}
	return &ev, nil
}

func collectEvents(rows pgx.Rows) ([]*Event, error) {
	defer rows.Close()
	var out []*Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Tail returns the most recent events, newest first.
func (l *Log) Tail(ctx context.Context, q Querier, limit int) ([]*Event, error) {
	rows, err := q.Query(ctx, `SELECT `+eventColumns+` FROM events ORDER BY event_id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("tail events: %w", err)
	}
	return collectEvents(rows)
}

// Page returns events newest first with an offset, plus the total count.
func (l *Log) Page(ctx context.Context, q Querier, offset, limit int) ([]*Event, int64, error) {
	var total int64
	if err := q.QueryRow(ctx, `SELECT count(*) FROM events`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}
	rows, err := q.Query(ctx, `SELECT `+eventColumns+` FROM events ORDER BY event_id DESC OFFSET $1 LIMIT $2`, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("page events: %w", err)
	}
	evs, err := collectEvents(rows)
	return evs, total, err
}

// ByHand returns all events whose payload references the hand, oldest first.
func (l *Log) ByHand(ctx context.Context, q Querier, handID int64) ([]*Event, error) {
	rows, err := q.Query(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE payload_json::jsonb->'hand'->>'id' = $1
		ORDER BY event_id ASC`, fmt.Sprintf("%d", handID))
	if err != nil {
		return nil, fmt.Errorf("events by hand: %w", err)
	}
	return collectEvents(rows)
}

// ByTableSince returns up to limit events for a table with id > afterEventID,
// ascending. This backs SSE resume.
func (l *Log) ByTableSince(ctx context.Context, q Querier, tableID, afterEventID int64, limit int) ([]*Event, error) {
	rows, err := q.Query(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE table_id = $1 AND event_id > $2
		ORDER BY event_id ASC LIMIT $3`, tableID, afterEventID, limit)
	if err != nil {
		return nil, fmt.Errorf("events by table: %w", err)
	}
	return collectEvents(rows)
}

// ByID loads a single event row.
func (l *Log) ByID(ctx context.Context, q Querier, eventID int64) (*Event, error) {
	ev, err := scanEvent(q.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE event_id = $1`, eventID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("event %d not found", eventID)
		}
		return nil, fmt.Errorf("load event %d: %w", eventID, err)
	}
	return ev, nil
}

// HasTxHash reports whether any deposit/withdrawal_executed event already
// carries txHash in its payload. Chain ingestion is idempotent by this check.
func (l *Log) HasTxHash(ctx context.Context, q Querier, txHash string) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM events
			WHERE kind IN ($1, $2) AND payload_json LIKE '%' || $3 || '%'
		)`, KindDeposit, KindWithdrawalExecuted, strings.ToLower(txHash)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check txHash: %w", err)
	}
	return exists, nil
}

// Verify recomputes the digest from stored fields and recovers the signer.
func (l *Log) Verify(ev *Event) error {
	return VerifyEvent(l.signer.ChainID(), ev)
}

// VerifyEvent checks properties 1 and 2: digest consistency and signature
// recovery against the stamped TEE pubkey.
func VerifyEvent(chainID int64, ev *Event) error {
	expected := common.HexToAddress(ev.TEEPubkey)
	return signer.Verify(chainID, ev.Kind, ev.PayloadJSON, ev.Nonce, ev.Digest, ev.Sig, expected)
}
