package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is applied idempotently at startup. The events table is append-only:
// the revoke-free trigger pair below rejects UPDATE and DELETE outright, and
// every insert broadcasts {eventId, tableId, kind} on the new_event channel.
const Schema = `
CREATE TABLE IF NOT EXISTS events (
    event_id      BIGSERIAL PRIMARY KEY,
    block_ts      TIMESTAMPTZ NOT NULL,
    kind          TEXT NOT NULL,
    payload_json  TEXT NOT NULL,
    digest        BYTEA NOT NULL,
    sig_r         BYTEA NOT NULL,
    sig_s         BYTEA NOT NULL,
    sig_v         SMALLINT NOT NULL,
    nonce         NUMERIC(78,0),
    player        TEXT,
    table_id      BIGINT,
    tee_version   INTEGER NOT NULL DEFAULT 0,
    tee_pubkey    TEXT NOT NULL,
    ingested_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS events_table_id_idx ON events (table_id, event_id);
CREATE INDEX IF NOT EXISTS events_kind_idx ON events (kind);
CREATE INDEX IF NOT EXISTS events_player_idx ON events (player);

CREATE OR REPLACE FUNCTION events_immutable() RETURNS trigger AS $$
BEGIN
    RAISE EXCEPTION 'events are append-only';
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS events_no_update ON events;
CREATE TRIGGER events_no_update
    BEFORE UPDATE OR DELETE ON events
    FOR EACH ROW EXECUTE FUNCTION events_immutable();

CREATE OR REPLACE FUNCTION events_notify() RETURNS trigger AS $$
BEGIN
    PERFORM pg_notify('new_event', json_build_object(
        'eventId', NEW.event_id,
        'tableId', NEW.table_id,
        'kind', NEW.kind
    )::text);
    RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS events_notify_insert ON events;
CREATE TRIGGER events_notify_insert
    AFTER INSERT ON events
    FOR EACH ROW EXECUTE FUNCTION events_notify();

CREATE TABLE IF NOT EXISTS escrow_balances (
    wallet_address               TEXT PRIMARY KEY,
    balance_gwei                 NUMERIC(78,0) NOT NULL DEFAULT 0 CHECK (balance_gwei >= 0),
    next_withdrawal_nonce        NUMERIC(78,0),
    withdrawal_signature_expiry  TIMESTAMPTZ,
    updated_at                   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS poker_tables (
    id                       BIGSERIAL PRIMARY KEY,
    name                     TEXT NOT NULL,
    minimum_buy_in           BIGINT NOT NULL CHECK (minimum_buy_in > 0),
    maximum_buy_in           BIGINT NOT NULL CHECK (maximum_buy_in > 0),
    small_blind              BIGINT NOT NULL CHECK (small_blind > 0),
    big_blind                BIGINT NOT NULL CHECK (big_blind > 0),
    per_hand_rake            INTEGER NOT NULL DEFAULT 0 CHECK (per_hand_rake BETWEEN 0 AND 10000),
    max_seat_count           INTEGER NOT NULL CHECK (max_seat_count BETWEEN 2 AND 8),
    is_active                BOOLEAN NOT NULL DEFAULT true,
    action_timeout_seconds   INTEGER NOT NULL DEFAULT 30,
    hand_start_delay_seconds INTEGER NOT NULL DEFAULT 5,
    created_at               TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS table_seat_sessions (
    id                 BIGSERIAL PRIMARY KEY,
    table_id           BIGINT NOT NULL REFERENCES poker_tables(id),
    wallet_address     TEXT NOT NULL,
    seat_number        INTEGER NOT NULL CHECK (seat_number >= 0),
    table_balance_gwei BIGINT NOT NULL DEFAULT 0 CHECK (table_balance_gwei >= 0),
    twitter_handle     TEXT,
    twitter_avatar_url TEXT,
    joined_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
    left_at            TIMESTAMPTZ,
    is_active          BOOLEAN NOT NULL DEFAULT true
);

CREATE UNIQUE INDEX IF NOT EXISTS one_active_session_per_seat
    ON table_seat_sessions (table_id, seat_number) WHERE is_active;
CREATE UNIQUE INDEX IF NOT EXISTS one_active_session_per_wallet
    ON table_seat_sessions (wallet_address) WHERE is_active;

CREATE TABLE IF NOT EXISTS hands (
    id                  BIGSERIAL PRIMARY KEY,
    table_id            BIGINT NOT NULL REFERENCES poker_tables(id),
    status              TEXT NOT NULL,
    round               TEXT,
    dealer_position     INTEGER NOT NULL,
    small_blind_seat    INTEGER NOT NULL,
    big_blind_seat      INTEGER NOT NULL,
    current_action_seat INTEGER,
    current_bet         BIGINT NOT NULL DEFAULT 0,
    last_raise_amount   BIGINT NOT NULL DEFAULT 0,
    deck                TEXT NOT NULL,
    deck_position       INTEGER NOT NULL DEFAULT 0,
    community_cards     TEXT NOT NULL DEFAULT '',
    shuffle_seed_hash   TEXT NOT NULL,
    shuffle_seed        TEXT,
    deck_nonce          TEXT,
    action_timeout_at   TIMESTAMPTZ,
    started_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
    completed_at        TIMESTAMPTZ
);

CREATE UNIQUE INDEX IF NOT EXISTS one_live_hand_per_table
    ON hands (table_id) WHERE status <> 'COMPLETED';

CREATE TABLE IF NOT EXISTS hand_players (
    hand_id         BIGINT NOT NULL REFERENCES hands(id),
    seat_number     INTEGER NOT NULL,
    wallet_address  TEXT NOT NULL,
    status          TEXT NOT NULL,
    chips_committed BIGINT NOT NULL DEFAULT 0,
    hole_cards      TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (hand_id, seat_number)
);

CREATE TABLE IF NOT EXISTS hand_actions (
    id          BIGSERIAL PRIMARY KEY,
    hand_id     BIGINT NOT NULL REFERENCES hands(id),
    seat_number INTEGER NOT NULL,
    round       TEXT NOT NULL,
    action      TEXT NOT NULL,
    amount      BIGINT,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS hand_actions_hand_idx ON hand_actions (hand_id, id);

CREATE TABLE IF NOT EXISTS pots (
    hand_id              BIGINT NOT NULL REFERENCES hands(id),
    pot_number           INTEGER NOT NULL,
    amount               BIGINT NOT NULL CHECK (amount >= 0),
    eligible_seat_numbers INTEGER[] NOT NULL,
    winner_seat_numbers   INTEGER[],
    PRIMARY KEY (hand_id, pot_number)
);
`

func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
