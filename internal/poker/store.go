package poker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Layr-Labs/clout-cards-sub002/internal/cards"
	"github.com/Layr-Labs/clout-cards-sub002/internal/faults"
)

// Querier is the query surface shared by pgx.Tx and *pgxpool.Pool.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists tables, seat sessions and hand state. Mutations run
// inside a caller-provided transaction; the live hand row is the lock.
type Store struct{}

func NewStore() *Store { return &Store{} }

// ---- tables ----

const tableColumns = `id, name, minimum_buy_in, maximum_buy_in, small_blind, big_blind,
	per_hand_rake, max_seat_count, is_active, action_timeout_seconds, hand_start_delay_seconds, created_at`

func scanTable(row pgx.Row) (*Table, error) {
	var t Table
	var minBuy, maxBuy, sb, bb int64
	err := row.Scan(&t.ID, &t.Name, &minBuy, &maxBuy, &sb, &bb,
		&t.PerHandRake, &t.MaxSeatCount, &t.IsActive, &t.ActionTimeoutSeconds, &t.HandStartDelaySeconds, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	t.MinimumBuyIn = uint64(minBuy)
	t.MaximumBuyIn = uint64(maxBuy)
	t.SmallBlind = uint64(sb)
	t.BigBlind = uint64(bb)
	return &t, nil
}

func (st *Store) GetTable(ctx context.Context, q Querier, id int64) (*Table, error) {
	t, err := scanTable(q.QueryRow(ctx, `SELECT `+tableColumns+` FROM poker_tables WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, faults.NotFoundf("table %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get table %d: %w", id, err)
	}
	return t, nil
}

func (st *Store) ListTables(ctx context.Context, q Querier, includeInactive bool) ([]*Table, error) {
	sql := `SELECT ` + tableColumns + ` FROM poker_tables`
	if !includeInactive {
		sql += ` WHERE is_active`
	}
	sql += ` ORDER BY id`
	rows, err := q.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()
	out := []*Table{}
	for rows.Next() {
		t, err := scanTable(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (st *Store) InsertTable(ctx context.Context, q Querier, t *Table) error {
	err := q.QueryRow(ctx, `
		INSERT INTO poker_tables (name, minimum_buy_in, maximum_buy_in, small_blind, big_blind,
			per_hand_rake, max_seat_count, is_active, action_timeout_seconds, hand_start_delay_seconds)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at`,
		t.Name, int64(t.MinimumBuyIn), int64(t.MaximumBuyIn), int64(t.SmallBlind), int64(t.BigBlind),
		t.PerHandRake, t.MaxSeatCount, t.IsActive, t.ActionTimeoutSeconds, t.HandStartDelaySeconds,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert table: %w", err)
	}
	return nil
}

func (st *Store) SetTableActive(ctx context.Context, q Querier, id int64, active bool) error {
	tag, err := q.Exec(ctx, `UPDATE poker_tables SET is_active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("set table %d active: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return faults.NotFoundf("table %d not found", id)
	}
	return nil
}

// ---- seat sessions ----

const sessionColumns = `id, table_id, wallet_address, seat_number, table_balance_gwei,
	COALESCE(twitter_handle, ''), COALESCE(twitter_avatar_url, ''), joined_at, left_at, is_active`

func scanSession(row pgx.Row) (*SeatSession, error) {
	var s SeatSession
	var bal int64
	err := row.Scan(&s.ID, &s.TableID, &s.WalletAddress, &s.SeatNumber, &bal,
		&s.TwitterHandle, &s.TwitterAvatarURL, &s.JoinedAt, &s.LeftAt, &s.IsActive)
	if err != nil {
		return nil, err
	}
	s.TableBalanceGwei = uint64(bal)
	return &s, nil
}

func collectSessions(rows pgx.Rows) ([]*SeatSession, error) {
	defer rows.Close()
	out := []*SeatSession{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (st *Store) ActiveSessions(ctx context.Context, q Querier, tableID int64) ([]*SeatSession, error) {
	rows, err := q.Query(ctx, `SELECT `+sessionColumns+`
		FROM table_seat_sessions WHERE table_id = $1 AND is_active ORDER BY seat_number`, tableID)
	if err != nil {
		return nil, fmt.Errorf("active sessions for table %d: %w", tableID, err)
	}
	return collectSessions(rows)
}

// LockActiveSessions takes FOR UPDATE on the table's active sessions so
// seating, hand start and settlement serialize per table.
func (st *Store) LockActiveSessions(ctx context.Context, tx pgx.Tx, tableID int64) ([]*SeatSession, error) {
	rows, err := tx.Query(ctx, `SELECT `+sessionColumns+`
		FROM table_seat_sessions WHERE table_id = $1 AND is_active ORDER BY seat_number FOR UPDATE`, tableID)
	if err != nil {
		return nil, fmt.Errorf("lock sessions for table %d: %w", tableID, err)
	}
	return collectSessions(rows)
}

func (st *Store) ActiveSessionByWallet(ctx context.Context, q Querier, wallet string) (*SeatSession, error) {
	s, err := scanSession(q.QueryRow(ctx, `SELECT `+sessionColumns+`
		FROM table_seat_sessions WHERE wallet_address = $1 AND is_active`, wallet))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session for wallet %s: %w", wallet, err)
	}
	return s, nil
}

func (st *Store) InsertSession(ctx context.Context, q Querier, s *SeatSession) error {
	err := q.QueryRow(ctx, `
		INSERT INTO table_seat_sessions (table_id, wallet_address, seat_number, table_balance_gwei,
			twitter_handle, twitter_avatar_url, is_active)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), true)
		RETURNING id, joined_at`,
		s.TableID, s.WalletAddress, s.SeatNumber, int64(s.TableBalanceGwei), s.TwitterHandle, s.TwitterAvatarURL,
	).Scan(&s.ID, &s.JoinedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return faults.Conflictf("seat %d at table %d or wallet %s already seated", s.SeatNumber, s.TableID, s.WalletAddress)
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (st *Store) UpdateSessionBalance(ctx context.Context, q Querier, id int64, balanceGwei uint64) error {
	tag, err := q.Exec(ctx, `UPDATE table_seat_sessions SET table_balance_gwei = $2 WHERE id = $1`, id, int64(balanceGwei))
	if err != nil {
		return fmt.Errorf("update session %d balance: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return faults.NotFoundf("session %d not found", id)
	}
	return nil
}

func (st *Store) CloseSession(ctx context.Context, q Querier, id int64, now time.Time) error {
	tag, err := q.Exec(ctx, `UPDATE table_seat_sessions
		SET is_active = false, left_at = $2, table_balance_gwei = 0 WHERE id = $1 AND is_active`, id, now)
	if err != nil {
		return fmt.Errorf("close session %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return faults.Conflictf("session %d already closed", id)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// ---- hands ----

const handColumns = `id, table_id, status, round, dealer_position, small_blind_seat, big_blind_seat,
	current_action_seat, current_bet, last_raise_amount, deck, deck_position, community_cards,
	shuffle_seed_hash, COALESCE(shuffle_seed, ''), COALESCE(deck_nonce, ''), action_timeout_at, started_at, completed_at`

func scanHand(row pgx.Row) (*Hand, error) {
	var h Hand
	var round *string
	var currentBet, lastRaise int64
	var deck, community string
	err := row.Scan(&h.ID, &h.TableID, &h.Status, &round, &h.DealerPosition, &h.SmallBlindSeat, &h.BigBlindSeat,
		&h.CurrentActionSeat, &currentBet, &lastRaise, &deck, &h.DeckPosition, &community,
		&h.ShuffleSeedHash, &h.ShuffleSeed, &h.DeckNonce, &h.ActionTimeoutAt, &h.StartedAt, &h.CompletedAt)
	if err != nil {
		return nil, err
	}
	if round != nil {
		r := Round(*round)
		h.Round = &r
	}
	h.CurrentBet = uint64(currentBet)
	h.LastRaiseAmount = uint64(lastRaise)
	if h.Deck, err = cards.Split(deck); err != nil {
		return nil, fmt.Errorf("hand %d deck: %w", h.ID, err)
	}
	if community != "" {
		if h.CommunityCards, err = cards.Split(community); err != nil {
			return nil, fmt.Errorf("hand %d community cards: %w", h.ID, err)
		}
	}
	return &h, nil
}

// LiveHand returns the table's non-completed hand, or nil.
func (st *Store) LiveHand(ctx context.Context, q Querier, tableID int64) (*Hand, error) {
	h, err := scanHand(q.QueryRow(ctx, `SELECT `+handColumns+`
		FROM hands WHERE table_id = $1 AND status <> 'COMPLETED'`, tableID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("live hand for table %d: %w", tableID, err)
	}
	return h, nil
}

func (st *Store) HandByID(ctx context.Context, q Querier, id int64) (*Hand, error) {
	h, err := scanHand(q.QueryRow(ctx, `SELECT `+handColumns+` FROM hands WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, faults.NotFoundf("hand %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("hand %d: %w", id, err)
	}
	return h, nil
}

// LastDealerPosition is the dealer of the table's most recent hand, for
// button rotation. nil when the table has never dealt.
func (st *Store) LastDealerPosition(ctx context.Context, q Querier, tableID int64) (*int, error) {
	var dealer int
	err := q.QueryRow(ctx, `SELECT dealer_position FROM hands
		WHERE table_id = $1 ORDER BY id DESC LIMIT 1`, tableID).Scan(&dealer)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last dealer for table %d: %w", tableID, err)
	}
	return &dealer, nil
}

func (st *Store) LastHandCompletedAt(ctx context.Context, q Querier, tableID int64) (*time.Time, error) {
	var completed *time.Time
	err := q.QueryRow(ctx, `SELECT completed_at FROM hands
		WHERE table_id = $1 AND status = 'COMPLETED' ORDER BY id DESC LIMIT 1`, tableID).Scan(&completed)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last completed hand for table %d: %w", tableID, err)
	}
	return completed, nil
}

// ---- hand state aggregate ----

// InsertHandState writes a freshly dealt hand: the hand row, its players,
// the blind actions, the main pot and the debited session balances.
func (st *Store) InsertHandState(ctx context.Context, tx pgx.Tx, s *HandState, initial *StepResult) error {
	h := s.Hand
	var round *string
	if h.Round != nil {
		r := string(*h.Round)
		round = &r
	}
	err := tx.QueryRow(ctx, `
		INSERT INTO hands (table_id, status, round, dealer_position, small_blind_seat, big_blind_seat,
			current_action_seat, current_bet, last_raise_amount, deck, deck_position, community_cards,
			shuffle_seed_hash, shuffle_seed, deck_nonce, action_timeout_at, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING id`,
		h.TableID, h.Status, round, h.DealerPosition, h.SmallBlindSeat, h.BigBlindSeat,
		h.CurrentActionSeat, int64(h.CurrentBet), int64(h.LastRaiseAmount),
		cards.Join(h.Deck), h.DeckPosition, cards.Join(h.CommunityCards),
		h.ShuffleSeedHash, h.ShuffleSeed, h.DeckNonce, h.ActionTimeoutAt, h.StartedAt, h.CompletedAt,
	).Scan(&h.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return faults.Conflictf("table %d already has a live hand", h.TableID)
		}
		return fmt.Errorf("insert hand: %w", err)
	}

	for _, seat := range s.seatList() {
		p := s.Players[seat]
		p.HandID = h.ID
		hole := cards.Join([]cards.Card{p.HoleCards[0], p.HoleCards[1]})
		_, err := tx.Exec(ctx, `
			INSERT INTO hand_players (hand_id, seat_number, wallet_address, status, chips_committed, hole_cards)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			h.ID, p.SeatNumber, p.WalletAddress, p.Status, int64(p.ChipsCommitted), hole)
		if err != nil {
			return fmt.Errorf("insert hand player seat %d: %w", seat, err)
		}
	}

	for i := range s.Actions {
		s.Actions[i].HandID = h.ID
	}
	for i := range initial.NewActions {
		initial.NewActions[i].HandID = h.ID
	}
	if err := st.insertActions(ctx, tx, h.ID, initial.NewActions); err != nil {
		return err
	}
	if err := st.replacePots(ctx, tx, s); err != nil {
		return err
	}
	return st.saveSessionBalances(ctx, tx, s)
}

// SaveStep persists the state after an engine step: hand row, players,
// appended actions, pots and session balances.
func (st *Store) SaveStep(ctx context.Context, tx pgx.Tx, s *HandState, res *StepResult) error {
	h := s.Hand
	var round *string
	if h.Round != nil {
		r := string(*h.Round)
		round = &r
	}
	_, err := tx.Exec(ctx, `
		UPDATE hands SET status = $2, round = $3, current_action_seat = $4, current_bet = $5,
			last_raise_amount = $6, deck_position = $7, community_cards = $8,
			action_timeout_at = $9, completed_at = $10
		WHERE id = $1`,
		h.ID, h.Status, round, h.CurrentActionSeat, int64(h.CurrentBet), int64(h.LastRaiseAmount),
		h.DeckPosition, cards.Join(h.CommunityCards), h.ActionTimeoutAt, h.CompletedAt)
	if err != nil {
		return fmt.Errorf("update hand %d: %w", h.ID, err)
	}

	for _, seat := range s.seatList() {
		p := s.Players[seat]
		_, err := tx.Exec(ctx, `UPDATE hand_players SET status = $3, chips_committed = $4
			WHERE hand_id = $1 AND seat_number = $2`,
			h.ID, seat, p.Status, int64(p.ChipsCommitted))
		if err != nil {
			return fmt.Errorf("update hand %d player seat %d: %w", h.ID, seat, err)
		}
	}

	if err := st.insertActions(ctx, tx, h.ID, res.NewActions); err != nil {
		return err
	}
	if err := st.replacePots(ctx, tx, s); err != nil {
		return err
	}
	return st.saveSessionBalances(ctx, tx, s)
}

func (st *Store) insertActions(ctx context.Context, tx pgx.Tx, handID int64, actions []ActionRecord) error {
	for i := range actions {
		a := &actions[i]
		var amount *int64
		if a.Amount != nil {
			v := int64(*a.Amount)
			amount = &v
		}
		err := tx.QueryRow(ctx, `
			INSERT INTO hand_actions (hand_id, seat_number, round, action, amount, created_at)
			VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
			handID, a.SeatNumber, a.Round, a.Action, amount, a.CreatedAt).Scan(&a.ID)
		if err != nil {
			return fmt.Errorf("insert hand %d action: %w", handID, err)
		}
	}
	return nil
}

// replacePots rewrites the pot set wholesale; pots are few and recomputed,
// not diffed.
func (st *Store) replacePots(ctx context.Context, tx pgx.Tx, s *HandState) error {
	if _, err := tx.Exec(ctx, `DELETE FROM pots WHERE hand_id = $1`, s.Hand.ID); err != nil {
		return fmt.Errorf("clear pots for hand %d: %w", s.Hand.ID, err)
	}
	for i := range s.Pots {
		p := &s.Pots[i]
		p.HandID = s.Hand.ID
		_, err := tx.Exec(ctx, `
			INSERT INTO pots (hand_id, pot_number, amount, eligible_seat_numbers, winner_seat_numbers)
			VALUES ($1, $2, $3, $4, $5)`,
			p.HandID, p.PotNumber, int64(p.Amount), p.EligibleSeats, p.WinnerSeatNumbers)
		if err != nil {
			return fmt.Errorf("insert pot %d for hand %d: %w", p.PotNumber, p.HandID, err)
		}
	}
	return nil
}

func (st *Store) saveSessionBalances(ctx context.Context, tx pgx.Tx, s *HandState) error {
	for _, sess := range s.Sessions {
		if err := st.UpdateSessionBalance(ctx, tx, sess.ID, sess.TableBalanceGwei); err != nil {
			return err
		}
	}
	return nil
}

// LoadHandState locks and loads the table's live hand with everything the
// engine needs. Returns NotFound when no hand is live.
func (st *Store) LoadHandState(ctx context.Context, tx pgx.Tx, table *Table) (*HandState, error) {
	h, err := scanHand(tx.QueryRow(ctx, `SELECT `+handColumns+`
		FROM hands WHERE table_id = $1 AND status <> 'COMPLETED' FOR UPDATE`, table.ID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, faults.NotFoundf("table %d has no live hand", table.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("lock live hand for table %d: %w", table.ID, err)
	}

	s := &HandState{Table: table, Hand: h, Players: map[int]*HandPlayer{}, Sessions: map[int]*SeatSession{}}

	rows, err := tx.Query(ctx, `SELECT hand_id, seat_number, wallet_address, status, chips_committed, hole_cards
		FROM hand_players WHERE hand_id = $1 ORDER BY seat_number`, h.ID)
	if err != nil {
		return nil, fmt.Errorf("hand %d players: %w", h.ID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var p HandPlayer
		var chips int64
		var hole string
		if err := rows.Scan(&p.HandID, &p.SeatNumber, &p.WalletAddress, &p.Status, &chips, &hole); err != nil {
			return nil, err
		}
		p.ChipsCommitted = uint64(chips)
		cs, err := cards.Split(hole)
		if err != nil || len(cs) != 2 {
			return nil, faults.Invariantf("hand %d seat %d has malformed hole cards", h.ID, p.SeatNumber)
		}
		p.HoleCards = [2]cards.Card{cs[0], cs[1]}
		s.Players[p.SeatNumber] = &p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sessions, err := st.LockActiveSessions(ctx, tx, table.ID)
	if err != nil {
		return nil, err
	}
	for _, sess := range sessions {
		if _, ok := s.Players[sess.SeatNumber]; ok {
			s.Sessions[sess.SeatNumber] = sess
		}
	}
	for seat := range s.Players {
		if s.Sessions[seat] == nil {
			return nil, faults.Invariantf("hand %d seat %d has no active session", h.ID, seat)
		}
	}

	s.Actions, err = st.handActions(ctx, tx, h.ID)
	if err != nil {
		return nil, err
	}
	s.Pots, err = st.HandPots(ctx, tx, h.ID)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (st *Store) handActions(ctx context.Context, q Querier, handID int64) ([]HandAction, error) {
	rows, err := q.Query(ctx, `SELECT id, hand_id, seat_number, round, action, amount, created_at
		FROM hand_actions WHERE hand_id = $1 ORDER BY id`, handID)
	if err != nil {
		return nil, fmt.Errorf("hand %d actions: %w", handID, err)
	}
	defer rows.Close()
	out := []HandAction{}
	for rows.Next() {
		var a HandAction
		var amount *int64
		if err := rows.Scan(&a.ID, &a.HandID, &a.SeatNumber, &a.Round, &a.Action, &amount, &a.CreatedAt); err != nil {
			return nil, err
		}
		if amount != nil {
			a.Amount = amountPtr(uint64(*amount))
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// HandActions is the public read used by hand views.
func (st *Store) HandActions(ctx context.Context, q Querier, handID int64) ([]HandAction, error) {
	return st.handActions(ctx, q, handID)
}

func (st *Store) HandPots(ctx context.Context, q Querier, handID int64) ([]Pot, error) {
	rows, err := q.Query(ctx, `SELECT hand_id, pot_number, amount, eligible_seat_numbers, winner_seat_numbers
		FROM pots WHERE hand_id = $1 ORDER BY pot_number`, handID)
	if err != nil {
		return nil, fmt.Errorf("hand %d pots: %w", handID, err)
	}
	defer rows.Close()
	out := []Pot{}
	for rows.Next() {
		var p Pot
		var amount int64
		if err := rows.Scan(&p.HandID, &p.PotNumber, &amount, &p.EligibleSeats, &p.WinnerSeatNumbers); err != nil {
			return nil, err
		}
		p.Amount = uint64(amount)
		out = append(out, p)
	}
	return out, rows.Err()
}

// HandPlayers is the read used by hand views; hole-card redaction for live
// hands happens at the API layer.
func (st *Store) HandPlayers(ctx context.Context, q Querier, handID int64) ([]*HandPlayer, error) {
	rows, err := q.Query(ctx, `SELECT hand_id, seat_number, wallet_address, status, chips_committed, hole_cards
		FROM hand_players WHERE hand_id = $1 ORDER BY seat_number`, handID)
	if err != nil {
		return nil, fmt.Errorf("hand %d players: %w", handID, err)
	}
	defer rows.Close()
	out := []*HandPlayer{}
	for rows.Next() {
		var p HandPlayer
		var chips int64
		var hole string
		if err := rows.Scan(&p.HandID, &p.SeatNumber, &p.WalletAddress, &p.Status, &chips, &hole); err != nil {
			return nil, err
		}
		p.ChipsCommitted = uint64(chips)
		if cs, err := cards.Split(hole); err == nil && len(cs) == 2 {
			p.HoleCards = [2]cards.Card{cs[0], cs[1]}
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// ExpiredActionDeadlines finds live hands whose action clock ran out, for
// the timeout scheduler.
type ExpiredDeadline struct {
	TableID int64
	HandID  int64
	Seat    int
}

func (st *Store) ExpiredActionDeadlines(ctx context.Context, q Querier, now time.Time) ([]ExpiredDeadline, error) {
	rows, err := q.Query(ctx, `SELECT table_id, id, current_action_seat FROM hands
		WHERE status <> 'COMPLETED' AND current_action_seat IS NOT NULL
		AND action_timeout_at IS NOT NULL AND action_timeout_at <= $1`, now)
	if err != nil {
		return nil, fmt.Errorf("expired deadlines: %w", err)
	}
	defer rows.Close()
	out := []ExpiredDeadline{}
	for rows.Next() {
		var d ExpiredDeadline
		if err := rows.Scan(&d.TableID, &d.HandID, &d.Seat); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// TablesAwaitingHand lists active tables with no live hand, for the hand
// start scheduler. Eligibility and the start delay are checked by the
// service under locks.
func (st *Store) TablesAwaitingHand(ctx context.Context, q Querier) ([]int64, error) {
	rows, err := q.Query(ctx, `SELECT t.id FROM poker_tables t
		WHERE t.is_active
		AND NOT EXISTS (SELECT 1 FROM hands h WHERE h.table_id = t.id AND h.status <> 'COMPLETED')
		AND (SELECT COUNT(*) FROM table_seat_sessions s
			WHERE s.table_id = t.id AND s.is_active AND s.table_balance_gwei >= t.big_blind) >= 2
		ORDER BY t.id`)
	if err != nil {
		return nil, fmt.Errorf("tables awaiting hand: %w", err)
	}
	defer rows.Close()
	out := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
