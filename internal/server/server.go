// Package server is the HTTP surface: REST handlers, SSE streams and the
// public verification views. Identity arrives via the X-Wallet-Address
// header from the authenticating proxy; the core trusts it.
package server

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/Layr-Labs/clout-cards-sub002/internal/chain"
	"github.com/Layr-Labs/clout-cards-sub002/internal/config"
	"github.com/Layr-Labs/clout-cards-sub002/internal/distributor"
	"github.com/Layr-Labs/clout-cards-sub002/internal/escrow"
	"github.com/Layr-Labs/clout-cards-sub002/internal/evtlog"
	"github.com/Layr-Labs/clout-cards-sub002/internal/faults"
	"github.com/Layr-Labs/clout-cards-sub002/internal/poker"
)

const walletHeader = "X-Wallet-Address"

type Server struct {
	cfg         *config.Config
	pool        *pgxpool.Pool
	log         *evtlog.Log
	ledger      *escrow.Ledger
	withdrawals *escrow.WithdrawalSigner
	svc         *poker.Service
	store       *poker.Store
	dist        *distributor.Distributor
	bridge      *chain.Bridge   // nil when the chain listener is disabled
	contract    *chain.Contract // nil when the chain listener is disabled
	signerAddr  common.Address
	lg          *logrus.Logger
}

func New(cfg *config.Config, pool *pgxpool.Pool, log *evtlog.Log, ledger *escrow.Ledger,
	withdrawals *escrow.WithdrawalSigner, svc *poker.Service, dist *distributor.Distributor,
	bridge *chain.Bridge, contract *chain.Contract, signerAddr common.Address, lg *logrus.Logger) *Server {
	return &Server{
		cfg: cfg, pool: pool, log: log, ledger: ledger, withdrawals: withdrawals,
		svc: svc, store: svc.Store(), dist: dist, bridge: bridge, contract: contract,
		signerAddr: signerAddr, lg: lg,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.cors)

	r.Get("/health", s.handleHealth)
	r.Get("/admins", s.handleAdmins)
	r.Get("/sessionMessage", s.handleSessionMessage)
	r.Get("/tee/publicKey", s.handleTEEPublicKey)

	r.Get("/pokerTables", s.handleListTables)
	r.Get("/tablePlayers", s.handleTablePlayers)
	r.Get("/currentHand", s.handleCurrentHand)
	r.Get("/watchCurrentHand", s.handleWatchCurrentHand)

	r.Post("/joinTable", s.wallet(s.handleJoinTable))
	r.Post("/standUp", s.wallet(s.handleStandUp))
	r.Post("/rebuy", s.wallet(s.handleRebuy))
	r.Post("/action", s.wallet(s.handleAction))

	r.Get("/playerEscrowBalance", s.handleEscrowBalance)
	r.Post("/signEscrowWithdrawal", s.wallet(s.handleSignWithdrawal))

	r.Post("/createTable", s.admin(s.handleCreateTable))
	r.Post("/admin/tables/{id}/status", s.admin(s.handleTableStatus))
	r.Post("/admin/reprocessEvents", s.admin(s.handleReprocessEvents))
	r.Post("/admin/resetLeaderboard", s.admin(s.handleResetLeaderboard))
	r.Get("/events", s.admin(s.handleAdminEvents))
	r.Get("/api/accounting/solvency", s.admin(s.handleSolvency))

	r.Get("/api/verify/events", s.handleVerifyEvents)
	r.Get("/api/verify/stats", s.handleVerifyStats)
	r.Get("/api/verify/activity", s.handleVerifyActivity)
	r.Get("/api/leaderboard", s.handleLeaderboard)
	r.Get("/api/tables/{tableId}/events", s.handleTableStream)
	r.Get("/api/tables/{tableId}/handHistory", s.handleHandHistory)
	r.Get("/api/hands/{handId}/events", s.handleHandEvents)

	return r
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.cfg.CORSOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+walletHeader)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestWallet(r *http.Request) string {
	return strings.ToLower(strings.TrimSpace(r.Header.Get(walletHeader)))
}

type walletHandler func(w http.ResponseWriter, r *http.Request, wallet string)

func (s *Server) wallet(h walletHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wallet := requestWallet(r)
		if wallet == "" {
			writeUnauthorized(w, "wallet identity required")
			return
		}
		h(w, r, wallet)
	}
}

func (s *Server) admin(h walletHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wallet := requestWallet(r)
		if wallet == "" || !s.cfg.IsAdmin(wallet) {
			writeUnauthorized(w, "admin identity required")
			return
		}
		h(w, r, wallet)
	}
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return faults.Validationf("malformed request body: %v", err)
	}
	return nil
}

func parseGwei(s string) (uint64, error) {
	if s == "" {
		return 0, faults.Validationf("amount is required")
	}
	v, err := strconv.ParseUint(s, 10, 63)
	if err != nil {
		return 0, faults.Validationf("amount %q is not a valid gwei value", s)
	}
	return v, nil
}

func queryInt64(r *http.Request, key string) (int64, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, faults.Validationf("%s is required", key)
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, faults.Validationf("%s %q is not a number", key, v)
	}
	return id, nil
}

func pathInt64(r *http.Request, key string) (int64, error) {
	v := chi.URLParam(r, key)
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, faults.Validationf("%s %q is not a number", key, v)
	}
	return id, nil
}

// ---- basic ----

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAdmins(w http.ResponseWriter, r *http.Request) {
	admins := make([]string, 0, len(s.cfg.AdminAddresses))
	for _, a := range s.cfg.AdminAddresses {
		admins = append(admins, checksum(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"admins": admins})
}

func (s *Server) handleSessionMessage(w http.ResponseWriter, r *http.Request) {
	addr := r.URL.Query().Get("address")
	if !common.IsHexAddress(addr) {
		writeValidation(w, "address is not a valid wallet address")
		return
	}
	msg := fmt.Sprintf("Sign on to Clout Cards with address %s", checksum(addr))
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

func (s *Server) handleTEEPublicKey(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"address":    s.signerAddr.Hex(),
		"teeVersion": s.cfg.TEEVersion,
	})
}

// ---- tables ----

func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tables, err := s.store.ListTables(ctx, s.pool, true)
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := []tableView{}
	for _, t := range tables {
		sessions, err := s.store.ActiveSessions(ctx, s.pool, t.ID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		live, err := s.store.LiveHand(ctx, s.pool, t.ID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		var liveID *int64
		if live != nil {
			liveID = &live.ID
		}
		lastCompleted, err := s.store.LastHandCompletedAt(ctx, s.pool, t.ID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		out = append(out, newTableView(t, len(sessions), liveID, lastCompleted))
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": out})
}

func (s *Server) handleCreateTable(w http.ResponseWriter, r *http.Request, admin string) {
	var body struct {
		Name                  string `json:"name"`
		MinimumBuyIn          string `json:"minimumBuyIn"`
		MaximumBuyIn          string `json:"maximumBuyIn"`
		SmallBlind            string `json:"smallBlind"`
		BigBlind              string `json:"bigBlind"`
		PerHandRake           int    `json:"perHandRake"`
		MaxSeatCount          int    `json:"maxSeatCount"`
		ActionTimeoutSeconds  int    `json:"actionTimeoutSeconds"`
		HandStartDelaySeconds int    `json:"handStartDelaySeconds"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, err)
		return
	}
	p := poker.CreateTableParams{
		Name:                  body.Name,
		PerHandRake:           body.PerHandRake,
		MaxSeatCount:          body.MaxSeatCount,
		ActionTimeoutSeconds:  body.ActionTimeoutSeconds,
		HandStartDelaySeconds: body.HandStartDelaySeconds,
	}
	if body.ActionTimeoutSeconds == 0 {
		p.ActionTimeoutSeconds = 30
	}
	if body.HandStartDelaySeconds == 0 {
		p.HandStartDelaySeconds = 5
	}
	var err error
	if p.MinimumBuyIn, err = parseGwei(body.MinimumBuyIn); err != nil {
		s.writeError(w, err)
		return
	}
	if p.MaximumBuyIn, err = parseGwei(body.MaximumBuyIn); err != nil {
		s.writeError(w, err)
		return
	}
	if p.SmallBlind, err = parseGwei(body.SmallBlind); err != nil {
		s.writeError(w, err)
		return
	}
	if p.BigBlind, err = parseGwei(body.BigBlind); err != nil {
		s.writeError(w, err)
		return
	}
	t, err := s.svc.CreateTable(r.Context(), admin, p)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newTableView(t, 0, nil, nil))
}

func (s *Server) handleTableStatus(w http.ResponseWriter, r *http.Request, admin string) {
	id, err := pathInt64(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	var body struct {
		IsActive bool `json:"isActive"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, err)
		return
	}
	t, err := s.svc.SetTableActive(r.Context(), admin, id, body.IsActive)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newTableView(t, 0, nil, nil))
}

func (s *Server) handleTablePlayers(w http.ResponseWriter, r *http.Request) {
	tableID, err := queryInt64(r, "tableId")
	if err != nil {
		s.writeError(w, err)
		return
	}
	sessions, err := s.store.ActiveSessions(r.Context(), s.pool, tableID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := []sessionView{}
	for _, sess := range sessions {
		out = append(out, newSessionView(sess))
	}
	writeJSON(w, http.StatusOK, map[string]any{"players": out})
}

// ---- seating ----

func (s *Server) handleJoinTable(w http.ResponseWriter, r *http.Request, wallet string) {
	var body struct {
		TableID          int64  `json:"tableId"`
		SeatNumber       int    `json:"seatNumber"`
		BuyInAmountGwei  string `json:"buyInAmountGwei"`
		TwitterHandle    string `json:"twitterHandle"`
		TwitterAvatarURL string `json:"twitterAvatarUrl"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, err)
		return
	}
	buyIn, err := parseGwei(body.BuyInAmountGwei)
	if err != nil {
		s.writeError(w, err)
		return
	}
	sess, err := s.svc.JoinTable(r.Context(), wallet, poker.JoinParams{
		TableID:          body.TableID,
		SeatNumber:       body.SeatNumber,
		BuyInGwei:        buyIn,
		TwitterHandle:    body.TwitterHandle,
		TwitterAvatarURL: body.TwitterAvatarURL,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newSessionView(sess))
}

func (s *Server) handleStandUp(w http.ResponseWriter, r *http.Request, wallet string) {
	var body struct {
		TableID int64 `json:"tableId"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.svc.StandUp(r.Context(), wallet, body.TableID); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "left"})
}

func (s *Server) handleRebuy(w http.ResponseWriter, r *http.Request, wallet string) {
	var body struct {
		TableID    int64  `json:"tableId"`
		AmountGwei string `json:"amountGwei"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, err)
		return
	}
	amount, err := parseGwei(body.AmountGwei)
	if err != nil {
		s.writeError(w, err)
		return
	}
	sess, err := s.svc.Rebuy(r.Context(), wallet, body.TableID, amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionView(sess))
}

// ---- hand play ----

var actionSet = map[poker.ActionType]bool{
	poker.ActionFold:  true,
	poker.ActionCheck: true,
	poker.ActionCall:  true,
	poker.ActionBet:   true,
	poker.ActionRaise: true,
	poker.ActionAllIn: true,
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request, wallet string) {
	var body struct {
		TableID    int64  `json:"tableId"`
		Action     string `json:"action"`
		AmountGwei string `json:"amountGwei"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, err)
		return
	}
	action := poker.ActionType(strings.ToUpper(body.Action))
	if !actionSet[action] {
		writeValidation(w, fmt.Sprintf("unknown action %q", body.Action))
		return
	}
	var amount uint64
	if action == poker.ActionBet || action == poker.ActionRaise {
		var err error
		if amount, err = parseGwei(body.AmountGwei); err != nil {
			s.writeError(w, err)
			return
		}
	}
	if err := s.svc.Act(r.Context(), wallet, body.TableID, action, amount); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "applied"})
}

func (s *Server) renderCurrentHand(w http.ResponseWriter, r *http.Request, viewer string) {
	ctx := r.Context()
	tableID, err := queryInt64(r, "tableId")
	if err != nil {
		s.writeError(w, err)
		return
	}
	h, err := s.store.LiveHand(ctx, s.pool, tableID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if h == nil {
		s.writeError(w, faults.NotFoundf("table %d has no live hand", tableID))
		return
	}
	players, err := s.store.HandPlayers(ctx, s.pool, h.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	pots, err := s.store.HandPots(ctx, s.pool, h.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	actions, err := s.store.HandActions(ctx, s.pool, h.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newHandView(h, players, pots, actions, viewer))
}

func (s *Server) handleCurrentHand(w http.ResponseWriter, r *http.Request) {
	s.renderCurrentHand(w, r, requestWallet(r))
}

// handleWatchCurrentHand is the spectator view: never any hole cards.
func (s *Server) handleWatchCurrentHand(w http.ResponseWriter, r *http.Request) {
	s.renderCurrentHand(w, r, "")
}

// ---- escrow ----

func (s *Server) handleEscrowBalance(w http.ResponseWriter, r *http.Request) {
	addr := r.URL.Query().Get("walletAddress")
	if !common.IsHexAddress(addr) {
		writeValidation(w, "walletAddress is not a valid wallet address")
		return
	}
	b, err := s.ledger.Get(r.Context(), s.pool, addr)
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp := map[string]any{
		"walletAddress":     checksum(b.WalletAddress),
		"balanceGwei":       b.BalanceGwei.Dec(),
		"pendingWithdrawal": b.PendingWithdrawal(time.Now()),
	}
	if b.NextWithdrawalNonce != nil {
		resp["nextWithdrawalNonce"] = b.NextWithdrawalNonce.String()
	}
	if b.WithdrawalSignatureExpiry != nil {
		resp["withdrawalSignatureExpiry"] = ts(*b.WithdrawalSignatureExpiry)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSignWithdrawal(w http.ResponseWriter, r *http.Request, wallet string) {
	if s.withdrawals == nil {
		writeValidation(w, "withdrawals are disabled: no escrow contract configured")
		return
	}
	var body struct {
		ToAddress     string `json:"toAddress"`
		AmountGwei    string `json:"amountGwei"`
		ExpirySeconds int64  `json:"expirySeconds"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, err)
		return
	}
	amount, err := uint256.FromDecimal(body.AmountGwei)
	if err != nil {
		writeValidation(w, fmt.Sprintf("amountGwei %q is not a decimal amount", body.AmountGwei))
		return
	}
	to := body.ToAddress
	if to == "" {
		to = wallet
	}
	expiry := body.ExpirySeconds
	if expiry <= 0 {
		expiry = 3600
	}
	auth, err := s.withdrawals.SignWithdrawal(r.Context(), wallet, to, amount, expiry)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"nonce":  auth.Nonce.String(),
		"expiry": ts(auth.Expiry),
		"v":      auth.V,
		"r":      "0x" + fmt.Sprintf("%064x", auth.R),
		"s":      "0x" + fmt.Sprintf("%064x", auth.S),
	})
}

// ---- events & verification ----

func (s *Server) eventViews(evs []*evtlog.Event) []eventView {
	out := make([]eventView, 0, len(evs))
	for _, ev := range evs {
		out = append(out, newEventView(ev, s.log.Verify(ev) == nil))
	}
	return out
}

func (s *Server) handleAdminEvents(w http.ResponseWriter, r *http.Request, _ string) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			writeValidation(w, "limit must be 1..1000")
			return
		}
		limit = n
	}
	evs, err := s.log.Tail(r.Context(), s.pool, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": s.eventViews(evs)})
}

func (s *Server) handleVerifyEvents(w http.ResponseWriter, r *http.Request) {
	page, limit := 0, 50
	if v := r.URL.Query().Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeValidation(w, "page must be a non-negative number")
			return
		}
		page = n
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 200 {
			writeValidation(w, "limit must be 1..200")
			return
		}
		limit = n
	}
	evs, total, err := s.log.Page(r.Context(), s.pool, page*limit, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events": s.eventViews(evs),
		"page":   page,
		"limit":  limit,
		"total":  total,
	})
}

func (s *Server) handleHandEvents(w http.ResponseWriter, r *http.Request) {
	handID, err := pathInt64(r, "handId")
	if err != nil {
		s.writeError(w, err)
		return
	}
	evs, err := s.log.ByHand(r.Context(), s.pool, handID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": s.eventViews(evs)})
}

func (s *Server) handleHandHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tableID, err := pathInt64(r, "tableId")
	if err != nil {
		s.writeError(w, err)
		return
	}
	rows, err := s.pool.Query(ctx, `SELECT id FROM hands
		WHERE table_id = $1 AND status = 'COMPLETED' ORDER BY id DESC LIMIT 20`, tableID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			s.writeError(w, err)
			return
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		s.writeError(w, err)
		return
	}

	hands := []handView{}
	for _, id := range ids {
		h, err := s.store.HandByID(ctx, s.pool, id)
		if err != nil {
			s.writeError(w, err)
			return
		}
		players, err := s.store.HandPlayers(ctx, s.pool, id)
		if err != nil {
			s.writeError(w, err)
			return
		}
		pots, err := s.store.HandPots(ctx, s.pool, id)
		if err != nil {
			s.writeError(w, err)
			return
		}
		actions, err := s.store.HandActions(ctx, s.pool, id)
		if err != nil {
			s.writeError(w, err)
			return
		}
		hands = append(hands, newHandView(h, players, pots, actions, ""))
	}
	writeJSON(w, http.StatusOK, map[string]any{"hands": hands})
}

// ---- admin chain ops ----

func (s *Server) handleReprocessEvents(w http.ResponseWriter, r *http.Request, _ string) {
	if s.bridge == nil {
		writeValidation(w, "chain listener is disabled: no escrow contract configured")
		return
	}
	var body struct {
		FromBlock uint64  `json:"fromBlock"`
		ToBlock   *uint64 `json:"toBlock"`
		DryRun    bool    `json:"dryRun"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, err)
		return
	}
	summary, err := s.bridge.ReprocessEvents(r.Context(), body.FromBlock, body.ToBlock, body.DryRun)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleResetLeaderboard(w http.ResponseWriter, r *http.Request, admin string) {
	if err := s.svc.ResetLeaderboard(r.Context(), admin); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// ---- accounting & aggregates ----

func (s *Server) handleSolvency(w http.ResponseWriter, r *http.Request, _ string) {
	ctx := r.Context()
	totalEscrow, err := s.ledger.TotalEscrow(ctx, s.pool)
	if err != nil {
		s.writeError(w, err)
		return
	}
	totalTable, err := s.svc.TotalTableBalances(ctx, s.pool)
	if err != nil {
		s.writeError(w, err)
		return
	}
	liabilities := new(big.Int).Add(totalEscrow.ToBig(), totalTable.ToBig())

	resp := map[string]any{
		"totalEscrowGwei":      totalEscrow.Dec(),
		"totalTableGwei":       totalTable.Dec(),
		"totalLiabilitiesGwei": liabilities.String(),
	}
	if s.contract != nil {
		onChain, err := s.contract.OnChainBalanceGwei(ctx)
		if err != nil {
			s.writeError(w, err)
			return
		}
		resp["contractBalanceGwei"] = onChain.String()
		resp["differenceGwei"] = new(big.Int).Sub(onChain, liabilities).String()
		resp["solvent"] = onChain.Cmp(liabilities) >= 0
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleVerifyStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var totalEvents, totalTables, handsCompleted, distinctPlayers int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM events`).Scan(&totalEvents); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM poker_tables`).Scan(&totalTables); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM hands WHERE status = 'COMPLETED'`).Scan(&handsCompleted); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.pool.QueryRow(ctx, `SELECT count(DISTINCT player) FROM events WHERE player IS NOT NULL`).Scan(&distinctPlayers); err != nil {
		s.writeError(w, err)
		return
	}

	// Signature ratio over the most recent window; full-log verification
	// is what /api/verify/events pagination is for.
	recent, err := s.log.Tail(ctx, s.pool, 200)
	if err != nil {
		s.writeError(w, err)
		return
	}
	valid := 0
	for _, ev := range recent {
		if s.log.Verify(ev) == nil {
			valid++
		}
	}
	ratio := 1.0
	if len(recent) > 0 {
		ratio = float64(valid) / float64(len(recent))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"totalEvents":         totalEvents,
		"totalTables":         totalTables,
		"handsCompleted":      handsCompleted,
		"distinctPlayers":     distinctPlayers,
		"signatureSampleSize": len(recent),
		"signatureValidRatio": ratio,
	})
}

func (s *Server) handleVerifyActivity(w http.ResponseWriter, r *http.Request) {
	rows, err := s.pool.Query(r.Context(), `
		SELECT h.id, h.table_id, t.name, h.completed_at,
		       COALESCE((SELECT sum(p.amount) FROM pots p WHERE p.hand_id = h.id), 0)
		FROM hands h JOIN poker_tables t ON t.id = h.table_id
		WHERE h.status = 'COMPLETED'
		ORDER BY h.id DESC LIMIT 20`)
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer rows.Close()

	type activityRow struct {
		HandID      int64  `json:"handId"`
		TableID     int64  `json:"tableId"`
		TableName   string `json:"tableName"`
		CompletedAt string `json:"completedAt"`
		TotalPot    string `json:"totalPotGwei"`
	}
	out := []activityRow{}
	for rows.Next() {
		var (
			row         activityRow
			completedAt *time.Time
			pot         int64
		)
		if err := rows.Scan(&row.HandID, &row.TableID, &row.TableName, &completedAt, &pot); err != nil {
			s.writeError(w, err)
			return
		}
		if completedAt != nil {
			row.CompletedAt = ts(*completedAt)
		}
		row.TotalPot = strconv.FormatInt(pot, 10)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"recentHands": out})
}

// handleLeaderboard aggregates hand_end winnings per wallet since the last
// leaderboard_reset event.
func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var resetID int64
	err := s.pool.QueryRow(ctx, `SELECT COALESCE(max(event_id), 0) FROM events
		WHERE kind = $1`, evtlog.KindLeaderboardReset).Scan(&resetID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	rows, err := s.pool.Query(ctx, `
		SELECT w->>'walletAddress' AS wallet,
		       sum((w->>'amountWon')::numeric)::text AS won,
		       count(DISTINCT e.event_id) AS hands
		FROM events e,
		     jsonb_array_elements(e.payload_json::jsonb->'pots') p,
		     jsonb_array_elements(p->'winners') w
		WHERE e.kind = $1 AND e.event_id > $2
		GROUP BY 1 ORDER BY sum((w->>'amountWon')::numeric) DESC LIMIT 50`,
		evtlog.KindHandEnd, resetID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer rows.Close()

	type standing struct {
		WalletAddress string `json:"walletAddress"`
		TotalWonGwei  string `json:"totalWonGwei"`
		HandsWon      int64  `json:"handsWon"`
	}
	out := []standing{}
	for rows.Next() {
		var st standing
		if err := rows.Scan(&st.WalletAddress, &st.TotalWonGwei, &st.HandsWon); err != nil {
			s.writeError(w, err)
			return
		}
		st.WalletAddress = checksum(st.WalletAddress)
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sinceEventId": resetID, "standings": out})
}
