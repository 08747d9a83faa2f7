package httpapi

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"bcexplorer/internal/application"
	"bcexplorer/internal/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

//go:embed templates/*.html
var templateFS embed.FS

// HistoryPinger reports whether the lookup history backend is reachable.
type HistoryPinger interface {
	Ping(ctx context.Context) error
}

// CacheInvalidator drops cached provider responses.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

type Server struct {
	explorer  *application.Explorer
	history   HistoryPinger
	cache     CacheInvalidator
	metrics   *Metrics
	buildInfo BuildInfo
	pages     *template.Template
}

func NewServer(explorer *application.Explorer, history HistoryPinger, cache CacheInvalidator, metrics *Metrics, buildInfo BuildInfo) (*Server, error) {
	if explorer == nil {
		return nil, errors.New("explorer is required")
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	pages, err := template.New("").Funcs(template.FuncMap{
		"txURL":     txURL,
		"blockURL":  blockURL,
		"lookupURL": lookupURL,
		"deref":     deref,
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &Server{explorer: explorer, history: history, cache: cache, metrics: metrics, buildInfo: buildInfo, pages: pages}, nil
}

func (s *Server) MetricsObserver() *Metrics {
	return s.metrics
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/block-number", s.handleAPIBlockNumber)
	mux.HandleFunc("/api/block", s.handleAPIBlock)
	mux.HandleFunc("/api/tx", s.handleAPITransaction)
	mux.HandleFunc("/api/balance", s.handleAPIBalance)
	mux.HandleFunc("/api/lookups", s.handleAPILookups)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/version", s.handleVersion)
	mux.HandleFunc("/cache/invalidate", s.handleCacheInvalidate)
	return mux
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type blockPage struct {
	Input            string
	Number           application.SectionState[uint64]
	Block            application.SectionState[domain.Block]
	TransactionsOpen bool
	Transactions     application.SectionState[[]domain.Transaction]
	ToggleURL        string
}

type transactionPage struct {
	Hash             string
	Transaction      application.SectionState[domain.Transaction]
	Head             application.SectionState[uint64]
	Confirmations    uint64
	HasConfirmations bool
}

type userPage struct {
	Address string
	Balance application.SectionState[domain.Balance]
}

type page struct {
	Title       string
	View        string
	Block       *blockPage
	Transaction *transactionPage
	User        *userPage
	Recent      application.SectionState[[]domain.Lookup]
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if !allowGet(w, r) {
		return
	}

	query := r.URL.Query()
	view := "block"
	switch {
	case query.Has("tx"):
		view = "transaction"
	case query.Get("page") == "user":
		view = "user"
	}

	ctx, span := otel.Tracer("bcexplorer/httpapi").Start(r.Context(), "page."+view, trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()
	span.SetAttributes(attribute.String("page.view", view))

	var data page
	switch view {
	case "transaction":
		data = s.transactionPage(ctx, query.Get("tx"))
	case "user":
		data = s.userPage(ctx, query)
	default:
		data = s.blockPage(ctx, query)
	}
	data.View = view

	var buf bytes.Buffer
	if err := s.pages.ExecuteTemplate(&buf, "page", data); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("render page failed", "view", view, "err", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	s.metrics.OnPageRender(view)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func (s *Server) blockPage(ctx context.Context, query url.Values) page {
	view := s.explorer.BlockView(ctx, application.BlockViewRequest{
		Block:            query.Get("block"),
		ShowTransactions: query.Get("txs") == "open",
	})
	bp := &blockPage{
		Input:            query.Get("block"),
		Number:           view.Number.Snapshot(),
		Block:            view.Block.Snapshot(),
		TransactionsOpen: view.Transactions.IsOpen(),
		Transactions:     view.Transactions.Snapshot(),
	}
	if bp.Block.Loaded {
		bp.ToggleURL = disclosureURL(bp.Block.Value.Number, !bp.TransactionsOpen)
	}
	title := "Latest block"
	if view.Requested != nil {
		title = "Block " + strconv.FormatUint(*view.Requested, 10)
	}
	return page{Title: title, Block: bp, Recent: view.Recent.Snapshot()}
}

func (s *Server) transactionPage(ctx context.Context, hash string) page {
	view := s.explorer.TransactionView(ctx, hash)
	tp := &transactionPage{
		Hash:        hash,
		Transaction: view.Transaction.Snapshot(),
		Head:        view.Head.Snapshot(),
	}
	tp.Confirmations, tp.HasConfirmations = view.Confirmations()
	return page{Title: "Transaction", Transaction: tp, Recent: view.Recent.Snapshot()}
}

func (s *Server) userPage(ctx context.Context, query url.Values) page {
	address := query.Get("address")
	view := s.explorer.BalanceView(ctx, address, query.Has("address"))
	return page{
		Title:  "Balance",
		User:   &userPage{Address: address, Balance: view.Balance.Snapshot()},
		Recent: view.Recent.Snapshot(),
	}
}

func (s *Server) handleAPIBlockNumber(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	number, err := s.explorer.BlockNumber(r.Context())
	if err != nil {
		s.respondLookupError(w, "block-number", err)
		return
	}
	s.respondAPI(w, "block-number", map[string]uint64{"number": number})
}

func (s *Server) handleAPIBlock(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	query := r.URL.Query()
	full, err := parseBool(query.Get("full"))
	if err != nil {
		s.metrics.OnAPIRequest("block", http.StatusBadRequest)
		respondError(w, http.StatusBadRequest, "invalid full flag")
		return
	}
	block, err := s.explorer.LookupBlock(r.Context(), query.Get("number"), full)
	if err != nil {
		s.respondLookupError(w, "block", err)
		return
	}
	s.respondAPI(w, "block", block.Fields)
}

func (s *Server) handleAPITransaction(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	tx, err := s.explorer.Transaction(r.Context(), r.URL.Query().Get("hash"))
	if err != nil {
		s.respondLookupError(w, "tx", err)
		return
	}
	s.respondAPI(w, "tx", tx.Fields)
}

func (s *Server) handleAPIBalance(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	balance, err := s.explorer.Balance(r.Context(), r.URL.Query().Get("address"))
	if err != nil {
		s.respondLookupError(w, "balance", err)
		return
	}
	s.respondAPI(w, "balance", map[string]string{
		"address": balance.Address,
		"wei":     balance.WeiString(),
		"ether":   balance.Ether(),
	})
}

func (s *Server) handleAPILookups(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	filter, err := parseLookupFilter(r)
	if err != nil {
		s.metrics.OnAPIRequest("lookups", http.StatusBadRequest)
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	lookups, err := s.explorer.LookupHistory(r.Context(), filter)
	if err != nil {
		slog.Error("query lookups failed", "err", err)
		s.metrics.OnAPIRequest("lookups", http.StatusInternalServerError)
		respondError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if lookups == nil {
		lookups = []domain.Lookup{}
	}
	s.respondAPI(w, "lookups", lookups)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if s.history != nil {
		if err := s.history.Ping(ctx); err != nil {
			respondError(w, http.StatusServiceUnavailable, "history not ready")
			return
		}
	}
	if _, err := s.explorer.BlockNumber(ctx); err != nil {
		respondError(w, http.StatusServiceUnavailable, "rpc not ready")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	s.metrics.Snapshot().WriteText(w)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.buildInfo)
}

func (s *Server) handleCacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.cache == nil {
		respondError(w, http.StatusNotFound, "cache disabled")
		return
	}
	if err := s.cache.Invalidate(r.Context()); err != nil {
		slog.Error("cache invalidate failed", "err", err)
		respondError(w, http.StatusInternalServerError, "failed to invalidate cache")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondAPI(w http.ResponseWriter, endpoint string, payload any) {
	s.metrics.OnAPIRequest(endpoint, http.StatusOK)
	respondJSON(w, http.StatusOK, payload)
}

func (s *Server) respondLookupError(w http.ResponseWriter, endpoint string, err error) {
	status := statusFor(err)
	s.metrics.OnAPIRequest(endpoint, status)
	if status >= http.StatusInternalServerError {
		slog.Warn("provider lookup failed", "endpoint", endpoint, "err", err)
	}
	respondError(w, status, application.Describe(err))
}

func statusFor(err error) int {
	switch {
	case application.IsInputError(err):
		return http.StatusBadRequest
	case isNotFound(err):
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}

func parseLookupFilter(r *http.Request) (application.LookupQueryFilter, error) {
	query := r.URL.Query()
	kind, err := application.ParseLookupKind(query.Get("kind"))
	if err != nil {
		return application.LookupQueryFilter{}, err
	}
	limit := 0
	if raw := query.Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return application.LookupQueryFilter{}, errors.New("invalid limit")
		}
	}
	return application.LookupQueryFilter{Kind: kind, Limit: limit}, nil
}

func parseBool(raw string) (bool, error) {
	if raw == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}

func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return true
	}
	w.Header().Set("Allow", "GET, HEAD")
	respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

func txURL(hash string) string {
	return "/?" + url.Values{"tx": {hash}}.Encode()
}

func blockURL(number uint64) string {
	return "/?block=" + strconv.FormatUint(number, 10)
}

func disclosureURL(number uint64, open bool) string {
	if open {
		return blockURL(number) + "&txs=open"
	}
	return blockURL(number)
}

func lookupURL(lookup domain.Lookup) string {
	switch lookup.Kind {
	case domain.LookupBlock:
		return "/?" + url.Values{"block": {lookup.Key}}.Encode()
	case domain.LookupTransaction:
		return txURL(lookup.Key)
	case domain.LookupBalance:
		return "/?page=user&address=" + url.QueryEscape(lookup.Key)
	default:
		return "/"
	}
}

func deref(value *uint64) uint64 {
	if value == nil {
		return 0
	}
	return *value
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
