package hrest

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/Izanagi078/Final-Work/internal/domain"
	"github.com/Izanagi078/Final-Work/internal/usecase"
	"github.com/Izanagi078/Final-Work/pkg/response"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type LedgerRestHandler struct {
	accountUC *usecase.AccountUsecase
	engine    *usecase.LedgerEngine
	logger    *zap.Logger
}

func NewLedgerRestHandler(accountUC *usecase.AccountUsecase, engine *usecase.LedgerEngine, logger *zap.Logger) *LedgerRestHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerRestHandler{accountUC: accountUC, engine: engine, logger: logger}
}

// RouterOptions configures the pieces of the router that come from config.
type RouterOptions struct {
	Redis           *redis.Client
	LoginRateLimit  int
	LoginRateWindow time.Duration
	LoginBlockFor   time.Duration
	RequestTimeout  time.Duration
}

func NewRouter(h *LedgerRestHandler, auth *AuthMiddleware, opts RouterOptions) chi.Router {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(opts.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Admin-Key"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		api.Post("/accounts", h.OpenAccount)

		api.With(RateLimiter(opts.Redis, opts.LoginRateLimit, opts.LoginRateWindow, opts.LoginBlockFor, "ledger_login")).
			Post("/auth/login", h.Login)

		api.Route("/accounts/{acc}", func(g chi.Router) {
			g.Use(auth.RequireAccount)

			g.Get("/", h.GetAccount)
			g.Get("/transactions", h.History)
			g.Get("/transactions/recent", h.RecentHistory)

			g.Post("/deposit", h.Deposit)
			g.Post("/withdraw", h.Withdraw)
			g.Post("/transfer", h.Transfer)

			g.Post("/loans", h.TakeLoan)
			g.Post("/loans/repay", h.ReturnLoan)
			g.Get("/loans/eligibility", h.CheckEligibility)

			g.Post("/pin/verify", h.VerifyPin)
		})

		api.Route("/admin", func(g chi.Router) {
			g.Use(auth.RequireAdmin)
			g.Delete("/accounts/{acc}", h.PurgeAccount)
		})
	})

	return r
}

func (h *LedgerRestHandler) Health(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ===============================
// ACCOUNTS
// ===============================

func (h *LedgerRestHandler) OpenAccount(w http.ResponseWriter, r *http.Request) {
	var in domain.OpenAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	opened, err := h.accountUC.OpenAccount(r.Context(), &in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSONMessage(w, http.StatusCreated, "Keep your PIN safe, it will not be shown again", opened)
}

type loginJSON struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *LedgerRestHandler) Login(w http.ResponseWriter, r *http.Request) {
	var in loginJSON
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Email == "" || in.Password == "" {
		response.Error(w, http.StatusBadRequest, "email and password are required")
		return
	}
	session, err := h.accountUC.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, session)
}

func (h *LedgerRestHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	acc, err := h.accountUC.GetAccount(r.Context(), chi.URLParam(r, "acc"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, acc)
}

func (h *LedgerRestHandler) History(w http.ResponseWriter, r *http.Request) {
	txns, err := h.accountUC.History(r.Context(), chi.URLParam(r, "acc"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, txns)
}

func (h *LedgerRestHandler) RecentHistory(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, h.accountUC.RecentFromCache(chi.URLParam(r, "acc")))
}

type pinJSON struct {
	Pin string `json:"pin"`
}

func (h *LedgerRestHandler) VerifyPin(w http.ResponseWriter, r *http.Request) {
	var in pinJSON
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.accountUC.VerifyPin(r.Context(), chi.URLParam(r, "acc"), in.Pin); err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSONMessage(w, http.StatusOK, "PIN verified", nil)
}

func (h *LedgerRestHandler) PurgeAccount(w http.ResponseWriter, r *http.Request) {
	accNo := chi.URLParam(r, "acc")
	if err := h.accountUC.Purge(r.Context(), accNo); err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSONMessage(w, http.StatusOK, "account "+accNo+" purged", nil)
}

// ===============================
// MONEY MOVEMENTS
// ===============================

type amountJSON struct {
	Amount decimal.Decimal `json:"amount"`
}

type transferJSON struct {
	To     string          `json:"to"`
	Amount decimal.Decimal `json:"amount"`
}

func decodeAmount(w http.ResponseWriter, r *http.Request) (decimal.Decimal, bool) {
	var in amountJSON
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.Error(w, http.StatusBadRequest, "amount must be a number")
		return decimal.Zero, false
	}
	return in.Amount, true
}

func (h *LedgerRestHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	amount, ok := decodeAmount(w, r)
	if !ok {
		return
	}
	res, err := h.engine.Deposit(r.Context(), chi.URLParam(r, "acc"), amount)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSONMessage(w, http.StatusOK, "Deposit successful", res)
}

func (h *LedgerRestHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	amount, ok := decodeAmount(w, r)
	if !ok {
		return
	}
	res, err := h.engine.Withdraw(r.Context(), chi.URLParam(r, "acc"), amount)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSONMessage(w, http.StatusOK, "Withdrawal successful", res)
}

func (h *LedgerRestHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var in transferJSON
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.To == "" {
		response.Error(w, http.StatusBadRequest, "to and amount are required")
		return
	}
	res, err := h.engine.Transfer(r.Context(), chi.URLParam(r, "acc"), in.To, in.Amount)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSONMessage(w, http.StatusOK, "Transfer successful", res)
}

func (h *LedgerRestHandler) TakeLoan(w http.ResponseWriter, r *http.Request) {
	amount, ok := decodeAmount(w, r)
	if !ok {
		return
	}
	res, err := h.engine.TakeLoan(r.Context(), chi.URLParam(r, "acc"), amount)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSONMessage(w, http.StatusOK, "Loan approved", map[string]any{
		"result":        res.MutationResult,
		"interest_rate": res.InterestRate,
		"max_loan":      res.MaxLoan,
	})
}

func (h *LedgerRestHandler) ReturnLoan(w http.ResponseWriter, r *http.Request) {
	amount, ok := decodeAmount(w, r)
	if !ok {
		return
	}
	res, err := h.engine.ReturnLoan(r.Context(), chi.URLParam(r, "acc"), amount)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSONMessage(w, http.StatusOK, "Loan repayment successful", res)
}

func (h *LedgerRestHandler) CheckEligibility(w http.ResponseWriter, r *http.Request) {
	amount, err := decimal.NewFromString(r.URL.Query().Get("amount"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "amount query parameter must be a number")
		return
	}
	elig, err := h.engine.CheckEligibility(r.Context(), chi.URLParam(r, "acc"), amount)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, elig)
}
