// Package handler содержит HTTP-обработчики API сервиса парктрек.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/parktrack/parktrack-system/internal/middleware"
	"github.com/parktrack/parktrack-system/internal/model"
	"github.com/parktrack/parktrack-system/internal/qrtoken"
	"github.com/parktrack/parktrack-system/internal/repository"
	"github.com/parktrack/parktrack-system/internal/service"
	"github.com/parktrack/parktrack-system/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, login, password, fullName, vehicleNumber string, vip bool) (int64, error)
	AuthenticateUser(ctx context.Context, login, password string) (*model.User, error)
	CreateQRToken(ctx context.Context, userID int64, qrType qrtoken.QRType) (string, error)
	RegisterEntry(ctx context.Context, token string, lotID int64, rateType model.RateType) (*model.ParkingTransaction, error)
	RegisterExit(ctx context.Context, token string) (*model.ParkingTransaction, error)
	GetTransactionsByOwner(ctx context.Context, ownerID int64) ([]model.ParkingTransaction, error)
	GetOwnTransaction(ctx context.Context, ownerID, transactionID int64) (*model.ParkingTransaction, error)
	CreateRate(ctx context.Context, p *model.RateProfile) (int64, error)
	EstimateCharge(ctx context.Context, lotID int64, rateType model.RateType, hours float64, isVIP bool) (float64, error)
	GenerateMonthlyInvoice(ctx context.Context, ownerID int64, month, year int) (*model.Invoice, error)
	GenerateMonthlyInvoices(ctx context.Context, month, year int) (int, error)
	ListPendingInvoices(ctx context.Context, ownerID int64) ([]model.Invoice, error)
	ProcessOverdueInvoices(ctx context.Context) (int, error)
}

// Handler реализует HTTP-обработчики API сервиса парктрек.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

type registerRequest struct {
	Login         string `json:"login"`
	Password      string `json:"password"`
	FullName      string `json:"full_name"`
	VehicleNumber string `json:"vehicle_number"`
	VIP           bool   `json:"vip"`
}

// Register обрабатывает регистрацию нового водителя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	plate := validation.NormalizePlate(req.VehicleNumber)
	if !validation.IsValidPlate(plate) {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	userID, err := h.service.RegisterUser(r.Context(), req.Login, req.Password, req.FullName, plate, req.VIP)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
			return
		}
		h.logger.Error("register user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID, model.UserRoleDriver)
	w.WriteHeader(http.StatusOK)
}

type credentialsRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// Login выполняет аутентификацию пользователя и установку cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	u, err := h.service.AuthenticateUser(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) || errors.Is(err, service.ErrInvalidCredentials) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.logger.Error("login user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, u.ID, u.Role)
	w.WriteHeader(http.StatusOK)
}

type createQRRequest struct {
	QRType string `json:"qr_type"`
}

type createQRResponse struct {
	Token string `json:"token"`
}

// CreateQR выпускает QR-токен въезда или выезда для текущего пользователя.
func (h *Handler) CreateQR(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req createQRRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	qrType := qrtoken.QRType(req.QRType)
	if qrType != qrtoken.QRTypeEntry && qrType != qrtoken.QRTypeExit {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	token, err := h.service.CreateQRToken(r.Context(), userID, qrType)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("create qr token error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, h.logger, createQRResponse{Token: token})
}

func (h *Handler) writeTokenError(w http.ResponseWriter, err error) bool {
	switch {
	case errors.Is(err, service.ErrTokenInvalidFormat), errors.Is(err, service.ErrWrongTokenType):
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
	case errors.Is(err, service.ErrTokenExpired):
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
	case errors.Is(err, service.ErrTokenHashMismatch):
		// Несовпадение подписи — возможная подделка токена.
		h.logger.Warn("qr token hash mismatch")
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
	default:
		return false
	}
	return true
}

type entryRequest struct {
	Token    string `json:"token"`
	LotID    int64  `json:"lot_id"`
	RateType string `json:"rate_type"`
}

type transactionResponse struct {
	ID              int64   `json:"id"`
	LotID           int64   `json:"lot_id"`
	VehicleNumber   string  `json:"vehicle_number"`
	EntryTime       string  `json:"entry_time"`
	ExitTime        *string `json:"exit_time,omitempty"`
	DurationMinutes int64   `json:"duration_minutes"`
	RateType        string  `json:"rate_type"`
	ChargeAmount    float64 `json:"charge_amount"`
	Status          string  `json:"status"`
	PaymentStatus   string  `json:"payment_status"`
}

func toTransactionResponse(t *model.ParkingTransaction) transactionResponse {
	resp := transactionResponse{
		ID:              t.ID,
		LotID:           t.LotID,
		VehicleNumber:   t.VehicleNumber,
		EntryTime:       t.EntryTime.Format(time.RFC3339),
		DurationMinutes: t.DurationMinutes,
		RateType:        string(t.RateType),
		ChargeAmount:    t.ChargeAmount,
		Status:          string(t.Status),
		PaymentStatus:   string(t.PaymentStatus),
	}
	if t.ExitTime != nil {
		v := t.ExitTime.Format(time.RFC3339)
		resp.ExitTime = &v
	}
	return resp
}

func parseRateType(v string) (model.RateType, bool) {
	switch model.RateType(v) {
	case model.RateTypeNormal, model.RateTypeVIP, model.RateTypeHourly, model.RateTypeOvernight:
		return model.RateType(v), true
	}
	return "", false
}

// RegisterEntry принимает токен въезда и открывает парковочную транзакцию.
func (h *Handler) RegisterEntry(w http.ResponseWriter, r *http.Request) {
	var req entryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	rateType, ok := parseRateType(req.RateType)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	t, err := h.service.RegisterEntry(r.Context(), req.Token, req.LotID, rateType)
	if err != nil {
		if h.writeTokenError(w, err) {
			return
		}
		if errors.Is(err, repository.ErrActiveTransactionExists) {
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
			return
		}
		h.logger.Error("register entry error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(toTransactionResponse(t)); err != nil {
		h.logger.Error("encode response error", zap.Error(err))
	}
}

type exitRequest struct {
	Token string `json:"token"`
}

// RegisterExit принимает токен выезда, закрывает транзакцию и возвращает
// рассчитанную стоимость.
func (h *Handler) RegisterExit(w http.ResponseWriter, r *http.Request) {
	var req exitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	t, err := h.service.RegisterExit(r.Context(), req.Token)
	if err != nil {
		if h.writeTokenError(w, err) {
			return
		}
		if errors.Is(err, repository.ErrTransactionNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("register exit error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, h.logger, toTransactionResponse(t))
}

// GetTransactions возвращает транзакции текущего пользователя.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	transactions, err := h.service.GetTransactionsByOwner(r.Context(), userID)
	if err != nil {
		h.logger.Error("get transactions error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(transactions) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]transactionResponse, 0, len(transactions))
	for i := range transactions {
		resp = append(resp, toTransactionResponse(&transactions[i]))
	}

	writeJSON(w, h.logger, resp)
}

// GetTransaction возвращает одну транзакцию текущего пользователя.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	t, err := h.service.GetOwnTransaction(r.Context(), userID, id)
	if err != nil {
		if errors.Is(err, repository.ErrTransactionNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get transaction error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, h.logger, toTransactionResponse(t))
}

type estimateResponse struct {
	Amount float64 `json:"amount"`
}

// EstimateCharge возвращает предварительную стоимость парковки на указанное
// число часов.
func (h *Handler) EstimateCharge(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.GetUserIDFromContext(r.Context()); !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	q := r.URL.Query()

	lotID, err := strconv.ParseInt(q.Get("lot_id"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	rateType, ok := parseRateType(q.Get("rate_type"))
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	hours, err := strconv.ParseFloat(q.Get("hours"), 64)
	if err != nil || hours <= 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	isVIP := q.Get("vip") == "true"

	amount, err := h.service.EstimateCharge(r.Context(), lotID, rateType, hours, isVIP)
	if err != nil {
		if errors.Is(err, repository.ErrRateNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("estimate charge error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, h.logger, estimateResponse{Amount: amount})
}

type generateInvoiceRequest struct {
	Month int `json:"month"`
	Year  int `json:"year"`
}

type invoiceResponse struct {
	ID                int64   `json:"id"`
	InvoiceNumber     string  `json:"invoice_number"`
	Month             int     `json:"month"`
	Year              int     `json:"year"`
	FromDate          string  `json:"from_date"`
	ToDate            string  `json:"to_date"`
	TotalTransactions int     `json:"total_transactions"`
	TotalHours        float64 `json:"total_hours"`
	TotalCharges      float64 `json:"total_charges"`
	TotalAmount       float64 `json:"total_amount"`
	PaymentStatus     string  `json:"payment_status"`
	DueDate           string  `json:"due_date"`
	AmountPaid        float64 `json:"amount_paid"`
	TransactionIDs    []int64 `json:"transaction_ids"`
}

func toInvoiceResponse(inv *model.Invoice) invoiceResponse {
	return invoiceResponse{
		ID:                inv.ID,
		InvoiceNumber:     inv.InvoiceNumber,
		Month:             inv.Month,
		Year:              inv.Year,
		FromDate:          inv.FromDate.Format(time.RFC3339),
		ToDate:            inv.ToDate.Format(time.RFC3339),
		TotalTransactions: inv.TotalTransactions,
		TotalHours:        inv.TotalHours,
		TotalCharges:      inv.TotalCharges,
		TotalAmount:       inv.TotalAmount,
		PaymentStatus:     string(inv.PaymentStatus),
		DueDate:           inv.DueDate.Format(time.RFC3339),
		AmountPaid:        inv.AmountPaid,
		TransactionIDs:    inv.TransactionIDs,
	}
}

func validInvoicePeriod(month, year int) bool {
	return month >= 1 && month <= 12 && year >= 2000 && year <= 2200
}

// GenerateInvoice генерирует счёт текущего пользователя за указанный месяц.
func (h *Handler) GenerateInvoice(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req generateInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if !validInvoicePeriod(req.Month, req.Year) {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	inv, err := h.service.GenerateMonthlyInvoice(r.Context(), userID, req.Month, req.Year)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("generate invoice error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, h.logger, toInvoiceResponse(inv))
}

// GetInvoices возвращает неоплаченные счета текущего пользователя.
func (h *Handler) GetInvoices(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	invoices, err := h.service.ListPendingInvoices(r.Context(), userID)
	if err != nil {
		h.logger.Error("get invoices error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(invoices) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]invoiceResponse, 0, len(invoices))
	for i := range invoices {
		resp = append(resp, toInvoiceResponse(&invoices[i]))
	}

	writeJSON(w, h.logger, resp)
}

type generateInvoicesResponse struct {
	Generated int `json:"generated"`
}

// GenerateInvoices генерирует счета за месяц для всех водителей.
func (h *Handler) GenerateInvoices(w http.ResponseWriter, r *http.Request) {
	var req generateInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if !validInvoicePeriod(req.Month, req.Year) {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	count, err := h.service.GenerateMonthlyInvoices(r.Context(), req.Month, req.Year)
	if err != nil {
		h.logger.Error("generate invoices error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, h.logger, generateInvoicesResponse{Generated: count})
}

type rateRequest struct {
	LotID           int64   `json:"lot_id"`
	RateType        string  `json:"rate_type"`
	PricePerHour    float64 `json:"price_per_hour"`
	PricePerDay     float64 `json:"price_per_day"`
	OvernightPrice  float64 `json:"overnight_price"`
	MinCharge       float64 `json:"min_charge"`
	MaxChargePerDay float64 `json:"max_charge_per_day"`
	VIPMultiplier   float64 `json:"vip_multiplier"`
}

type rateResponse struct {
	ID int64 `json:"id"`
}

// CreateRate сохраняет новую версию тарифа парковки.
func (h *Handler) CreateRate(w http.ResponseWriter, r *http.Request) {
	var req rateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	rateType, ok := parseRateType(req.RateType)
	if !ok || req.LotID <= 0 ||
		req.PricePerHour < 0 || req.PricePerDay < 0 || req.OvernightPrice < 0 ||
		req.MinCharge < 0 || req.MaxChargePerDay < 0 || req.VIPMultiplier < 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	id, err := h.service.CreateRate(r.Context(), &model.RateProfile{
		LotID:           req.LotID,
		RateType:        rateType,
		PricePerHour:    req.PricePerHour,
		PricePerDay:     req.PricePerDay,
		OvernightPrice:  req.OvernightPrice,
		MinCharge:       req.MinCharge,
		MaxChargePerDay: req.MaxChargePerDay,
		VIPMultiplier:   req.VIPMultiplier,
		Active:          true,
	})
	if err != nil {
		h.logger.Error("create rate error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(rateResponse{ID: id}); err != nil {
		h.logger.Error("encode response error", zap.Error(err))
	}
}

type processOverdueResponse struct {
	Processed int `json:"processed"`
}

// ProcessOverdue запускает обработку просроченных счетов всех водителей.
func (h *Handler) ProcessOverdue(w http.ResponseWriter, r *http.Request) {
	count, err := h.service.ProcessOverdueInvoices(r.Context())
	if err != nil {
		h.logger.Error("process overdue error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, h.logger, processOverdueResponse{Processed: count})
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("encode response error", zap.Error(err))
	}
}
