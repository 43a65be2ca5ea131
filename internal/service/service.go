// Package service реализует бизнес-логику сервиса парктрек.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/parktrack/parktrack-system/internal/billing"
	"github.com/parktrack/parktrack-system/internal/model"
	"github.com/parktrack/parktrack-system/internal/payment"
	"github.com/parktrack/parktrack-system/internal/qrtoken"
	"github.com/parktrack/parktrack-system/internal/repository"
)

// ErrInvalidCredentials возвращается при неверном логине или пароле.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrTokenInvalidFormat возвращается для токена с нарушенным форматом.
	ErrTokenInvalidFormat = errors.New("qr token has invalid format")
	// ErrTokenExpired возвращается для токена с истёкшим окном приёма.
	ErrTokenExpired = errors.New("qr token expired")
	// ErrTokenHashMismatch возвращается при несовпадении подписи токена.
	ErrTokenHashMismatch = errors.New("qr token hash mismatch")
	// ErrWrongTokenType возвращается, если тип токена не соответствует операции.
	ErrWrongTokenType = errors.New("qr token type mismatch")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateUser(ctx context.Context, u *model.User) (int64, error)
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	ListUsersByRole(ctx context.Context, role model.UserRole) ([]model.User, error)
	GetActiveRate(ctx context.Context, lotID int64, rateType model.RateType) (*model.RateProfile, error)
	CreateRate(ctx context.Context, p *model.RateProfile) (int64, error)
	CreateEntryTransaction(ctx context.Context, t *model.ParkingTransaction) (int64, error)
	GetActiveTransaction(ctx context.Context, ownerID int64) (*model.ParkingTransaction, error)
	GetTransaction(ctx context.Context, id int64) (*model.ParkingTransaction, error)
	CompleteTransaction(ctx context.Context, id int64, exitTime time.Time, durationMinutes int64, charge float64) error
	SetTransactionsPaymentStatus(ctx context.Context, ids []int64, status model.PaymentStatus) error
	ListTransactions(ctx context.Context, ownerID int64, fromTime, toTime time.Time) ([]model.ParkingTransaction, error)
	GetTransactionsByOwner(ctx context.Context, ownerID int64) ([]model.ParkingTransaction, error)
	UpsertInvoice(ctx context.Context, inv *model.Invoice) (int64, error)
	GetMonthlyInvoice(ctx context.Context, ownerID int64, month, year int) (*model.Invoice, error)
	ListPendingInvoices(ctx context.Context, ownerID int64) ([]model.Invoice, error)
	UpdateInvoicePayment(ctx context.Context, invoiceID int64, amountPaid float64, status model.InvoiceStatus) error
	ListChargesByInvoice(ctx context.Context, invoiceID int64) ([]model.OverdueCharge, error)
	InsertCharge(ctx context.Context, c *model.OverdueCharge) (int64, error)
}

// Config содержит настройки биллинга.
type Config struct {
	// LateFeePercentage — процент пени от суммы счёта за каждый день просрочки.
	LateFeePercentage float64
	// InvoiceDueDays — число дней от конца месяца до срока оплаты счёта.
	InvoiceDueDays int
}

// Service содержит бизнес-логику сервиса парктрек.
type Service struct {
	repo          Repository
	paymentClient *payment.Client
	codec         *qrtoken.Codec
	calc          *billing.Calculator
	cfg           Config
	now           func() time.Time
}

// NewService создаёт новый сервис с указанным репозиторием, клиентом платёжной
// системы и кодеком QR-токенов.
func NewService(repo Repository, paymentClient *payment.Client, codec *qrtoken.Codec, cfg Config) *Service {
	if cfg.LateFeePercentage <= 0 {
		cfg.LateFeePercentage = 10
	}
	if cfg.InvoiceDueDays <= 0 {
		cfg.InvoiceDueDays = 15
	}

	return &Service{
		repo:          repo,
		paymentClient: paymentClient,
		codec:         codec,
		calc:          billing.NewCalculator(),
		cfg:           cfg,
		now:           time.Now,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterUser регистрирует нового водителя.
func (s *Service) RegisterUser(ctx context.Context, login, password, fullName, vehicleNumber string, vip bool) (int64, error) {
	u := &model.User{
		Login:         login,
		PasswordHash:  hashPassword(login, password),
		FullName:      fullName,
		Role:          model.UserRoleDriver,
		VehicleNumber: vehicleNumber,
		VIP:           vip,
	}

	id, err := s.repo.CreateUser(ctx, u)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// AuthenticateUser проверяет логин и пароль пользователя.
func (s *Service) AuthenticateUser(ctx context.Context, login, password string) (*model.User, error) {
	u, err := s.repo.GetUserByLogin(ctx, login)
	if err != nil {
		return nil, err
	}

	hashed := hashPassword(login, password)
	if hex.EncodeToString(hashed) != hex.EncodeToString(u.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	return u, nil
}

func hashPassword(login, password string) []byte {
	sum := sha256.Sum256([]byte(login + ":" + password))
	return sum[:]
}

// CreateQRToken выпускает QR-токен въезда или выезда для пользователя.
func (s *Service) CreateQRToken(ctx context.Context, userID int64, qrType qrtoken.QRType) (string, error) {
	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return "", err
	}
	return s.codec.CreateToken(u.ID, u.VehicleNumber, qrType), nil
}

func tokenStatusError(status qrtoken.Status) error {
	switch status {
	case qrtoken.StatusExpired:
		return ErrTokenExpired
	case qrtoken.StatusInvalidHash:
		return ErrTokenHashMismatch
	default:
		return ErrTokenInvalidFormat
	}
}

// RegisterEntry проверяет токен въезда и открывает парковочную транзакцию.
func (s *Service) RegisterEntry(ctx context.Context, token string, lotID int64, rateType model.RateType) (*model.ParkingTransaction, error) {
	status, p := s.codec.Validate(token)
	if status != qrtoken.StatusValid {
		return nil, tokenStatusError(status)
	}
	if p.QRType != qrtoken.QRTypeEntry {
		return nil, ErrWrongTokenType
	}

	t := &model.ParkingTransaction{
		LotID:         lotID,
		VehicleNumber: p.VehicleNumber,
		OwnerID:       p.UserID,
		EntryTime:     s.now(),
		RateType:      rateType,
		Status:        model.TransactionStatusActive,
		PaymentStatus: model.PaymentStatusPending,
	}

	id, err := s.repo.CreateEntryTransaction(ctx, t)
	if err != nil {
		return nil, err
	}
	t.ID = id

	return t, nil
}

// RegisterExit проверяет токен выезда, закрывает активную транзакцию владельца
// и рассчитывает стоимость по действующему тарифу. Отсутствие тарифа не
// блокирует выезд: транзакция закрывается с нулевой стоимостью.
func (s *Service) RegisterExit(ctx context.Context, token string) (*model.ParkingTransaction, error) {
	status, p := s.codec.Validate(token)
	if status != qrtoken.StatusValid {
		return nil, tokenStatusError(status)
	}
	if p.QRType != qrtoken.QRTypeExit {
		return nil, ErrWrongTokenType
	}

	t, err := s.repo.GetActiveTransaction(ctx, p.UserID)
	if err != nil {
		return nil, err
	}

	rate, err := s.repo.GetActiveRate(ctx, t.LotID, t.RateType)
	if err != nil && !errors.Is(err, repository.ErrRateNotFound) {
		return nil, err
	}

	isVIP := t.RateType == model.RateTypeVIP
	if u, uerr := s.repo.GetUserByID(ctx, t.OwnerID); uerr == nil {
		isVIP = isVIP || u.VIP
	}

	exitTime := s.now()
	durationMinutes := int64(math.Round(exitTime.Sub(t.EntryTime).Minutes()))
	charge := s.calc.CalculateCharge(t.EntryTime, exitTime, rate, isVIP)

	if err := s.repo.CompleteTransaction(ctx, t.ID, exitTime, durationMinutes, charge); err != nil {
		return nil, err
	}

	t.ExitTime = &exitTime
	t.DurationMinutes = durationMinutes
	t.ChargeAmount = charge
	t.Status = model.TransactionStatusCompleted

	return t, nil
}

// GetTransactionsByOwner возвращает транзакции пользователя.
func (s *Service) GetTransactionsByOwner(ctx context.Context, ownerID int64) ([]model.ParkingTransaction, error) {
	return s.repo.GetTransactionsByOwner(ctx, ownerID)
}

// GetOwnTransaction возвращает транзакцию по идентификатору, если она
// принадлежит указанному пользователю. Чужая транзакция неотличима от
// несуществующей.
func (s *Service) GetOwnTransaction(ctx context.Context, ownerID, transactionID int64) (*model.ParkingTransaction, error) {
	t, err := s.repo.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if t.OwnerID != ownerID {
		return nil, repository.ErrTransactionNotFound
	}
	return t, nil
}

// CreateRate сохраняет новую версию тарифа, деактивируя предыдущую активную
// версию той же пары (парковка, тарифный план).
func (s *Service) CreateRate(ctx context.Context, p *model.RateProfile) (int64, error) {
	if p.PricePerHour < 0 || p.PricePerDay < 0 || p.OvernightPrice < 0 ||
		p.MinCharge < 0 || p.MaxChargePerDay < 0 || p.VIPMultiplier < 0 {
		return 0, fmt.Errorf("rate profile contains negative values")
	}
	if p.VIPMultiplier == 0 {
		p.VIPMultiplier = 1
	}
	return s.repo.CreateRate(ctx, p)
}

// EstimateCharge рассчитывает предварительную стоимость парковки на указанное
// число часов по действующему тарифу.
func (s *Service) EstimateCharge(ctx context.Context, lotID int64, rateType model.RateType, hours float64, isVIP bool) (float64, error) {
	rate, err := s.repo.GetActiveRate(ctx, lotID, rateType)
	if err != nil {
		return 0, err
	}
	return s.calc.EstimateChargeForDuration(hours, rate, isVIP), nil
}

// monthBounds возвращает границы месяца: первый момент месяца, последнюю
// секунду последнего календарного дня и начало следующего месяца.
func monthBounds(month, year int) (fromDate, toDate, nextMonth time.Time) {
	fromDate = time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	nextMonth = fromDate.AddDate(0, 1, 0)
	toDate = nextMonth.Add(-time.Second)
	return fromDate, toDate, nextMonth
}

// GenerateMonthlyInvoice генерирует или идемпотентно пересчитывает счёт
// пользователя за месяц. Транзакции относятся к месяцу по времени въезда;
// в итоговые суммы входят только завершённые, но в счёте перечисляются все.
//
// Известная особенность исходного поведения: пересчёт выставляет PaymentStatus
// заново (PENDING при наличии завершённых транзакций, иначе PAID) и может
// затереть отметку об оплате, проставленную вручную. Сохраняется как есть.
func (s *Service) GenerateMonthlyInvoice(ctx context.Context, ownerID int64, month, year int) (*model.Invoice, error) {
	if month < 1 || month > 12 {
		return nil, fmt.Errorf("invalid month: %d", month)
	}

	u, err := s.repo.GetUserByID(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	fromDate, toDate, nextMonth := monthBounds(month, year)

	txs, err := s.repo.ListTransactions(ctx, ownerID, fromDate, nextMonth)
	if err != nil {
		return nil, err
	}

	var (
		totalCharges   float64
		totalHours     float64
		completedCount int
	)
	// Пустой месяц должен дать пустой массив, а не NULL в NOT NULL колонке.
	ids := make([]int64, 0, len(txs))
	for _, t := range txs {
		ids = append(ids, t.ID)
		if t.Status != model.TransactionStatusCompleted {
			continue
		}
		completedCount++
		totalCharges += t.ChargeAmount
		totalHours += float64(t.DurationMinutes) / 60
	}
	totalCharges = billing.RoundMoney(totalCharges)

	paymentStatus := model.InvoiceStatusPaid
	if completedCount > 0 {
		paymentStatus = model.InvoiceStatusPending
	}

	// Сумма уже внесённой оплаты переносится с существующего счёта.
	var amountPaid float64
	if existing, gerr := s.repo.GetMonthlyInvoice(ctx, ownerID, month, year); gerr == nil {
		amountPaid = existing.AmountPaid
	} else if !errors.Is(gerr, repository.ErrInvoiceNotFound) {
		return nil, gerr
	}

	inv := &model.Invoice{
		OwnerID:           ownerID,
		InvoiceNumber:     buildInvoiceNumber(u, month, year, s.now()),
		Month:             month,
		Year:              year,
		FromDate:          fromDate,
		ToDate:            toDate,
		TotalTransactions: len(txs),
		TotalHours:        totalHours,
		TotalCharges:      totalCharges,
		TotalAmount:       totalCharges,
		PaymentStatus:     paymentStatus,
		DueDate:           toDate.AddDate(0, 0, s.cfg.InvoiceDueDays),
		AmountPaid:        amountPaid,
		TransactionIDs:    ids,
	}

	id, err := s.repo.UpsertInvoice(ctx, inv)
	if err != nil {
		return nil, err
	}
	inv.ID = id

	return inv, nil
}

// buildInvoiceNumber собирает номер счёта вида INV-<инициалы>-<MMYYYY>-<NNN>.
// Номер информационный и не гарантирует глобальной уникальности.
func buildInvoiceNumber(u *model.User, month, year int, now time.Time) string {
	initials := ownerInitials(u)
	suffix := now.UnixMilli() % 1000
	return fmt.Sprintf("INV-%s-%02d%04d-%03d", initials, month, year, suffix)
}

func ownerInitials(u *model.User) string {
	var b strings.Builder
	for _, word := range strings.Fields(u.FullName) {
		r := []rune(word)
		b.WriteString(strings.ToUpper(string(r[0])))
	}
	if b.Len() == 0 {
		login := []rune(strings.ToUpper(u.Login))
		if len(login) > 2 {
			login = login[:2]
		}
		return string(login)
	}
	return b.String()
}

// GenerateMonthlyInvoices генерирует счета за месяц для всех водителей.
// Ошибка по одному пользователю не прерывает остальных; возвращается число
// успешно сгенерированных счетов.
func (s *Service) GenerateMonthlyInvoices(ctx context.Context, month, year int) (int, error) {
	users, err := s.repo.ListUsersByRole(ctx, model.UserRoleDriver)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, u := range users {
		if _, err := s.GenerateMonthlyInvoice(ctx, u.ID, month, year); err != nil {
			continue
		}
		count++
	}

	return count, nil
}

// ListPendingInvoices возвращает неоплаченные счета пользователя.
func (s *Service) ListPendingInvoices(ctx context.Context, ownerID int64) ([]model.Invoice, error) {
	return s.repo.ListPendingInvoices(ctx, ownerID)
}

// ProcessOverdueInvoices обходит всех водителей и создаёт пени по просроченным
// счетам. Ошибка по одному пользователю не прерывает остальных; возвращается
// число успешно обработанных пользователей.
func (s *Service) ProcessOverdueInvoices(ctx context.Context) (int, error) {
	users, err := s.repo.ListUsersByRole(ctx, model.UserRoleDriver)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, u := range users {
		if err := s.processUserOverdue(ctx, u.ID); err != nil {
			continue
		}
		count++
	}

	return count, nil
}

func (s *Service) processUserOverdue(ctx context.Context, ownerID int64) error {
	invoices, err := s.repo.ListPendingInvoices(ctx, ownerID)
	if err != nil {
		return err
	}

	now := s.now()

	for _, inv := range invoices {
		if !now.After(inv.DueDate) || inv.TotalAmount <= inv.AmountPaid {
			continue
		}

		overdueDays := int(math.Floor(now.Sub(inv.DueDate).Hours() / 24))
		if overdueDays <= 0 {
			continue
		}

		// Не более одной пени на счёт: повторные прогоны не пересчитывают
		// уже созданную запись, даже если просрочка выросла.
		existing, err := s.repo.ListChargesByInvoice(ctx, inv.ID)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			continue
		}

		lateFee := billing.RoundMoney(inv.TotalAmount * s.cfg.LateFeePercentage / 100 * float64(overdueDays))

		charge := &model.OverdueCharge{
			OwnerID:           inv.OwnerID,
			InvoiceID:         inv.ID,
			InvoiceNumber:     inv.InvoiceNumber,
			OriginalAmount:    inv.TotalAmount,
			LateFeePercentage: s.cfg.LateFeePercentage,
			LateFeeAmount:     lateFee,
			TotalAmount:       billing.RoundMoney(inv.TotalAmount + lateFee),
			// TotalDueAmount не включает пеню: асимметрия исходного поведения.
			TotalDueAmount: billing.RoundMoney(inv.TotalAmount - inv.AmountPaid),
			OverdueDays:    overdueDays,
			DueDate:        inv.DueDate,
			PaymentStatus:  model.InvoiceStatusPending,
		}

		if _, err := s.repo.InsertCharge(ctx, charge); err != nil {
			if errors.Is(err, repository.ErrChargeExists) {
				continue
			}
			return err
		}
	}

	return nil
}

// StartPaymentUpdates запускает фоновый процесс обновления статусов оплаты
// счетов из платёжной системы.
func (s *Service) StartPaymentUpdates(ctx context.Context) {
	if s.paymentClient == nil {
		return
	}

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.processPaymentBatch(ctx)
			}
		}
	}()
}

func (s *Service) processPaymentBatch(ctx context.Context) {
	users, err := s.repo.ListUsersByRole(ctx, model.UserRoleDriver)
	if err != nil {
		return
	}

	for _, u := range users {
		invoices, err := s.repo.ListPendingInvoices(ctx, u.ID)
		if err != nil {
			continue
		}

		for _, inv := range invoices {
			resp, statusCode, retryAfter, err := s.paymentClient.GetInvoicePayment(ctx, inv.InvoiceNumber)
			if err != nil {
				continue
			}

			if statusCode == 429 {
				if retryAfter > 0 {
					timer := time.NewTimer(retryAfter)
					select {
					case <-ctx.Done():
						timer.Stop()
						return
					case <-timer.C:
					}
				}
				continue
			}

			if resp == nil {
				continue
			}

			paid := inv.AmountPaid
			if resp.Paid != nil {
				paid = *resp.Paid
			}

			switch resp.Status {
			case "PAID":
				if resp.Paid == nil {
					paid = inv.TotalAmount
				}
				if err := s.repo.UpdateInvoicePayment(ctx, inv.ID, paid, model.InvoiceStatusPaid); err == nil {
					// Оплата счёта закрывает оплату входящих в него транзакций.
					_ = s.repo.SetTransactionsPaymentStatus(ctx, inv.TransactionIDs, model.PaymentStatusCompleted)
				}
			case "PARTIAL":
				_ = s.repo.UpdateInvoicePayment(ctx, inv.ID, paid, model.InvoiceStatusPartial)
			case "FAILED":
				_ = s.repo.SetTransactionsPaymentStatus(ctx, inv.TransactionIDs, model.PaymentStatusFailed)
			}
		}
	}
}
