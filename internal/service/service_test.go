package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/parktrack/parktrack-system/internal/model"
	"github.com/parktrack/parktrack-system/internal/payment"
	"github.com/parktrack/parktrack-system/internal/qrtoken"
	"github.com/parktrack/parktrack-system/internal/repository"
)

type stubRepo struct {
	users      map[int64]*model.User
	createErr  error
	drivers    []model.User
	driversErr error

	rate         *model.RateProfile
	rateErr      error
	createdRates []model.RateProfile

	transactions map[int64][]model.ParkingTransaction
	listTxErr    map[int64]error

	activeTx    *model.ParkingTransaction
	activeTxErr error
	txByID      map[int64]*model.ParkingTransaction

	completedID     int64
	completedCharge float64
	completedDur    int64

	invoices      map[string]*model.Invoice
	nextInvoiceID int64
	upsertCalls   int

	pendingInvoices  map[int64][]model.Invoice
	chargesByInvoice map[int64][]model.OverdueCharge
	insertedCharges  []model.OverdueCharge

	paidInvoiceID int64
	paidAmount    float64
	paidStatus    model.InvoiceStatus

	txPaymentIDs    []int64
	txPaymentStatus model.PaymentStatus
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		users:            make(map[int64]*model.User),
		transactions:     make(map[int64][]model.ParkingTransaction),
		txByID:           make(map[int64]*model.ParkingTransaction),
		listTxErr:        make(map[int64]error),
		invoices:         make(map[string]*model.Invoice),
		pendingInvoices:  make(map[int64][]model.Invoice),
		chargesByInvoice: make(map[int64][]model.OverdueCharge),
	}
}

func (s *stubRepo) Close() error { return nil }

func (s *stubRepo) CreateUser(ctx context.Context, u *model.User) (int64, error) {
	if s.createErr != nil {
		return 0, s.createErr
	}
	id := int64(len(s.users) + 1)
	cp := *u
	cp.ID = id
	s.users[id] = &cp
	return id, nil
}

func (s *stubRepo) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	for _, u := range s.users {
		if u.Login == login {
			return u, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (s *stubRepo) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return u, nil
}

func (s *stubRepo) ListUsersByRole(ctx context.Context, role model.UserRole) ([]model.User, error) {
	return s.drivers, s.driversErr
}

func (s *stubRepo) GetActiveRate(ctx context.Context, lotID int64, rateType model.RateType) (*model.RateProfile, error) {
	if s.rateErr != nil {
		return nil, s.rateErr
	}
	return s.rate, nil
}

func (s *stubRepo) CreateEntryTransaction(ctx context.Context, t *model.ParkingTransaction) (int64, error) {
	return 1, nil
}

func (s *stubRepo) GetActiveTransaction(ctx context.Context, ownerID int64) (*model.ParkingTransaction, error) {
	if s.activeTxErr != nil {
		return nil, s.activeTxErr
	}
	if s.activeTx == nil {
		return nil, repository.ErrTransactionNotFound
	}
	cp := *s.activeTx
	return &cp, nil
}

func (s *stubRepo) GetTransaction(ctx context.Context, id int64) (*model.ParkingTransaction, error) {
	t, ok := s.txByID[id]
	if !ok {
		return nil, repository.ErrTransactionNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *stubRepo) CreateRate(ctx context.Context, p *model.RateProfile) (int64, error) {
	s.createdRates = append(s.createdRates, *p)
	return int64(len(s.createdRates)), nil
}

func (s *stubRepo) CompleteTransaction(ctx context.Context, id int64, exitTime time.Time, durationMinutes int64, charge float64) error {
	s.completedID = id
	s.completedDur = durationMinutes
	s.completedCharge = charge
	return nil
}

func (s *stubRepo) ListTransactions(ctx context.Context, ownerID int64, fromTime, toTime time.Time) ([]model.ParkingTransaction, error) {
	if err := s.listTxErr[ownerID]; err != nil {
		return nil, err
	}
	return s.transactions[ownerID], nil
}

func (s *stubRepo) GetTransactionsByOwner(ctx context.Context, ownerID int64) ([]model.ParkingTransaction, error) {
	return s.transactions[ownerID], nil
}

func invoiceKey(ownerID int64, month, year int) string {
	return fmt.Sprintf("%d-%d-%d", ownerID, month, year)
}

func (s *stubRepo) UpsertInvoice(ctx context.Context, inv *model.Invoice) (int64, error) {
	s.upsertCalls++
	key := invoiceKey(inv.OwnerID, inv.Month, inv.Year)
	if existing, ok := s.invoices[key]; ok {
		cp := *inv
		cp.ID = existing.ID
		s.invoices[key] = &cp
		return existing.ID, nil
	}
	s.nextInvoiceID++
	cp := *inv
	cp.ID = s.nextInvoiceID
	s.invoices[key] = &cp
	return cp.ID, nil
}

func (s *stubRepo) GetMonthlyInvoice(ctx context.Context, ownerID int64, month, year int) (*model.Invoice, error) {
	inv, ok := s.invoices[invoiceKey(ownerID, month, year)]
	if !ok {
		return nil, repository.ErrInvoiceNotFound
	}
	cp := *inv
	return &cp, nil
}

func (s *stubRepo) ListPendingInvoices(ctx context.Context, ownerID int64) ([]model.Invoice, error) {
	return s.pendingInvoices[ownerID], nil
}

func (s *stubRepo) UpdateInvoicePayment(ctx context.Context, invoiceID int64, amountPaid float64, status model.InvoiceStatus) error {
	s.paidInvoiceID = invoiceID
	s.paidAmount = amountPaid
	s.paidStatus = status
	return nil
}

func (s *stubRepo) SetTransactionsPaymentStatus(ctx context.Context, ids []int64, status model.PaymentStatus) error {
	s.txPaymentIDs = append(s.txPaymentIDs, ids...)
	s.txPaymentStatus = status
	return nil
}

func (s *stubRepo) ListChargesByInvoice(ctx context.Context, invoiceID int64) ([]model.OverdueCharge, error) {
	return s.chargesByInvoice[invoiceID], nil
}

func (s *stubRepo) InsertCharge(ctx context.Context, c *model.OverdueCharge) (int64, error) {
	s.insertedCharges = append(s.insertedCharges, *c)
	return int64(len(s.insertedCharges)), nil
}

func newTestService(repo Repository) *Service {
	return NewService(repo, nil, qrtoken.NewCodec("test-secret"), Config{
		LateFeePercentage: 10,
		InvoiceDueDays:    15,
	})
}

func TestHashPasswordDeterministic(t *testing.T) {
	a := hashPassword("user", "pass")
	b := hashPassword("user", "pass")
	c := hashPassword("user", "other")

	if string(a) != string(b) {
		t.Fatalf("hashPassword must be deterministic, got %x and %x", a, b)
	}
	if string(a) == string(c) {
		t.Fatalf("different passwords must produce different hashes")
	}
}

func TestAuthenticateUser_InvalidCredentials(t *testing.T) {
	repo := newStubRepo()
	repo.users[1] = &model.User{
		ID:           1,
		Login:        "user",
		PasswordHash: hashPassword("user", "correct"),
	}

	svc := newTestService(repo)

	_, err := svc.AuthenticateUser(context.Background(), "user", "wrong")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func completedTx(id, ownerID int64, entry time.Time, minutes int64, charge float64) model.ParkingTransaction {
	exit := entry.Add(time.Duration(minutes) * time.Minute)
	return model.ParkingTransaction{
		ID:              id,
		LotID:           1,
		OwnerID:         ownerID,
		EntryTime:       entry,
		ExitTime:        &exit,
		DurationMinutes: minutes,
		RateType:        model.RateTypeNormal,
		ChargeAmount:    charge,
		Status:          model.TransactionStatusCompleted,
		PaymentStatus:   model.PaymentStatusPending,
	}
}

func TestGenerateMonthlyInvoice_AggregatesCompletedOnly(t *testing.T) {
	repo := newStubRepo()
	repo.users[1] = &model.User{ID: 1, Login: "ivan", FullName: "Ivan Petrov", Role: model.UserRoleDriver}

	entry := time.Date(2025, 4, 10, 9, 0, 0, 0, time.UTC)
	repo.transactions[1] = []model.ParkingTransaction{
		completedTx(10, 1, entry, 150, 12.5),
		completedTx(11, 1, entry.AddDate(0, 0, 1), 90, 7.5),
		{ID: 12, OwnerID: 1, EntryTime: entry.AddDate(0, 0, 2), Status: model.TransactionStatusActive},
	}

	svc := newTestService(repo)

	inv, err := svc.GenerateMonthlyInvoice(context.Background(), 1, 4, 2025)
	if err != nil {
		t.Fatalf("GenerateMonthlyInvoice error: %v", err)
	}

	if inv.TotalTransactions != 3 {
		t.Fatalf("TotalTransactions = %d, want 3 (all transactions are listed)", inv.TotalTransactions)
	}
	if len(inv.TransactionIDs) != 3 {
		t.Fatalf("TransactionIDs len = %d, want 3", len(inv.TransactionIDs))
	}
	if inv.TotalCharges != 20 {
		t.Fatalf("TotalCharges = %v, want 20 (completed only)", inv.TotalCharges)
	}
	if inv.TotalAmount != 20 {
		t.Fatalf("TotalAmount = %v, want 20", inv.TotalAmount)
	}
	if inv.TotalHours != 4 {
		t.Fatalf("TotalHours = %v, want 4", inv.TotalHours)
	}
	if inv.PaymentStatus != model.InvoiceStatusPending {
		t.Fatalf("PaymentStatus = %s, want PENDING", inv.PaymentStatus)
	}

	wantFrom := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	wantTo := time.Date(2025, 4, 30, 23, 59, 59, 0, time.UTC)
	if !inv.FromDate.Equal(wantFrom) {
		t.Fatalf("FromDate = %v, want %v", inv.FromDate, wantFrom)
	}
	if !inv.ToDate.Equal(wantTo) {
		t.Fatalf("ToDate = %v, want %v", inv.ToDate, wantTo)
	}
	if !inv.DueDate.Equal(wantTo.AddDate(0, 0, 15)) {
		t.Fatalf("DueDate = %v, want %v", inv.DueDate, wantTo.AddDate(0, 0, 15))
	}

	matched, err := regexp.MatchString(`^INV-IP-042025-\d{3}$`, inv.InvoiceNumber)
	if err != nil || !matched {
		t.Fatalf("InvoiceNumber = %q, want INV-IP-042025-NNN", inv.InvoiceNumber)
	}
}

func TestGenerateMonthlyInvoice_EmptyMonthIsPaid(t *testing.T) {
	repo := newStubRepo()
	repo.users[1] = &model.User{ID: 1, Login: "ivan", FullName: "Ivan Petrov"}

	svc := newTestService(repo)

	inv, err := svc.GenerateMonthlyInvoice(context.Background(), 1, 2, 2025)
	if err != nil {
		t.Fatalf("GenerateMonthlyInvoice error: %v", err)
	}

	// Пустой счёт тривиально считается оплаченным.
	if inv.PaymentStatus != model.InvoiceStatusPaid {
		t.Fatalf("PaymentStatus = %s, want PAID for empty invoice", inv.PaymentStatus)
	}
	if inv.TotalAmount != 0 || inv.TotalTransactions != 0 {
		t.Fatalf("empty invoice has totals: %+v", inv)
	}
	// nil-срез кодируется драйвером как SQL NULL и нарушает NOT NULL
	// ограничение колонки; пустой месяц обязан давать пустой массив.
	if inv.TransactionIDs == nil {
		t.Fatalf("TransactionIDs is nil, want empty slice")
	}
	if len(inv.TransactionIDs) != 0 {
		t.Fatalf("TransactionIDs = %v, want empty", inv.TransactionIDs)
	}
}

func TestGenerateMonthlyInvoice_Idempotent(t *testing.T) {
	repo := newStubRepo()
	repo.users[1] = &model.User{ID: 1, Login: "ivan", FullName: "Ivan Petrov"}

	entry := time.Date(2025, 4, 10, 9, 0, 0, 0, time.UTC)
	repo.transactions[1] = []model.ParkingTransaction{
		completedTx(10, 1, entry, 60, 5),
	}

	svc := newTestService(repo)

	first, err := svc.GenerateMonthlyInvoice(context.Background(), 1, 4, 2025)
	if err != nil {
		t.Fatalf("first generation error: %v", err)
	}

	second, err := svc.GenerateMonthlyInvoice(context.Background(), 1, 4, 2025)
	if err != nil {
		t.Fatalf("second generation error: %v", err)
	}

	if first.ID != second.ID {
		t.Fatalf("regeneration changed invoice id: %d -> %d", first.ID, second.ID)
	}
	if first.TotalAmount != second.TotalAmount || first.TotalTransactions != second.TotalTransactions {
		t.Fatalf("regeneration changed totals: %+v -> %+v", first, second)
	}
	if len(repo.invoices) != 1 {
		t.Fatalf("invoice rows = %d, want 1", len(repo.invoices))
	}
}

func TestGenerateMonthlyInvoice_RegenerationResetsPaymentStatus(t *testing.T) {
	repo := newStubRepo()
	repo.users[1] = &model.User{ID: 1, Login: "ivan", FullName: "Ivan Petrov"}

	entry := time.Date(2025, 4, 10, 9, 0, 0, 0, time.UTC)
	repo.transactions[1] = []model.ParkingTransaction{
		completedTx(10, 1, entry, 60, 5),
	}

	// Счёт уже отмечен оплаченным вручную.
	repo.invoices[invoiceKey(1, 4, 2025)] = &model.Invoice{
		ID:            7,
		OwnerID:       1,
		Month:         4,
		Year:          2025,
		TotalAmount:   5,
		AmountPaid:    5,
		PaymentStatus: model.InvoiceStatusPaid,
	}
	repo.nextInvoiceID = 7

	svc := newTestService(repo)

	inv, err := svc.GenerateMonthlyInvoice(context.Background(), 1, 4, 2025)
	if err != nil {
		t.Fatalf("GenerateMonthlyInvoice error: %v", err)
	}

	// Наблюдаемое поведение источника: пересчёт возвращает статус PENDING
	// поверх ручной отметки об оплате. Сумма оплаты при этом переносится.
	if inv.PaymentStatus != model.InvoiceStatusPending {
		t.Fatalf("PaymentStatus = %s, want PENDING after regeneration", inv.PaymentStatus)
	}
	if inv.AmountPaid != 5 {
		t.Fatalf("AmountPaid = %v, want 5 carried over", inv.AmountPaid)
	}
	if inv.ID != 7 {
		t.Fatalf("ID = %d, want 7 (same row)", inv.ID)
	}
}

func TestGenerateMonthlyInvoices_PartialFailure(t *testing.T) {
	repo := newStubRepo()
	for i := int64(1); i <= 5; i++ {
		u := &model.User{ID: i, Login: fmt.Sprintf("driver%d", i), Role: model.UserRoleDriver}
		repo.users[i] = u
		repo.drivers = append(repo.drivers, *u)
	}
	repo.listTxErr[3] = errors.New("store failure")

	svc := newTestService(repo)

	count, err := svc.GenerateMonthlyInvoices(context.Background(), 4, 2025)
	if err != nil {
		t.Fatalf("GenerateMonthlyInvoices error: %v", err)
	}
	if count != 4 {
		t.Fatalf("count = %d, want 4 (one driver failed)", count)
	}
}

func TestProcessOverdue_ChargesLateFee(t *testing.T) {
	repo := newStubRepo()
	u := &model.User{ID: 1, Login: "ivan", Role: model.UserRoleDriver}
	repo.users[1] = u
	repo.drivers = []model.User{*u}

	now := time.Date(2025, 5, 20, 12, 0, 0, 0, time.UTC)
	repo.pendingInvoices[1] = []model.Invoice{
		{
			ID:            7,
			OwnerID:       1,
			InvoiceNumber: "INV-I-042025-123",
			TotalAmount:   100,
			AmountPaid:    0,
			DueDate:       now.AddDate(0, 0, -3),
			PaymentStatus: model.InvoiceStatusPending,
		},
	}

	svc := newTestService(repo)
	svc.now = func() time.Time { return now }

	count, err := svc.ProcessOverdueInvoices(context.Background())
	if err != nil {
		t.Fatalf("ProcessOverdueInvoices error: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
	if len(repo.insertedCharges) != 1 {
		t.Fatalf("inserted charges = %d, want 1", len(repo.insertedCharges))
	}

	c := repo.insertedCharges[0]
	if c.OverdueDays != 3 {
		t.Fatalf("OverdueDays = %d, want 3", c.OverdueDays)
	}
	if c.LateFeeAmount != 30 {
		t.Fatalf("LateFeeAmount = %v, want 30", c.LateFeeAmount)
	}
	if c.TotalAmount != 130 {
		t.Fatalf("TotalAmount = %v, want 130", c.TotalAmount)
	}
	if c.TotalDueAmount != 100 {
		t.Fatalf("TotalDueAmount = %v, want 100", c.TotalDueAmount)
	}
	if c.InvoiceID != 7 || c.InvoiceNumber != "INV-I-042025-123" {
		t.Fatalf("charge not linked to invoice: %+v", c)
	}
}

func TestProcessOverdue_DueAmountExcludesLateFee(t *testing.T) {
	repo := newStubRepo()
	u := &model.User{ID: 1, Login: "ivan", Role: model.UserRoleDriver}
	repo.users[1] = u
	repo.drivers = []model.User{*u}

	now := time.Date(2025, 5, 20, 12, 0, 0, 0, time.UTC)
	repo.pendingInvoices[1] = []model.Invoice{
		{
			ID:          8,
			OwnerID:     1,
			TotalAmount: 100,
			AmountPaid:  40,
			DueDate:     now.AddDate(0, 0, -3),
		},
	}

	svc := newTestService(repo)
	svc.now = func() time.Time { return now }

	if _, err := svc.ProcessOverdueInvoices(context.Background()); err != nil {
		t.Fatalf("ProcessOverdueInvoices error: %v", err)
	}
	if len(repo.insertedCharges) != 1 {
		t.Fatalf("inserted charges = %d, want 1", len(repo.insertedCharges))
	}

	c := repo.insertedCharges[0]

	// TotalAmount включает пеню, TotalDueAmount — нет: асимметрия
	// наблюдаемого поведения, закреплённая намеренно.
	if c.TotalAmount != 130 {
		t.Fatalf("TotalAmount = %v, want 130", c.TotalAmount)
	}
	if c.TotalDueAmount != 60 {
		t.Fatalf("TotalDueAmount = %v, want 60", c.TotalDueAmount)
	}
}

func TestProcessOverdue_SkipsExistingCharge(t *testing.T) {
	repo := newStubRepo()
	u := &model.User{ID: 1, Login: "ivan", Role: model.UserRoleDriver}
	repo.users[1] = u
	repo.drivers = []model.User{*u}

	now := time.Date(2025, 5, 20, 12, 0, 0, 0, time.UTC)
	repo.pendingInvoices[1] = []model.Invoice{
		{ID: 7, OwnerID: 1, TotalAmount: 100, DueDate: now.AddDate(0, 0, -5)},
	}
	repo.chargesByInvoice[7] = []model.OverdueCharge{
		{ID: 1, InvoiceID: 7, OverdueDays: 2},
	}

	svc := newTestService(repo)
	svc.now = func() time.Time { return now }

	count, err := svc.ProcessOverdueInvoices(context.Background())
	if err != nil {
		t.Fatalf("ProcessOverdueInvoices error: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1 (user still processed)", count)
	}
	if len(repo.insertedCharges) != 0 {
		t.Fatalf("inserted charges = %d, want 0 (at most one charge per invoice)", len(repo.insertedCharges))
	}
}

func TestProcessOverdue_SkipsNotOverdue(t *testing.T) {
	repo := newStubRepo()
	u := &model.User{ID: 1, Login: "ivan", Role: model.UserRoleDriver}
	repo.users[1] = u
	repo.drivers = []model.User{*u}

	now := time.Date(2025, 5, 20, 12, 0, 0, 0, time.UTC)
	repo.pendingInvoices[1] = []model.Invoice{
		// Срок ещё не наступил.
		{ID: 1, OwnerID: 1, TotalAmount: 100, DueDate: now.AddDate(0, 0, 2)},
		// Просрочен, но полностью оплачен.
		{ID: 2, OwnerID: 1, TotalAmount: 100, AmountPaid: 100, DueDate: now.AddDate(0, 0, -4)},
		// Просрочен меньше чем на день.
		{ID: 3, OwnerID: 1, TotalAmount: 100, DueDate: now.Add(-6 * time.Hour)},
	}

	svc := newTestService(repo)
	svc.now = func() time.Time { return now }

	if _, err := svc.ProcessOverdueInvoices(context.Background()); err != nil {
		t.Fatalf("ProcessOverdueInvoices error: %v", err)
	}
	if len(repo.insertedCharges) != 0 {
		t.Fatalf("inserted charges = %d, want 0", len(repo.insertedCharges))
	}
}

func TestRegisterEntry_WrongTokenType(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)

	token := qrtoken.NewCodec("test-secret").CreateToken(1, "A123BC77", qrtoken.QRTypeExit)

	_, err := svc.RegisterEntry(context.Background(), token, 1, model.RateTypeNormal)
	if !errors.Is(err, ErrWrongTokenType) {
		t.Fatalf("expected ErrWrongTokenType, got %v", err)
	}
}

func TestRegisterEntry_MalformedToken(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)

	_, err := svc.RegisterEntry(context.Background(), "garbage", 1, model.RateTypeNormal)
	if !errors.Is(err, ErrTokenInvalidFormat) {
		t.Fatalf("expected ErrTokenInvalidFormat, got %v", err)
	}
}

func TestRegisterExit_ComputesCharge(t *testing.T) {
	repo := newStubRepo()
	repo.users[1] = &model.User{ID: 1, Login: "ivan"}

	now := time.Date(2025, 4, 10, 11, 30, 0, 0, time.UTC)
	repo.activeTx = &model.ParkingTransaction{
		ID:        5,
		LotID:     1,
		OwnerID:   1,
		EntryTime: now.Add(-150 * time.Minute),
		RateType:  model.RateTypeNormal,
		Status:    model.TransactionStatusActive,
	}
	repo.rate = &model.RateProfile{
		LotID:           1,
		RateType:        model.RateTypeNormal,
		PricePerHour:    5,
		PricePerDay:     30,
		MinCharge:       5,
		MaxChargePerDay: 50,
		Active:          true,
	}

	svc := newTestService(repo)
	svc.now = func() time.Time { return now }

	token := qrtoken.NewCodec("test-secret").CreateToken(1, "A123BC77", qrtoken.QRTypeExit)

	tx, err := svc.RegisterExit(context.Background(), token)
	if err != nil {
		t.Fatalf("RegisterExit error: %v", err)
	}

	if tx.Status != model.TransactionStatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", tx.Status)
	}
	if tx.ChargeAmount != 12.5 {
		t.Fatalf("charge = %v, want 12.5", tx.ChargeAmount)
	}
	if tx.DurationMinutes != 150 {
		t.Fatalf("duration = %d, want 150", tx.DurationMinutes)
	}
	if repo.completedID != 5 || repo.completedCharge != 12.5 {
		t.Fatalf("repository not updated: id=%d charge=%v", repo.completedID, repo.completedCharge)
	}
}

func TestRegisterExit_NoRateMeansZeroCharge(t *testing.T) {
	repo := newStubRepo()
	repo.users[1] = &model.User{ID: 1, Login: "ivan"}

	now := time.Date(2025, 4, 10, 11, 30, 0, 0, time.UTC)
	repo.activeTx = &model.ParkingTransaction{
		ID:        5,
		LotID:     1,
		OwnerID:   1,
		EntryTime: now.Add(-time.Hour),
		RateType:  model.RateTypeNormal,
		Status:    model.TransactionStatusActive,
	}
	repo.rateErr = repository.ErrRateNotFound

	svc := newTestService(repo)
	svc.now = func() time.Time { return now }

	token := qrtoken.NewCodec("test-secret").CreateToken(1, "A123BC77", qrtoken.QRTypeExit)

	tx, err := svc.RegisterExit(context.Background(), token)
	if err != nil {
		t.Fatalf("RegisterExit error: %v", err)
	}
	if tx.ChargeAmount != 0 {
		t.Fatalf("charge = %v, want 0 without a rate", tx.ChargeAmount)
	}
	if tx.Status != model.TransactionStatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", tx.Status)
	}
}

func TestStartPaymentUpdates_NoClient(t *testing.T) {
	svc := &Service{}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan struct{})

	go func() {
		svc.StartPaymentUpdates(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("StartPaymentUpdates did not return without client")
	}
}

func TestGetOwnTransaction_HidesForeign(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)

	repo.txByID[9] = &model.ParkingTransaction{
		ID:      9,
		OwnerID: 2,
		LotID:   1,
	}

	if _, err := svc.GetOwnTransaction(context.Background(), 2, 9); err != nil {
		t.Fatalf("GetOwnTransaction error for owner: %v", err)
	}

	// Чужая транзакция неотличима от несуществующей.
	_, err := svc.GetOwnTransaction(context.Background(), 1, 9)
	if !errors.Is(err, repository.ErrTransactionNotFound) {
		t.Fatalf("error = %v, want ErrTransactionNotFound", err)
	}
}

func TestCreateRate_DefaultsVIPMultiplier(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)

	id, err := svc.CreateRate(context.Background(), &model.RateProfile{
		LotID:        1,
		RateType:     model.RateTypeNormal,
		PricePerHour: 5,
		Active:       true,
	})
	if err != nil {
		t.Fatalf("CreateRate error: %v", err)
	}
	if id != 1 {
		t.Fatalf("id = %d, want 1", id)
	}
	if got := repo.createdRates[0].VIPMultiplier; got != 1 {
		t.Fatalf("vip multiplier = %v, want default 1", got)
	}
}

func TestCreateRate_RejectsNegative(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)

	_, err := svc.CreateRate(context.Background(), &model.RateProfile{
		LotID:        1,
		RateType:     model.RateTypeNormal,
		PricePerHour: -5,
	})
	if err == nil {
		t.Fatal("expected error for negative price")
	}
	if len(repo.createdRates) != 0 {
		t.Fatalf("created rates = %d, want 0", len(repo.createdRates))
	}
}

func TestOwnerInitials(t *testing.T) {
	tests := []struct {
		name string
		user model.User
		want string
	}{
		{"latin full name", model.User{FullName: "Ivan Petrov"}, "IP"},
		{"cyrillic full name", model.User{FullName: "Иван Петров"}, "ИП"},
		{"no full name", model.User{Login: "driver"}, "DR"},
		{"short login", model.User{Login: "ab"}, "AB"},
		{"cyrillic login", model.User{Login: "ёж"}, "ЁЖ"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ownerInitials(&tt.user); got != tt.want {
				t.Fatalf("ownerInitials = %q, want %q", got, tt.want)
			}
		})
	}
}

func newPaymentTestService(repo Repository, gatewayURL string) *Service {
	return NewService(repo, payment.NewClient(gatewayURL), qrtoken.NewCodec("test-secret"), Config{
		LateFeePercentage: 10,
		InvoiceDueDays:    15,
	})
}

func TestProcessPaymentBatch_MarksTransactionsPaid(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"invoice":"INV-IP-042025-001","status":"PAID","paid":130}`))
	}))
	defer ts.Close()

	repo := newStubRepo()
	repo.drivers = []model.User{{ID: 1, Login: "ivan", Role: model.UserRoleDriver}}
	repo.pendingInvoices[1] = []model.Invoice{{
		ID:             3,
		OwnerID:        1,
		InvoiceNumber:  "INV-IP-042025-001",
		TotalAmount:    130,
		PaymentStatus:  model.InvoiceStatusPending,
		TransactionIDs: []int64{10, 11},
	}}

	svc := newPaymentTestService(repo, ts.URL)

	svc.processPaymentBatch(context.Background())

	if repo.paidInvoiceID != 3 {
		t.Fatalf("paid invoice id = %d, want 3", repo.paidInvoiceID)
	}
	if repo.paidStatus != model.InvoiceStatusPaid {
		t.Fatalf("invoice status = %s, want PAID", repo.paidStatus)
	}
	if repo.paidAmount != 130 {
		t.Fatalf("paid amount = %v, want 130", repo.paidAmount)
	}
	if len(repo.txPaymentIDs) != 2 || repo.txPaymentIDs[0] != 10 || repo.txPaymentIDs[1] != 11 {
		t.Fatalf("transaction ids = %v, want [10 11]", repo.txPaymentIDs)
	}
	if repo.txPaymentStatus != model.PaymentStatusCompleted {
		t.Fatalf("transaction payment status = %s, want COMPLETED", repo.txPaymentStatus)
	}
}

func TestProcessPaymentBatch_FailedPaymentKeepsInvoicePending(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"invoice":"INV-IP-042025-001","status":"FAILED"}`))
	}))
	defer ts.Close()

	repo := newStubRepo()
	repo.drivers = []model.User{{ID: 1, Login: "ivan", Role: model.UserRoleDriver}}
	repo.pendingInvoices[1] = []model.Invoice{{
		ID:             3,
		OwnerID:        1,
		InvoiceNumber:  "INV-IP-042025-001",
		TotalAmount:    130,
		PaymentStatus:  model.InvoiceStatusPending,
		TransactionIDs: []int64{10},
	}}

	svc := newPaymentTestService(repo, ts.URL)

	svc.processPaymentBatch(context.Background())

	// Счёт остаётся PENDING, транзакции помечаются FAILED.
	if repo.paidInvoiceID != 0 {
		t.Fatalf("invoice payment updated for id %d, want none", repo.paidInvoiceID)
	}
	if repo.txPaymentStatus != model.PaymentStatusFailed {
		t.Fatalf("transaction payment status = %s, want FAILED", repo.txPaymentStatus)
	}
}
