// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"

	"github.com/parktrack/parktrack-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUserExists возвращается при попытке создать пользователя с уже существующим логином.
var (
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrRateNotFound возвращается, если действующий тариф для парковки не найден.
	ErrRateNotFound = errors.New("active rate not found")
	// ErrTransactionNotFound возвращается, если парковочная транзакция не найдена.
	ErrTransactionNotFound = errors.New("parking transaction not found")
	// ErrActiveTransactionExists возвращается при попытке повторного въезда без выезда.
	ErrActiveTransactionExists = errors.New("active parking transaction already exists")
	// ErrInvoiceNotFound возвращается, если счёт не найден.
	ErrInvoiceNotFound = errors.New("invoice not found")
	// ErrChargeExists возвращается при попытке повторно создать пеню по тому же счёту.
	ErrChargeExists = errors.New("overdue charge already exists for invoice")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// База может подниматься параллельно с сервисом, поэтому первый ping ретраится.
	backoff := retry.WithMaxRetries(5, retry.NewConstant(2*time.Second))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// Денежные суммы хранятся в целых копейках и конвертируются на границе репозитория.
func toCents(v float64) int64 {
	return int64(math.Round(v * 100))
}

func fromCents(v int64) float64 {
	return float64(v) / 100
}

// CreateUser создаёт нового пользователя.
func (r *PostgresRepository) CreateUser(ctx context.Context, u *model.User) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (login, password_hash, full_name, role, vehicle_number, vip)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		u.Login, u.PasswordHash, u.FullName, string(u.Role), u.VehicleNumber, u.VIP,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrUserExists, u.Login)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// GetUserByLogin возвращает пользователя по логину.
func (r *PostgresRepository) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, login, password_hash, full_name, role, vehicle_number, vip, created_at
		 FROM users WHERE login = $1`,
		login,
	)
	return scanUser(row)
}

// GetUserByID возвращает пользователя по идентификатору.
func (r *PostgresRepository) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, login, password_hash, full_name, role, vehicle_number, vip, created_at
		 FROM users WHERE id = $1`,
		id,
	)
	return scanUser(row)
}

func scanUser(row pgx.Row) (*model.User, error) {
	var (
		u    model.User
		role string
	)
	err := row.Scan(&u.ID, &u.Login, &u.PasswordHash, &u.FullName, &role, &u.VehicleNumber, &u.VIP, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.Role = model.UserRole(role)
	return &u, nil
}

// ListUsersByRole возвращает пользователей с указанной ролью.
func (r *PostgresRepository) ListUsersByRole(ctx context.Context, role model.UserRole) ([]model.User, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, login, password_hash, full_name, role, vehicle_number, vip, created_at
		 FROM users
		 WHERE role = $1
		 ORDER BY id`,
		string(role),
	)
	if err != nil {
		return nil, fmt.Errorf("select users: %w", err)
	}
	defer rows.Close()

	var res []model.User
	for rows.Next() {
		var (
			u       model.User
			roleStr string
		)
		if err := rows.Scan(&u.ID, &u.Login, &u.PasswordHash, &u.FullName, &roleStr, &u.VehicleNumber, &u.VIP, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.Role = model.UserRole(roleStr)
		res = append(res, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetActiveRate возвращает действующий тариф для парковки и тарифного плана.
// При нескольких активных версиях берётся последняя созданная.
func (r *PostgresRepository) GetActiveRate(ctx context.Context, lotID int64, rateType model.RateType) (*model.RateProfile, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, lot_id, rate_type, price_per_hour, price_per_day, overnight_price,
		        min_charge, max_charge_per_day, vip_multiplier, active
		 FROM rate_profiles
		 WHERE lot_id = $1 AND rate_type = $2 AND active
		 ORDER BY id DESC
		 LIMIT 1`,
		lotID, string(rateType),
	)

	var (
		p            model.RateProfile
		rateTypeStr  string
		perHourCents int64
		perDayCents  int64
		overnight    int64
		minCents     int64
		maxPerDay    int64
	)
	err := row.Scan(&p.ID, &p.LotID, &rateTypeStr, &perHourCents, &perDayCents, &overnight,
		&minCents, &maxPerDay, &p.VIPMultiplier, &p.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRateNotFound
		}
		return nil, fmt.Errorf("get active rate: %w", err)
	}

	p.RateType = model.RateType(rateTypeStr)
	p.PricePerHour = fromCents(perHourCents)
	p.PricePerDay = fromCents(perDayCents)
	p.OvernightPrice = fromCents(overnight)
	p.MinCharge = fromCents(minCents)
	p.MaxChargePerDay = fromCents(maxPerDay)

	return &p, nil
}

// CreateRate сохраняет новую версию тарифа, деактивируя предыдущую активную
// версию той же пары (парковка, тарифный план).
func (r *PostgresRepository) CreateRate(ctx context.Context, p *model.RateProfile) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`UPDATE rate_profiles SET active = FALSE WHERE lot_id = $1 AND rate_type = $2 AND active`,
		p.LotID, string(p.RateType),
	)
	if err != nil {
		return 0, fmt.Errorf("deactivate rates: %w", err)
	}

	var id int64
	err = tx.QueryRow(ctx,
		`INSERT INTO rate_profiles (lot_id, rate_type, price_per_hour, price_per_day,
		        overnight_price, min_charge, max_charge_per_day, vip_multiplier, active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE)
		 RETURNING id`,
		p.LotID, string(p.RateType), toCents(p.PricePerHour), toCents(p.PricePerDay),
		toCents(p.OvernightPrice), toCents(p.MinCharge), toCents(p.MaxChargePerDay), p.VIPMultiplier,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert rate: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	return id, nil
}

// CreateEntryTransaction создаёт активную парковочную транзакцию при въезде.
// Повторный въезд при незакрытой транзакции владельца запрещён.
func (r *PostgresRepository) CreateEntryTransaction(ctx context.Context, t *model.ParkingTransaction) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var existing int64
	err = tx.QueryRow(ctx,
		`SELECT count(*) FROM parking_transactions WHERE owner_id = $1 AND status = $2`,
		t.OwnerID, string(model.TransactionStatusActive),
	).Scan(&existing)
	if err != nil {
		return 0, fmt.Errorf("count active transactions: %w", err)
	}
	if existing > 0 {
		return 0, ErrActiveTransactionExists
	}

	var id int64
	err = tx.QueryRow(ctx,
		`INSERT INTO parking_transactions (lot_id, vehicle_number, owner_id, entry_time, rate_type, status, payment_status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		t.LotID, t.VehicleNumber, t.OwnerID, t.EntryTime, string(t.RateType),
		string(model.TransactionStatusActive), string(model.PaymentStatusPending),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert transaction: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	return id, nil
}

// GetActiveTransaction возвращает незакрытую транзакцию владельца.
func (r *PostgresRepository) GetActiveTransaction(ctx context.Context, ownerID int64) (*model.ParkingTransaction, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, lot_id, vehicle_number, owner_id, entry_time, exit_time,
		        duration_minutes, rate_type, charge, status, payment_status
		 FROM parking_transactions
		 WHERE owner_id = $1 AND status = $2
		 ORDER BY entry_time DESC
		 LIMIT 1`,
		ownerID, string(model.TransactionStatusActive),
	)

	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("get active transaction: %w", err)
	}
	return t, nil
}

// GetTransaction возвращает транзакцию по идентификатору.
func (r *PostgresRepository) GetTransaction(ctx context.Context, id int64) (*model.ParkingTransaction, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, lot_id, vehicle_number, owner_id, entry_time, exit_time,
		        duration_minutes, rate_type, charge, status, payment_status
		 FROM parking_transactions
		 WHERE id = $1`,
		id,
	)

	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

func scanTransaction(row pgx.Row) (*model.ParkingTransaction, error) {
	var (
		t           model.ParkingTransaction
		rateType    string
		status      string
		payStatus   string
		chargeCents int64
	)
	err := row.Scan(&t.ID, &t.LotID, &t.VehicleNumber, &t.OwnerID, &t.EntryTime, &t.ExitTime,
		&t.DurationMinutes, &rateType, &chargeCents, &status, &payStatus)
	if err != nil {
		return nil, err
	}
	t.RateType = model.RateType(rateType)
	t.Status = model.TransactionStatus(status)
	t.PaymentStatus = model.PaymentStatus(payStatus)
	t.ChargeAmount = fromCents(chargeCents)
	return &t, nil
}

// CompleteTransaction закрывает транзакцию при выезде: однократно проставляет
// время выезда, длительность и рассчитанную стоимость.
func (r *PostgresRepository) CompleteTransaction(ctx context.Context, id int64, exitTime time.Time, durationMinutes int64, charge float64) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE parking_transactions
		 SET exit_time = $2, duration_minutes = $3, charge = $4, status = $5
		 WHERE id = $1 AND status = $6`,
		id, exitTime, durationMinutes, toCents(charge),
		string(model.TransactionStatusCompleted), string(model.TransactionStatusActive),
	)
	if err != nil {
		return fmt.Errorf("complete transaction: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// SetTransactionsPaymentStatus проставляет статус оплаты указанным транзакциям.
func (r *PostgresRepository) SetTransactionsPaymentStatus(ctx context.Context, ids []int64, status model.PaymentStatus) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx,
		`UPDATE parking_transactions SET payment_status = $2 WHERE id = ANY($1)`,
		ids, string(status),
	)
	if err != nil {
		return fmt.Errorf("set transactions payment status: %w", err)
	}
	return nil
}

// ListTransactions возвращает транзакции владельца с въездом в интервале [fromTime, toTime).
func (r *PostgresRepository) ListTransactions(ctx context.Context, ownerID int64, fromTime, toTime time.Time) ([]model.ParkingTransaction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, lot_id, vehicle_number, owner_id, entry_time, exit_time,
		        duration_minutes, rate_type, charge, status, payment_status
		 FROM parking_transactions
		 WHERE owner_id = $1 AND entry_time >= $2 AND entry_time < $3
		 ORDER BY entry_time`,
		ownerID, fromTime, toTime,
	)
	if err != nil {
		return nil, fmt.Errorf("select transactions: %w", err)
	}
	defer rows.Close()

	return collectTransactions(rows)
}

// GetTransactionsByOwner возвращает все транзакции владельца, новые первыми.
func (r *PostgresRepository) GetTransactionsByOwner(ctx context.Context, ownerID int64) ([]model.ParkingTransaction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, lot_id, vehicle_number, owner_id, entry_time, exit_time,
		        duration_minutes, rate_type, charge, status, payment_status
		 FROM parking_transactions
		 WHERE owner_id = $1
		 ORDER BY entry_time DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("select transactions: %w", err)
	}
	defer rows.Close()

	return collectTransactions(rows)
}

func collectTransactions(rows pgx.Rows) ([]model.ParkingTransaction, error) {
	var res []model.ParkingTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		res = append(res, *t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// UpsertInvoice создаёт счёт за (владелец, месяц, год) или перезаписывает
// существующий на месте, сохраняя его идентификатор. Условная запись закрывает
// гонку параллельной генерации одного и того же счёта.
func (r *PostgresRepository) UpsertInvoice(ctx context.Context, inv *model.Invoice) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO invoices (owner_id, invoice_number, month, year, from_date, to_date,
		        total_transactions, total_hours, total_charges, total_amount,
		        payment_status, due_date, amount_paid, transaction_ids)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 ON CONFLICT (owner_id, month, year) DO UPDATE SET
		        invoice_number = EXCLUDED.invoice_number,
		        from_date = EXCLUDED.from_date,
		        to_date = EXCLUDED.to_date,
		        total_transactions = EXCLUDED.total_transactions,
		        total_hours = EXCLUDED.total_hours,
		        total_charges = EXCLUDED.total_charges,
		        total_amount = EXCLUDED.total_amount,
		        payment_status = EXCLUDED.payment_status,
		        due_date = EXCLUDED.due_date,
		        amount_paid = EXCLUDED.amount_paid,
		        transaction_ids = EXCLUDED.transaction_ids
		 RETURNING id`,
		inv.OwnerID, inv.InvoiceNumber, inv.Month, inv.Year, inv.FromDate, inv.ToDate,
		inv.TotalTransactions, inv.TotalHours, toCents(inv.TotalCharges), toCents(inv.TotalAmount),
		string(inv.PaymentStatus), inv.DueDate, toCents(inv.AmountPaid), inv.TransactionIDs,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert invoice: %w", err)
	}
	return id, nil
}

// GetMonthlyInvoice возвращает счёт владельца за указанный месяц.
func (r *PostgresRepository) GetMonthlyInvoice(ctx context.Context, ownerID int64, month, year int) (*model.Invoice, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, owner_id, invoice_number, month, year, from_date, to_date,
		        total_transactions, total_hours, total_charges, total_amount,
		        payment_status, due_date, amount_paid, transaction_ids
		 FROM invoices
		 WHERE owner_id = $1 AND month = $2 AND year = $3`,
		ownerID, month, year,
	)

	inv, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	return inv, nil
}

// ListPendingInvoices возвращает неоплаченные счета владельца.
func (r *PostgresRepository) ListPendingInvoices(ctx context.Context, ownerID int64) ([]model.Invoice, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, owner_id, invoice_number, month, year, from_date, to_date,
		        total_transactions, total_hours, total_charges, total_amount,
		        payment_status, due_date, amount_paid, transaction_ids
		 FROM invoices
		 WHERE owner_id = $1 AND payment_status = $2
		 ORDER BY due_date`,
		ownerID, string(model.InvoiceStatusPending),
	)
	if err != nil {
		return nil, fmt.Errorf("select invoices: %w", err)
	}
	defer rows.Close()

	var res []model.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		res = append(res, *inv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

func scanInvoice(row pgx.Row) (*model.Invoice, error) {
	var (
		inv          model.Invoice
		status       string
		chargesCents int64
		amountCents  int64
		paidCents    int64
	)
	err := row.Scan(&inv.ID, &inv.OwnerID, &inv.InvoiceNumber, &inv.Month, &inv.Year,
		&inv.FromDate, &inv.ToDate, &inv.TotalTransactions, &inv.TotalHours,
		&chargesCents, &amountCents, &status, &inv.DueDate, &paidCents, &inv.TransactionIDs)
	if err != nil {
		return nil, err
	}
	inv.PaymentStatus = model.InvoiceStatus(status)
	inv.TotalCharges = fromCents(chargesCents)
	inv.TotalAmount = fromCents(amountCents)
	inv.AmountPaid = fromCents(paidCents)
	return &inv, nil
}

// UpdateInvoicePayment обновляет сумму оплаты и статус счёта.
func (r *PostgresRepository) UpdateInvoicePayment(ctx context.Context, invoiceID int64, amountPaid float64, status model.InvoiceStatus) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE invoices SET amount_paid = $2, payment_status = $3 WHERE id = $1`,
		invoiceID, toCents(amountPaid), string(status),
	)
	if err != nil {
		return fmt.Errorf("update invoice payment: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

// ListChargesByInvoice возвращает пени, привязанные к счёту.
func (r *PostgresRepository) ListChargesByInvoice(ctx context.Context, invoiceID int64) ([]model.OverdueCharge, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, owner_id, invoice_id, invoice_number, original_amount,
		        late_fee_percentage, late_fee, total_amount, total_due,
		        overdue_days, due_date, payment_status
		 FROM overdue_charges
		 WHERE invoice_id = $1`,
		invoiceID,
	)
	if err != nil {
		return nil, fmt.Errorf("select overdue charges: %w", err)
	}
	defer rows.Close()

	var res []model.OverdueCharge
	for rows.Next() {
		var (
			c             model.OverdueCharge
			status        string
			originalCents int64
			feeCents      int64
			totalCents    int64
			dueCents      int64
		)
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.InvoiceID, &c.InvoiceNumber, &originalCents,
			&c.LateFeePercentage, &feeCents, &totalCents, &dueCents,
			&c.OverdueDays, &c.DueDate, &status); err != nil {
			return nil, fmt.Errorf("scan overdue charge: %w", err)
		}
		c.PaymentStatus = model.InvoiceStatus(status)
		c.OriginalAmount = fromCents(originalCents)
		c.LateFeeAmount = fromCents(feeCents)
		c.TotalAmount = fromCents(totalCents)
		c.TotalDueAmount = fromCents(dueCents)
		res = append(res, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// InsertCharge создаёт запись пени. На один счёт допускается не более одной записи.
func (r *PostgresRepository) InsertCharge(ctx context.Context, c *model.OverdueCharge) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO overdue_charges (owner_id, invoice_id, invoice_number, original_amount,
		        late_fee_percentage, late_fee, total_amount, total_due,
		        overdue_days, due_date, payment_status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id`,
		c.OwnerID, c.InvoiceID, c.InvoiceNumber, toCents(c.OriginalAmount),
		c.LateFeePercentage, toCents(c.LateFeeAmount), toCents(c.TotalAmount), toCents(c.TotalDueAmount),
		c.OverdueDays, c.DueDate, string(c.PaymentStatus),
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: invoice %d", ErrChargeExists, c.InvoiceID)
		}
		return 0, fmt.Errorf("insert overdue charge: %w", err)
	}
	return id, nil
}
