// Package model содержит доменные сущности сервиса парктрек.
package model

import "time"

// UserRole описывает роль пользователя в системе.
type UserRole string

const (
	UserRoleDriver   UserRole = "driver"
	UserRoleOperator UserRole = "operator"
)

// User представляет зарегистрированного пользователя парковочной системы.
type User struct {
	ID            int64
	Login         string
	PasswordHash  []byte
	FullName      string
	Role          UserRole
	VehicleNumber string
	VIP           bool
	CreatedAt     time.Time
}

// RateType описывает тарифный план парковки.
type RateType string

const (
	RateTypeNormal    RateType = "NORMAL"
	RateTypeVIP       RateType = "VIP"
	RateTypeHourly    RateType = "HOURLY"
	RateTypeOvernight RateType = "OVERNIGHT"
)

// RateProfile описывает версию тарифа парковки.
// Версии неизменяемы: действующий тариф выбирается по (LotID, RateType, Active).
type RateProfile struct {
	ID              int64
	LotID           int64
	RateType        RateType
	PricePerHour    float64
	PricePerDay     float64
	OvernightPrice  float64
	MinCharge       float64
	MaxChargePerDay float64
	VIPMultiplier   float64
	Active          bool
}

// TransactionStatus описывает статус парковочной транзакции.
type TransactionStatus string

const (
	TransactionStatusActive         TransactionStatus = "ACTIVE"
	TransactionStatusCompleted      TransactionStatus = "COMPLETED"
	TransactionStatusPendingPayment TransactionStatus = "PENDING_PAYMENT"
)

// PaymentStatus описывает статус оплаты транзакции.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
)

// ParkingTransaction описывает одну сессию парковки от въезда до выезда.
// Создаётся при въезде (ACTIVE, ExitTime = nil) и ровно один раз мутируется
// при выезде: COMPLETED, заполняются ExitTime, DurationMinutes и ChargeAmount.
type ParkingTransaction struct {
	ID              int64
	LotID           int64
	VehicleNumber   string
	OwnerID         int64
	EntryTime       time.Time
	ExitTime        *time.Time
	DurationMinutes int64
	RateType        RateType
	ChargeAmount    float64
	Status          TransactionStatus
	PaymentStatus   PaymentStatus
}

// InvoiceStatus описывает статус оплаты счёта или пени.
type InvoiceStatus string

const (
	InvoiceStatusPending InvoiceStatus = "PENDING"
	InvoiceStatusPaid    InvoiceStatus = "PAID"
	InvoiceStatusPartial InvoiceStatus = "PARTIAL"
)

// Invoice представляет ежемесячный счёт водителя.
// Счёт хранит денормализованный снимок итогов транзакций на момент генерации;
// на пользователя существует не более одного счёта за (месяц, год).
type Invoice struct {
	ID                int64
	OwnerID           int64
	InvoiceNumber     string
	Month             int
	Year              int
	FromDate          time.Time
	ToDate            time.Time
	TotalTransactions int
	TotalHours        float64
	TotalCharges      float64
	TotalAmount       float64
	PaymentStatus     InvoiceStatus
	DueDate           time.Time
	AmountPaid        float64
	TransactionIDs    []int64
}

// OverdueCharge описывает начисление пени по просроченному счёту.
// Содержит неизменяемый снимок суммы счёта на момент генерации; создаётся не
// более одного раза на счёт.
type OverdueCharge struct {
	ID                int64
	OwnerID           int64
	InvoiceID         int64
	InvoiceNumber     string
	OriginalAmount    float64
	LateFeePercentage float64
	LateFeeAmount     float64
	TotalAmount       float64
	TotalDueAmount    float64
	OverdueDays       int
	DueDate           time.Time
	PaymentStatus     InvoiceStatus
}
