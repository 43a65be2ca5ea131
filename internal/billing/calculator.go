// Package billing содержит чистую логику расчёта стоимости парковки.
package billing

import (
	"math"
	"time"

	"github.com/parktrack/parktrack-system/internal/model"
)

const hoursPerDay = 24.0

// Часы ночного окна по умолчанию: с 20:00 до 08:00.
const (
	DefaultOvernightStartHour = 20
	DefaultOvernightEndHour   = 8
)

// Calculator выполняет расчёт стоимости парковки по тарифу.
type Calculator struct {
	overnightStartHour int
	overnightEndHour   int
}

// NewCalculator создаёт калькулятор с ночным окном по умолчанию.
func NewCalculator() *Calculator {
	return &Calculator{
		overnightStartHour: DefaultOvernightStartHour,
		overnightEndHour:   DefaultOvernightEndHour,
	}
}

// NewCalculatorWithWindow создаёт калькулятор с заданным ночным окном.
func NewCalculatorWithWindow(startHour, endHour int) *Calculator {
	return &Calculator{
		overnightStartHour: startHour,
		overnightEndHour:   endHour,
	}
}

// CalculateCharge рассчитывает стоимость парковки за интервал [entryTime, exitTime]
// по указанному тарифу. При отсутствии тарифа возвращает 0: подбор тарифа — зона
// ответственности вызывающего. Ночной фиксированный тариф имеет приоритет над
// почасовым и дневным и не ограничивается максимумом за день.
func (c *Calculator) CalculateCharge(entryTime, exitTime time.Time, rate *model.RateProfile, isVIP bool) float64 {
	if rate == nil {
		return 0
	}

	hours := exitTime.Sub(entryTime).Hours()

	if c.isOvernight(entryTime, exitTime) && rate.OvernightPrice > 0 {
		charge := rate.OvernightPrice
		charge = applyVIP(charge, rate, isVIP)
		if charge < rate.MinCharge {
			charge = rate.MinCharge
		}
		return RoundMoney(charge)
	}

	charge := tierCharge(hours, rate)
	charge = applyVIP(charge, rate, isVIP)

	if charge < rate.MinCharge {
		charge = rate.MinCharge
	}
	if hours > hoursPerDay && rate.MaxChargePerDay > 0 && charge > rate.MaxChargePerDay {
		charge = rate.MaxChargePerDay
	}

	return RoundMoney(charge)
}

// EstimateChargeForDuration рассчитывает предварительную стоимость за указанное
// число часов. Предварительный расчёт не учитывает ночное окно и максимум за день:
// используется для показа цены до въезда, когда фактический интервал неизвестен.
func (c *Calculator) EstimateChargeForDuration(hours float64, rate *model.RateProfile, isVIP bool) float64 {
	if rate == nil {
		return 0
	}

	charge := tierCharge(hours, rate)
	charge = applyVIP(charge, rate, isVIP)

	if charge < rate.MinCharge {
		charge = rate.MinCharge
	}

	return RoundMoney(charge)
}

func tierCharge(hours float64, rate *model.RateProfile) float64 {
	if hours >= hoursPerDay && rate.PricePerDay > 0 {
		fullDays := math.Floor(hours / hoursPerDay)
		remaining := hours - fullDays*hoursPerDay
		return fullDays*rate.PricePerDay + remaining*(rate.PricePerDay/hoursPerDay)
	}
	return hours * rate.PricePerHour
}

func applyVIP(charge float64, rate *model.RateProfile, isVIP bool) float64 {
	if isVIP && rate.VIPMultiplier > 1.0 {
		return charge * rate.VIPMultiplier
	}
	return charge
}

// isOvernight определяет, является ли интервал ночным: час въезда и час выезда
// оба попадают в ночное окно.
func (c *Calculator) isOvernight(entryTime, exitTime time.Time) bool {
	return c.inOvernightWindow(entryTime.Hour()) && c.inOvernightWindow(exitTime.Hour())
}

func (c *Calculator) inOvernightWindow(hour int) bool {
	if c.overnightStartHour <= c.overnightEndHour {
		return hour >= c.overnightStartHour && hour < c.overnightEndHour
	}
	// Окно через полночь, например 20:00–08:00.
	return hour >= c.overnightStartHour || hour < c.overnightEndHour
}

// RoundMoney округляет денежную сумму до двух знаков (половина — вверх).
func RoundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}
