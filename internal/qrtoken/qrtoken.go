// Package qrtoken реализует выпуск и проверку подписанных QR-токенов
// въезда и выезда.
package qrtoken

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// QRType описывает назначение токена.
type QRType string

const (
	QRTypeEntry QRType = "ENTRY"
	QRTypeExit  QRType = "EXIT"
)

const tokenPrefix = "PARKTRACK"

// TokenTTL — серверное окно приёма токена. Интерфейс показывает пользователю
// обратный отсчёт RefreshInterval, но валидатор принимает токен дольше: частота
// обновления на экране и окно приёма намеренно независимы.
const (
	TokenTTL        = 2 * time.Minute
	RefreshInterval = 30 * time.Second
)

// Status описывает результат проверки токена.
type Status string

const (
	StatusValid         Status = "VALID"
	StatusExpired       Status = "EXPIRED"
	StatusInvalidFormat Status = "INVALID_FORMAT"
	StatusInvalidHash   Status = "INVALID_HASH"
)

// Payload содержит данные, закодированные в QR-токене.
type Payload struct {
	UserID        int64
	VehicleNumber string
	Timestamp     time.Time
	QRType        QRType
}

// Codec выпускает и проверяет токены, подписанные общим секретом.
type Codec struct {
	secret string
	now    func() time.Time
}

// NewCodec создаёт кодек с указанным секретом подписи.
func NewCodec(secret string) *Codec {
	return &Codec{
		secret: secret,
		now:    time.Now,
	}
}

// CreateToken выпускает токен для пользователя и номера автомобиля.
// Формат: PARKTRACK|userID|vehicleNumber|timestampMs|qrType|hash.
func (c *Codec) CreateToken(userID int64, vehicleNumber string, qrType QRType) string {
	ts := c.now().UnixMilli()
	hash := c.securityHash(userID, ts)
	return strings.Join([]string{
		tokenPrefix,
		strconv.FormatInt(userID, 10),
		vehicleNumber,
		strconv.FormatInt(ts, 10),
		string(qrType),
		hash,
	}, "|")
}

// Validate проверяет токен и возвращает статус проверки вместе с
// раскодированными данными. Payload заполняется только при StatusValid.
func (c *Codec) Validate(token string) (Status, *Payload) {
	parts := strings.Split(token, "|")

	var (
		userIDStr  string
		vehicle    string
		tsStr      string
		qrTypeStr  string
		signedHash string
	)

	switch len(parts) {
	case 6:
		userIDStr, vehicle, tsStr, qrTypeStr, signedHash = parts[1], parts[2], parts[3], parts[4], parts[5]
	case 5:
		// Старый формат без типа токена: считается токеном въезда.
		userIDStr, vehicle, tsStr, signedHash = parts[1], parts[2], parts[3], parts[4]
		qrTypeStr = string(QRTypeEntry)
	default:
		return StatusInvalidFormat, nil
	}

	if parts[0] != tokenPrefix {
		return StatusInvalidFormat, nil
	}

	userID, err := strconv.ParseInt(userIDStr, 10, 64)
	if err != nil {
		return StatusInvalidFormat, nil
	}

	ts, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return StatusInvalidFormat, nil
	}

	if qrTypeStr != string(QRTypeEntry) && qrTypeStr != string(QRTypeExit) {
		return StatusInvalidFormat, nil
	}

	expected := c.securityHash(userID, ts)
	if !hmac.Equal([]byte(signedHash), []byte(expected)) {
		return StatusInvalidHash, nil
	}

	if c.now().Sub(time.UnixMilli(ts)) > TokenTTL {
		return StatusExpired, nil
	}

	return StatusValid, &Payload{
		UserID:        userID,
		VehicleNumber: vehicle,
		Timestamp:     time.UnixMilli(ts),
		QRType:        QRType(qrTypeStr),
	}
}

func (c *Codec) securityHash(userID int64, ts int64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d|%d|%s", userID, ts, c.secret)))
	return base64.StdEncoding.EncodeToString(sum[:])
}
