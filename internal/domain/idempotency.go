package domain

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strings"
	"time"
)

// IdempotencyStatus описывает жизненный цикл ключа идемпотентности.
type IdempotencyStatus string

const (
	// IdempotencyStatusProcessing — запрос принят и ещё обрабатывается.
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	// IdempotencyStatusDone — запрос завершён, ответ сохранён для повтора.
	IdempotencyStatusDone IdempotencyStatus = "done"
	// IdempotencyStatusFailed — обработка завершилась бизнес-ошибкой, ответ тоже сохранён.
	IdempotencyStatusFailed IdempotencyStatus = "failed"
)

// IdempotencyRecord хранит результат оформления, выполненного с Idempotency-Key.
type IdempotencyRecord struct {
	Key          string
	RequestHash  string
	ResponseBody []byte
	HTTPStatus   int
	Status       IdempotencyStatus
	TTLAt        time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s IdempotencyStatus) Valid() bool {
	switch s {
	case IdempotencyStatusProcessing, IdempotencyStatusDone, IdempotencyStatusFailed:
		return true
	default:
		return false
	}
}

// Completed сообщает, что ответ сохранён и его можно отдать повторно.
func (r IdempotencyRecord) Completed() bool {
	return r.Status == IdempotencyStatusDone || r.Status == IdempotencyStatusFailed
}

// ExpiredIdempotencyKey описывает запись, удалённую очисткой по TTL.
type ExpiredIdempotencyKey struct {
	Key    string
	Status IdempotencyStatus
}

// UnknownIdempotencyOperation возвращается для ключей без префикса операции.
const UnknownIdempotencyOperation = "unknown"

// IdempotencyScope строит ключ хранения "<operation>:<sha256>". Хеш берётся от
// организации, пользователя и клиентского ключа с длиной перед каждым полем,
// поэтому никакие значения полей не дают одинаковый ключ для разных акторов.
func IdempotencyScope(operation string, actor Actor, key string) string {
	h := sha256.New()
	var size [8]byte
	for _, part := range []string{actor.OrganizationID, actor.UserID, key} {
		binary.BigEndian.PutUint64(size[:], uint64(len(part)))
		h.Write(size[:])
		h.Write([]byte(part))
	}
	return operation + ":" + hex.EncodeToString(h.Sum(nil))
}

// IdempotencyOperation извлекает операцию из ключа, построенного IdempotencyScope.
func IdempotencyOperation(scoped string) string {
	op, _, found := strings.Cut(scoped, ":")
	if !found || op == "" {
		return UnknownIdempotencyOperation
	}
	return op
}
