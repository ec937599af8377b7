package httpapi

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

const (
	// HeaderIdempotencyKey — ключ повторной отправки оформления.
	HeaderIdempotencyKey = "Idempotency-Key"
	// HeaderIdempotentReplay выставляется, когда ответ взят из сохранённого результата.
	HeaderIdempotentReplay = "Idempotent-Replayed"

	idempotencyTTL          = 24 * time.Hour
	maxIdempotencyKeyLength = 200
)

// outcome: результат обработчика до сериализации.
type outcome struct {
	status  int
	payload any
	err     error
}

// withIdempotency выполняет run не более одного раза на ключ. Повтор с тем же
// телом получает сохранённый ответ, с другим телом — 409. Ответ 5xx и конфликт
// транзакций не сохраняются: ключ освобождается, и клиент может повторить запрос.
// Без заголовка запрос выполняется как обычно.
func (s *Server) withIdempotency(w http.ResponseWriter, r *http.Request, op string, body []byte, run func(ctx context.Context) outcome) {
	ctx := r.Context()
	key := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
	if s.idemRepo == nil || key == "" {
		s.write(w, r, op, run(ctx))
		return
	}
	if len(key) > maxIdempotencyKeyLength {
		respondError(w, http.StatusBadRequest, "invalid_idempotency_key", "idempotency key is too long")
		return
	}

	scoped := domain.IdempotencyScope(op, actorFrom(ctx), key)
	hash := buildIdempotencyRequestHash(r.Method, r.URL.Path, body)

	record, err := s.idemRepo.CreateProcessing(ctx, scoped, hash, s.now().UTC().Add(idempotencyTTL))
	if err != nil {
		s.replayIdempotency(w, r, err, record)
		return
	}

	result := run(ctx)

	// Запрос мог быть отменён, а результат сохранить всё равно нужно.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()

	if result.err != nil {
		status, payload := errorPayload(result.err)
		s.logFailure(r, op, status, result.err)
		encoded, _ := json.Marshal(payload)

		if status >= http.StatusInternalServerError || errors.Is(result.err, domain.ErrConcurrency) {
			if delErr := s.idemRepo.Delete(persistCtx, scoped); delErr != nil {
				s.logger.WithError(delErr).WithField("idempotency_key", key).Warn("failed to release idempotency key")
			}
		} else if markErr := s.idemRepo.MarkFailed(persistCtx, scoped, encoded, status); markErr != nil {
			s.logger.WithError(markErr).WithField("idempotency_key", key).Warn("failed to store idempotency failure response")
		}
		writeRaw(w, status, encoded)
		return
	}

	encoded, err := json.Marshal(result.payload)
	if err != nil {
		s.logger.WithError(err).WithField("operation", op).Error("failed to encode response")
		respondError(w, http.StatusInternalServerError, "internal", "")
		return
	}
	if markErr := s.idemRepo.MarkDone(persistCtx, scoped, encoded, result.status); markErr != nil {
		s.logger.WithError(markErr).WithField("idempotency_key", key).Warn("failed to store idempotent success response")
	}
	writeRaw(w, result.status, encoded)
}

func (s *Server) replayIdempotency(w http.ResponseWriter, r *http.Request, createErr error, record domain.IdempotencyRecord) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		respondError(w, http.StatusConflict, "idempotency_key_reused", "idempotency key is already used with a different request")
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		switch {
		case record.Status == domain.IdempotencyStatusProcessing:
			respondError(w, http.StatusConflict, "request_in_progress", "request with the same idempotency key is still processing")
		case record.Completed() && len(record.ResponseBody) > 0 && record.HTTPStatus > 0:
			w.Header().Set(HeaderIdempotentReplay, "true")
			writeRaw(w, record.HTTPStatus, record.ResponseBody)
		default:
			s.logger.WithField("idempotency_key", record.Key).WithField("status", record.Status).Warn("idempotency record has no stored response")
			respondError(w, http.StatusInternalServerError, "internal", "")
		}
	default:
		s.logger.WithError(createErr).WithField("path", r.URL.Path).Warn("failed to create idempotency record")
		respondError(w, http.StatusInternalServerError, "internal", "")
	}
}

func (s *Server) write(w http.ResponseWriter, r *http.Request, op string, result outcome) {
	if result.err != nil {
		s.fail(w, r, op, result.err)
		return
	}
	respondJSON(w, result.status, result.payload)
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func buildIdempotencyRequestHash(method, path string, body []byte) string {
	payload := make([]byte, 0, len(method)+len(path)+2+len(body))
	payload = append(payload, method...)
	payload = append(payload, ' ')
	payload = append(payload, path...)
	payload = append(payload, ':')
	payload = append(payload, body...)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
