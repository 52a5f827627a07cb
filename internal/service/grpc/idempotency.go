package grpcsvc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/AndriyBorkovich/OnlineBookstore/internal/domain"
)

const (
	idempotencyKeyHeader = "idempotency-key"
	idempotencyTTL       = 24 * time.Hour
)

// storedFailure — ответ-ошибка, сохранённый под ключом.
type storedFailure struct {
	Code    codes.Code `json:"code"`
	Message string     `json:"message"`
}

// idempotencyGuard фиксирует результат мутирующего RPC под idempotency-key клиента.
type idempotencyGuard struct {
	repo   domain.IdempotencyRepository
	logger *log.Entry
	ttl    time.Duration
	now    func() time.Time
}

func newIdempotencyGuard(repo domain.IdempotencyRepository, logger *log.Entry) *idempotencyGuard {
	if repo == nil {
		return nil
	}
	return &idempotencyGuard{
		repo:   repo,
		logger: logger.WithField("layer", "idempotency"),
		ttl:    idempotencyTTL,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// idempotent выполняет call не более одного раза на ключ. Повтор с тем же
// телом получает сохранённый ответ или ошибку, с другим телом — AlreadyExists.
// Guard == nil выполняет call без проверок.
func idempotent[T any](
	ctx context.Context,
	g *idempotencyGuard,
	method string,
	req any,
	call func(context.Context) (*T, error),
) (*T, error) {
	if g == nil {
		return call(ctx)
	}

	key, err := idempotencyKey(ctx)
	if err != nil {
		return nil, err
	}
	entry := g.logger.WithFields(log.Fields{"method": method, "idempotency_key": key})

	hash, err := requestHash(method, req)
	if err != nil {
		entry.WithError(err).Warn("failed to hash request")
		return nil, status.Error(codes.Internal, "failed to initialize idempotency request")
	}

	record, err := g.repo.CreateProcessing(ctx, key, hash, g.now().Add(g.ttl))
	if err != nil {
		return replay[T](entry, record, err)
	}

	resp, callErr := call(ctx)
	// Ответ фиксируется, даже если клиент уже отключился.
	storeCtx := context.WithoutCancel(ctx)
	if callErr != nil {
		g.storeFailure(storeCtx, entry, key, callErr)
		return nil, callErr
	}
	if err := g.storeSuccess(storeCtx, key, resp); err != nil {
		entry.WithError(err).Warn("failed to store idempotent response")
	}
	return resp, nil
}

func replay[T any](entry *log.Entry, record domain.IdempotencyRecord, createErr error) (*T, error) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		return nil, status.Error(codes.AlreadyExists, "idempotency key is already used with different request payload")
	case !errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		entry.WithError(createErr).Warn("failed to create idempotency record")
		return nil, status.Error(codes.Internal, "failed to initialize idempotency request")
	}

	switch record.Status {
	case domain.IdempotencyStatusProcessing:
		return nil, status.Error(codes.Aborted, "request with the same idempotency key is already processing")
	case domain.IdempotencyStatusFailed:
		return nil, restoreFailure(record)
	case domain.IdempotencyStatusDone:
		resp := new(T)
		if len(record.ResponseBody) == 0 {
			return nil, status.Error(codes.Internal, "idempotency cache is empty")
		}
		if err := json.Unmarshal(record.ResponseBody, resp); err != nil {
			entry.WithError(err).Warn("failed to decode cached response")
			return nil, status.Error(codes.Internal, "failed to decode cached idempotency response")
		}
		return resp, nil
	default:
		return nil, status.Error(codes.Internal, "unknown idempotency record status")
	}
}

func (g *idempotencyGuard) storeSuccess(ctx context.Context, key string, resp any) error {
	body, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	return g.repo.MarkDone(ctx, key, body, int(codes.OK))
}

func (g *idempotencyGuard) storeFailure(ctx context.Context, entry *log.Entry, key string, callErr error) {
	st := status.Convert(callErr)
	failure := storedFailure{Code: st.Code(), Message: st.Message()}
	if failure.Code == codes.OK {
		failure.Code = codes.Internal
	}

	body, err := json.Marshal(failure)
	if err != nil {
		entry.WithError(err).Warn("failed to encode stored failure")
		body = nil
	}
	if err := g.repo.MarkFailed(ctx, key, body, int(failure.Code)); err != nil {
		entry.WithError(err).Warn("failed to store idempotent failure")
	}
}

// restoreFailure поднимает сохранённую ошибку. Если тело испорчено,
// остаётся код из записи с общим текстом.
func restoreFailure(record domain.IdempotencyRecord) error {
	const fallback = "previous request with the same idempotency key failed"

	var failure storedFailure
	if len(record.ResponseBody) > 0 && json.Unmarshal(record.ResponseBody, &failure) == nil && failingCode(failure.Code) {
		if failure.Message == "" {
			failure.Message = fallback
		}
		return status.Error(failure.Code, failure.Message)
	}

	if record.Code > 0 && record.Code <= int(codes.Unauthenticated) {
		if code := codes.Code(record.Code); failingCode(code) { //nolint:gosec // диапазон проверен выше.
			return status.Error(code, fallback)
		}
	}
	return status.Error(codes.Internal, fallback)
}

func failingCode(code codes.Code) bool {
	return code > codes.OK && code <= codes.Unauthenticated
}

func idempotencyKey(ctx context.Context) (string, error) {
	for _, v := range metadata.ValueFromIncomingContext(ctx, idempotencyKeyHeader) {
		if v = strings.TrimSpace(v); v != "" {
			return v, nil
		}
	}
	return "", status.Error(codes.InvalidArgument, "idempotency-key metadata is required")
}

// requestHash — sha256 от "method:json(req)". У сообщений API фиксированный
// набор полей, поэтому encoding/json даёт стабильное представление.
func requestHash(method string, req any) (string, error) {
	if req == nil {
		return "", errors.New("request is nil")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{':'})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil)), nil
}
