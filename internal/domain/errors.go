package domain

import "errors"

var (
	// Ошибка отсутствующего идентификатора клиента.
	ErrCustomerRequired = errors.New("customer_id is required")
	// Ошибка отсутствия хотя бы одной позиции в заказе.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// Ошибка при некорректном количестве (<= 0).
	ErrItemQtyInvalid = errors.New("item qty must be greater than zero")
	// Ошибка отсутствующего идентификатора книги в позиции или резерве.
	ErrItemIDRequired = errors.New("item_id is required")
	// Ошибка повторяющейся книги в одном заказе.
	ErrItemDuplicated = errors.New("order contains the same item twice")
	// Ошибка отсутствующего идентификатора заказа.
	ErrOrderIDRequired = errors.New("order_id is required")
	// Ошибка отрицательного остатка при заведении книги в каталог.
	ErrStockNegative = errors.New("total_stock must be non-negative")

	// ErrInvalidReserveRequest — резерв отклонён из-за некорректных аргументов.
	ErrInvalidReserveRequest = errors.New("invalid reserve request")
	// ErrItemNotFound возвращается, если книги нет в складском учёте.
	ErrItemNotFound = errors.New("item not found")
	// ErrInsufficientStock — доступного остатка меньше запрошенного количества.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrReservationNotFound — для пары (книга, заказ) нет активного резерва.
	ErrReservationNotFound = errors.New("reservation not found")
	// ErrCommitQtyMismatch — количество при списании не совпадает с зарезервированным.
	ErrCommitQtyMismatch = errors.New("commit qty does not match reserved qty")
	// ErrStockUnderflow — списание увело бы остаток ниже нуля; учёт рассинхронизирован.
	ErrStockUnderflow = errors.New("stock underflow")
	// ErrDeltaAlreadyApplied — списание по этой паре (книга, ref) уже проведено.
	ErrDeltaAlreadyApplied = errors.New("stock delta already applied")
	// ErrLedgerUnavailable — складской учёт временно недоступен (circuit breaker открыт).
	ErrLedgerUnavailable = errors.New("stock ledger unavailable")

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrOrderStatusTransition — недопустимый переход статуса заказа.
	ErrOrderStatusTransition = errors.New("order status transition is not allowed")
	// ErrOutboxMessageNotFound — в outbox нет записи с таким id.
	ErrOutboxMessageNotFound = errors.New("outbox message not found")
	// ErrOutboxMessageExists — запись с таким id уже поставлена в outbox.
	ErrOutboxMessageExists = errors.New("outbox message already enqueued")

	// ErrIdempotencyKeyRequired — пустой idempotency-key.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyRequestHashRequired — пустой хеш запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyNotFound — ключ не найден.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
	// ErrIdempotencyKeyAlreadyExists — ключ уже зарегистрирован с тем же запросом.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyHashMismatch — ключ уже использован с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with different request")
)

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// IsIdempotencyConflict сообщает, что ключ уже занят (тем же или другим запросом).
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) || errors.Is(err, ErrIdempotencyHashMismatch)
}

// IsStockResult сообщает, что ошибка является бизнес-результатом резервирования,
// а не сбоем инфраструктуры.
func IsStockResult(err error) bool {
	return errors.Is(err, ErrItemNotFound) ||
		errors.Is(err, ErrInvalidReserveRequest) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrReservationNotFound) ||
		errors.Is(err, ErrCommitQtyMismatch)
}

// IsInvalidInput сообщает, что ошибка вызвана некорректными аргументами запроса.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrCustomerRequired) ||
		errors.Is(err, ErrItemsRequired) ||
		errors.Is(err, ErrItemQtyInvalid) ||
		errors.Is(err, ErrItemIDRequired) ||
		errors.Is(err, ErrItemDuplicated) ||
		errors.Is(err, ErrOrderIDRequired) ||
		errors.Is(err, ErrStockNegative) ||
		errors.Is(err, ErrInvalidReserveRequest)
}
