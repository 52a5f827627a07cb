package main

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	bookstorev1 "github.com/AndriyBorkovich/OnlineBookstore/api/bookstore/v1"
)

const idempotencyHeader = "idempotency-key"

// scenarioFunc проводит один сценарий для заказа tag. Отказ по остатку
// возвращается как outcomeRejected без ошибки.
type scenarioFunc func(ctx context.Context, client bookstorev1.BookstoreServiceClient, cfg config, tag string, col *collector) (outcome, error)

func scenarioFor(mode loadMode) scenarioFunc {
	switch mode {
	case modeReserveCommit:
		return reserveScenario(true)
	case modeOrder:
		return orderScenario
	default:
		return reserveScenario(false)
	}
}

// runScenario учитывает сценарий целиком под scenarioMethod.
func runScenario(ctx context.Context, client bookstorev1.BookstoreServiceClient, cfg config, tag string, col *collector) error {
	started := time.Now()
	o, err := scenarioFor(cfg.mode)(ctx, client, cfg, tag, col)
	col.observe(scenarioMethod, time.Since(started), err)
	col.settle(o, cfg.qty)
	return err
}

func reserveScenario(commit bool) scenarioFunc {
	return func(ctx context.Context, client bookstorev1.BookstoreServiceClient, cfg config, tag string, col *collector) (outcome, error) {
		reserved, err := timedCall(ctx, col, "ReserveStock", cfg.timeout, "",
			func(ctx context.Context) (*bookstorev1.ReserveStockResponse, error) {
				return client.ReserveStock(ctx, &bookstorev1.ReserveStockRequest{ItemId: cfg.itemID, Qty: cfg.qty, OrderId: tag})
			})
		switch {
		case err != nil:
			return outcomeNone, err
		case !reserved.Success:
			return outcomeRejected, nil
		case !commit:
			return outcomeAccepted, nil
		}

		committed, err := timedCall(ctx, col, "CommitReservation", cfg.timeout, "",
			func(ctx context.Context) (*bookstorev1.CommitReservationResponse, error) {
				return client.CommitReservation(ctx, &bookstorev1.CommitReservationRequest{ItemId: cfg.itemID, Qty: cfg.qty, OrderId: tag})
			})
		if err != nil {
			return outcomeAccepted, err
		}
		if !committed.Committed {
			return outcomeAccepted, status.Error(codes.FailedPrecondition, fmt.Sprintf("reservation %s was not committed", tag))
		}
		return outcomeAccepted, nil
	}
}

// orderScenario: FailedPrecondition на CreateOrder означает нехватку остатка.
func orderScenario(ctx context.Context, client bookstorev1.BookstoreServiceClient, cfg config, tag string, col *collector) (outcome, error) {
	created, err := timedCall(ctx, col, "CreateOrder", cfg.timeout, "create-"+tag,
		func(ctx context.Context) (*bookstorev1.CreateOrderResponse, error) {
			return client.CreateOrder(ctx, &bookstorev1.CreateOrderRequest{
				CustomerId: "customer-" + tag,
				Items:      []*bookstorev1.OrderItem{{ItemId: cfg.itemID, Qty: cfg.qty}},
			})
		})
	if status.Code(err) == codes.FailedPrecondition {
		return outcomeRejected, nil
	}
	if err != nil {
		return outcomeNone, err
	}
	if created.Order == nil || created.Order.Id == "" {
		return outcomeNone, status.Error(codes.Internal, "create response returned empty order id")
	}

	_, err = timedCall(ctx, col, "PayOrder", cfg.timeout, "pay-"+tag,
		func(ctx context.Context) (*bookstorev1.PayOrderResponse, error) {
			return client.PayOrder(ctx, &bookstorev1.PayOrderRequest{OrderId: created.Order.Id})
		})
	return outcomeAccepted, err
}

// timedCall ограничивает вызов таймаутом, при key != "" добавляет
// idempotency-key и записывает задержку и код ответа в col.
func timedCall[T any](
	ctx context.Context,
	col *collector,
	method string,
	timeout time.Duration,
	key string,
	fn func(context.Context) (T, error),
) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if key != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, idempotencyHeader, key)
	}

	started := time.Now()
	resp, err := fn(ctx)
	col.observe(method, time.Since(started), err)
	return resp, err
}
