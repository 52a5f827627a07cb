package grpcsvc

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	bookstorev1 "github.com/AndriyBorkovich/OnlineBookstore/api/bookstore/v1"
	"github.com/AndriyBorkovich/OnlineBookstore/internal/domain"
)

// toStatus переводит доменную ошибку в gRPC-статус. Внутренние сбои
// логируются, а клиенту уходит обобщённое сообщение.
func (s *BookstoreService) toStatus(err error, operation string) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	code := codeOf(err)
	entry := s.logger.WithError(err).WithField("operation", operation)
	switch code {
	case codes.Internal:
		entry.Error("request failed")
		return status.Error(codes.Internal, "internal error")
	case codes.Unavailable, codes.Aborted, codes.DeadlineExceeded, codes.Canceled:
		entry.Warn("request failed")
	default:
		entry.WithField("code", code.String()).Debug("request rejected")
	}
	return status.Error(code, err.Error())
}

func codeOf(err error) codes.Code {
	switch {
	case domain.IsInvalidInput(err):
		return codes.InvalidArgument
	case errors.Is(err, domain.ErrItemNotFound), errors.Is(err, domain.ErrOrderNotFound):
		return codes.NotFound
	case errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrReservationNotFound),
		errors.Is(err, domain.ErrCommitQtyMismatch),
		errors.Is(err, domain.ErrOrderStatusTransition):
		return codes.FailedPrecondition
	case errors.Is(err, domain.ErrOrderVersionConflict):
		return codes.Aborted
	case errors.Is(err, domain.ErrLedgerUnavailable):
		return codes.Unavailable
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	default:
		return codes.Internal
	}
}

func toProtoStockItem(item domain.StockItem) *bookstorev1.StockItem {
	return &bookstorev1.StockItem{Id: item.ID, Title: item.Title, TotalStock: item.TotalStock}
}

func toProtoHold(h domain.Hold) *bookstorev1.Hold {
	hold := &bookstorev1.Hold{
		ItemId:      h.ItemID,
		OrderId:     h.OrderID,
		Qty:         h.Qty,
		CreatedUnix: h.CreatedAt.Unix(),
	}
	if !h.ExpiresAt.IsZero() {
		hold.ExpiresAtUnix = h.ExpiresAt.Unix()
	}
	return hold
}

func toProtoOrder(order domain.Order) *bookstorev1.Order {
	items := make([]*bookstorev1.OrderItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, &bookstorev1.OrderItem{
			ItemId:    item.ItemID,
			Qty:       item.Qty,
			HoldState: string(item.HoldState),
		})
	}
	return &bookstorev1.Order{
		Id:          order.ID,
		CustomerId:  order.CustomerID,
		Status:      toProtoStatus(order.Status),
		Items:       items,
		Version:     order.Version,
		CreatedUnix: order.CreatedAt.Unix(),
		UpdatedUnix: order.UpdatedAt.Unix(),
	}
}

func toProtoStatus(s domain.OrderStatus) bookstorev1.OrderStatus {
	switch s {
	case domain.OrderStatusPending:
		return bookstorev1.OrderStatusPending
	case domain.OrderStatusReserved:
		return bookstorev1.OrderStatusReserved
	case domain.OrderStatusPaid:
		return bookstorev1.OrderStatusPaid
	case domain.OrderStatusCanceled:
		return bookstorev1.OrderStatusCanceled
	default:
		log.WithField("status", s).Debug("unknown order status")
		return bookstorev1.OrderStatusUnspecified
	}
}
