package grpcsvc

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	bookstorev1 "github.com/AndriyBorkovich/OnlineBookstore/api/bookstore/v1"
	"github.com/AndriyBorkovich/OnlineBookstore/internal/domain"
	"github.com/AndriyBorkovich/OnlineBookstore/internal/workflow"
)

const defaultListOrdersLimit = 100

// Stock — операции движка резервов, доступные через API.
type Stock interface {
	Validate(ctx context.Context, itemID string, qty int64) (domain.Availability, error)
	Reserve(ctx context.Context, itemID string, qty int64, orderID string) (domain.ReserveResult, error)
	Commit(ctx context.Context, itemID string, qty int64, orderID string) (bool, error)
	Cancel(ctx context.Context, itemID, orderID string) (bool, error)
	UpsertItem(ctx context.Context, item domain.StockItem) (domain.StockItem, error)
	Holds(itemID string) []domain.Hold
}

// Orders — жизненный цикл заказов.
type Orders interface {
	CreateOrder(ctx context.Context, customerID string, lines []workflow.Line) (domain.Order, error)
	MarkPaid(ctx context.Context, orderID string) (domain.Order, error)
	Cancel(ctx context.Context, orderID, reason string) (domain.Order, error)
	Get(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, customerID string, limit int) ([]domain.Order, error)
	Timeline(ctx context.Context, orderID string) ([]domain.TimelineEvent, error)
}

// BookstoreService реализует bookstore.v1.BookstoreService.
type BookstoreService struct {
	bookstorev1.UnimplementedBookstoreServiceServer

	stock    Stock
	reader   domain.StockReader
	orders   Orders
	idem     *idempotencyGuard
	logger   *log.Entry
}

// NewBookstoreService конструирует сервис. reader отдаёт остатки для GetStockInfo
// (обычно read-through кеш); idemRepo == nil отключает проверку idempotency-key.
func NewBookstoreService(
	stock Stock,
	reader domain.StockReader,
	orders Orders,
	idemRepo domain.IdempotencyRepository,
	logger *log.Entry,
) *BookstoreService {
	if logger == nil {
		logger = log.WithField("component", "bookstore-service")
	}
	return &BookstoreService{
		stock:    stock,
		reader:   reader,
		orders:   orders,
		idem:     newIdempotencyGuard(idemRepo, logger),
		logger:   logger,
	}
}

// GetStockInfo возвращает запись книги.
func (s *BookstoreService) GetStockInfo(ctx context.Context, req *bookstorev1.GetStockInfoRequest) (*bookstorev1.GetStockInfoResponse, error) {
	if req == nil || strings.TrimSpace(req.ItemId) == "" {
		return nil, status.Error(codes.InvalidArgument, "item_id is required")
	}

	item, err := s.reader.StockInfo(ctx, req.ItemId)
	if err != nil {
		return nil, s.toStatus(err, "GetStockInfo")
	}
	return &bookstorev1.GetStockInfoResponse{Id: item.ID, Title: item.Title, TotalStock: item.TotalStock}, nil
}

// ValidateStock сообщает, хватает ли доступного остатка.
func (s *BookstoreService) ValidateStock(ctx context.Context, req *bookstorev1.ValidateStockRequest) (*bookstorev1.ValidateStockResponse, error) {
	if req == nil || strings.TrimSpace(req.ItemId) == "" {
		return nil, status.Error(codes.InvalidArgument, "item_id is required")
	}

	availability, err := s.stock.Validate(ctx, req.ItemId, req.Qty)
	if err != nil {
		return nil, s.toStatus(err, "ValidateStock")
	}
	return &bookstorev1.ValidateStockResponse{
		IsAvailable:  availability.IsAvailable,
		AvailableQty: availability.AvailableQty,
	}, nil
}

// ReserveStock удерживает остаток под заказ. Отказ по остатку — success=false, а не ошибка.
func (s *BookstoreService) ReserveStock(ctx context.Context, req *bookstorev1.ReserveStockRequest) (*bookstorev1.ReserveStockResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	res, err := s.stock.Reserve(ctx, req.ItemId, req.Qty, req.OrderId)
	if err != nil {
		return nil, s.toStatus(err, "ReserveStock")
	}
	return &bookstorev1.ReserveStockResponse{Success: res.Success, Message: res.Message}, nil
}

// CommitReservation списывает резерв.
func (s *BookstoreService) CommitReservation(ctx context.Context, req *bookstorev1.CommitReservationRequest) (*bookstorev1.CommitReservationResponse, error) {
	if req == nil || req.ItemId == "" || req.OrderId == "" {
		return nil, status.Error(codes.InvalidArgument, "item_id and order_id are required")
	}

	committed, err := s.stock.Commit(ctx, req.ItemId, req.Qty, req.OrderId)
	if err != nil {
		return nil, s.toStatus(err, "CommitReservation")
	}
	return &bookstorev1.CommitReservationResponse{Committed: committed}, nil
}

// CancelReservation снимает резерв.
func (s *BookstoreService) CancelReservation(ctx context.Context, req *bookstorev1.CancelReservationRequest) (*bookstorev1.CancelReservationResponse, error) {
	if req == nil || req.ItemId == "" || req.OrderId == "" {
		return nil, status.Error(codes.InvalidArgument, "item_id and order_id are required")
	}

	canceled, err := s.stock.Cancel(ctx, req.ItemId, req.OrderId)
	if err != nil {
		return nil, s.toStatus(err, "CancelReservation")
	}
	return &bookstorev1.CancelReservationResponse{Canceled: canceled}, nil
}

// UpsertStockItem заводит книгу в каталог или меняет её остаток.
func (s *BookstoreService) UpsertStockItem(ctx context.Context, req *bookstorev1.UpsertStockItemRequest) (*bookstorev1.UpsertStockItemResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	saved, err := s.stock.UpsertItem(ctx, domain.StockItem{ID: req.Id, Title: req.Title, TotalStock: req.TotalStock})
	if err != nil {
		return nil, s.toStatus(err, "UpsertStockItem")
	}
	return &bookstorev1.UpsertStockItemResponse{Item: toProtoStockItem(saved)}, nil
}

// ListHolds возвращает активные резервы книги в порядке создания.
func (s *BookstoreService) ListHolds(_ context.Context, req *bookstorev1.ListHoldsRequest) (*bookstorev1.ListHoldsResponse, error) {
	if req == nil || req.ItemId == "" {
		return nil, status.Error(codes.InvalidArgument, "item_id is required")
	}

	holds := s.stock.Holds(req.ItemId)
	result := make([]*bookstorev1.Hold, 0, len(holds))
	for _, h := range holds {
		result = append(result, toProtoHold(h))
	}
	return &bookstorev1.ListHoldsResponse{Holds: result}, nil
}

// CreateOrder создаёт заказ и резервирует все позиции.
func (s *BookstoreService) CreateOrder(ctx context.Context, req *bookstorev1.CreateOrderRequest) (*bookstorev1.CreateOrderResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	return idempotent(ctx, s.idem, bookstorev1.BookstoreService_CreateOrder_FullMethodName, req,
		func(ctx context.Context) (*bookstorev1.CreateOrderResponse, error) {
			lines := make([]workflow.Line, 0, len(req.Items))
			for idx, item := range req.Items {
				if item == nil {
					return nil, status.Errorf(codes.InvalidArgument, "items[%d] is nil", idx)
				}
				lines = append(lines, workflow.Line{ItemID: item.ItemId, Qty: item.Qty})
			}

			order, err := s.orders.CreateOrder(ctx, req.CustomerId, lines)
			if err != nil {
				return nil, s.toStatus(err, "CreateOrder")
			}
			return &bookstorev1.CreateOrderResponse{Order: toProtoOrder(order)}, nil
		},
	)
}

// PayOrder подтверждает оплату: все резервы заказа списываются.
func (s *BookstoreService) PayOrder(ctx context.Context, req *bookstorev1.PayOrderRequest) (*bookstorev1.PayOrderResponse, error) {
	if req == nil || req.OrderId == "" {
		return nil, status.Error(codes.InvalidArgument, "order_id is required")
	}

	return idempotent(ctx, s.idem, bookstorev1.BookstoreService_PayOrder_FullMethodName, req,
		func(ctx context.Context) (*bookstorev1.PayOrderResponse, error) {
			order, err := s.orders.MarkPaid(ctx, req.OrderId)
			if err != nil {
				return nil, s.toStatus(err, "PayOrder")
			}
			return &bookstorev1.PayOrderResponse{OrderId: order.ID, Status: toProtoStatus(order.Status)}, nil
		},
	)
}

// CancelOrder отменяет заказ и снимает его резервы.
func (s *BookstoreService) CancelOrder(ctx context.Context, req *bookstorev1.CancelOrderRequest) (*bookstorev1.CancelOrderResponse, error) {
	if req == nil || req.OrderId == "" {
		return nil, status.Error(codes.InvalidArgument, "order_id is required")
	}

	return idempotent(ctx, s.idem, bookstorev1.BookstoreService_CancelOrder_FullMethodName, req,
		func(ctx context.Context) (*bookstorev1.CancelOrderResponse, error) {
			order, err := s.orders.Cancel(ctx, req.OrderId, req.Reason)
			if err != nil {
				return nil, s.toStatus(err, "CancelOrder")
			}
			return &bookstorev1.CancelOrderResponse{OrderId: order.ID, Status: toProtoStatus(order.Status)}, nil
		},
	)
}

// GetOrder возвращает заказ и его таймлайн.
func (s *BookstoreService) GetOrder(ctx context.Context, req *bookstorev1.GetOrderRequest) (*bookstorev1.GetOrderResponse, error) {
	if req == nil || req.OrderId == "" {
		return nil, status.Error(codes.InvalidArgument, "order_id is required")
	}

	order, err := s.orders.Get(ctx, req.OrderId)
	if err != nil {
		return nil, s.toStatus(err, "GetOrder")
	}
	return &bookstorev1.GetOrderResponse{
		Order:    toProtoOrder(order),
		Timeline: s.buildTimeline(ctx, order.ID),
	}, nil
}

// ListOrders возвращает заказы клиента.
func (s *BookstoreService) ListOrders(ctx context.Context, req *bookstorev1.ListOrdersRequest) (*bookstorev1.ListOrdersResponse, error) {
	if req == nil || req.CustomerId == "" {
		return nil, status.Error(codes.InvalidArgument, "customer_id is required")
	}

	limit := int(req.PageSize)
	if limit <= 0 {
		limit = defaultListOrdersLimit
	}

	orders, err := s.orders.List(ctx, req.CustomerId, limit)
	if err != nil {
		return nil, s.toStatus(err, "ListOrders")
	}
	result := make([]*bookstorev1.Order, 0, len(orders))
	for _, order := range orders {
		result = append(result, toProtoOrder(order))
	}
	return &bookstorev1.ListOrdersResponse{Orders: result}, nil
}

func (s *BookstoreService) buildTimeline(ctx context.Context, orderID string) []*bookstorev1.TimelineEvent {
	events, err := s.orders.Timeline(ctx, orderID)
	if err != nil {
		s.logger.WithError(err).WithField("order_id", orderID).Warn("failed to list timeline events")
		return nil
	}
	result := make([]*bookstorev1.TimelineEvent, 0, len(events))
	for _, event := range events {
		result = append(result, &bookstorev1.TimelineEvent{
			Type:     event.Type,
			Reason:   event.Reason,
			UnixTime: event.Occurred.Unix(),
		})
	}
	return result
}

var _ bookstorev1.BookstoreServiceServer = (*BookstoreService)(nil)
