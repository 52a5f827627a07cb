package bookstorev1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ServiceName — полное имя gRPC-сервиса.
const ServiceName = "bookstore.v1.BookstoreService"

// Полные имена методов.
const (
	BookstoreService_GetStockInfo_FullMethodName      = "/" + ServiceName + "/GetStockInfo"
	BookstoreService_ValidateStock_FullMethodName     = "/" + ServiceName + "/ValidateStock"
	BookstoreService_ReserveStock_FullMethodName      = "/" + ServiceName + "/ReserveStock"
	BookstoreService_CommitReservation_FullMethodName = "/" + ServiceName + "/CommitReservation"
	BookstoreService_CancelReservation_FullMethodName = "/" + ServiceName + "/CancelReservation"
	BookstoreService_UpsertStockItem_FullMethodName   = "/" + ServiceName + "/UpsertStockItem"
	BookstoreService_ListHolds_FullMethodName         = "/" + ServiceName + "/ListHolds"
	BookstoreService_CreateOrder_FullMethodName       = "/" + ServiceName + "/CreateOrder"
	BookstoreService_PayOrder_FullMethodName          = "/" + ServiceName + "/PayOrder"
	BookstoreService_CancelOrder_FullMethodName       = "/" + ServiceName + "/CancelOrder"
	BookstoreService_GetOrder_FullMethodName          = "/" + ServiceName + "/GetOrder"
	BookstoreService_ListOrders_FullMethodName        = "/" + ServiceName + "/ListOrders"
)

// BookstoreServiceClient — клиент сервиса.
type BookstoreServiceClient interface {
	GetStockInfo(ctx context.Context, in *GetStockInfoRequest, opts ...grpc.CallOption) (*GetStockInfoResponse, error)
	ValidateStock(ctx context.Context, in *ValidateStockRequest, opts ...grpc.CallOption) (*ValidateStockResponse, error)
	ReserveStock(ctx context.Context, in *ReserveStockRequest, opts ...grpc.CallOption) (*ReserveStockResponse, error)
	CommitReservation(ctx context.Context, in *CommitReservationRequest, opts ...grpc.CallOption) (*CommitReservationResponse, error)
	CancelReservation(ctx context.Context, in *CancelReservationRequest, opts ...grpc.CallOption) (*CancelReservationResponse, error)
	UpsertStockItem(ctx context.Context, in *UpsertStockItemRequest, opts ...grpc.CallOption) (*UpsertStockItemResponse, error)
	ListHolds(ctx context.Context, in *ListHoldsRequest, opts ...grpc.CallOption) (*ListHoldsResponse, error)
	CreateOrder(ctx context.Context, in *CreateOrderRequest, opts ...grpc.CallOption) (*CreateOrderResponse, error)
	PayOrder(ctx context.Context, in *PayOrderRequest, opts ...grpc.CallOption) (*PayOrderResponse, error)
	CancelOrder(ctx context.Context, in *CancelOrderRequest, opts ...grpc.CallOption) (*CancelOrderResponse, error)
	GetOrder(ctx context.Context, in *GetOrderRequest, opts ...grpc.CallOption) (*GetOrderResponse, error)
	ListOrders(ctx context.Context, in *ListOrdersRequest, opts ...grpc.CallOption) (*ListOrdersResponse, error)
}

type bookstoreServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewBookstoreServiceClient создаёт клиента; все вызовы идут через JSON-кодек.
func NewBookstoreServiceClient(cc grpc.ClientConnInterface) BookstoreServiceClient {
	return &bookstoreServiceClient{cc: cc}
}

func (c *bookstoreServiceClient) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{CallOption()}, opts...)
	return c.cc.Invoke(ctx, method, in, out, opts...)
}

func (c *bookstoreServiceClient) GetStockInfo(ctx context.Context, in *GetStockInfoRequest, opts ...grpc.CallOption) (*GetStockInfoResponse, error) {
	out := new(GetStockInfoResponse)
	if err := c.invoke(ctx, BookstoreService_GetStockInfo_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *bookstoreServiceClient) ValidateStock(ctx context.Context, in *ValidateStockRequest, opts ...grpc.CallOption) (*ValidateStockResponse, error) {
	out := new(ValidateStockResponse)
	if err := c.invoke(ctx, BookstoreService_ValidateStock_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *bookstoreServiceClient) ReserveStock(ctx context.Context, in *ReserveStockRequest, opts ...grpc.CallOption) (*ReserveStockResponse, error) {
	out := new(ReserveStockResponse)
	if err := c.invoke(ctx, BookstoreService_ReserveStock_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *bookstoreServiceClient) CommitReservation(ctx context.Context, in *CommitReservationRequest, opts ...grpc.CallOption) (*CommitReservationResponse, error) {
	out := new(CommitReservationResponse)
	if err := c.invoke(ctx, BookstoreService_CommitReservation_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *bookstoreServiceClient) CancelReservation(ctx context.Context, in *CancelReservationRequest, opts ...grpc.CallOption) (*CancelReservationResponse, error) {
	out := new(CancelReservationResponse)
	if err := c.invoke(ctx, BookstoreService_CancelReservation_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *bookstoreServiceClient) UpsertStockItem(ctx context.Context, in *UpsertStockItemRequest, opts ...grpc.CallOption) (*UpsertStockItemResponse, error) {
	out := new(UpsertStockItemResponse)
	if err := c.invoke(ctx, BookstoreService_UpsertStockItem_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *bookstoreServiceClient) ListHolds(ctx context.Context, in *ListHoldsRequest, opts ...grpc.CallOption) (*ListHoldsResponse, error) {
	out := new(ListHoldsResponse)
	if err := c.invoke(ctx, BookstoreService_ListHolds_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *bookstoreServiceClient) CreateOrder(ctx context.Context, in *CreateOrderRequest, opts ...grpc.CallOption) (*CreateOrderResponse, error) {
	out := new(CreateOrderResponse)
	if err := c.invoke(ctx, BookstoreService_CreateOrder_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *bookstoreServiceClient) PayOrder(ctx context.Context, in *PayOrderRequest, opts ...grpc.CallOption) (*PayOrderResponse, error) {
	out := new(PayOrderResponse)
	if err := c.invoke(ctx, BookstoreService_PayOrder_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *bookstoreServiceClient) CancelOrder(ctx context.Context, in *CancelOrderRequest, opts ...grpc.CallOption) (*CancelOrderResponse, error) {
	out := new(CancelOrderResponse)
	if err := c.invoke(ctx, BookstoreService_CancelOrder_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *bookstoreServiceClient) GetOrder(ctx context.Context, in *GetOrderRequest, opts ...grpc.CallOption) (*GetOrderResponse, error) {
	out := new(GetOrderResponse)
	if err := c.invoke(ctx, BookstoreService_GetOrder_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *bookstoreServiceClient) ListOrders(ctx context.Context, in *ListOrdersRequest, opts ...grpc.CallOption) (*ListOrdersResponse, error) {
	out := new(ListOrdersResponse)
	if err := c.invoke(ctx, BookstoreService_ListOrders_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

// BookstoreServiceServer — серверная часть сервиса.
type BookstoreServiceServer interface {
	GetStockInfo(context.Context, *GetStockInfoRequest) (*GetStockInfoResponse, error)
	ValidateStock(context.Context, *ValidateStockRequest) (*ValidateStockResponse, error)
	ReserveStock(context.Context, *ReserveStockRequest) (*ReserveStockResponse, error)
	CommitReservation(context.Context, *CommitReservationRequest) (*CommitReservationResponse, error)
	CancelReservation(context.Context, *CancelReservationRequest) (*CancelReservationResponse, error)
	UpsertStockItem(context.Context, *UpsertStockItemRequest) (*UpsertStockItemResponse, error)
	ListHolds(context.Context, *ListHoldsRequest) (*ListHoldsResponse, error)
	CreateOrder(context.Context, *CreateOrderRequest) (*CreateOrderResponse, error)
	PayOrder(context.Context, *PayOrderRequest) (*PayOrderResponse, error)
	CancelOrder(context.Context, *CancelOrderRequest) (*CancelOrderResponse, error)
	GetOrder(context.Context, *GetOrderRequest) (*GetOrderResponse, error)
	ListOrders(context.Context, *ListOrdersRequest) (*ListOrdersResponse, error)
}

// UnimplementedBookstoreServiceServer возвращает Unimplemented для всех методов.
// Встраивается по значению.
type UnimplementedBookstoreServiceServer struct{}

func (UnimplementedBookstoreServiceServer) GetStockInfo(context.Context, *GetStockInfoRequest) (*GetStockInfoResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetStockInfo not implemented")
}

func (UnimplementedBookstoreServiceServer) ValidateStock(context.Context, *ValidateStockRequest) (*ValidateStockResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ValidateStock not implemented")
}

func (UnimplementedBookstoreServiceServer) ReserveStock(context.Context, *ReserveStockRequest) (*ReserveStockResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ReserveStock not implemented")
}

func (UnimplementedBookstoreServiceServer) CommitReservation(context.Context, *CommitReservationRequest) (*CommitReservationResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method CommitReservation not implemented")
}

func (UnimplementedBookstoreServiceServer) CancelReservation(context.Context, *CancelReservationRequest) (*CancelReservationResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method CancelReservation not implemented")
}

func (UnimplementedBookstoreServiceServer) UpsertStockItem(context.Context, *UpsertStockItemRequest) (*UpsertStockItemResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method UpsertStockItem not implemented")
}

func (UnimplementedBookstoreServiceServer) ListHolds(context.Context, *ListHoldsRequest) (*ListHoldsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListHolds not implemented")
}

func (UnimplementedBookstoreServiceServer) CreateOrder(context.Context, *CreateOrderRequest) (*CreateOrderResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method CreateOrder not implemented")
}

func (UnimplementedBookstoreServiceServer) PayOrder(context.Context, *PayOrderRequest) (*PayOrderResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method PayOrder not implemented")
}

func (UnimplementedBookstoreServiceServer) CancelOrder(context.Context, *CancelOrderRequest) (*CancelOrderResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method CancelOrder not implemented")
}

func (UnimplementedBookstoreServiceServer) GetOrder(context.Context, *GetOrderRequest) (*GetOrderResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetOrder not implemented")
}

func (UnimplementedBookstoreServiceServer) ListOrders(context.Context, *ListOrdersRequest) (*ListOrdersResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListOrders not implemented")
}

// RegisterBookstoreServiceServer регистрирует реализацию на gRPC-сервере.
func RegisterBookstoreServiceServer(s grpc.ServiceRegistrar, srv BookstoreServiceServer) {
	s.RegisterService(&BookstoreService_ServiceDesc, srv)
}

func _BookstoreService_GetStockInfo_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetStockInfoRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BookstoreServiceServer).GetStockInfo(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: BookstoreService_GetStockInfo_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BookstoreServiceServer).GetStockInfo(ctx, req.(*GetStockInfoRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _BookstoreService_ValidateStock_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ValidateStockRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BookstoreServiceServer).ValidateStock(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: BookstoreService_ValidateStock_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BookstoreServiceServer).ValidateStock(ctx, req.(*ValidateStockRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _BookstoreService_ReserveStock_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ReserveStockRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BookstoreServiceServer).ReserveStock(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: BookstoreService_ReserveStock_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BookstoreServiceServer).ReserveStock(ctx, req.(*ReserveStockRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _BookstoreService_CommitReservation_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(CommitReservationRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BookstoreServiceServer).CommitReservation(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: BookstoreService_CommitReservation_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BookstoreServiceServer).CommitReservation(ctx, req.(*CommitReservationRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _BookstoreService_CancelReservation_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(CancelReservationRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BookstoreServiceServer).CancelReservation(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: BookstoreService_CancelReservation_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BookstoreServiceServer).CancelReservation(ctx, req.(*CancelReservationRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _BookstoreService_UpsertStockItem_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(UpsertStockItemRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BookstoreServiceServer).UpsertStockItem(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: BookstoreService_UpsertStockItem_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BookstoreServiceServer).UpsertStockItem(ctx, req.(*UpsertStockItemRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _BookstoreService_ListHolds_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ListHoldsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BookstoreServiceServer).ListHolds(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: BookstoreService_ListHolds_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BookstoreServiceServer).ListHolds(ctx, req.(*ListHoldsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _BookstoreService_CreateOrder_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(CreateOrderRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BookstoreServiceServer).CreateOrder(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: BookstoreService_CreateOrder_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BookstoreServiceServer).CreateOrder(ctx, req.(*CreateOrderRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _BookstoreService_PayOrder_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(PayOrderRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BookstoreServiceServer).PayOrder(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: BookstoreService_PayOrder_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BookstoreServiceServer).PayOrder(ctx, req.(*PayOrderRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _BookstoreService_CancelOrder_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(CancelOrderRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BookstoreServiceServer).CancelOrder(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: BookstoreService_CancelOrder_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BookstoreServiceServer).CancelOrder(ctx, req.(*CancelOrderRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _BookstoreService_GetOrder_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetOrderRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BookstoreServiceServer).GetOrder(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: BookstoreService_GetOrder_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BookstoreServiceServer).GetOrder(ctx, req.(*GetOrderRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _BookstoreService_ListOrders_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ListOrdersRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BookstoreServiceServer).ListOrders(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: BookstoreService_ListOrders_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BookstoreServiceServer).ListOrders(ctx, req.(*ListOrdersRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// BookstoreService_ServiceDesc — дескриптор сервиса для grpc.Server.
var BookstoreService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BookstoreServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetStockInfo",
			Handler:    _BookstoreService_GetStockInfo_Handler,
		},
		{
			MethodName: "ValidateStock",
			Handler:    _BookstoreService_ValidateStock_Handler,
		},
		{
			MethodName: "ReserveStock",
			Handler:    _BookstoreService_ReserveStock_Handler,
		},
		{
			MethodName: "CommitReservation",
			Handler:    _BookstoreService_CommitReservation_Handler,
		},
		{
			MethodName: "CancelReservation",
			Handler:    _BookstoreService_CancelReservation_Handler,
		},
		{
			MethodName: "UpsertStockItem",
			Handler:    _BookstoreService_UpsertStockItem_Handler,
		},
		{
			MethodName: "ListHolds",
			Handler:    _BookstoreService_ListHolds_Handler,
		},
		{
			MethodName: "CreateOrder",
			Handler:    _BookstoreService_CreateOrder_Handler,
		},
		{
			MethodName: "PayOrder",
			Handler:    _BookstoreService_PayOrder_Handler,
		},
		{
			MethodName: "CancelOrder",
			Handler:    _BookstoreService_CancelOrder_Handler,
		},
		{
			MethodName: "GetOrder",
			Handler:    _BookstoreService_GetOrder_Handler,
		},
		{
			MethodName: "ListOrders",
			Handler:    _BookstoreService_ListOrders_Handler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "bookstore/v1/bookstore.proto",
}
