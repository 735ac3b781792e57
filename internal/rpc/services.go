package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// Fully qualified service names as they appear on the wire.
const (
	InventoryServiceName = "sentinel.v1.Inventory"
	ModelServiceName     = "sentinel.v1.Model"
	ScannerServiceName   = "sentinel.v1.Scanner"
	NotifierServiceName  = "sentinel.v1.Notifier"
	ExplainServiceName   = "sentinel.v1.Explain"
)

// InventoryServer is the RPC surface of the inventory service.
type InventoryServer interface {
	CreateInventory(ctx context.Context, req *CreateInventoryRequest) (*CreateInventoryResponse, error)
	GetInventory(ctx context.Context, req *GetInventoryRequest) (*InventorySnapshot, error)
	ListInventories(ctx context.Context, req *ListInventoriesRequest) (*ListInventoriesResponse, error)
	DeleteInventory(ctx context.Context, req *DeleteInventoryRequest) (*Empty, error)
	PurgeInventories(ctx context.Context, req *PurgeInventoriesRequest) (*PurgeInventoriesResponse, error)
}

var inventoryServiceDesc = grpc.ServiceDesc{
	ServiceName: InventoryServiceName,
	HandlerType: (*InventoryServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Create",
			Handler: unaryHandler("/sentinel.v1.Inventory/Create",
				func(srv any, ctx context.Context, req *CreateInventoryRequest) (any, error) {
					return srv.(InventoryServer).CreateInventory(ctx, req)
				}),
		},
		{
			MethodName: "Get",
			Handler: unaryHandler("/sentinel.v1.Inventory/Get",
				func(srv any, ctx context.Context, req *GetInventoryRequest) (any, error) {
					return srv.(InventoryServer).GetInventory(ctx, req)
				}),
		},
		{
			MethodName: "List",
			Handler: unaryHandler("/sentinel.v1.Inventory/List",
				func(srv any, ctx context.Context, req *ListInventoriesRequest) (any, error) {
					return srv.(InventoryServer).ListInventories(ctx, req)
				}),
		},
		{
			MethodName: "Delete",
			Handler: unaryHandler("/sentinel.v1.Inventory/Delete",
				func(srv any, ctx context.Context, req *DeleteInventoryRequest) (any, error) {
					return srv.(InventoryServer).DeleteInventory(ctx, req)
				}),
		},
		{
			MethodName: "Purge",
			Handler: unaryHandler("/sentinel.v1.Inventory/Purge",
				func(srv any, ctx context.Context, req *PurgeInventoriesRequest) (any, error) {
					return srv.(InventoryServer).PurgeInventories(ctx, req)
				}),
		},
	},
	Streams: []grpc.StreamDesc{},
}

// RegisterInventoryServer registers srv on the dispatcher.
func RegisterInventoryServer(s grpc.ServiceRegistrar, srv InventoryServer) {
	s.RegisterService(&inventoryServiceDesc, srv)
}

// ModelServer is the RPC surface of the model service.
type ModelServer interface {
	CreateModel(ctx context.Context, req *CreateModelRequest) (*CreateModelResponse, error)
	GetModel(ctx context.Context, req *GetModelRequest) (*ModelInfo, error)
	ListModels(ctx context.Context, req *ListModelsRequest) (*ListModelsResponse, error)
	DeleteModel(ctx context.Context, req *DeleteModelRequest) (*Empty, error)
}

var modelServiceDesc = grpc.ServiceDesc{
	ServiceName: ModelServiceName,
	HandlerType: (*ModelServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Create",
			Handler: unaryHandler("/sentinel.v1.Model/Create",
				func(srv any, ctx context.Context, req *CreateModelRequest) (any, error) {
					return srv.(ModelServer).CreateModel(ctx, req)
				}),
		},
		{
			MethodName: "Get",
			Handler: unaryHandler("/sentinel.v1.Model/Get",
				func(srv any, ctx context.Context, req *GetModelRequest) (any, error) {
					return srv.(ModelServer).GetModel(ctx, req)
				}),
		},
		{
			MethodName: "List",
			Handler: unaryHandler("/sentinel.v1.Model/List",
				func(srv any, ctx context.Context, req *ListModelsRequest) (any, error) {
					return srv.(ModelServer).ListModels(ctx, req)
				}),
		},
		{
			MethodName: "Delete",
			Handler: unaryHandler("/sentinel.v1.Model/Delete",
				func(srv any, ctx context.Context, req *DeleteModelRequest) (any, error) {
					return srv.(ModelServer).DeleteModel(ctx, req)
				}),
		},
	},
	Streams: []grpc.StreamDesc{},
}

// RegisterModelServer registers srv on the dispatcher.
func RegisterModelServer(s grpc.ServiceRegistrar, srv ModelServer) {
	s.RegisterService(&modelServiceDesc, srv)
}

// ScannerServer is the RPC surface of the scanner service.
type ScannerServer interface {
	RunScan(ctx context.Context, req *RunScanRequest) (*RunScanResponse, error)
	GetScan(ctx context.Context, req *GetScanRequest) (*ScanInfo, error)
	ListScans(ctx context.Context, req *ListScansRequest) (*ListScansResponse, error)
	ListViolations(ctx context.Context, req *ListViolationsRequest) (*ListViolationsResponse, error)
}

var scannerServiceDesc = grpc.ServiceDesc{
	ServiceName: ScannerServiceName,
	HandlerType: (*ScannerServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Run",
			Handler: unaryHandler("/sentinel.v1.Scanner/Run",
				func(srv any, ctx context.Context, req *RunScanRequest) (any, error) {
					return srv.(ScannerServer).RunScan(ctx, req)
				}),
		},
		{
			MethodName: "Get",
			Handler: unaryHandler("/sentinel.v1.Scanner/Get",
				func(srv any, ctx context.Context, req *GetScanRequest) (any, error) {
					return srv.(ScannerServer).GetScan(ctx, req)
				}),
		},
		{
			MethodName: "List",
			Handler: unaryHandler("/sentinel.v1.Scanner/List",
				func(srv any, ctx context.Context, req *ListScansRequest) (any, error) {
					return srv.(ScannerServer).ListScans(ctx, req)
				}),
		},
		{
			MethodName: "ListViolations",
			Handler: unaryHandler("/sentinel.v1.Scanner/ListViolations",
				func(srv any, ctx context.Context, req *ListViolationsRequest) (any, error) {
					return srv.(ScannerServer).ListViolations(ctx, req)
				}),
		},
	},
	Streams: []grpc.StreamDesc{},
}

// RegisterScannerServer registers srv on the dispatcher.
func RegisterScannerServer(s grpc.ServiceRegistrar, srv ScannerServer) {
	s.RegisterService(&scannerServiceDesc, srv)
}

// NotifierServer is the RPC surface of the notifier service.
type NotifierServer interface {
	RunNotifier(ctx context.Context, req *RunNotifierRequest) (*RunNotifierResponse, error)
	ListNotifications(ctx context.Context, req *ListNotificationsRequest) (*ListNotificationsResponse, error)
}

var notifierServiceDesc = grpc.ServiceDesc{
	ServiceName: NotifierServiceName,
	HandlerType: (*NotifierServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Run",
			Handler: unaryHandler("/sentinel.v1.Notifier/Run",
				func(srv any, ctx context.Context, req *RunNotifierRequest) (any, error) {
					return srv.(NotifierServer).RunNotifier(ctx, req)
				}),
		},
		{
			MethodName: "ListNotifications",
			Handler: unaryHandler("/sentinel.v1.Notifier/ListNotifications",
				func(srv any, ctx context.Context, req *ListNotificationsRequest) (any, error) {
					return srv.(NotifierServer).ListNotifications(ctx, req)
				}),
		},
	},
	Streams: []grpc.StreamDesc{},
}

// RegisterNotifierServer registers srv on the dispatcher.
func RegisterNotifierServer(s grpc.ServiceRegistrar, srv NotifierServer) {
	s.RegisterService(&notifierServiceDesc, srv)
}

// ExplainServer is the RPC surface of the explain service.
type ExplainServer interface {
	AccessByMember(ctx context.Context, req *AccessByMemberRequest) (*AccessResponse, error)
	AccessByResource(ctx context.Context, req *AccessByResourceRequest) (*AccessResponse, error)
	ListRoles(ctx context.Context, req *ListRolesRequest) (*ListRolesResponse, error)
}

var explainServiceDesc = grpc.ServiceDesc{
	ServiceName: ExplainServiceName,
	HandlerType: (*ExplainServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "AccessByMember",
			Handler: unaryHandler("/sentinel.v1.Explain/AccessByMember",
				func(srv any, ctx context.Context, req *AccessByMemberRequest) (any, error) {
					return srv.(ExplainServer).AccessByMember(ctx, req)
				}),
		},
		{
			MethodName: "AccessByResource",
			Handler: unaryHandler("/sentinel.v1.Explain/AccessByResource",
				func(srv any, ctx context.Context, req *AccessByResourceRequest) (any, error) {
					return srv.(ExplainServer).AccessByResource(ctx, req)
				}),
		},
		{
			MethodName: "ListRoles",
			Handler: unaryHandler("/sentinel.v1.Explain/ListRoles",
				func(srv any, ctx context.Context, req *ListRolesRequest) (any, error) {
					return srv.(ExplainServer).ListRoles(ctx, req)
				}),
		},
	},
	Streams: []grpc.StreamDesc{},
}

// RegisterExplainServer registers srv on the dispatcher.
func RegisterExplainServer(s grpc.ServiceRegistrar, srv ExplainServer) {
	s.RegisterService(&explainServiceDesc, srv)
}
