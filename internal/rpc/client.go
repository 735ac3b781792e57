package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// invoke performs one unary call with the sentinel codec.
func invoke[Resp any](ctx context.Context, conn *grpc.ClientConn, method string, req any) (*Resp, error) {
	resp := new(Resp)
	if err := conn.Invoke(ctx, method, req, resp, CallOption()); err != nil {
		return nil, err
	}
	return resp, nil
}

// InventoryClient calls the inventory service.
type InventoryClient struct {
	conn *grpc.ClientConn
}

// NewInventoryClient wraps conn.
func NewInventoryClient(conn *grpc.ClientConn) *InventoryClient {
	return &InventoryClient{conn: conn}
}

func (c *InventoryClient) Create(ctx context.Context, req *CreateInventoryRequest) (*CreateInventoryResponse, error) {
	return invoke[CreateInventoryResponse](ctx, c.conn, "/sentinel.v1.Inventory/Create", req)
}

func (c *InventoryClient) Get(ctx context.Context, req *GetInventoryRequest) (*InventorySnapshot, error) {
	return invoke[InventorySnapshot](ctx, c.conn, "/sentinel.v1.Inventory/Get", req)
}

func (c *InventoryClient) List(ctx context.Context, req *ListInventoriesRequest) (*ListInventoriesResponse, error) {
	return invoke[ListInventoriesResponse](ctx, c.conn, "/sentinel.v1.Inventory/List", req)
}

func (c *InventoryClient) Delete(ctx context.Context, req *DeleteInventoryRequest) (*Empty, error) {
	return invoke[Empty](ctx, c.conn, "/sentinel.v1.Inventory/Delete", req)
}

func (c *InventoryClient) Purge(ctx context.Context, req *PurgeInventoriesRequest) (*PurgeInventoriesResponse, error) {
	return invoke[PurgeInventoriesResponse](ctx, c.conn, "/sentinel.v1.Inventory/Purge", req)
}

// ModelClient calls the model service.
type ModelClient struct {
	conn *grpc.ClientConn
}

// NewModelClient wraps conn.
func NewModelClient(conn *grpc.ClientConn) *ModelClient {
	return &ModelClient{conn: conn}
}

func (c *ModelClient) Create(ctx context.Context, req *CreateModelRequest) (*CreateModelResponse, error) {
	return invoke[CreateModelResponse](ctx, c.conn, "/sentinel.v1.Model/Create", req)
}

func (c *ModelClient) Get(ctx context.Context, req *GetModelRequest) (*ModelInfo, error) {
	return invoke[ModelInfo](ctx, c.conn, "/sentinel.v1.Model/Get", req)
}

func (c *ModelClient) List(ctx context.Context, req *ListModelsRequest) (*ListModelsResponse, error) {
	return invoke[ListModelsResponse](ctx, c.conn, "/sentinel.v1.Model/List", req)
}

func (c *ModelClient) Delete(ctx context.Context, req *DeleteModelRequest) (*Empty, error) {
	return invoke[Empty](ctx, c.conn, "/sentinel.v1.Model/Delete", req)
}

// ScannerClient calls the scanner service.
type ScannerClient struct {
	conn *grpc.ClientConn
}

// NewScannerClient wraps conn.
func NewScannerClient(conn *grpc.ClientConn) *ScannerClient {
	return &ScannerClient{conn: conn}
}

func (c *ScannerClient) Run(ctx context.Context, req *RunScanRequest) (*RunScanResponse, error) {
	return invoke[RunScanResponse](ctx, c.conn, "/sentinel.v1.Scanner/Run", req)
}

func (c *ScannerClient) Get(ctx context.Context, req *GetScanRequest) (*ScanInfo, error) {
	return invoke[ScanInfo](ctx, c.conn, "/sentinel.v1.Scanner/Get", req)
}

func (c *ScannerClient) List(ctx context.Context, req *ListScansRequest) (*ListScansResponse, error) {
	return invoke[ListScansResponse](ctx, c.conn, "/sentinel.v1.Scanner/List", req)
}

func (c *ScannerClient) ListViolations(ctx context.Context, req *ListViolationsRequest) (*ListViolationsResponse, error) {
	return invoke[ListViolationsResponse](ctx, c.conn, "/sentinel.v1.Scanner/ListViolations", req)
}

// NotifierClient calls the notifier service.
type NotifierClient struct {
	conn *grpc.ClientConn
}

// NewNotifierClient wraps conn.
func NewNotifierClient(conn *grpc.ClientConn) *NotifierClient {
	return &NotifierClient{conn: conn}
}

func (c *NotifierClient) Run(ctx context.Context, req *RunNotifierRequest) (*RunNotifierResponse, error) {
	return invoke[RunNotifierResponse](ctx, c.conn, "/sentinel.v1.Notifier/Run", req)
}

func (c *NotifierClient) ListNotifications(ctx context.Context, req *ListNotificationsRequest) (*ListNotificationsResponse, error) {
	return invoke[ListNotificationsResponse](ctx, c.conn, "/sentinel.v1.Notifier/ListNotifications", req)
}

// ExplainClient calls the explain service.
type ExplainClient struct {
	conn *grpc.ClientConn
}

// NewExplainClient wraps conn.
func NewExplainClient(conn *grpc.ClientConn) *ExplainClient {
	return &ExplainClient{conn: conn}
}

func (c *ExplainClient) AccessByMember(ctx context.Context, req *AccessByMemberRequest) (*AccessResponse, error) {
	return invoke[AccessResponse](ctx, c.conn, "/sentinel.v1.Explain/AccessByMember", req)
}

func (c *ExplainClient) AccessByResource(ctx context.Context, req *AccessByResourceRequest) (*AccessResponse, error) {
	return invoke[AccessResponse](ctx, c.conn, "/sentinel.v1.Explain/AccessByResource", req)
}

func (c *ExplainClient) ListRoles(ctx context.Context, req *ListRolesRequest) (*ListRolesResponse, error) {
	return invoke[ListRolesResponse](ctx, c.conn, "/sentinel.v1.Explain/ListRoles", req)
}
