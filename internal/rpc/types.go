package rpc

import (
	"encoding/json"
	"time"
)

// Empty is the response for operations with nothing to report.
type Empty struct{}

// Operation tracks a background job started by an RPC. Callers poll the
// owning object (inventory, scan) for progress.
type Operation struct {
	ID    string `json:"id"`
	State string `json:"state"`
}

// InventorySnapshot is the wire form of one inventory index.
type InventorySnapshot struct {
	ID            string     `json:"id"`
	Status        string     `json:"status"`
	Message       string     `json:"message,omitempty"`
	ResourceCount int64      `json:"resource_count"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// CreateInventoryRequest starts a new crawl.
type CreateInventoryRequest struct{}

// CreateInventoryResponse returns the new snapshot id and its crawl job.
type CreateInventoryResponse struct {
	Snapshot  *InventorySnapshot `json:"snapshot"`
	Operation *Operation         `json:"operation"`
}

// GetInventoryRequest fetches one snapshot.
type GetInventoryRequest struct {
	ID string `json:"id"`
}

// ListInventoriesRequest lists snapshots newest first.
type ListInventoriesRequest struct {
	Limit int `json:"limit,omitempty"`
}

// ListInventoriesResponse carries the listed snapshots.
type ListInventoriesResponse struct {
	Snapshots []*InventorySnapshot `json:"snapshots"`
}

// DeleteInventoryRequest removes one snapshot and its resources.
type DeleteInventoryRequest struct {
	ID string `json:"id"`
}

// PurgeInventoriesRequest removes snapshots older than the retention
// window. RetentionDays of zero uses the configured default.
type PurgeInventoriesRequest struct {
	RetentionDays int `json:"retention_days,omitempty"`
}

// PurgeInventoriesResponse reports how many snapshots were removed.
type PurgeInventoriesResponse struct {
	Purged int64 `json:"purged"`
}

// ModelInfo is the wire form of one access model.
type ModelInfo struct {
	Handle      string    `json:"handle"`
	Name        string    `json:"name"`
	InventoryID string    `json:"inventory_id"`
	Status      string    `json:"status"`
	Message     string    `json:"message,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// CreateModelRequest builds a model from a snapshot.
type CreateModelRequest struct {
	Name        string `json:"name"`
	InventoryID string `json:"inventory_id"`
}

// CreateModelResponse returns the new model and its build job.
type CreateModelResponse struct {
	Model     *ModelInfo `json:"model"`
	Operation *Operation `json:"operation"`
}

// GetModelRequest fetches one model.
type GetModelRequest struct {
	Handle string `json:"handle"`
}

// ListModelsRequest lists models newest first.
type ListModelsRequest struct {
	Limit int `json:"limit,omitempty"`
}

// ListModelsResponse carries the listed models.
type ListModelsResponse struct {
	Models []*ModelInfo `json:"models"`
}

// DeleteModelRequest removes one model and its bindings.
type DeleteModelRequest struct {
	Handle string `json:"handle"`
}

// ScanInfo is the wire form of one scanner run.
type ScanInfo struct {
	ID             string     `json:"id"`
	ModelHandle    string     `json:"model_handle"`
	Status         string     `json:"status"`
	ViolationCount int64      `json:"violation_count"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// RunScanRequest starts a scan of a model.
type RunScanRequest struct {
	ModelHandle string `json:"model_handle"`
}

// RunScanResponse returns the new scan and its job.
type RunScanResponse struct {
	Scan      *ScanInfo  `json:"scan"`
	Operation *Operation `json:"operation"`
}

// GetScanRequest fetches one scan.
type GetScanRequest struct {
	ID string `json:"id"`
}

// ListScansRequest lists scans newest first.
type ListScansRequest struct {
	Limit int `json:"limit,omitempty"`
}

// ListScansResponse carries the listed scans.
type ListScansResponse struct {
	Scans []*ScanInfo `json:"scans"`
}

// ViolationInfo is the wire form of one policy violation.
type ViolationInfo struct {
	ID           string          `json:"id"`
	ScanID       string          `json:"scan_id"`
	ResourceID   string          `json:"resource_id"`
	ResourceType string          `json:"resource_type"`
	RuleName     string          `json:"rule_name"`
	Severity     string          `json:"severity"`
	Data         json.RawMessage `json:"data,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// ListViolationsRequest lists the violations found by a scan.
type ListViolationsRequest struct {
	ScanID string `json:"scan_id"`
}

// ListViolationsResponse carries the listed violations.
type ListViolationsResponse struct {
	Violations []*ViolationInfo `json:"violations"`
}

// RunNotifierRequest delivers notifications for a completed scan.
type RunNotifierRequest struct {
	ScanID string `json:"scan_id"`
}

// RunNotifierResponse reports delivery counts. Skipped counts violations
// already notified by a previous run.
type RunNotifierResponse struct {
	Sent    int `json:"sent"`
	Skipped int `json:"skipped"`
}

// NotificationInfo is the wire form of one notification log entry.
type NotificationInfo struct {
	ID          int64     `json:"id"`
	ViolationID string    `json:"violation_id"`
	ScanID      string    `json:"scan_id"`
	Channel     string    `json:"channel"`
	Subject     string    `json:"subject"`
	Status      string    `json:"status"`
	SentAt      time.Time `json:"sent_at"`
}

// ListNotificationsRequest lists the notification log for a scan.
type ListNotificationsRequest struct {
	ScanID string `json:"scan_id"`
}

// ListNotificationsResponse carries the listed notifications.
type ListNotificationsResponse struct {
	Notifications []*NotificationInfo `json:"notifications"`
}

// AccessBinding is one (resource, role, member) grant in an explain answer.
type AccessBinding struct {
	ResourceID   string `json:"resource_id"`
	ResourceType string `json:"resource_type"`
	Role         string `json:"role"`
	Member       string `json:"member"`
}

// AccessByMemberRequest asks what a member can access in a model.
type AccessByMemberRequest struct {
	ModelHandle string `json:"model_handle"`
	Member      string `json:"member"`
}

// AccessByResourceRequest asks who can access a resource in a model.
type AccessByResourceRequest struct {
	ModelHandle string `json:"model_handle"`
	ResourceID  string `json:"resource_id"`
}

// AccessResponse carries the matching bindings for either explain query.
type AccessResponse struct {
	Bindings []*AccessBinding `json:"bindings"`
}

// ListRolesRequest asks for the distinct roles in a model.
type ListRolesRequest struct {
	ModelHandle string `json:"model_handle"`
}

// ListRolesResponse carries the role names.
type ListRolesResponse struct {
	Roles []string `json:"roles"`
}
