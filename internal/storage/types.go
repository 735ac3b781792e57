package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Inventory snapshot states.
const (
	InventoryCreated        = "CREATED"
	InventoryInProgress     = "IN_PROGRESS"
	InventorySuccess        = "SUCCESS"
	InventoryPartialSuccess = "PARTIAL_SUCCESS"
	InventoryFailure        = "FAILURE"
	InventoryTimeout        = "TIMEOUT"
)

// Model states.
const (
	ModelCreated  = "CREATED"
	ModelBuilding = "BUILDING"
	ModelSuccess  = "SUCCESS"
	ModelBroken   = "BROKEN"
)

// Scan states reuse the inventory vocabulary.
const (
	ScanCreated    = InventoryCreated
	ScanInProgress = InventoryInProgress
	ScanSuccess    = InventorySuccess
	ScanFailure    = InventoryFailure
)

// InventoryIndex is one point-in-time snapshot of crawled resources.
type InventoryIndex struct {
	ID            string
	Status        string
	Message       string
	ResourceCount int64
	CreatedAt     time.Time
	CompletedAt   *time.Time
}

// Resource is one crawled cloud resource inside a snapshot.
type Resource struct {
	InventoryID  string
	ResourceID   string
	ResourceType string
	ParentID     string
	DisplayName  string
	Data         []byte
	IAMPolicy    []byte
}

// Model is a queryable access model built from a snapshot.
type Model struct {
	Handle      string
	Name        string
	InventoryID string
	Status      string
	Message     string
	CreatedAt   time.Time
}

// Binding is one (resource, role, member) access grant in a model.
type Binding struct {
	ModelHandle  string
	ResourceID   string
	ResourceType string
	Role         string
	Member       string
}

// Scan is one scanner run against a model.
type Scan struct {
	ID             string
	ModelHandle    string
	Status         string
	ViolationCount int64
	StartedAt      time.Time
	CompletedAt    *time.Time
}

// Violation is one policy violation found by a scan.
type Violation struct {
	ID           string
	ScanID       string
	ResourceID   string
	ResourceType string
	RuleName     string
	Severity     string
	Data         []byte
	CreatedAt    time.Time
}

// Notification is one delivered violation notification.
type Notification struct {
	ID          int64
	ViolationID string
	ScanID      string
	Channel     string
	Subject     string
	Status      string
	SentAt      time.Time
}
