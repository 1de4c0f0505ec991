package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// AuditEntry is one accepted API request.
type AuditEntry struct {
	At         time.Time `json:"at"`
	Action     string    `json:"action"`
	Owner      string    `json:"owner"`
	Instrument string    `json:"instrument"`
	OrderID    uint64    `json:"orderId"`
	Detail     string    `json:"detail,omitempty"`
}

// AuditLog appends request records. Implementations must be safe for
// concurrent use.
type AuditLog interface {
	Append(AuditEntry) error
	Close() error
}

type NopAuditLog struct{}

func NewNopAuditLog() *NopAuditLog            { return &NopAuditLog{} }
func (*NopAuditLog) Append(AuditEntry) error { return nil }
func (*NopAuditLog) Close() error            { return nil }

// FileAuditLog writes one JSON object per line.
type FileAuditLog struct {
	mu  sync.Mutex
	f   *os.File
	enc *json.Encoder
}

func NewFileAuditLog(path string) (*FileAuditLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit log %q: %w", path, err)
	}
	return &FileAuditLog{f: f, enc: json.NewEncoder(f)}, nil
}

func (w *FileAuditLog) Append(e AuditEntry) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enc.Encode(e)
}

func (w *FileAuditLog) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Close()
}

var _ AuditLog = (*NopAuditLog)(nil)
var _ AuditLog = (*FileAuditLog)(nil)
