package vault

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/desertthunder/melodyflow/internal/shared"
)

// BackupFileName is the default name for exported credentials.
const BackupFileName = "melody_flow_config.json"

// Backup is the on-disk shape of an exported [APIConfig]. Credential fields are encoded.
type Backup struct {
	APIConfig
	Timestamp string `json:"timestamp"`
}

// NewBackup encodes cfg and stamps it with now.
func NewBackup(cfg APIConfig, now time.Time) Backup {
	return Backup{APIConfig: cfg.Encode(), Timestamp: now.UTC().Format(time.RFC3339Nano)}
}

// WriteBackup writes cfg to path as an encoded backup file.
func WriteBackup(path string, cfg APIConfig, now time.Time) error {
	data, err := json.MarshalIndent(NewBackup(cfg, now), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal backup: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write backup: %w", err)
	}
	return nil
}

// ReadBackup reads a backup file and returns the decoded credentials.
//
// Fields absent from the file are left empty.
func ReadBackup(path string) (APIConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return APIConfig{}, fmt.Errorf("failed to read backup: %w", err)
	}

	var b Backup
	if err := json.Unmarshal(data, &b); err != nil {
		return APIConfig{}, fmt.Errorf("%w: invalid backup file: %v", shared.ErrInvalidConfig, err)
	}
	return b.APIConfig.Decode(), nil
}
