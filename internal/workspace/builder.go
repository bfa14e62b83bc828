// Package workspace materializes the per-device terraform working directory.
package workspace

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Settings are the fixed inputs shared by every generated workspace.
type Settings struct {
	ModulePath  string
	Region      string
	StateBucket string
	LockTable   string
}

// Workspace is a generated terraform directory keyed by device id.
type Workspace struct {
	DeviceID string
	Dir      string
	// Fresh is set when the files were generated by this call.
	Fresh bool
}

// CleanupReport summarizes a cleanup run.
type CleanupReport struct {
	DeletedDirs int
}

// Builder generates workspaces under a root directory. It holds no locks; two
// builds for the same device race on one directory unless callers serialize
// them.
type Builder struct {
	root     string
	settings Settings
	now      func() time.Time
}

// NewBuilder creates a Builder rooted at root.
func NewBuilder(root string, settings Settings) (*Builder, error) {
	trimmed := strings.TrimSpace(root)
	if trimmed == "" {
		return nil, fmt.Errorf("workspace root directory is empty")
	}
	return &Builder{
		root:     filepath.Clean(trimmed),
		settings: settings,
		now:      time.Now,
	}, nil
}

// Root returns the directory that holds every workspace.
func (b *Builder) Root() string { return b.root }

// Path resolves the workspace directory for deviceID without touching disk.
func (b *Builder) Path(deviceID string) (string, error) {
	if err := ValidateDeviceID(deviceID); err != nil {
		return "", err
	}
	return filepath.Join(b.root, deviceID), nil
}

// Build wipes any existing workspace for deviceID and writes a fresh file set.
// A failure can leave a partial directory behind; the next Build replaces it.
func (b *Builder) Build(ctx context.Context, deviceID, instanceName string) (Workspace, error) {
	if err := ctx.Err(); err != nil {
		return Workspace{}, err
	}

	dir, err := b.Path(deviceID)
	if err != nil {
		return Workspace{}, err
	}

	if err := os.RemoveAll(dir); err != nil {
		return Workspace{}, fmt.Errorf("remove old workspace %q: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Workspace{}, fmt.Errorf("create workspace %q: %w", dir, err)
	}

	data := templateData{
		ModulePath:   b.settings.ModulePath,
		AMI:          amiID,
		InstanceType: instanceType,
		InstanceName: instanceName,
		DeviceID:     deviceID,
		Region:       b.settings.Region,
		StateBucket:  b.settings.StateBucket,
		LockTable:    b.settings.LockTable,
	}

	for _, f := range files {
		var buf bytes.Buffer
		if err := f.tmpl.Execute(&buf, data); err != nil {
			return Workspace{}, fmt.Errorf("render %s: %w", f.name, err)
		}
		if err := os.WriteFile(filepath.Join(dir, f.name), buf.Bytes(), 0o644); err != nil {
			return Workspace{}, fmt.Errorf("write %s: %w", f.name, err)
		}
	}

	slog.Info("terraform workspace generated", "device_id", deviceID, "path", dir)
	return Workspace{DeviceID: deviceID, Dir: dir, Fresh: true}, nil
}

// Open returns the existing workspace for deviceID, or generates it with
// Build when its root module file is missing. The remote state key depends
// only on deviceID, so a regenerated workspace addresses the same state.
func (b *Builder) Open(ctx context.Context, deviceID, instanceName string) (Workspace, error) {
	dir, err := b.Path(deviceID)
	if err != nil {
		return Workspace{}, err
	}

	_, err = os.Stat(filepath.Join(dir, MainFile))
	switch {
	case err == nil:
		return Workspace{DeviceID: deviceID, Dir: dir}, nil
	case errors.Is(err, fs.ErrNotExist):
		slog.Warn("terraform workspace missing, regenerating", "device_id", deviceID, "path", dir)
		return b.Build(ctx, deviceID, instanceName)
	default:
		return Workspace{}, fmt.Errorf("stat workspace %q: %w", dir, err)
	}
}

// Cleanup removes workspace directories not modified within olderThan.
func (b *Builder) Cleanup(ctx context.Context, olderThan time.Duration) (CleanupReport, error) {
	if err := ctx.Err(); err != nil {
		return CleanupReport{}, err
	}
	if olderThan <= 0 {
		return CleanupReport{}, fmt.Errorf("olderThan must be positive")
	}

	entries, err := os.ReadDir(b.root)
	if os.IsNotExist(err) {
		return CleanupReport{}, nil
	}
	if err != nil {
		return CleanupReport{}, fmt.Errorf("read workspace root: %w", err)
	}

	cutoff := b.now().Add(-olderThan)
	report := CleanupReport{}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if !entry.IsDir() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			return report, fmt.Errorf("read workspace entry info %q: %w", entry.Name(), err)
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		if err := os.RemoveAll(filepath.Join(b.root, entry.Name())); err != nil {
			return report, fmt.Errorf("remove workspace %q: %w", entry.Name(), err)
		}
		report.DeletedDirs++
	}

	return report, nil
}

// ValidateDeviceID reports whether deviceID can name a workspace directory.
func ValidateDeviceID(deviceID string) error {
	if strings.TrimSpace(deviceID) == "" {
		return fmt.Errorf("device id is empty")
	}
	if deviceID == "." || deviceID == ".." {
		return fmt.Errorf("device id %q is invalid", deviceID)
	}
	if strings.ContainsAny(deviceID, `/\`) || strings.ContainsRune(deviceID, 0) {
		return fmt.Errorf("device id %q must not contain path separators", deviceID)
	}
	return nil
}
