// Package storage keeps receipt files on local disk.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/apperr"
	"go.uber.org/zap"
)

// LocalReceiptStore implements port.ReceiptStore on the local filesystem.
// Receipts live at <baseDir>/<expenseID>/<filename>.
type LocalReceiptStore struct {
	baseDir string
	logger  *zap.Logger
}

// NewLocalReceiptStore creates the base directory if needed
func NewLocalReceiptStore(baseDir string, logger *zap.Logger) (*LocalReceiptStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create receipt directory: %w", err)
	}
	return &LocalReceiptStore{baseDir: baseDir, logger: logger}, nil
}

// Save writes content and returns its key
func (s *LocalReceiptStore) Save(ctx context.Context, expenseID, filename string, content []byte) (string, error) {
	name := cleanFilename(filename)
	if expenseID == "" || strings.ContainsAny(expenseID, `/\`) || expenseID == ".." {
		return "", fmt.Errorf("invalid expense id %q", expenseID)
	}
	key := expenseID + "/" + name

	fullPath, err := s.resolve(key)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		s.logger.Error("Failed to create parent directories",
			zap.String("path", filepath.Dir(fullPath)),
			zap.Error(err))
		return "", fmt.Errorf("failed to create directories: %w", err)
	}

	if err := os.WriteFile(fullPath, content, 0644); err != nil {
		s.logger.Error("Failed to write file",
			zap.String("path", fullPath),
			zap.Error(err))
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	s.logger.Debug("Receipt saved",
		zap.String("key", key),
		zap.Int("size", len(content)))
	return key, nil
}

// Read returns the receipt stored under key
func (s *LocalReceiptStore) Read(ctx context.Context, key string) ([]byte, error) {
	fullPath, err := s.resolve(key)
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(fullPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, apperr.NotFound("receipt", key)
	}
	if err != nil {
		s.logger.Error("Failed to read file",
			zap.String("path", fullPath),
			zap.Error(err))
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return content, nil
}

// Delete removes the receipt; a missing file is not an error
func (s *LocalReceiptStore) Delete(ctx context.Context, key string) error {
	fullPath, err := s.resolve(key)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Error("Failed to delete file",
			zap.String("path", fullPath),
			zap.Error(err))
		return fmt.Errorf("failed to delete file: %w", err)
	}

	// drop the per-expense directory once it is empty
	_ = os.Remove(filepath.Dir(fullPath))
	return nil
}

// resolve maps a key to a path and checks that it stays within baseDir
func (s *LocalReceiptStore) resolve(key string) (string, error) {
	absBase, err := filepath.Abs(s.baseDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base path: %w", err)
	}
	absPath, err := filepath.Abs(filepath.Join(s.baseDir, filepath.FromSlash(key)))
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}

	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes base directory: %s", key)
	}
	return absPath, nil
}

func cleanFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "." || name == "/" || name == ".." || name == "" {
		return "receipt"
	}
	return name
}

var _ port.ReceiptStore = (*LocalReceiptStore)(nil)
