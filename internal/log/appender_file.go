package log

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"firestige.xyz/tanakai/internal/config"
)

// AddFileAppender appends a size-rotated file writer.
func (m *MultiWriter) AddFileAppender(cfg config.FileOutputConfig) (*MultiWriter, error) {
	w, err := createFileWriter(cfg)
	if err != nil {
		return m, err
	}
	m.writers = append(m.writers, w)
	return m, nil
}

func createFileWriter(cfg config.FileOutputConfig) (*lumberjack.Logger, error) {
	if cfg.Path == "" {
		return nil, errors.New("file output enabled but path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory for path %s: %w", cfg.Path, err)
	}
	return &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.Rotation.MaxSizeMB, // megabytes
		MaxBackups: cfg.Rotation.MaxBackups,
		MaxAge:     cfg.Rotation.MaxAgeDays, // days
		Compress:   cfg.Rotation.Compress,
	}, nil
}
