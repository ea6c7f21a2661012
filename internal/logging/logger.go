// Package logging provides zap logger helpers.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap.Logger configured for development or production.
func New(development bool) (*zap.Logger, error) {
	if development {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		logger, err := cfg.Build()
		if err != nil {
			return nil, fmt.Errorf("build dev logger: %w", err)
		}
		return logger, nil
	}
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = false
	cfg.EncoderConfig.TimeKey = "ts"
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build prod logger: %w", err)
	}
	return logger, nil
}

// NewFile builds a logger that writes JSON entries to a timestamped file
// under dir and mirrors them to stderr. It returns the log file path along
// with the logger. Files older than retentionDays are pruned; zero keeps
// everything.
func NewFile(dir string, development bool, retentionDays int) (*zap.Logger, string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, "", fmt.Errorf("create log directory: %w", err)
	}

	name := time.Now().UTC().Format("20060102-150405") + ".log"
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, "", fmt.Errorf("open log file: %w", err)
	}

	level := zap.InfoLevel
	if development {
		level = zap.DebugLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(f), level)

	var stderrCore zapcore.Core
	if development {
		devCfg := zap.NewDevelopmentEncoderConfig()
		devCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		stderrCore = zapcore.NewCore(zapcore.NewConsoleEncoder(devCfg), zapcore.Lock(os.Stderr), level)
	} else {
		stderrCore = zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.Lock(os.Stderr), level)
	}

	logger := zap.New(zapcore.NewTee(fileCore, stderrCore), zap.ErrorOutput(zapcore.Lock(os.Stderr)))

	if pruned, err := sweepOldLogs(dir, retentionDays, time.Now()); err != nil {
		logger.Warn("log retention sweep failed", zap.Error(err))
	} else if pruned > 0 {
		logger.Debug("pruned old log files", zap.Int("count", pruned))
	}
	return logger, path, nil
}

// sweepOldLogs removes .log files whose modification time is older than the
// retention window. retentionDays <= 0 disables the sweep.
func sweepOldLogs(dir string, retentionDays int, now time.Time) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := now.Add(-time.Duration(retentionDays) * 24 * time.Hour)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read log directory: %w", err)
	}

	pruned := 0
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".log" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
				return pruned, fmt.Errorf("remove %s: %w", e.Name(), err)
			}
			pruned++
		}
	}
	return pruned, nil
}
