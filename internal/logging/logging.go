// Package logging configures the global logrus logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/smileperks/cardhub/internal/config"
	"github.com/smileperks/cardhub/internal/util"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogFileName is the rotated log file created inside the log directory.
const LogFileName = "cardhub.log"

// Setup applies level, format and output to the standard logger. When a log
// directory is configured, output goes to stdout and a rotated file. The
// returned closer flushes the file and must be called on shutdown.
func Setup(cfg config.LoggingConfig) (io.Closer, error) {
	level, errLevel := log.ParseLevel(strings.TrimSpace(cfg.Level))
	if errLevel != nil {
		return nil, fmt.Errorf("logging: %w", errLevel)
	}
	log.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "json":
		log.SetFormatter(&log.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	default:
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05.000"})
	}

	dir := resolveDir(cfg.Dir)
	if dir == "" {
		log.SetOutput(os.Stdout)
		return nopCloser{}, nil
	}
	if errMkdir := os.MkdirAll(dir, 0o755); errMkdir != nil {
		return nil, fmt.Errorf("logging: create log dir: %w", errMkdir)
	}
	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(dir, LogFileName),
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	log.SetOutput(io.MultiWriter(os.Stdout, rotator))
	return rotator, nil
}

// resolveDir makes relative log directories relative to the writable path when set.
func resolveDir(dir string) string {
	dir = strings.TrimSpace(dir)
	if dir == "" || filepath.IsAbs(dir) {
		return dir
	}
	if base := util.WritablePath(); base != "" {
		return filepath.Join(base, dir)
	}
	return dir
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
