package telemetry

import (
	"context"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/robalyx/decelerator/internal/setup/config"
	"github.com/robalyx/decelerator/internal/setup/telemetry/logger"
	"github.com/robalyx/decelerator/internal/setup/telemetry/loki"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ServiceType represents the type of service being initialized.
type ServiceType int

const (
	ServiceWorker ServiceType = iota
	ServiceREST
	ServiceExport
	ServiceCLI
)

// String returns the component name of the service.
func (s ServiceType) String() string {
	switch s {
	case ServiceWorker:
		return "worker"
	case ServiceREST:
		return "rest"
	case ServiceExport:
		return "export"
	case ServiceCLI:
		return "cli"
	default:
		return "unknown"
	}
}

// GetRequestTimeout returns the remote request timeout for the given service type.
func (s ServiceType) GetRequestTimeout(cfg *config.Config) time.Duration {
	switch s {
	case ServiceWorker, ServiceCLI:
		return config.Millis(cfg.Common.Remote.RequestTimeout)
	case ServiceREST:
		return 10 * time.Second
	default:
		return 30 * time.Second
	}
}

// Manager owns the log session directory and builds loggers for each component.
// Every program run gets its own timestamped session directory.
type Manager struct {
	lokiPusher    *loki.Pusher
	instanceID    string
	componentName string
	sessionDir    string
	logDir        string
	level         zapcore.Level
	maxLogsToKeep int
	maxLogLines   int
	sentry        bool
	files         []*logger.LogRotator
}

// NewManager creates a new Manager instance.
func NewManager(
	ctx context.Context, serviceType ServiceType, logDir string, cfg *config.CommonConfig, workerType string,
) (*Manager, error) {
	level, err := zapcore.ParseLevel(cfg.Debug.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	componentName := serviceType.String()
	if serviceType == ServiceWorker && workerType != "" {
		componentName = workerType + "_worker"
	}

	m := &Manager{
		instanceID:    uuid.New().String(),
		componentName: componentName,
		logDir:        logDir,
		level:         level,
		maxLogsToKeep: cfg.Debug.MaxLogsToKeep,
		maxLogLines:   cfg.Debug.MaxLogLines,
		sentry:        cfg.Sentry.DSN != "",
	}

	if err := m.setupLogDirectories(); err != nil {
		return nil, err
	}

	if cfg.Loki.Enabled && cfg.Loki.URL != "" {
		labels := make(map[string]string, len(cfg.Loki.Labels)+2)
		maps.Copy(labels, cfg.Loki.Labels)
		labels["component"] = componentName
		labels["instance_id"] = m.instanceID

		fallback := zap.New(zapcore.NewCore(
			zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
			zapcore.Lock(os.Stderr),
			zapcore.WarnLevel,
		))
		m.lokiPusher = loki.NewPusher(ctx, cfg.Loki, labels, fallback)
	}

	return m, nil
}

// Stop flushes remote sinks and closes every log file.
func (m *Manager) Stop() {
	if m.lokiPusher != nil {
		m.lokiPusher.Stop()
	}

	for _, f := range m.files {
		_ = f.Sync()
		_ = f.Close()
	}
}

// GetLoggers returns the main and database loggers.
func (m *Manager) GetLoggers() (*zap.Logger, *zap.Logger, error) {
	warnLevel := zapcore.WarnLevel

	mainLogger, err := m.initLogger(filepath.Join(m.sessionDir, "main.log"), &warnLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize main logger: %w", err)
	}

	dbLogger, err := m.initLogger(filepath.Join(m.sessionDir, "database.log"), &warnLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database logger: %w", err)
	}

	return mainLogger, dbLogger, nil
}

// GetWorkerLogger creates a logger writing to its own file in the session directory.
func (m *Manager) GetWorkerLogger(name string) *zap.Logger {
	l, err := m.initLogger(filepath.Join(m.sessionDir, name+".log"), nil)
	if err != nil {
		return zap.NewNop()
	}

	return l
}

// GetCurrentSessionDir returns the current session directory.
func (m *Manager) GetCurrentSessionDir() string {
	return m.sessionDir
}

// GetInstanceID returns the unique identifier of this program run.
func (m *Manager) GetInstanceID() string {
	return m.instanceID
}

// setupLogDirectories rotates old sessions and creates a new one.
func (m *Manager) setupLogDirectories() error {
	if err := os.MkdirAll(m.logDir, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	if err := m.rotateLogSessions(); err != nil {
		return fmt.Errorf("failed to rotate log sessions: %w", err)
	}

	m.sessionDir = filepath.Join(m.logDir, time.Now().Format("2006-01-02_15-04-05"))
	if err := os.MkdirAll(m.sessionDir, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	return nil
}

// initLogger builds a logger that tees to the session file, Loki, Sentry and tracing.
func (m *Manager) initLogger(path string, lokiMinLevel *zapcore.Level) (*zap.Logger, error) {
	rotator, err := logger.NewLogRotator(path, m.maxLogLines)
	if err != nil {
		return nil, err
	}

	m.files = append(m.files, rotator)

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(rotator), m.level),
		NewCore(zapcore.ErrorLevel),
	}

	if m.lokiPusher != nil {
		minLevel := m.level
		if lokiMinLevel != nil {
			minLevel = *lokiMinLevel
		}

		cores = append(cores, loki.NewCore(minLevel, m.lokiPusher))
	}

	if m.sentry {
		cores = append(cores, NewSentryCore(zapcore.ErrorLevel))
	}

	return zap.New(
		zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
		zap.Development(),
	).With(zap.String("instance_id", m.instanceID)), nil
}

// rotateLogSessions keeps only the newest maxLogsToKeep session directories.
func (m *Manager) rotateLogSessions() error {
	sessions, err := filepath.Glob(filepath.Join(m.logDir, "*"))
	if err != nil {
		return err
	}

	// Leave room for the session about to be created
	keep := max(m.maxLogsToKeep-1, 0)
	if len(sessions) <= keep {
		return nil
	}

	modTime := func(path string) time.Time {
		info, err := os.Stat(path)
		if err != nil {
			return time.Time{}
		}

		return info.ModTime()
	}

	slices.SortFunc(sessions, func(a, b string) int {
		return modTime(a).Compare(modTime(b))
	})

	for _, session := range sessions[:len(sessions)-keep] {
		if err := os.RemoveAll(session); err != nil {
			return err
		}
	}

	return nil
}
