// Copyright 2018, RadiantBlue Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package util

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// AppName is the application name used in log records.
const AppName = "bf-scene-catalog"

// LogContext carries the identity of whatever is logging.
type LogContext interface {
	AppName() string
	SessionID() string
	LogRootDir() string
}

// BasicLogContext is a LogContext with a lazily created session ID.
type BasicLogContext struct {
	LogDir    string
	sessionID string
}

// AppName returns the application name
func (c *BasicLogContext) AppName() string {
	return AppName
}

// SessionID returns a Session ID, creating one if needed
func (c *BasicLogContext) SessionID() string {
	if c.sessionID == "" {
		c.sessionID, _ = PsuUUID()
	}
	return c.sessionID
}

// LogRootDir returns the directory log files go to; empty means stderr.
func (c *BasicLogContext) LogRootDir() string {
	return c.LogDir
}

// Severity of an audit record.
type Severity string

// Severities
const (
	INFO    Severity = "INFO"
	WARNING Severity = "WARNING"
	ERROR   Severity = "ERROR"
)

func (s Severity) level() slog.Level {
	switch s {
	case WARNING:
		return slog.LevelWarn
	case ERROR:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// LogAuditInput describes one audited action.
type LogAuditInput struct {
	Actor    string
	Action   string
	Actee    string
	Message  string
	Severity Severity
}

var (
	loggerMu sync.RWMutex
	logger   = slog.New(slog.NewJSONHandler(os.Stderr, nil))
)

// SetLogger replaces the logger behind the Log functions.
func SetLogger(l *slog.Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	logger = l
}

// Logger returns the logger bound to the context's application and session.
func Logger(ctx LogContext) *slog.Logger {
	loggerMu.RLock()
	l := logger
	loggerMu.RUnlock()
	if ctx == nil {
		return l
	}
	return l.With("app", ctx.AppName(), "session", ctx.SessionID())
}

// OpenLogOutput opens <LogRootDir>/<AppName>.log for appending, or returns
// stderr when the context has no log directory.
func OpenLogOutput(ctx LogContext) (io.WriteCloser, error) {
	if ctx.LogRootDir() == "" {
		return nopWriteCloser{os.Stderr}, nil
	}
	if err := os.MkdirAll(ctx.LogRootDir(), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(filepath.Join(ctx.LogRootDir(), ctx.AppName()+".log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}

// NewLogger builds a JSON logger on w.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// LogInfo logs an informational message
func LogInfo(ctx LogContext, message string) {
	Logger(ctx).Info(message)
}

// LogAlert logs something that needs attention but did not fail
func LogAlert(ctx LogContext, message string) {
	Logger(ctx).Warn(message)
}

// LogSimpleErr logs an error and returns it wrapped with the message
func LogSimpleErr(ctx LogContext, message string, err error) error {
	Logger(ctx).Error(message, "error", err)
	if err == nil {
		return fmt.Errorf("%s", message)
	}
	return fmt.Errorf("%s: %w", message, err)
}

// LogAudit logs an audit record
func LogAudit(ctx LogContext, input LogAuditInput) {
	Logger(ctx).Log(context.Background(), input.Severity.level(), input.Message,
		"audit", true,
		"actor", input.Actor,
		"action", input.Action,
		"actee", input.Actee)
}

// PsuUUID returns a random UUID string
func PsuUUID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
