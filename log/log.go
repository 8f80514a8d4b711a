/* Copyright (c) 2024 Jason Ish
 * All rights reserved.
 *
 * Redistribution and use in source and binary forms, with or without
 * modification, are permitted provided that the following conditions
 * are met:
 *
 * 1. Redistributions of source code must retain the above copyright
 *    notice, this list of conditions and the following disclaimer.
 * 2. Redistributions in binary form must reproduce the above copyright
 *    notice, this list of conditions and the following disclaimer in the
 *    documentation and/or other materials provided with the distribution.
 *
 * THIS SOFTWARE IS PROVIDED ``AS IS'' AND ANY EXPRESS OR IMPLIED
 * WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
 * MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
 * DISCLAIMED. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY DIRECT,
 * INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES
 * (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
 * SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS INTERRUPTION)
 * HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN CONTRACT,
 * STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE) ARISING
 * IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
 * POSSIBILITY OF SUCH DAMAGE.
 */

package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LogLevel int

const (
	ERROR LogLevel = iota
	WARNING
	NOTICE
	INFO
	DEBUG
)

var (
	lock   sync.RWMutex
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	logger *zap.Logger
	sugar  *zap.SugaredLogger
)

func init() {
	logger = newLogger(os.Stderr)
	sugar = logger.WithOptions(zap.AddCallerSkip(1)).Sugar()
}

func newLogger(w io.Writer) *zap.Logger {
	config := zap.NewDevelopmentEncoderConfig()
	config.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	config.EncodeLevel = zapcore.CapitalColorLevelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(config),
		zapcore.AddSync(w), level)
	return zap.New(core, zap.AddCaller())
}

// SetOutput redirects all logging to w. Used by tests to capture output.
func SetOutput(w io.Writer) {
	lock.Lock()
	defer lock.Unlock()
	logger = newLogger(w)
	sugar = logger.WithOptions(zap.AddCallerSkip(1)).Sugar()
}

func SetLevel(l LogLevel) {
	switch l {
	case ERROR:
		level.SetLevel(zapcore.ErrorLevel)
	case WARNING, NOTICE:
		level.SetLevel(zapcore.WarnLevel)
	case INFO:
		level.SetLevel(zapcore.InfoLevel)
	default:
		level.SetLevel(zapcore.DebugLevel)
	}
}

// ParseLevel converts a level name from the configuration to a LogLevel.
func ParseLevel(name string) (LogLevel, error) {
	switch strings.ToLower(name) {
	case "error":
		return ERROR, nil
	case "warning", "warn":
		return WARNING, nil
	case "notice":
		return NOTICE, nil
	case "info", "":
		return INFO, nil
	case "debug":
		return DEBUG, nil
	}
	return INFO, fmt.Errorf("unknown log level: %s", name)
}

func IsDebug() bool {
	return level.Enabled(zapcore.DebugLevel)
}

// Logger returns the structured logger for callers that want fields
// instead of format strings.
func Logger() *zap.Logger {
	lock.RLock()
	defer lock.RUnlock()
	return logger
}

func current() *zap.SugaredLogger {
	lock.RLock()
	defer lock.RUnlock()
	return sugar
}

func Error(format string, v ...interface{}) {
	current().Errorf(format, v...)
}

func Warning(format string, v ...interface{}) {
	current().Warnf(format, v...)
}

// Notice is logged at warning level, zap has no notice level.
func Notice(format string, v ...interface{}) {
	current().Warnf(format, v...)
}

func Info(format string, v ...interface{}) {
	current().Infof(format, v...)
}

func Debug(format string, v ...interface{}) {
	current().Debugf(format, v...)
}

// Promote to info...
func Println(v ...interface{}) {
	current().Info(fmt.Sprint(v...))
}

// To be compatible with standard logging, promote to info.
func Printf(format string, v ...interface{}) {
	current().Infof(format, v...)
}

func Fatal(v ...interface{}) {
	current().Error(fmt.Sprint(v...))
	Sync()
	os.Exit(1)
}

func Fatalf(format string, v ...interface{}) {
	current().Errorf(format, v...)
	Sync()
	os.Exit(1)
}

func Sync() {
	_ = Logger().Sync()
}

type infoWriter struct{}

func (infoWriter) Write(p []byte) (int, error) {
	current().Info(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// Writer returns an io.Writer that logs each write at info level, for
// handing to libraries that want a writer (request logging).
func Writer() io.Writer {
	return infoWriter{}
}
