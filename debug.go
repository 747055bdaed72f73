// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package k5link

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// consoleLogger prints warnings by default and everything once debug is on.
var consoleLogger = newConsoleLogger(os.Stderr)

func init() {
	if os.Getenv("K5LINK_DEBUG") != "" || os.Getenv("DEBUG") != "" {
		SetDebugEnabled(true)
	}
}

func newConsoleLogger(out io.Writer) *logrus.Logger {
	return &logrus.Logger{
		Out:       out,
		Formatter: &logrus.TextFormatter{FullTimestamp: true},
		Hooks:     make(logrus.LevelHooks),
		Level:     logrus.WarnLevel,
	}
}

// Logger returns the console logger so applications can redirect or
// reformat library output.
func Logger() *logrus.Logger {
	return consoleLogger
}

// SetLogOutput redirects console log output.
func SetLogOutput(w io.Writer) {
	consoleLogger.SetOutput(w)
}

// SetDebugEnabled allows programmatic control of debug logging
func SetDebugEnabled(enabled bool) {
	if enabled {
		consoleLogger.SetLevel(logrus.DebugLevel)
	} else {
		consoleLogger.SetLevel(logrus.WarnLevel)
	}
}

// DebugEnabled reports whether debug output reaches the console.
func DebugEnabled() bool {
	return consoleLogger.IsLevelEnabled(logrus.DebugLevel)
}

// logf writes one message to the console and, when open, the session log.
// The session log records every level regardless of the console setting.
func logf(level logrus.Level, fields logrus.Fields, format string, args ...any) {
	message := fmt.Sprintf(format, args...)
	if s := sessionLogger; s != nil {
		s.WithFields(fields).Log(level, message)
	}
	consoleLogger.WithFields(fields).Log(level, message)
}

// Debugf prints debug information.
func Debugf(format string, args ...any) {
	logf(logrus.DebugLevel, nil, format, args...)
}

// Debugln prints debug information.
func Debugln(args ...any) {
	logf(logrus.DebugLevel, nil, "%s", strings.TrimSuffix(fmt.Sprintln(args...), "\n"))
}

// Infof reports session progress.
func Infof(format string, args ...any) {
	logf(logrus.InfoLevel, nil, format, args...)
}

// Warnf reports a recoverable problem.
func Warnf(format string, args ...any) {
	logf(logrus.WarnLevel, nil, format, args...)
}

// debugFields logs at debug level with structured fields such as seq and offset.
func debugFields(fields logrus.Fields, format string, args ...any) {
	logf(logrus.DebugLevel, fields, format, args...)
}

// warnFields logs at warn level with structured fields.
func warnFields(fields logrus.Fields, format string, args ...any) {
	logf(logrus.WarnLevel, fields, format, args...)
}
