/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package logger is a trimmed structured logger wrapping logrus:
// Debug/Info/Warn/Error methods taking a message, a field map and an
// underlying error, plus a package-level default instance and
// per-component injection via FuncLog. It drops the teacher logger's
// hook/syslog/gorm/hclog adapters, which have no SNMP-domain use.
package logger

import (
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

// Fields is the structured data attached to one log entry.
type Fields map[string]interface{}

func (f Fields) logrus() logrus.Fields {
	out := make(logrus.Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// FuncLog returns a Logger instance, for dependency injection and lazy
// per-component retrieval rather than importing a package-level global
// directly.
type FuncLog func() Logger

// Logger is the logging surface every SNMP-domain package is injected
// with.
type Logger interface {
	Debug(message string, fields Fields, err error)
	Info(message string, fields Fields, err error)
	Warn(message string, fields Fields, err error)
	Error(message string, fields Fields, err error)

	SetLevel(lvl logrus.Level)
	GetLevel() logrus.Level

	// WithFields returns a Logger that merges fields into every entry
	// it logs, on top of whatever fields a call site adds.
	WithFields(fields Fields) Logger
}

type logger struct {
	mu     sync.RWMutex
	out    *logrus.Logger
	fields Fields
}

// New wraps a fresh logrus.Logger writing JSON-formatted entries to w.
func New(w io.Writer) Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.JSONFormatter{})
	l.SetOutput(w)
	return &logger{out: l}
}

func (l *logger) entry(fields Fields) *logrus.Entry {
	l.mu.RLock()
	base := l.fields
	l.mu.RUnlock()

	merged := make(Fields, len(base)+len(fields))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return l.out.WithFields(merged.logrus())
}

func (l *logger) log(lvl logrus.Level, message string, fields Fields, err error) {
	e := l.entry(fields)
	if err != nil {
		e = e.WithError(err)
	}
	e.Log(lvl, message)
}

func (l *logger) Debug(message string, fields Fields, err error) {
	l.log(logrus.DebugLevel, message, fields, err)
}

func (l *logger) Info(message string, fields Fields, err error) {
	l.log(logrus.InfoLevel, message, fields, err)
}

func (l *logger) Warn(message string, fields Fields, err error) {
	l.log(logrus.WarnLevel, message, fields, err)
}

func (l *logger) Error(message string, fields Fields, err error) {
	l.log(logrus.ErrorLevel, message, fields, err)
}

func (l *logger) SetLevel(lvl logrus.Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out.SetLevel(lvl)
}

func (l *logger) GetLevel() logrus.Level {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.out.GetLevel()
}

func (l *logger) WithFields(fields Fields) Logger {
	l.mu.RLock()
	base := l.fields
	l.mu.RUnlock()

	merged := make(Fields, len(base)+len(fields))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &logger{out: l.out, fields: merged}
}
