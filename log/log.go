// Copyright 2026 The P2P Authors
// This file is part of the P2P library.
//
// The P2P library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The P2P library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the P2P library. If not, see <http://www.gnu.org/licenses/>.

// Package log provides per-module key/value loggers. Modules obtain a logger
// once at package level via NewModuleLogger and attach context pairs per call.
package log

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// ModuleID identifies the subsystem a log record originates from.
type ModuleID int

const (
	Common ModuleID = iota
	Crypto
	NetworksP2P
	OverlayBase
	OverlayHandshake
	OverlaySwarm
	OverlayMessage
	Storage
	Node
	CMD
)

var moduleNames = [...]string{
	Common:           "common",
	Crypto:           "crypto",
	NetworksP2P:      "p2p",
	OverlayBase:      "overlay/base",
	OverlayHandshake: "overlay/handshake",
	OverlaySwarm:     "overlay/swarm",
	OverlayMessage:   "overlay/message",
	Storage:          "storage",
	Node:             "node",
	CMD:              "cmd",
}

func (m ModuleID) String() string {
	if int(m) < len(moduleNames) {
		return moduleNames[m]
	}
	return fmt.Sprintf("module-%d", int(m))
}

// Logger writes leveled records with alternating key/value context.
type Logger interface {
	Trace(msg string, ctx ...interface{})
	Debug(msg string, ctx ...interface{})
	Info(msg string, ctx ...interface{})
	Warn(msg string, ctx ...interface{})
	Error(msg string, ctx ...interface{})
	Crit(msg string, ctx ...interface{})
}

var root = newRoot()

func newRoot() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{
		TimestampFormat: "01-02|15:04:05.000",
		FullTimestamp:   true,
	})
	return l
}

// SetVerbosity adjusts the global threshold. 0=error .. 4=trace.
func SetVerbosity(v int) {
	switch {
	case v <= 0:
		root.SetLevel(logrus.ErrorLevel)
	case v == 1:
		root.SetLevel(logrus.WarnLevel)
	case v == 2:
		root.SetLevel(logrus.InfoLevel)
	case v == 3:
		root.SetLevel(logrus.DebugLevel)
	default:
		root.SetLevel(logrus.TraceLevel)
	}
}

// NewModuleLogger returns the logger for the given module.
func NewModuleLogger(mi ModuleID) Logger {
	return &moduleLogger{entry: root.WithField("module", mi.String())}
}

type moduleLogger struct {
	entry *logrus.Entry
}

func (l *moduleLogger) with(ctx []interface{}) *logrus.Entry {
	if len(ctx) == 0 {
		return l.entry
	}
	fields := make(logrus.Fields, len(ctx)/2)
	for i := 0; i+1 < len(ctx); i += 2 {
		key, ok := ctx[i].(string)
		if !ok {
			key = fmt.Sprint(ctx[i])
		}
		fields[key] = ctx[i+1]
	}
	if len(ctx)%2 != 0 {
		fields["LOG_EXTRA"] = ctx[len(ctx)-1]
	}
	return l.entry.WithFields(fields)
}

func (l *moduleLogger) Trace(msg string, ctx ...interface{}) { l.with(ctx).Trace(msg) }
func (l *moduleLogger) Debug(msg string, ctx ...interface{}) { l.with(ctx).Debug(msg) }
func (l *moduleLogger) Info(msg string, ctx ...interface{})  { l.with(ctx).Info(msg) }
func (l *moduleLogger) Warn(msg string, ctx ...interface{})  { l.with(ctx).Warn(msg) }
func (l *moduleLogger) Error(msg string, ctx ...interface{}) { l.with(ctx).Error(msg) }

// Crit logs at error level with a crit marker; it does not exit the process.
func (l *moduleLogger) Crit(msg string, ctx ...interface{}) {
	l.with(ctx).WithField("crit", true).Error(msg)
}
