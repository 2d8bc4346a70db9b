// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

package logbook

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Handler is a slog.Handler that passes every record to an underlying
// handler and appends records at Info or above to a Book. Handlers
// derived through WithAttrs and WithGroup write to the same Book.
type Handler struct {
	next   slog.Handler
	book   *Book
	prefix string // rendered WithAttrs attributes
	group  string
}

// NewHandler wraps next. A nil next discards process output and only
// feeds the Book.
func NewHandler(next slog.Handler, book *Book) *Handler {
	return &Handler{next: next, book: book}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	if level >= slog.LevelInfo {
		return true
	}
	return h.next != nil && h.next.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, record slog.Record) error {
	if record.Level >= slog.LevelInfo {
		h.book.Append(record.Time, SeverityForLevel(record.Level), h.render(record))
	}
	if h.next != nil && h.next.Enabled(ctx, record.Level) {
		return h.next.Handle(ctx, record)
	}
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	derived := *h
	if h.next != nil {
		derived.next = h.next.WithAttrs(attrs)
	}
	var builder strings.Builder
	builder.WriteString(h.prefix)
	for _, attr := range attrs {
		writeAttr(&builder, h.group, attr)
	}
	derived.prefix = builder.String()
	return &derived
}

func (h *Handler) WithGroup(name string) slog.Handler {
	derived := *h
	if h.next != nil {
		derived.next = h.next.WithGroup(name)
	}
	if h.group == "" {
		derived.group = name
	} else {
		derived.group = h.group + "." + name
	}
	return &derived
}

// render produces "message key=value ..." for the operator log.
func (h *Handler) render(record slog.Record) string {
	var builder strings.Builder
	builder.WriteString(record.Message)
	builder.WriteString(h.prefix)
	record.Attrs(func(attr slog.Attr) bool {
		writeAttr(&builder, h.group, attr)
		return true
	})
	return builder.String()
}

func writeAttr(builder *strings.Builder, group string, attr slog.Attr) {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return
	}
	key := attr.Key
	if group != "" {
		key = group + "." + key
	}
	if attr.Value.Kind() == slog.KindGroup {
		for _, member := range attr.Value.Group() {
			writeAttr(builder, key, member)
		}
		return
	}
	value := attr.Value.String()
	if strings.ContainsAny(value, " =\"") {
		value = fmt.Sprintf("%q", value)
	}
	fmt.Fprintf(builder, " %s=%s", key, value)
}
