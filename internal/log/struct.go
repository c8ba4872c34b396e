// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package log

import (
	"context"
	"log/slog"
	"reflect"
	"time"

	"github.com/iancoleman/strcase"
)

// Struct logs the exported fields of a struct as snake-cased attributes. Fields
// tagged `log:"redact"` are logged as a fixed placeholder when set; fields
// tagged `log:"-"` are skipped.
func (l *Logger) Struct(
	ctx context.Context,
	level slog.Level,
	msg string,
	v any,
) {
	// This is reflection-heavy; bail out if we don't need it.
	if !l.Enabled(ctx, level) {
		return
	}

	val := realValue(reflect.ValueOf(v))
	if val.Kind() != reflect.Struct {
		l.Log(ctx, level, msg, slog.Any("value", v))
		return
	}
	l.Log(ctx, level, msg, reflectAttrs(val)...)
}

func reflectAttrs(val reflect.Value) []slog.Attr {
	typ := val.Type()
	var attrs []slog.Attr
	for i := range typ.NumField() {
		f := typ.Field(i)
		if !f.IsExported() || f.Tag.Get("log") == "-" {
			continue
		}

		name := strcase.ToSnake(f.Name)
		field := realValue(val.Field(i))

		// Ignore zero values to keep the log cleaner.
		if field.Kind() == reflect.Invalid || field.IsZero() {
			continue
		}

		if f.Tag.Get("log") == "redact" {
			attrs = append(attrs, slog.String(name, "[redacted]"))
			continue
		}

		attrs = append(attrs, reflectAttr(name, field))
	}
	return attrs
}

func reflectAttr(name string, val reflect.Value) slog.Attr {
	switch v := val.Interface().(type) {
	case time.Duration:
		return slog.Duration(name, v)
	case []byte:
		return slog.String(name, string(v))
	}

	// Durations and times are structs or ints with useful String forms; other
	// structs are flattened into groups.
	if val.Kind() == reflect.Struct {
		if _, ok := val.Interface().(time.Time); !ok {
			as := reflectAttrs(val)
			cpy := make([]any, len(as))
			for i, a := range as {
				cpy[i] = a
			}
			return slog.Group(name, cpy...)
		}
	}

	return slog.Any(name, val.Interface())
}

func realValue(val reflect.Value) reflect.Value {
	for val.Kind() == reflect.Pointer || val.Kind() == reflect.Interface {
		if val.IsNil() {
			return reflect.Value{}
		}
		val = val.Elem()
	}
	return val
}
