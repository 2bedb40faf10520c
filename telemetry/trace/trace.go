//
// Tencent is pleased to support the open source community by making codegraph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// codegraph-go is licensed under the Apache License Version 2.0.
//
//

// Package trace exposes the tracer used by the execution coordinator.
// It defaults to a noop tracer; embedding applications may install a
// configured OpenTelemetry provider at startup.
package trace

import (
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// TracerProvider is the global tracer provider.
var TracerProvider trace.TracerProvider = noop.NewTracerProvider()

// Tracer is the global tracer instance.
var Tracer trace.Tracer = TracerProvider.Tracer("codegraph-go")

// SetTracerProvider installs a tracer provider, replacing the noop
// default.
func SetTracerProvider(provider trace.TracerProvider) {
	if provider == nil {
		return
	}
	TracerProvider = provider
	Tracer = provider.Tracer("codegraph-go")
}
