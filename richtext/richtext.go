//
// Tencent is pleased to support the open source community by making codegraph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// codegraph-go is licensed under the Apache License Version 2.0.
//
//

// Package richtext classifies block output and turns it into
// renderable HTML. An output value prefixed with the image marker is
// a base64-encoded image, one prefixed with the rich marker is a
// pre-formatted HTML fragment, anything else is plain or ANSI text
// that must be escaped before display.
package richtext

import (
	"bytes"
	"fmt"
	"strings"

	terminal "github.com/buildkite/terminal-to-html/v3"
	"github.com/yuin/goldmark"
)

// Reserved output markers.
const (
	// ImageMarker prefixes a base64-encoded image payload.
	ImageMarker = "<img>"
	// RichMarker prefixes a pre-formatted HTML fragment.
	RichMarker = "<div>"
)

// Kind is the classification of an output value.
type Kind int

// Output kinds.
const (
	KindText Kind = iota
	KindImage
	KindRich
)

// Classify determines the kind of an output value and returns the
// payload with the image marker stripped. Rich fragments keep their
// marker since it is part of the HTML itself.
func Classify(value string) (Kind, string) {
	switch {
	case strings.HasPrefix(value, ImageMarker):
		return KindImage, value[len(ImageMarker):]
	case strings.HasPrefix(value, RichMarker):
		return KindRich, value
	default:
		return KindText, value
	}
}

// StripControl removes backspace and carriage-return control
// characters, which must never reach the output buffer.
func StripControl(s string) string {
	s = strings.ReplaceAll(s, "\x08", "")
	s = strings.ReplaceAll(s, "\r", "")
	return s
}

// TextToHTML converts plain or ANSI-colored text into an HTML
// fragment safe to hand to a rich-text renderer. HTML metacharacters
// in the text are escaped by the conversion.
func TextToHTML(text string) string {
	return string(terminal.Render([]byte(StripControl(text))))
}

// ImageToHTML embeds a base64-encoded PNG into an HTML image tag.
func ImageToHTML(b64 string) string {
	return fmt.Sprintf(`<img src="data:image/png;base64,%s">`, b64)
}

// Render classifies an output value and produces the HTML fragment to
// display for it.
func Render(value string) string {
	kind, payload := Classify(value)
	switch kind {
	case KindImage:
		return ImageToHTML(payload)
	case KindRich:
		return payload
	default:
		return TextToHTML(payload)
	}
}

// Markdown renders a markdown block body to HTML.
func Markdown(text string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(text), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}
