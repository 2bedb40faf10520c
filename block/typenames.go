//
// Tencent is pleased to support the open source community by making codegraph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// codegraph-go is licensed under the Apache License Version 2.0.
//
//

package block

// Type is the internal variant tag of a block.
type Type string

// Recognized block variants.
const (
	TypeCode     Type = "code"
	TypeMarkdown Type = "markdown"
)

// TypeNames maps internal variant tags to the names used in
// serialized documents. The same table must be handed to both the
// notebook converter and any code validating block types; it is
// injected rather than consulted as a package-level singleton.
type TypeNames map[Type]string

// DefaultTypeNames returns the standard variant tag to serialized
// name mapping.
func DefaultTypeNames() TypeNames {
	return TypeNames{
		TypeCode:     "CodeBlock",
		TypeMarkdown: "MarkdownBlock",
	}
}

// NameOf returns the serialized name for a variant tag.
func (n TypeNames) NameOf(t Type) (string, bool) {
	name, ok := n[t]
	return name, ok
}

// TypeOf resolves a serialized name back to its variant tag.
func (n TypeNames) TypeOf(name string) (Type, bool) {
	for t, candidate := range n {
		if candidate == name {
			return t, true
		}
	}
	return "", false
}
