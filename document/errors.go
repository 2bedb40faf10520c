//
// Tencent is pleased to support the open source community by making codegraph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// codegraph-go is licensed under the Apache License Version 2.0.
//
//

package document

import "errors"

// Errors.
var (
	// ErrMalformedDocument is returned when a serialized document
	// cannot be restored, typically because an edge references a
	// block or socket id that is absent from the document. The load
	// fails as a whole, it is never silently dropped.
	ErrMalformedDocument = errors.New("malformed document")

	// ErrDuplicateID is returned when adding a block or socket whose
	// id already exists in the document.
	ErrDuplicateID = errors.New("duplicate id")

	// ErrBlockNotFound is returned when an operation references a
	// block id that is not part of the document.
	ErrBlockNotFound = errors.New("block not found")
)
