// Copyright 2025 Poiesic Systems
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


package core

import "errors"

// Domain validation errors
var (
	// ErrInvalidDocument indicates a Document failed validation.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrEmptyDocumentID indicates the ID field is empty.
	ErrEmptyDocumentID = errors.New("document id cannot be empty")

	// ErrLocalDocument indicates a write targeted the reserved _local/ namespace.
	ErrLocalDocument = errors.New("document id is reserved")

	// ErrInvalidRevision indicates a revision string is malformed.
	ErrInvalidRevision = errors.New("invalid revision")

	// ErrInvalidStaleMode indicates an unknown staleness mode.
	ErrInvalidStaleMode = errors.New("invalid stale mode")
)
