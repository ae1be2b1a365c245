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


package search

import "errors"

var (
	// ErrEngineRequired is returned when a view engine is not provided.
	ErrEngineRequired = errors.New("view engine required")

	// ErrDocumentStoreRequired is returned when a document store is not provided.
	ErrDocumentStoreRequired = errors.New("document store required")

	// ErrFieldsRequired is returned when a search names no fields.
	ErrFieldsRequired = errors.New("at least one field required")

	// ErrInvalidMinShouldMatch is returned when min-should-match is not a percentage.
	ErrInvalidMinShouldMatch = errors.New("invalid minimum should match")

	// ErrFilterNameRequired is returned when a filter has no name. The name
	// is part of the index identity.
	ErrFilterNameRequired = errors.New("filter name required")

	// ErrInvalidPagination is returned for a negative skip or limit.
	ErrInvalidPagination = errors.New("skip and limit must not be negative")
)
