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


package mapreduce

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrDocumentStoreRequired is returned when a document store is not provided.
	ErrDocumentStoreRequired = errors.New("document store required")

	// ErrIndexStoreProviderRequired is returned when an index store provider is not provided.
	ErrIndexStoreProviderRequired = errors.New("index store provider required")

	// ErrMapFunctionRequired is returned when a view definition has no map function.
	ErrMapFunctionRequired = errors.New("map function required")

	// ErrViewNameRequired is returned when a view definition has no name.
	ErrViewNameRequired = errors.New("view name required")

	// ErrViewDestroyed is returned when a destroyed view is used.
	ErrViewDestroyed = errors.New("view destroyed")

	// ErrUnknownReducer is returned for reducers other than _sum, _count and _stats.
	ErrUnknownReducer = errors.New("unknown reducer")

	// ErrQueryParse indicates an invalid combination of query options.
	ErrQueryParse = errors.New("query_parse_error")

	// ErrBuiltIn indicates a built-in reducer received values it cannot reduce.
	ErrBuiltIn = errors.New("invalid_value")
)

// BuiltInError reports a built-in reducer failure.
type BuiltInError struct {
	Reducer string
}

func (e *BuiltInError) Error() string {
	return "builtin " + e.Reducer + " function requires map values to be numbers or number arrays"
}

func (e *BuiltInError) Unwrap() error { return ErrBuiltIn }

// Status is the HTTP status a server front end should report.
func (e *BuiltInError) Status() int { return http.StatusInternalServerError }

// MapError reports a map function failure for a single document. The
// document contributes no rows for the pass that failed.
type MapError struct {
	View  string
	DocID string
	Err   error
}

func (e *MapError) Error() string {
	return fmt.Sprintf("map function failed for %s in view %s: %v", e.DocID, e.View, e.Err)
}

func (e *MapError) Unwrap() error { return e.Err }

func queryParseError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrQueryParse, fmt.Sprintf(format, args...))
}
