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

import (
	"fmt"
	"strconv"
	"strings"
)

// ValidateDocument validates a Document before it is written.
//
// Validation rules:
//   - ID must not be empty
//   - ID must not live in the _local/ namespace
//   - Rev, when set, must parse as a revision
//
// NOT validated (populated by the store):
//   - Seq
//   - Rev for new documents
func ValidateDocument(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidDocument)
	}

	if doc.ID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptyDocumentID)
	}

	if strings.HasPrefix(doc.ID, LocalPrefix) {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrLocalDocument)
	}

	if doc.Rev != "" {
		if _, _, err := ParseRevision(doc.Rev); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
		}
	}

	return nil
}

// ParseRevision splits "<generation>-<hash>" into its parts.
func ParseRevision(rev string) (int, string, error) {
	genStr, hash, ok := strings.Cut(rev, "-")
	if !ok || hash == "" {
		return 0, "", fmt.Errorf("%w: %q", ErrInvalidRevision, rev)
	}
	gen, err := strconv.Atoi(genStr)
	if err != nil || gen < 1 {
		return 0, "", fmt.Errorf("%w: %q", ErrInvalidRevision, rev)
	}
	return gen, hash, nil
}

// IsFirstGeneration reports whether a change carries exactly one leaf
// revision and that revision is generation 1. Such a document cannot have
// been indexed before.
func IsFirstGeneration(change *Change) bool {
	if change == nil || len(change.Changes) != 1 {
		return false
	}
	return strings.HasPrefix(change.Changes[0], "1-")
}
