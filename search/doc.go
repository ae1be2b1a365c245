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


// Package search provides TF-IDF full-text search over a document store.
//
// Each combination of fields, language, resolution and filter is backed by
// its own persisted view holding two kinds of rows:
//   - Postings, keyed "a"+token, one per token occurrence, valued with the
//     index of the field the token came from
//   - Field norms, keyed "b"+docID, holding sqrt(token count) per field
//
// Queries read only those rows. Documents are scored per query term as the
// sum over fields of (tf/df)*(1/df)*boost/norm, and a document's score is the
// best of its term scores (dismax).
package search
