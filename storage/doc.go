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


// Package storage provides the storage abstraction layer for quicksearch.
//
// This package defines the interfaces that decouple the indexing engine from
// the concrete storage backend. Two kinds of stores exist:
//
//   - DocumentStore: the source collection. Documents carry revisions and
//     every write is assigned a sequence number in a change feed.
//   - IndexStore: a key-ordered auxiliary store owned by a single view. It
//     holds view rows, per-document ledgers and the view's cursor.
//
// IndexStores are created through an IndexStoreProvider, which registers each
// one as a dependent of the source collection so that destroying the
// collection also destroys every index built over it.
//
// # Atomicity
//
// IndexStore.BulkWrite commits all records of a call in a single
// transaction. The indexing engine relies on this to persist a whole batch of
// view rows together with the advanced cursor, so a crash never leaves the
// cursor ahead of the rows it covers.
//
// # Soft deletes
//
// Records written with Deleted set are kept as tombstones. Get, GetMany and
// Range never return them.
//
// # Serialization
//
// Engine records are encoded with mus-go primitive serializers; document
// bodies are stored as JSON.
//
// # Context Support
//
// All methods accept context.Context. Pass context.Background() for
// operations without specific timeout requirements.
package storage
