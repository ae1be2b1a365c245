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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateDocument(t *testing.T) {
	tests := []struct {
		name    string
		doc     *Document
		wantErr error
	}{
		{
			name: "valid new document",
			doc:  &Document{ID: "1", Body: map[string]any{"text": "x"}},
		},
		{
			name: "valid update",
			doc:  &Document{ID: "1", Rev: "3-deadbeef"},
		},
		{
			name:    "nil document",
			doc:     nil,
			wantErr: ErrInvalidDocument,
		},
		{
			name:    "empty id",
			doc:     &Document{},
			wantErr: ErrEmptyDocumentID,
		},
		{
			name:    "local id",
			doc:     &Document{ID: "_local/lastSeq"},
			wantErr: ErrLocalDocument,
		},
		{
			name:    "bad revision",
			doc:     &Document{ID: "1", Rev: "x-y"},
			wantErr: ErrInvalidRevision,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDocument(tt.doc)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, ErrInvalidDocument)
		})
	}
}

func TestParseRevision(t *testing.T) {
	gen, hash, err := ParseRevision("12-abc")
	assert.NoError(t, err)
	assert.Equal(t, 12, gen)
	assert.Equal(t, "abc", hash)

	for _, bad := range []string{"", "abc", "0-abc", "1-", "-abc"} {
		_, _, err := ParseRevision(bad)
		assert.ErrorIs(t, err, ErrInvalidRevision, bad)
	}
}

func TestIsFirstGeneration(t *testing.T) {
	assert.True(t, IsFirstGeneration(&Change{Changes: []string{"1-abc"}}))
	assert.False(t, IsFirstGeneration(&Change{Changes: []string{"2-abc"}}))
	assert.False(t, IsFirstGeneration(&Change{Changes: []string{"1-abc", "1-def"}}))
	assert.False(t, IsFirstGeneration(&Change{}))
	assert.False(t, IsFirstGeneration(nil))
}
