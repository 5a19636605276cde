// SPDX-FileCopyrightText: 2025 The energysched Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"encoding/json"
	"fmt"
)

// jsonCodec is the default wire encoding.
type jsonCodec struct{}

func (c *jsonCodec) DecodeEvents(data []byte) (*EventBatch, error) {
	var batch EventBatch
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return &batch, nil
}

func (c *jsonCodec) EncodeDecisions(batch *DecisionBatch) ([]byte, error) {
	if batch.Decisions == nil {
		// A tick with no decisions still encodes an explicit empty list.
		batch = &DecisionBatch{Now: batch.Now, Decisions: []Decision{}}
	}
	return json.Marshal(batch)
}
