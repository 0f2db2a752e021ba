package utils

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type bulkAction struct {
	Index bulkTarget `json:"index"`
}

type bulkTarget struct {
	ID string `json:"_id"`
}

// BulkEncoder builds a newline-delimited bulk-index payload: one action line
// naming the document id, followed by the document itself.
type BulkEncoder struct {
	buf   bytes.Buffer
	count int
}

func NewBulkEncoder() *BulkEncoder {
	return &BulkEncoder{}
}

func (e *BulkEncoder) Append(id string, doc any) error {
	action, err := json.Marshal(bulkAction{Index: bulkTarget{ID: id}})
	if err != nil {
		return fmt.Errorf("[BulkEncoder] failed to encode action for %s: %w", id, err)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("[BulkEncoder] failed to encode document %s: %w", id, err)
	}

	e.buf.Write(action)
	e.buf.WriteByte('\n')
	e.buf.Write(data)
	e.buf.WriteByte('\n')
	e.count++
	return nil
}

// Len is the number of documents appended since the last Flush.
func (e *BulkEncoder) Len() int {
	return e.count
}

// Flush returns the encoded payload and resets the encoder.
func (e *BulkEncoder) Flush() []byte {
	out := bytes.Clone(e.buf.Bytes())
	e.buf.Reset()
	e.count = 0
	return out
}
