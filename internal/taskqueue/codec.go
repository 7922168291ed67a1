package taskqueue

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// taskEncodingV1 prefixes every encoded task so rows written by a future
// layout are rejected instead of half-decoded.
const taskEncodingV1 byte = 1

// EncodeTask serializes t for durable queues: a version byte followed by
// the gob encoding of the task.
func EncodeTask(t Task) ([]byte, error) {
	buf := bytes.NewBuffer([]byte{taskEncodingV1})
	if err := gob.NewEncoder(buf).Encode(&t); err != nil {
		return nil, fmt.Errorf("encode task %s: %w", t.ID, err)
	}
	return buf.Bytes(), nil
}

// DecodeTask reverses EncodeTask.
func DecodeTask(data []byte) (*Task, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("decode task: empty payload")
	}
	if data[0] != taskEncodingV1 {
		return nil, fmt.Errorf("decode task: unsupported encoding version %d", data[0])
	}
	var t Task
	if err := gob.NewDecoder(bytes.NewReader(data[1:])).Decode(&t); err != nil {
		return nil, fmt.Errorf("decode task: %w", err)
	}
	if t.OutcomeID == "" {
		return nil, fmt.Errorf("decode task %s: missing outcome id", t.ID)
	}
	return &t, nil
}
