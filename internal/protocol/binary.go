// SPDX-FileCopyrightText: 2025 The energysched Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Binary wire layout, little endian:
//
//	u8  magic 0xE5, u8 version, f64 now, u32 count,
//	then per entry: u8 type, u16 payload length, payload.
//
// The per-entry length prefix lets a decoder skip entry types it does not
// know, mirroring the forward-compatibility rule of the JSON form.
const (
	binaryMagic   = 0xE5
	binaryVersion = 1
)

const (
	binEventHello     = 0x01
	binEventSimBegins = 0x02
	binEventSubmitted = 0x03
	binEventCompleted = 0x04
	binEventAllStatic = 0x05

	binDecisionHello   = 0x81
	binDecisionReject  = 0x82
	binDecisionExecute = 0x83
)

type binaryCodec struct{}

func (c *binaryCodec) DecodeEvents(data []byte) (*EventBatch, error) {
	r := bytes.NewReader(data)

	var magic, version uint8
	if err := readAll(r, &magic, &version); err != nil {
		return nil, fmt.Errorf("%w: short header", ErrDecode)
	}
	if magic != binaryMagic || version != binaryVersion {
		return nil, fmt.Errorf("%w: bad magic/version %#x/%d", ErrDecode, magic, version)
	}

	var now float64
	var count uint32
	if err := readAll(r, &now, &count); err != nil {
		return nil, fmt.Errorf("%w: short header", ErrDecode)
	}

	batch := &EventBatch{Now: now}
	for i := uint32(0); i < count; i++ {
		var kind uint8
		var size uint16
		if err := readAll(r, &kind, &size); err != nil {
			return nil, fmt.Errorf("%w: short entry header", ErrDecode)
		}
		payload := make([]byte, size)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, fmt.Errorf("%w: short entry payload", ErrDecode)
		}

		ev, err := decodeEventPayload(kind, payload)
		if err != nil {
			return nil, err
		}
		if ev != nil {
			batch.Events = append(batch.Events, *ev)
		}
	}
	return batch, nil
}

func decodeEventPayload(kind uint8, payload []byte) (*Event, error) {
	r := bytes.NewReader(payload)
	switch kind {
	case binEventHello:
		return &Event{Type: EventHello}, nil
	case binEventSimBegins:
		var hosts uint32
		if err := readAll(r, &hosts); err != nil {
			return nil, fmt.Errorf("%w: simulation_begins payload", ErrDecode)
		}
		return &Event{Type: EventSimulationBegins, HostCount: int(hosts)}, nil
	case binEventSubmitted:
		id, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("%w: job_submitted payload", ErrDecode)
		}
		var width uint32
		var walltime float64
		if err := readAll(r, &width, &walltime); err != nil {
			return nil, fmt.Errorf("%w: job_submitted payload", ErrDecode)
		}
		return &Event{Type: EventJobSubmitted, JobID: id, Width: int(width), Walltime: walltime}, nil
	case binEventCompleted:
		id, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("%w: job_completed payload", ErrDecode)
		}
		return &Event{Type: EventJobCompleted, JobID: id}, nil
	case binEventAllStatic:
		return &Event{Type: EventAllStaticJobsSubmitted}, nil
	default:
		// Unknown entry types are skipped, not fatal.
		return nil, nil
	}
}

func (c *binaryCodec) EncodeDecisions(batch *DecisionBatch) ([]byte, error) {
	var buf bytes.Buffer
	writeAll(&buf, uint8(binaryMagic), uint8(binaryVersion), batch.Now, uint32(len(batch.Decisions)))

	for _, d := range batch.Decisions {
		var kind uint8
		var payload bytes.Buffer
		switch d.Type {
		case DecisionHello:
			kind = binDecisionHello
			writeString(&payload, d.Name)
			writeString(&payload, d.Version)
		case DecisionRejectJob:
			kind = binDecisionReject
			writeString(&payload, d.JobID)
		case DecisionExecuteJob:
			kind = binDecisionExecute
			writeString(&payload, d.JobID)
			writeString(&payload, d.Hosts)
		default:
			return nil, fmt.Errorf("protocol: unencodable decision type %q", d.Type)
		}
		if payload.Len() > math.MaxUint16 {
			return nil, fmt.Errorf("protocol: decision payload too large")
		}
		writeAll(&buf, kind, uint16(payload.Len()))
		buf.Write(payload.Bytes())
	}
	return buf.Bytes(), nil
}

// EncodeEvents writes an event batch in the binary form. The scheduler
// only decodes events; this is the driver/test side of the codec.
func (c *binaryCodec) EncodeEvents(batch *EventBatch) ([]byte, error) {
	var buf bytes.Buffer
	writeAll(&buf, uint8(binaryMagic), uint8(binaryVersion), batch.Now, uint32(len(batch.Events)))

	for _, ev := range batch.Events {
		var kind uint8
		var payload bytes.Buffer
		switch ev.Type {
		case EventHello:
			kind = binEventHello
		case EventSimulationBegins:
			kind = binEventSimBegins
			writeAll(&payload, uint32(ev.HostCount))
		case EventJobSubmitted:
			kind = binEventSubmitted
			writeString(&payload, ev.JobID)
			writeAll(&payload, uint32(ev.Width), ev.Walltime)
		case EventJobCompleted:
			kind = binEventCompleted
			writeString(&payload, ev.JobID)
		case EventAllStaticJobsSubmitted:
			kind = binEventAllStatic
		default:
			return nil, fmt.Errorf("protocol: unencodable event type %q", ev.Type)
		}
		writeAll(&buf, kind, uint16(payload.Len()))
		buf.Write(payload.Bytes())
	}
	return buf.Bytes(), nil
}

// DecodeDecisions parses a binary decision batch. The scheduler never
// consumes decisions; this is the driver/test side of the codec.
func (c *binaryCodec) DecodeDecisions(data []byte) (*DecisionBatch, error) {
	r := bytes.NewReader(data)

	var magic, version uint8
	var now float64
	var count uint32
	if err := readAll(r, &magic, &version, &now, &count); err != nil {
		return nil, fmt.Errorf("%w: short header", ErrDecode)
	}
	if magic != binaryMagic || version != binaryVersion {
		return nil, fmt.Errorf("%w: bad magic/version", ErrDecode)
	}

	batch := &DecisionBatch{Now: now}
	for i := uint32(0); i < count; i++ {
		var kind uint8
		var size uint16
		if err := readAll(r, &kind, &size); err != nil {
			return nil, fmt.Errorf("%w: short entry header", ErrDecode)
		}
		payload := make([]byte, size)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, fmt.Errorf("%w: short entry payload", ErrDecode)
		}

		pr := bytes.NewReader(payload)
		switch kind {
		case binDecisionHello:
			name, err1 := readString(pr)
			version, err2 := readString(pr)
			if err1 != nil || err2 != nil {
				return nil, fmt.Errorf("%w: edc_hello payload", ErrDecode)
			}
			batch.Decisions = append(batch.Decisions, Decision{Type: DecisionHello, Name: name, Version: version})
		case binDecisionReject:
			id, err := readString(pr)
			if err != nil {
				return nil, fmt.Errorf("%w: reject_job payload", ErrDecode)
			}
			batch.Decisions = append(batch.Decisions, Decision{Type: DecisionRejectJob, JobID: id})
		case binDecisionExecute:
			id, err1 := readString(pr)
			hosts, err2 := readString(pr)
			if err1 != nil || err2 != nil {
				return nil, fmt.Errorf("%w: execute_job payload", ErrDecode)
			}
			batch.Decisions = append(batch.Decisions, Decision{Type: DecisionExecuteJob, JobID: id, Hosts: hosts})
		}
	}
	return batch, nil
}

func readAll(r io.Reader, fields ...any) error {
	for _, f := range fields {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	return nil
}

func writeAll(w io.Writer, fields ...any) {
	for _, f := range fields {
		// Writes to bytes.Buffer cannot fail.
		_ = binary.Write(w, binary.LittleEndian, f)
	}
}

func readString(r io.Reader) (string, error) {
	var size uint16
	if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
		return "", err
	}
	b := make([]byte, size)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func writeString(w *bytes.Buffer, s string) {
	_ = binary.Write(w, binary.LittleEndian, uint16(len(s)))
	w.WriteString(s)
}
