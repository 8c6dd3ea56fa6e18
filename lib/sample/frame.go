// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sample

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/bureau-foundation/plotline/lib/codec"
)

// HeaderLength is the size of the frame header: a two-byte marker and a
// four-byte big-endian payload length.
const HeaderLength = 6

// DefaultMaxPayloadLength bounds a single payload unless the caller
// configures otherwise. Instrument records are a few hundred bytes;
// anything near this size is a corrupt length field.
const DefaultMaxPayloadLength = 1 << 20

// marker opens every frame.
var marker = [2]byte{'P', 'L'}

// Encode returns the complete frame for s.
func Encode(s Sample) ([]byte, error) {
	payload, err := EncodePayload(s)
	if err != nil {
		return nil, err
	}
	frame := make([]byte, HeaderLength+len(payload))
	frame[0], frame[1] = marker[0], marker[1]
	binary.BigEndian.PutUint32(frame[2:HeaderLength], uint32(len(payload)))
	copy(frame[HeaderLength:], payload)
	return frame, nil
}

// EncodePayload returns the CBOR payload for s without framing. The
// sample must satisfy the same rules DecodePayload enforces.
func EncodePayload(s Sample) ([]byte, error) {
	if err := validate(s.Fields); err != nil {
		return nil, fmt.Errorf("encode sample: %w", err)
	}
	payload, err := codec.Marshal(s.Fields)
	if err != nil {
		return nil, fmt.Errorf("encode sample: %w", err)
	}
	return payload, nil
}

// DecodePayload decodes one unframed payload. Failures are returned as
// *DecodeError.
func DecodePayload(payload []byte, arrival time.Time) (Sample, error) {
	var fields []Field
	if err := codec.Unmarshal(payload, &fields); err != nil {
		return Sample{}, &DecodeError{Discarded: len(payload), Err: fmt.Errorf("%w: %v", ErrPayload, err)}
	}
	if err := validate(fields); err != nil {
		return Sample{}, &DecodeError{Discarded: len(payload), Err: err}
	}
	return Sample{Arrival: arrival, Fields: fields}, nil
}

// DecodeFrame decodes a datagram that must contain exactly one frame.
// A maxPayload of zero selects DefaultMaxPayloadLength.
func DecodeFrame(datagram []byte, arrival time.Time, maxPayload int) (Sample, error) {
	maxPayload = effectiveMax(maxPayload)
	if len(datagram) < HeaderLength || datagram[0] != marker[0] || datagram[1] != marker[1] {
		return Sample{}, &DecodeError{Discarded: len(datagram), Err: ErrBadMarker}
	}
	length := int(binary.BigEndian.Uint32(datagram[2:HeaderLength]))
	if length == 0 || length > maxPayload {
		return Sample{}, &DecodeError{Discarded: len(datagram), Err: fmt.Errorf("%w: %d", ErrFrameLength, length)}
	}
	if len(datagram) != HeaderLength+length {
		return Sample{}, &DecodeError{
			Discarded: len(datagram),
			Err:       fmt.Errorf("%w: header says %d, datagram carries %d", ErrTrailingBytes, length, len(datagram)-HeaderLength),
		}
	}
	decoded, err := DecodePayload(datagram[HeaderLength:], arrival)
	if err != nil {
		err.(*DecodeError).Discarded = len(datagram)
		return Sample{}, err
	}
	return decoded, nil
}

// Parse consumes as many complete frames from buffer as it can. It
// returns the decoded samples in order, the unconsumed remainder (a
// prefix of an incomplete frame, possibly empty), and one *DecodeError
// per corrupt frame or skipped run of bytes. The remainder aliases
// buffer. A maxPayload of zero selects DefaultMaxPayloadLength.
func Parse(buffer []byte, arrival time.Time, maxPayload int) (samples []Sample, rest []byte, errs []error) {
	maxPayload = effectiveMax(maxPayload)
	offset := 0
	for offset < len(buffer) {
		remaining := buffer[offset:]

		if len(remaining) == 1 {
			if remaining[0] == marker[0] {
				break
			}
			errs = append(errs, &DecodeError{Offset: offset, Discarded: 1, Err: ErrBadMarker})
			offset++
			continue
		}

		if remaining[0] != marker[0] || remaining[1] != marker[1] {
			skip := resync(remaining)
			errs = append(errs, &DecodeError{Offset: offset, Discarded: skip, Err: ErrBadMarker})
			offset += skip
			continue
		}

		if len(remaining) < HeaderLength {
			break
		}

		length := int(binary.BigEndian.Uint32(remaining[2:HeaderLength]))
		if length == 0 || length > maxPayload {
			skip := resync(remaining)
			errs = append(errs, &DecodeError{
				Offset:    offset,
				Discarded: skip,
				Err:       fmt.Errorf("%w: %d (max %d)", ErrFrameLength, length, maxPayload),
			})
			offset += skip
			continue
		}

		if len(remaining) < HeaderLength+length {
			break
		}

		decoded, err := DecodePayload(remaining[HeaderLength:HeaderLength+length], arrival)
		if err != nil {
			decodeError := err.(*DecodeError)
			decodeError.Offset = offset
			decodeError.Discarded = HeaderLength + length
			errs = append(errs, decodeError)
		} else {
			samples = append(samples, decoded)
		}
		offset += HeaderLength + length
	}
	return samples, buffer[offset:], errs
}

// Parser keeps the unconsumed tail of a byte stream between reads. One
// Parser belongs to one connection; it is not safe for concurrent use.
type Parser struct {
	buffer     []byte
	maxPayload int
}

// NewParser returns a Parser. A maxPayload of zero selects
// DefaultMaxPayloadLength.
func NewParser(maxPayload int) *Parser {
	return &Parser{maxPayload: effectiveMax(maxPayload)}
}

// Feed appends data to the pending bytes and returns every sample that
// is now complete, plus any decode errors encountered on the way.
func (p *Parser) Feed(data []byte, arrival time.Time) ([]Sample, []error) {
	p.buffer = append(p.buffer, data...)
	samples, rest, errs := Parse(p.buffer, arrival, p.maxPayload)
	p.buffer = append(p.buffer[:0], rest...)
	return samples, errs
}

// Buffered returns the number of bytes held for an incomplete frame.
func (p *Parser) Buffered() int {
	return len(p.buffer)
}

// resync returns how many bytes to drop from the front of remaining so
// that it starts at the next marker. A trailing lone first marker byte
// is kept because the rest of the marker may still arrive.
func resync(remaining []byte) int {
	if index := bytes.Index(remaining[1:], marker[:]); index >= 0 {
		return index + 1
	}
	if remaining[len(remaining)-1] == marker[0] {
		return len(remaining) - 1
	}
	return len(remaining)
}

func validate(fields []Field) error {
	if len(fields) == 0 {
		return ErrEmptySample
	}
	seen := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		if field.Name == "" {
			return ErrEmptyName
		}
		if _, duplicate := seen[field.Name]; duplicate {
			return fmt.Errorf("%w: %q", ErrDuplicateSignal, field.Name)
		}
		seen[field.Name] = struct{}{}
	}
	return nil
}

func effectiveMax(maxPayload int) int {
	if maxPayload <= 0 {
		return DefaultMaxPayloadLength
	}
	return maxPayload
}
