// Package wire implements the self-describing binary chunk frame used on
// network edges: a fixed header followed by length-prefixed meta and
// payload sections. Sender and receiver must run the same format version.
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/speechflow/speechflow/chunk"
	"github.com/speechflow/speechflow/errs"
)

const (
	kindAudio = 0x01
	kindText  = 0x02

	finalityPartial = 0x01
	finalityFinal   = 0x02
)

// Encode serializes c into the wire frame format.
func Encode(c *chunk.Chunk) ([]byte, error) {
	var buf bytes.Buffer

	kindByte, err := encodeKind(c.Kind)
	if err != nil {
		return nil, err
	}
	buf.WriteByte(kindByte)
	buf.WriteByte(encodeFinality(c.Finality))

	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], uint64(c.TimestampStart.Milliseconds()))
	buf.Write(tsBuf[:])
	binary.BigEndian.PutUint64(tsBuf[:], uint64(c.TimestampEnd.Milliseconds()))
	buf.Write(tsBuf[:])

	metaBytes, err := encodeMeta(c.Meta)
	if err != nil {
		return nil, err
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(metaBytes)))
	buf.Write(lenBuf[:])
	buf.Write(metaBytes)

	payload := c.Audio
	if c.Kind == chunk.KindText {
		payload = []byte(c.Text)
	}
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	buf.Write(lenBuf[:])
	buf.Write(payload)

	return buf.Bytes(), nil
}

// Decode parses a wire frame back into a chunk equivalent under clone to
// the one that was encoded.
func Decode(data []byte) (*chunk.Chunk, error) {
	r := bytes.NewReader(data)

	kindByte, err := r.ReadByte()
	if err != nil {
		return nil, errs.New("wire", "decode", errs.Stream, fmt.Errorf("reading kind: %w", err))
	}
	kind, err := decodeKind(kindByte)
	if err != nil {
		return nil, err
	}

	finalityByte, err := r.ReadByte()
	if err != nil {
		return nil, errs.New("wire", "decode", errs.Stream, fmt.Errorf("reading finality: %w", err))
	}
	finality, err := decodeFinality(finalityByte)
	if err != nil {
		return nil, err
	}

	startMS, err := readUint64(r)
	if err != nil {
		return nil, errs.New("wire", "decode", errs.Stream, fmt.Errorf("reading timestampStart: %w", err))
	}
	endMS, err := readUint64(r)
	if err != nil {
		return nil, errs.New("wire", "decode", errs.Stream, fmt.Errorf("reading timestampEnd: %w", err))
	}

	metaLen, err := readUint32(r)
	if err != nil {
		return nil, errs.New("wire", "decode", errs.Stream, fmt.Errorf("reading meta length: %w", err))
	}
	metaBytes := make([]byte, metaLen)
	if _, err := io.ReadFull(r, metaBytes); err != nil {
		return nil, errs.New("wire", "decode", errs.Stream, fmt.Errorf("reading meta: %w", err))
	}
	meta, err := decodeMeta(metaBytes)
	if err != nil {
		return nil, err
	}

	payloadLen, err := readUint32(r)
	if err != nil {
		return nil, errs.New("wire", "decode", errs.Stream, fmt.Errorf("reading payload length: %w", err))
	}
	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, errs.New("wire", "decode", errs.Stream, fmt.Errorf("reading payload: %w", err))
	}

	start := time.Duration(startMS) * time.Millisecond
	end := time.Duration(endMS) * time.Millisecond

	if kind == chunk.KindText {
		return chunk.NewText(start, end, finality, string(payload), meta), nil
	}
	return chunk.NewAudio(start, end, finality, payload, meta), nil
}

func encodeKind(k chunk.Kind) (byte, error) {
	switch k {
	case chunk.KindAudio:
		return kindAudio, nil
	case chunk.KindText:
		return kindText, nil
	default:
		return 0, errs.New("wire", "encode", errs.Configuration, fmt.Errorf("cannot encode kind %s on the wire", k))
	}
}

func decodeKind(b byte) (chunk.Kind, error) {
	switch b {
	case kindAudio:
		return chunk.KindAudio, nil
	case kindText:
		return chunk.KindText, nil
	default:
		return 0, errs.New("wire", "decode", errs.Stream, fmt.Errorf("unknown kind byte 0x%02x", b))
	}
}

func encodeFinality(f chunk.Finality) byte {
	if f == chunk.Final {
		return finalityFinal
	}
	return finalityPartial
}

func decodeFinality(b byte) (chunk.Finality, error) {
	switch b {
	case finalityPartial:
		return chunk.Partial, nil
	case finalityFinal:
		return chunk.Final, nil
	default:
		return 0, errs.New("wire", "decode", errs.Stream, fmt.Errorf("unknown finality byte 0x%02x", b))
	}
}

// encodeMeta serializes a meta map as a sequence of 2-byte-key-length +
// key + 4-byte-value-length + value UTF-8 pairs. Non-string values are
// rendered with fmt.Sprint, matching the wire format's "UTF-8 key/value
// pairs" contract (meta is opaque to the runtime; only its string form
// survives a wire round-trip).
func encodeMeta(meta map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	for k, v := range meta {
		if len(k) > math.MaxUint16 {
			return nil, errs.New("wire", "encode", errs.Configuration, fmt.Errorf("meta key %q too long for wire format", k))
		}
		val := fmt.Sprint(v)

		var kLen [2]byte
		binary.BigEndian.PutUint16(kLen[:], uint16(len(k)))
		buf.Write(kLen[:])
		buf.WriteString(k)

		var vLen [4]byte
		binary.BigEndian.PutUint32(vLen[:], uint32(len(val)))
		buf.Write(vLen[:])
		buf.WriteString(val)
	}
	return buf.Bytes(), nil
}

func decodeMeta(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	r := bytes.NewReader(data)
	meta := make(map[string]any)
	for r.Len() > 0 {
		var kLen [2]byte
		if _, err := io.ReadFull(r, kLen[:]); err != nil {
			return nil, errs.New("wire", "decode", errs.Stream, fmt.Errorf("reading meta key length: %w", err))
		}
		key := make([]byte, binary.BigEndian.Uint16(kLen[:]))
		if _, err := io.ReadFull(r, key); err != nil {
			return nil, errs.New("wire", "decode", errs.Stream, fmt.Errorf("reading meta key: %w", err))
		}

		vLen, err := readUint32(r)
		if err != nil {
			return nil, errs.New("wire", "decode", errs.Stream, fmt.Errorf("reading meta value length: %w", err))
		}
		val := make([]byte, vLen)
		if _, err := io.ReadFull(r, val); err != nil {
			return nil, errs.New("wire", "decode", errs.Stream, fmt.Errorf("reading meta value: %w", err))
		}
		meta[string(key)] = string(val)
	}
	return meta, nil
}

func readUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readUint64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}
