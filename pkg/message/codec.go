// Package message implements the typed key/value message exchanged between
// services and its wire codec.
//
// Wire format, one record per item, records concatenated in item order with no
// count prefix:
//
//	[key_len u8][key][type u8][value_len u32 LE][value]
//
// Decoding runs until the buffer is exhausted; a partial trailing record is a
// data loss error.
package message

import (
	"encoding/binary"
	"fmt"

	"github.com/illmade-knight/go-rservice/pkg/errs"
)

const (
	keyLenSize   = 1
	typeTagSize  = 1
	valueLenSize = 4
)

// Raw serializes the item sequence in its current order.
func (m *Message) Raw() []byte {
	size := 0
	for _, it := range m.items {
		size += keyLenSize + len(it.Key) + typeTagSize + valueLenSize + len(it.Value)
	}
	return m.AppendRaw(make([]byte, 0, size))
}

// AppendRaw appends the wire representation to dst.
func (m *Message) AppendRaw(dst []byte) []byte {
	for _, it := range m.items {
		dst = append(dst, byte(len(it.Key)))
		dst = append(dst, it.Key...)
		dst = append(dst, byte(it.Type))
		dst = binary.LittleEndian.AppendUint32(dst, uint32(len(it.Value)))
		dst = append(dst, it.Value...)
	}
	return dst
}

// ParseRaw resets the message and decodes raw into it. On failure the items
// decoded before the offending record are kept and the offending record is
// dropped.
func (m *Message) ParseRaw(raw []byte) error {
	m.items = m.items[:0]
	offset := 0
	for offset < len(raw) {
		item, n, err := decodeItem(raw[offset:])
		if err != nil {
			return fmt.Errorf("parse item %d at offset %d: %w", len(m.items), offset, err)
		}
		m.setOrReplace(item)
		offset += n
	}
	return nil
}

// decodeItem decodes one record and returns it with the number of bytes consumed.
func decodeItem(buf []byte) (Item, int, error) {
	if len(buf) < keyLenSize {
		return Item{}, 0, fmt.Errorf("missing key length: %w", errs.ErrDataLoss)
	}
	keyLen := int(buf[0])
	if keyLen == 0 {
		return Item{}, 0, fmt.Errorf("empty key: %w", errs.ErrDataLoss)
	}
	pos := keyLenSize
	if len(buf)-pos < keyLen+typeTagSize+valueLenSize {
		return Item{}, 0, fmt.Errorf("truncated header, %d bytes left: %w", len(buf)-pos, errs.ErrDataLoss)
	}
	key := string(buf[pos : pos+keyLen])
	pos += keyLen

	t := ParameterType(buf[pos])
	if t > ParameterData {
		return Item{}, 0, fmt.Errorf("key %q: unknown parameter type %d: %w", key, t, errs.ErrDataLoss)
	}
	pos += typeTagSize

	valueLen := binary.LittleEndian.Uint32(buf[pos:])
	pos += valueLenSize
	if uint64(valueLen) > uint64(len(buf)-pos) {
		return Item{}, 0, fmt.Errorf("key %q: value length %d exceeds %d remaining bytes: %w",
			key, valueLen, len(buf)-pos, errs.ErrDataLoss)
	}
	value := make([]byte, valueLen)
	copy(value, buf[pos:])
	pos += int(valueLen)

	return Item{Key: key, Type: t, Value: value}, pos, nil
}
