package message

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/illmade-knight/go-rservice/pkg/errs"
	"github.com/rs/zerolog"
)

// Type classifies a message.
type Type int32

const (
	TypeInvalid Type = iota
	TypeRequest
	TypeResponse
	TypeEvent
)

func (t Type) String() string {
	switch t {
	case TypeRequest:
		return "request"
	case TypeResponse:
		return "response"
	case TypeEvent:
		return "event"
	default:
		return "invalid"
	}
}

// ParameterType is the wire tag describing how an item's value is encoded.
type ParameterType uint8

const (
	ParameterUndefined ParameterType = iota
	ParameterInteger
	ParameterBool
	ParameterDouble
	ParameterString
	ParameterData
)

func (p ParameterType) String() string {
	switch p {
	case ParameterInteger:
		return "integer"
	case ParameterBool:
		return "bool"
	case ParameterDouble:
		return "double"
	case ParameterString:
		return "string"
	case ParameterData:
		return "data"
	default:
		return "undefined"
	}
}

// Encoded widths of the fixed-width parameter types.
const (
	IntegerSize = 4
	BoolSize    = 1
	DoubleSize  = 8
)

// MaxKeyLen is the longest key the one-byte key length on the wire can carry.
const MaxKeyLen = math.MaxUint8

// Reserved keys. They hold the message metadata and can only be written with
// the dedicated setters.
const (
	KeyBroadcasting = "broadcasting"
	KeyType         = "type"
	KeySource       = "source"
	KeyDestination  = "destination"
	KeyID           = "id"
)

var reservedKeys = [...]string{KeyBroadcasting, KeyType, KeySource, KeyDestination, KeyID}

// IsReservedKey reports whether key is one of the metadata keys.
func IsReservedKey(key string) bool {
	for _, k := range reservedKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Item is a single typed entry of a message.
type Item struct {
	Key   string
	Type  ParameterType
	Value []byte
}

// Message is an ordered set of uniquely keyed items. Metadata such as the
// source or the correlation id lives in the same sequence under reserved keys.
//
// A Message is a value object and is not safe for concurrent mutation.
type Message struct {
	items []Item
}

// New returns an empty message.
func New() *Message {
	return &Message{}
}

// Parse constructs a message from its wire representation.
func Parse(raw []byte) (*Message, error) {
	m := New()
	if err := m.ParseRaw(raw); err != nil {
		return nil, err
	}
	return m, nil
}

// Len returns the number of items, reserved ones included.
func (m *Message) Len() int { return len(m.items) }

// Items returns a copy of the item sequence in wire order.
func (m *Message) Items() []Item {
	out := make([]Item, len(m.items))
	for i, it := range m.items {
		out[i] = Item{Key: it.Key, Type: it.Type, Value: bytes.Clone(it.Value)}
	}
	return out
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() *Message {
	return &Message{items: m.Items()}
}

// Has reports whether key is present.
func (m *Message) Has(key string) bool {
	return m.index(key) >= 0
}

// Delete removes a non-reserved item. Deleting an absent key is a no-op.
func (m *Message) Delete(key string) error {
	if IsReservedKey(key) {
		return fmt.Errorf("delete %q: %w", key, errs.ErrPermissionDenied)
	}
	if i := m.index(key); i >= 0 {
		m.items = append(m.items[:i], m.items[i+1:]...)
	}
	return nil
}

// SetInt stores a 32-bit integer item.
func (m *Message) SetInt(key string, value int32) error {
	return m.setItem(key, ParameterInteger, encodeInt(value))
}

// SetBool stores a boolean item.
func (m *Message) SetBool(key string, value bool) error {
	return m.setItem(key, ParameterBool, encodeBool(value))
}

// SetDouble stores a 64-bit floating point item.
func (m *Message) SetDouble(key string, value float64) error {
	return m.setItem(key, ParameterDouble, encodeDouble(value))
}

// SetString stores a string item. The bytes are stored verbatim.
func (m *Message) SetString(key string, value string) error {
	return m.setItem(key, ParameterString, []byte(value))
}

// SetData stores a raw byte item. The slice is copied.
func (m *Message) SetData(key string, value []byte) error {
	return m.setItem(key, ParameterData, bytes.Clone(value))
}

// SetItem stores value under key, choosing the parameter type from the Go
// type of value. Supported types are int32, int (in the int32 range), bool,
// float64, string and []byte.
func (m *Message) SetItem(key string, value any) error {
	switch v := value.(type) {
	case int32:
		return m.SetInt(key, v)
	case int:
		if v < math.MinInt32 || v > math.MaxInt32 {
			return fmt.Errorf("set %q: integer %d out of range: %w", key, v, errs.ErrInvalidArgument)
		}
		return m.SetInt(key, int32(v))
	case bool:
		return m.SetBool(key, v)
	case float64:
		return m.SetDouble(key, v)
	case string:
		return m.SetString(key, v)
	case []byte:
		return m.SetData(key, v)
	default:
		return fmt.Errorf("set %q: unsupported value type %T: %w", key, value, errs.ErrInvalidArgument)
	}
}

// QueryInt returns the integer stored under key.
func (m *Message) QueryInt(key string) (int32, error) {
	it, err := m.findAndCheck(key, ParameterInteger, IntegerSize)
	if err != nil {
		return 0, err
	}
	return decodeInt(it.Value), nil
}

// QueryBool returns the boolean stored under key.
func (m *Message) QueryBool(key string) (bool, error) {
	it, err := m.findAndCheck(key, ParameterBool, BoolSize)
	if err != nil {
		return false, err
	}
	return it.Value[0] != 0, nil
}

// QueryDouble returns the float stored under key.
func (m *Message) QueryDouble(key string) (float64, error) {
	it, err := m.findAndCheck(key, ParameterDouble, DoubleSize)
	if err != nil {
		return 0, err
	}
	return decodeDouble(it.Value), nil
}

// QueryString returns the string stored under key.
func (m *Message) QueryString(key string) (string, error) {
	it, err := m.findAndCheck(key, ParameterString, -1)
	if err != nil {
		return "", err
	}
	return string(it.Value), nil
}

// QueryData returns a copy of the bytes stored under key.
func (m *Message) QueryData(key string) ([]byte, error) {
	it, err := m.findAndCheck(key, ParameterData, -1)
	if err != nil {
		return nil, err
	}
	return bytes.Clone(it.Value), nil
}

// SetBroadcasting marks the message for every receiver on the transport.
func (m *Message) SetBroadcasting(value bool) {
	m.setOrReplace(Item{Key: KeyBroadcasting, Type: ParameterBool, Value: encodeBool(value)})
}

// SetType sets the message type.
func (m *Message) SetType(value Type) {
	m.setOrReplace(Item{Key: KeyType, Type: ParameterInteger, Value: encodeInt(int32(value))})
}

// SetSource sets the sender address.
func (m *Message) SetSource(value string) {
	m.setOrReplace(Item{Key: KeySource, Type: ParameterString, Value: []byte(value)})
}

// SetDestination sets the receiver address.
func (m *Message) SetDestination(value string) {
	m.setOrReplace(Item{Key: KeyDestination, Type: ParameterString, Value: []byte(value)})
}

// SetID sets the correlation id.
func (m *Message) SetID(value int32) {
	m.setOrReplace(Item{Key: KeyID, Type: ParameterInteger, Value: encodeInt(value)})
}

// IsBroadcasting reports the broadcasting flag; false when unset.
func (m *Message) IsBroadcasting() bool {
	v, _ := m.QueryBool(KeyBroadcasting)
	return v
}

// Type returns the message type; TypeInvalid when unset.
func (m *Message) Type() Type {
	v, err := m.QueryInt(KeyType)
	if err != nil || v < int32(TypeInvalid) || v > int32(TypeEvent) {
		return TypeInvalid
	}
	return Type(v)
}

// Source returns the sender address; empty when unset.
func (m *Message) Source() string {
	v, _ := m.QueryString(KeySource)
	return v
}

// Destination returns the receiver address; empty when unset.
func (m *Message) Destination() string {
	v, _ := m.QueryString(KeyDestination)
	return v
}

// ID returns the correlation id; zero when unset.
func (m *Message) ID() int32 {
	v, _ := m.QueryInt(KeyID)
	return v
}

// MarshalZerologObject lets a message be logged with Object.
func (m *Message) MarshalZerologObject(e *zerolog.Event) {
	e.Str("type", m.Type().String()).
		Str("source", m.Source()).
		Str("destination", m.Destination()).
		Int32("id", m.ID()).
		Bool("broadcasting", m.IsBroadcasting()).
		Int("items", len(m.items))
}

func (m *Message) setItem(key string, t ParameterType, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if IsReservedKey(key) {
		return fmt.Errorf("set %q: reserved key: %w", key, errs.ErrPermissionDenied)
	}
	m.setOrReplace(Item{Key: key, Type: t, Value: value})
	return nil
}

// setOrReplace replaces the item with the same key in place, or appends.
func (m *Message) setOrReplace(item Item) {
	if i := m.index(item.Key); i >= 0 {
		m.items[i] = item
		return
	}
	m.items = append(m.items, item)
}

func (m *Message) index(key string) int {
	for i := range m.items {
		if m.items[i].Key == key {
			return i
		}
	}
	return -1
}

// findAndCheck looks key up and validates its type and, for fixed-width
// types, its encoded size. size < 0 skips the width check.
func (m *Message) findAndCheck(key string, t ParameterType, size int) (Item, error) {
	i := m.index(key)
	if i < 0 {
		return Item{}, fmt.Errorf("query %q: %w", key, errs.ErrNotFound)
	}
	it := m.items[i]
	if it.Type != t {
		return Item{}, fmt.Errorf("query %q: stored as %s, requested %s: %w", key, it.Type, t, errs.ErrInvalidArgument)
	}
	if size >= 0 && len(it.Value) != size {
		return Item{}, fmt.Errorf("query %q: %d bytes stored, %s needs %d: %w", key, len(it.Value), t, size, errs.ErrInvalidArgument)
	}
	return it, nil
}

func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("empty key: %w", errs.ErrInvalidArgument)
	}
	if len(key) > MaxKeyLen {
		return fmt.Errorf("key of %d bytes exceeds %d: %w", len(key), MaxKeyLen, errs.ErrInvalidArgument)
	}
	return nil
}

func encodeInt(v int32) []byte {
	return binary.LittleEndian.AppendUint32(nil, uint32(v))
}

func decodeInt(b []byte) int32 {
	return int32(binary.LittleEndian.Uint32(b))
}

func encodeBool(v bool) []byte {
	if v {
		return []byte{1}
	}
	return []byte{0}
}

func encodeDouble(v float64) []byte {
	return binary.LittleEndian.AppendUint64(nil, math.Float64bits(v))
}

func decodeDouble(b []byte) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}
