package bluetooth

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ValueKind tags the shape of a key store value.
type ValueKind int

const (
	KindAbsent ValueKind = iota
	KindBytes
	KindInteger
	// KindMalformed is a stored value the key store could not read.
	KindMalformed
)

func (k ValueKind) String() string {
	switch k {
	case KindAbsent:
		return "absent"
	case KindBytes:
		return "bytes"
	case KindInteger:
		return "integer"
	case KindMalformed:
		return "malformed"
	default:
		return fmt.Sprintf("ValueKind(%d)", int(k))
	}
}

// Value is a key store value whose shape is only known at read time.
// The zero Value is Absent.
type Value struct {
	kind   ValueKind
	bytes  []byte
	num    uint64
	reason string
}

// Absent is the value of a missing node or entry.
var Absent = Value{}

func Bytes(b []byte) Value {
	cp := make([]byte, len(b))
	copy(cp, b)
	return Value{kind: KindBytes, bytes: cp}
}

func Integer(n uint64) Value {
	return Value{kind: KindInteger, num: n}
}

// Malformed marks a value that exists in the key store but cannot be read
// as bytes or an integer. Decoding it fails for that field only.
func Malformed(reason string) Value {
	return Value{kind: KindMalformed, reason: reason}
}

func (v Value) Kind() ValueKind { return v.kind }

func (v Value) IsAbsent() bool { return v.kind == KindAbsent }

// AsBytes returns the raw bytes of a Bytes value.
func (v Value) AsBytes() ([]byte, bool) {
	if v.kind != KindBytes {
		return nil, false
	}
	return v.bytes, true
}

// AsInteger returns the number held by an Integer value.
func (v Value) AsInteger() (uint64, bool) {
	if v.kind != KindInteger {
		return 0, false
	}
	return v.num, true
}

// Reason returns why a Malformed value could not be read.
func (v Value) Reason() string {
	return v.reason
}

func (v Value) String() string {
	switch v.kind {
	case KindMalformed:
		return "malformed:" + v.reason
	case KindBytes:
		return "bytes:" + strings.ToUpper(hex.EncodeToString(v.bytes))
	case KindInteger:
		return fmt.Sprintf("integer:%d", v.num)
	default:
		return "absent"
	}
}

// LEKeys holds the raw LE/5.1+ values stored for one device.
type LEKeys struct {
	IRK   Value
	LTK   Value
	EDIV  Value
	ERand Value
}

// KeyStore reads the persistent pairing secrets. Missing nodes or entries
// are reported as Absent values with a nil error. A single unreadable entry
// is reported as a Malformed value so the other entries of the group
// survive; errors are for failures of the whole lookup.
type KeyStore interface {
	ListAdapterAddresses(ctx context.Context) ([]string, error)
	ClassicLinkKey(ctx context.Context, adapter, device Address) (Value, error)
	LEKeys(ctx context.Context, adapter, device Address) (LEKeys, error)
}

// DeviceLister is implemented by key stores that can list the device
// addresses stored under an adapter.
type DeviceLister interface {
	ListDeviceAddresses(ctx context.Context, adapter Address) ([]string, error)
}

// ErrKeyDecode matches every *KeyDecodeError.
var ErrKeyDecode = errors.New("key decode error")

// KeyDecodeError reports a key store value with an unexpected shape.
type KeyDecodeError struct {
	Field  string
	Reason string
}

func (e *KeyDecodeError) Error() string {
	return fmt.Sprintf("decode %s: %s", e.Field, e.Reason)
}

func (e *KeyDecodeError) Is(target error) bool {
	return target == ErrKeyDecode
}

// keyLen is the length of LinkKey, IRK and LTK when stored as bytes.
const keyLen = 16

// HexValue renders a value as upper-case hex: byte arrays directly,
// integers as at least 8 digits.
func HexValue(v Value) string {
	switch v.kind {
	case KindBytes:
		return strings.ToUpper(hex.EncodeToString(v.bytes))
	case KindInteger:
		return fmt.Sprintf("%08X", v.num)
	case KindAbsent, KindMalformed:
		return ""
	}
	return ""
}

func decodeKey(field string, v Value) (string, error) {
	switch v.kind {
	case KindAbsent:
		return "", nil
	case KindBytes:
		if len(v.bytes) != keyLen {
			return "", &KeyDecodeError{Field: field, Reason: fmt.Sprintf("expected %d bytes, got %d", keyLen, len(v.bytes))}
		}
		return HexValue(v), nil
	case KindInteger:
		return HexValue(v), nil
	case KindMalformed:
		return "", &KeyDecodeError{Field: field, Reason: v.reason}
	}
	return "", &KeyDecodeError{Field: field, Reason: "unknown value kind " + v.kind.String()}
}

func decodeEDIV(v Value) (string, error) {
	switch v.kind {
	case KindAbsent:
		return "", nil
	case KindBytes:
		if len(v.bytes) == 0 || len(v.bytes) > 8 {
			return "", &KeyDecodeError{Field: "EDIV", Reason: fmt.Sprintf("unexpected length %d", len(v.bytes))}
		}
		return HexValue(v), nil
	case KindInteger:
		return HexValue(v), nil
	case KindMalformed:
		return "", &KeyDecodeError{Field: "EDIV", Reason: v.reason}
	}
	return "", &KeyDecodeError{Field: "EDIV", Reason: "unknown value kind " + v.kind.String()}
}

func decodeRand(v Value) (*uint64, error) {
	switch v.kind {
	case KindAbsent:
		return nil, nil
	case KindInteger:
		r := ReverseBytes(v.num)
		return &r, nil
	case KindBytes:
		return nil, &KeyDecodeError{Field: "ERand", Reason: "expected an integer, got bytes"}
	case KindMalformed:
		return nil, &KeyDecodeError{Field: "ERand", Reason: v.reason}
	}
	return nil, &KeyDecodeError{Field: "ERand", Reason: "unknown value kind " + v.kind.String()}
}

// KeyExtractor fills a device's key fields from a KeyStore.
type KeyExtractor struct {
	store KeyStore
	log   *slog.Logger
}

func NewKeyExtractor(store KeyStore, log *slog.Logger) *KeyExtractor {
	return &KeyExtractor{store: store, log: orDiscard(log)}
}

// Extract reads classic and LE key material for d and stores it on d.
// Decode problems and store read failures only leave the affected fields
// empty. The returned error is non-nil only when ctx is done.
func (x *KeyExtractor) Extract(ctx context.Context, d *Device) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	log := x.log.With("adapter", d.AdapterAddress.String(), "device", d.Address.String())

	lk, err := x.store.ClassicLinkKey(ctx, d.AdapterAddress, d.Address)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		log.Warn("read link key failed", "error", err)
	} else {
		var derr error
		if d.LinkKey, derr = decodeKey("LinkKey", lk); derr != nil {
			log.Warn("key material skipped", "error", derr)
		}
		log.Debug("got link key", "LinkKey", d.LinkKey)
	}

	le, err := x.store.LEKeys(ctx, d.AdapterAddress, d.Address)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		log.Warn("read LE keys failed", "error", err)
		return nil
	}
	var errs []error
	var derr error
	if d.IRK, derr = decodeKey("IRK", le.IRK); derr != nil {
		errs = append(errs, derr)
	}
	if d.LTK, derr = decodeKey("LTK", le.LTK); derr != nil {
		errs = append(errs, derr)
	}
	if d.EDIV, derr = decodeEDIV(le.EDIV); derr != nil {
		errs = append(errs, derr)
	}
	if d.Rand, derr = decodeRand(le.ERand); derr != nil {
		errs = append(errs, derr)
	}
	for _, e := range errs {
		log.Warn("key material skipped", "error", e)
	}
	log.Debug("got LE keys", "IRK", d.IRK, "LTK", d.LTK, "EDIV", d.EDIV, "Rand", randAttr(d.Rand))
	return nil
}

func randAttr(r *uint64) any {
	if r == nil {
		return nil
	}
	return *r
}
