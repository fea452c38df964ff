// Package domain holds the strongly-typed identifiers and record types
// shared by every other package in the execution core: pipelines, runs,
// stages, steps, agents, queued jobs, approval gates, and the event
// union that carries lifecycle notifications between them.
package domain

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind distinguishes the entity a parsed ID claims to identify, so that
// an AgentID can never be silently accepted where a RunID is expected.
type Kind byte

// Entity kinds, one per opaque ID prefix.
const (
	KindRun Kind = iota + 1
	KindPipeline
	KindAgent
	KindApproval
	KindCache
	KindJob
	KindMatrix
)

var kindPrefixes = map[Kind]string{
	KindRun:      "run",
	KindPipeline: "pip",
	KindAgent:    "agt",
	KindApproval: "apr",
	KindCache:    "cch",
	KindJob:      "job",
	KindMatrix:   "mtx",
}

var prefixKinds = func() map[string]Kind {
	m := make(map[string]Kind, len(kindPrefixes))
	for k, v := range kindPrefixes {
		m[v] = k
	}
	return m
}()

// ErrWrongIDKind is returned when a parsed ID's prefix does not match
// the Kind the caller expected.
var ErrWrongIDKind = errors.New("domain: id has wrong kind")

// ErrMalformedID is returned when a string does not parse as an ID at all.
var ErrMalformedID = errors.New("domain: malformed id")

// ID is an opaque, time-ordered 128-bit identifier with a human-readable
// prefix. It round-trips through its textual form via String/ParseID.
type ID struct {
	kind   Kind
	millis uint64 // 48 bits used
	random [10]byte
}

// NewID mints a new ID of the given kind, time-ordered on the current
// wall-clock millisecond.
func NewID(kind Kind) ID {
	return newIDAt(kind, time.Now())
}

func newIDAt(kind Kind, t time.Time) ID {
	var rnd [10]byte
	u := uuid.New()
	copy(rnd[:], u[:10])
	return ID{
		kind:   kind,
		millis: uint64(t.UnixMilli()) & 0xFFFFFFFFFFFF,
		random: rnd,
	}
}

// Kind reports the entity kind this ID claims to identify.
func (id ID) Kind() Kind { return id.kind }

// IsZero reports whether id is the zero value (never a valid minted ID).
func (id ID) IsZero() bool { return id.kind == 0 && id.millis == 0 && id.random == [10]byte{} }

// Time returns the millisecond timestamp embedded in the ID.
func (id ID) Time() time.Time { return time.UnixMilli(int64(id.millis)) }

// String renders the ID as "<prefix>_<26-char base32>".
func (id ID) String() string {
	prefix, ok := kindPrefixes[id.kind]
	if !ok {
		prefix = "unk"
	}
	var buf [16]byte
	binary.BigEndian.PutUint16(buf[0:2], uint16(id.millis>>32))
	binary.BigEndian.PutUint32(buf[2:6], uint32(id.millis))
	copy(buf[6:16], id.random[:])
	return prefix + "_" + encodeCrockford(buf)
}

// MarshalJSON renders the ID as its textual form.
func (id ID) MarshalJSON() ([]byte, error) {
	return []byte(`"` + id.String() + `"`), nil
}

// UnmarshalJSON parses the ID from its textual form, without
// constraining its kind (callers that need a specific kind should
// validate separately, as the field's static type already documents intent).
func (id *ID) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "" {
		*id = ID{}
		return nil
	}
	parsed, err := parseAnyID(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ParseID parses a textual ID, verifying it has the expected kind.
func ParseID(s string, want Kind) (ID, error) {
	id, err := parseAnyID(s)
	if err != nil {
		return ID{}, err
	}
	if id.kind != want {
		return ID{}, fmt.Errorf("%w: %s is a %s id, want %s", ErrWrongIDKind, s, kindPrefixes[id.kind], kindPrefixes[want])
	}
	return id, nil
}

// ParseAnyID parses a textual ID without constraining its kind.
func ParseAnyID(s string) (ID, error) { return parseAnyID(s) }

func parseAnyID(s string) (ID, error) {
	idx := strings.IndexByte(s, '_')
	if idx < 0 {
		return ID{}, fmt.Errorf("%w: %s", ErrMalformedID, s)
	}
	prefix, encoded := s[:idx], s[idx+1:]
	kind, ok := prefixKinds[prefix]
	if !ok {
		return ID{}, fmt.Errorf("%w: unknown prefix %q", ErrMalformedID, prefix)
	}
	buf, err := decodeCrockford(encoded)
	if err != nil || len(buf) != 16 {
		return ID{}, fmt.Errorf("%w: %s", ErrMalformedID, s)
	}
	millis := uint64(binary.BigEndian.Uint16(buf[0:2]))<<32 | uint64(binary.BigEndian.Uint32(buf[2:6]))
	var rnd [10]byte
	copy(rnd[:], buf[6:16])
	return ID{kind: kind, millis: millis, random: rnd}, nil
}

const crockford = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// encodeCrockford encodes 16 bytes (128 bits) as 26 Crockford base32 chars.
func encodeCrockford(buf [16]byte) string {
	var out [26]byte
	var acc uint64
	var bits uint
	pos := 0
	flush := func() {
		for bits >= 5 {
			bits -= 5
			out[pos] = crockford[(acc>>bits)&0x1F]
			pos++
		}
	}
	for _, b := range buf {
		acc = acc<<8 | uint64(b)
		bits += 8
		flush()
	}
	if bits > 0 {
		out[pos] = crockford[(acc<<(5-bits))&0x1F]
		pos++
	}
	for pos < 26 {
		out[pos] = '0'
		pos++
	}
	return string(out[:26])
}

func decodeCrockford(s string) ([]byte, error) {
	if len(s) != 26 {
		return nil, fmt.Errorf("%w: bad length", ErrMalformedID)
	}
	var acc uint64
	var bits uint
	out := make([]byte, 0, 16)
	for i := 0; i < len(s); i++ {
		v := crockfordValue(s[i])
		if v < 0 {
			return nil, fmt.Errorf("%w: bad char %q", ErrMalformedID, s[i])
		}
		acc = acc<<5 | uint64(v)
		bits += 5
		if bits >= 8 {
			bits -= 8
			out = append(out, byte(acc>>bits))
		}
	}
	if len(out) > 16 {
		out = out[:16]
	}
	for len(out) < 16 {
		out = append(out, 0)
	}
	return out, nil
}

func crockfordValue(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'A' && c <= 'Z':
		for i := 0; i < len(crockford); i++ {
			if crockford[i] == c {
				return i
			}
		}
	}
	return -1
}
