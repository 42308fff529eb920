package hostcall

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/google/uuid"
)

// maxTapeEntries bounds the audit tape: a run that issues more host calls
// than this stops recording rather than growing without limit.
const maxTapeEntries = 1024

// TapeRecord is one completed host call. The runtime package's Host.v1
// wrapper fills in GasPre/GasPost/ChargeFailed after the dispatcher
// returns a CallInfo; the dispatcher itself has no notion of gas.
type TapeRecord struct {
	FnID         uint32
	ReqLen       uint32
	RespLen      uint32
	Units        uint32
	GasPre       uint64
	GasPost      uint64
	IsError      bool
	ChargeFailed bool
	ReqHash      string
	RespHash     string
}

// Tape is a bounded, append-only record of host calls made during one
// evaluation. It is safe for concurrent append, though in practice a
// Dispatcher's reentrancy guard means appends are already serialized.
type Tape struct {
	mu        sync.Mutex
	records   []TapeRecord
	overflow  bool
	sessionID string
}

// NewTape returns an empty Tape, stamped with a random session id for
// correlating an exported tape with the run that produced it. The id is
// a debugging aid only: it plays no part in any tape hash or determinism
// comparison, since it is never derived from program, input, or gas.
func NewTape() *Tape { return &Tape{sessionID: uuid.NewString()} }

// SessionID returns the tape's correlation id.
func (t *Tape) SessionID() string { return t.sessionID }

// Append records rec unless the tape is already at capacity, in which
// case it sets the overflow flag and drops the record. Per the tape
// recording rules, pre-charge OOG, transport failures, and invalid
// envelopes are never appended: the caller only calls this once a
// response has been fully built and post-charge gas has been applied
// (or has failed, recorded via ChargeFailed).
func (t *Tape) Append(rec TapeRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.records) >= maxTapeEntries {
		t.overflow = true
		return
	}
	t.records = append(t.records, rec)
}

// Records returns a copy of the recorded entries in call order.
func (t *Tape) Records() []TapeRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TapeRecord, len(t.records))
	copy(out, t.records)
	return out
}

// Overflowed reports whether the tape dropped entries past its capacity.
func (t *Tape) Overflowed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.overflow
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
