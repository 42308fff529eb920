// Package refhost is a reference embedder-provided host: an in-memory
// document store plus an emit sink, implementing the minimum handler set
// spec.md §6 names (document.get, document.getCanonical, emit). It is
// explicitly not part of the core's public contract — real embedders
// supply their own document/emit backends — but it exercises the
// dispatcher and runtime packages end to end in tests and the CLI smoke
// app, mirroring how the lineage's probe-lang carried a reference
// Execute entry point alongside its VM.
package refhost

import (
	"sync"

	"github.com/probechain/detjs/dv"
	"github.com/probechain/detjs/hostcall"
	"github.com/probechain/detjs/manifest"
)

// Function ids for this reference ABI. Never reused once assigned, per
// spec.md's fn_id stability rule.
const (
	FnDocumentGet          uint32 = 1
	FnDocumentGetCanonical uint32 = 2
	FnEmit                 uint32 = 3
)

// Declared error codes.
const (
	CodeNotFound = "NOT_FOUND"
	TagNotFound  = "doc/not_found"
)

// ABIID/ABIVersion identify this reference manifest.
const (
	ABIID      = "refhost.v1"
	ABIVersion = uint32(1)
)

// Store is an in-memory document store keyed by path, with an emit sink
// that simply records every emitted value in order.
type Store struct {
	mu      sync.Mutex
	docs    map[string]dv.Value
	emitted []dv.Value
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{docs: make(map[string]dv.Value)}
}

// Put seeds path with v, as an embedder would when preparing documents a
// program may read during evaluation.
func (s *Store) Put(path string, v dv.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[path] = v
}

// Emitted returns a copy of every value passed to emit, in call order.
func (s *Store) Emitted() []dv.Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]dv.Value, len(s.emitted))
	copy(out, s.emitted)
	return out
}

// Manifest returns the validated reference manifest for this store's ABI.
func Manifest(limits dv.Limits) (manifest.Manifest, error) {
	return manifest.Validate(manifest.Manifest{
		ABIID:      ABIID,
		ABIVersion: ABIVersion,
		Functions:  functions(limits),
	})
}

func functions(limits dv.Limits) []manifest.Function {
	maxReq := uint32(limits.MaxStringBytes) + 64
	maxResp := uint32(limits.MaxEncodedBytes)
	argUTF8 := []uint32{uint32(limits.MaxStringBytes)}

	return []manifest.Function{
		{
			FnID:         FnDocumentGet,
			JSPath:       []string{"document", "get"},
			Effect:       manifest.EffectRead,
			Arity:        1,
			ArgSchema:    []manifest.ArgKind{manifest.ArgString},
			ReturnSchema: manifest.ArgDV,
			Gas:          manifest.GasParams{ScheduleID: 1, Base: 20, KArgBytes: 1, KRetBytes: 1, KUnits: 1},
			Limits: manifest.Limits{
				MaxRequestBytes: maxReq, MaxResponseBytes: maxResp, MaxUnits: 10,
				ArgUTF8Max: argUTF8,
			},
			ErrorCodes: []manifest.ErrorCode{{Code: CodeNotFound, Tag: TagNotFound}},
		},
		{
			FnID:         FnDocumentGetCanonical,
			JSPath:       []string{"document", "getCanonical"},
			Effect:       manifest.EffectRead,
			Arity:        1,
			ArgSchema:    []manifest.ArgKind{manifest.ArgString},
			ReturnSchema: manifest.ArgDV,
			Gas:          manifest.GasParams{ScheduleID: 1, Base: 20, KArgBytes: 1, KRetBytes: 1, KUnits: 1},
			Limits: manifest.Limits{
				MaxRequestBytes: maxReq, MaxResponseBytes: maxResp, MaxUnits: 10,
				ArgUTF8Max: argUTF8,
			},
			ErrorCodes: []manifest.ErrorCode{{Code: CodeNotFound, Tag: TagNotFound}},
		},
		{
			FnID:         FnEmit,
			JSPath:       []string{"emit"},
			Effect:       manifest.EffectEmit,
			Arity:        1,
			ArgSchema:    []manifest.ArgKind{manifest.ArgDV},
			ReturnSchema: manifest.ArgNull,
			Gas:          manifest.GasParams{ScheduleID: 1, Base: 5, KArgBytes: 1, KUnits: 1},
			Limits:       manifest.Limits{MaxRequestBytes: maxResp, MaxResponseBytes: 256, MaxUnits: 10},
		},
	}
}

// Bindings returns the Handler table backing this store's manifest.
func (s *Store) Bindings(limits dv.Limits) map[uint32]hostcall.Handler {
	return map[uint32]hostcall.Handler{
		FnDocumentGet:          s.handleGet,
		FnDocumentGetCanonical: s.handleGetCanonical,
		FnEmit:                 s.handleEmit,
	}
}

func (s *Store) handleGet(args []dv.Value) hostcall.HandlerResult {
	path, _ := args[0].AsString()
	s.mu.Lock()
	v, ok := s.docs[path]
	s.mu.Unlock()
	if !ok {
		return hostcall.HandlerResult{HasErr: true, ErrCode: CodeNotFound, Units: 1}
	}
	return hostcall.HandlerResult{HasOK: true, OK: v, Units: 1}
}

// handleGetCanonical re-encodes and decodes the stored value through the
// DV codec before returning it, so callers observe the same canonical
// form canon.unwrap would produce client-side.
func (s *Store) handleGetCanonical(args []dv.Value) hostcall.HandlerResult {
	res := s.handleGet(args)
	if !res.HasOK {
		return res
	}
	enc, err := dv.Encode(res.OK, dv.DefaultLimits())
	if err != nil {
		return hostcall.HandlerResult{HasErr: true, ErrCode: CodeNotFound, Units: 1}
	}
	dec, err := dv.Decode(enc, dv.DefaultLimits())
	if err != nil {
		return hostcall.HandlerResult{HasErr: true, ErrCode: CodeNotFound, Units: 1}
	}
	res.OK = dec
	return res
}

func (s *Store) handleEmit(args []dv.Value) hostcall.HandlerResult {
	s.mu.Lock()
	s.emitted = append(s.emitted, args[0])
	s.mu.Unlock()
	return hostcall.HandlerResult{HasOK: true, OK: dv.Null(), Units: 1}
}
