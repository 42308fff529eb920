// Package runtime implements evaluate(): the runtime handshake that pins
// a program artifact to its manifest, configures the deterministic VM
// profile, projects Host.v1, runs user code under the canonical gas
// meter, and maps the outcome onto the result surface described in
// spec.md §4.6 and §6.
package runtime

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/dop251/goja"

	"github.com/probechain/detjs/dv"
	"github.com/probechain/detjs/gas"
	"github.com/probechain/detjs/hostcall"
	"github.com/probechain/detjs/internal/detlog"
	"github.com/probechain/detjs/manifest"
	"github.com/probechain/detjs/vmprofile"
)

var log = detlog.Root.With("runtime")

// EngineBuildHash is SHA-256 of a fixed string identifying the pinned
// engine (goja version) and deterministic profile revision this build
// carries. A Program may pin it via EngineBuildHash; evaluate() rejects
// any program pinned to a different build.
var EngineBuildHash = computeEngineBuildHash()

func computeEngineBuildHash() string {
	sum := sha256.Sum256([]byte("detjs-engine/github.com/dop251/goja@v0.0.0-20230806174421-c933cf95e127;vmprofile@1"))
	return hex.EncodeToString(sum[:])
}

// Config is everything one evaluate() call needs beyond the program and
// input envelope: the manifest it is pinned against, the embedder's
// handler bindings for that manifest, and the optional audit/trace
// toggles.
type Config struct {
	Program  Program
	Input    InputEnvelope
	GasLimit uint64

	Manifest manifest.Manifest
	Handlers map[uint32]hostcall.Handler

	// Limits bounds every DV encode/decode performed during the
	// evaluation. The zero value is tightened to dv.DefaultLimits().
	Limits dv.Limits

	EnableTape  bool
	EnableTrace bool
}

// Evaluate runs cfg.Program against cfg.Input under cfg.GasLimit and
// returns the complete result surface. The returned error is non-nil
// only for the init-time failures spec.md §7 says halt before a running
// evaluation begins (program/input validation, manifest hash mismatch,
// engine build hash mismatch) — these are never reported as gas-consuming
// runs. Every other outcome, including a failed one, comes back as a
// Result with GasUsed/GasRemaining populated.
func Evaluate(cfg Config) (Result, error) {
	limits := dv.Tighten(cfg.Limits)

	if err := validateProgram(cfg.Program); err != nil {
		return Result{}, err
	}
	if err := validateInput(cfg.Input, limits); err != nil {
		return Result{}, err
	}

	validatedManifest, err := manifest.Validate(cfg.Manifest)
	if err != nil {
		return Result{}, fmt.Errorf("runtime: manifest: %w", err)
	}
	canonicalBytes, err := manifest.EncodeCanonical(validatedManifest, limits)
	if err != nil {
		return Result{}, fmt.Errorf("runtime: manifest encode: %w", err)
	}
	gotHash := manifest.Hash(canonicalBytes)
	if gotHash != cfg.Program.ABIManifestHash {
		return Result{}, fmt.Errorf("%w: manifest hash %s, program pins %s", ErrManifestHashMismatch, gotHash, cfg.Program.ABIManifestHash)
	}
	if cfg.Program.EngineBuildHash != "" && cfg.Program.EngineBuildHash != EngineBuildHash {
		return Result{}, fmt.Errorf("%w: engine build hash %s, program pins %s", ErrEngineHashMismatch, EngineBuildHash, cfg.Program.EngineBuildHash)
	}

	log.Debug("manifest pinned", "abi_id", validatedManifest.ABIID, "hash", gotHash)

	profile := vmprofile.New()
	meter := gas.New(cfg.GasLimit, cfg.EnableTrace)
	if err := profile.AttachMeter(meter); err != nil {
		return Result{}, fmt.Errorf("runtime: attach meter: %w", err)
	}

	var tape *hostcall.Tape
	if cfg.EnableTape {
		tape = hostcall.NewTape()
	}
	dispatcher := hostcall.New(validatedManifest, cfg.Handlers, limits)

	if err := profile.InstallHostV1(validatedManifest, dispatcher, meter, tape, limits); err != nil {
		return Result{}, fmt.Errorf("runtime: install Host.v1: %w", err)
	}
	if err := profile.InstallDocumentHelpers(); err != nil {
		return Result{}, fmt.Errorf("runtime: install document helpers: %w", err)
	}
	profile.InstallCanonHelpers(limits)
	profile.InjectContext(vmprofile.ContextBlob{
		Event:          cfg.Input.Event,
		EventCanonical: cfg.Input.EventCanonical,
		Steps:          cfg.Input.Steps,
	})

	meter.Checkpoint() // after profile init
	meter.Checkpoint() // before evaluation
	log.Info("evaluation starting", "gas_limit", cfg.GasLimit)

	val, oog, jsErr := runUserCode(profile, cfg.Program.Code)

	meter.Checkpoint() // after evaluation

	gasUsed := meter.Used()
	gasRemaining := meter.Remaining()
	var tapeRecords []hostcall.TapeRecord
	var tapeSession string
	if tape != nil {
		tapeRecords = tape.Records()
		tapeSession = tape.SessionID()
	}

	if oog {
		log.Warn("evaluation out of gas", "gas_used", gasUsed)
		return Result{
			Ok:           false,
			Type:         resultTypeVMError,
			GasUsed:      gasUsed,
			GasRemaining: gasRemaining,
			Tape:         tapeRecords,
			TapeSession:  tapeSession,
			GasTrace:     meter.Trace(),
			Error: &ErrorInfo{
				Kind:    KindOutOfGas,
				Code:    gas.CodeOutOfGas,
				Tag:     gas.TagOutOfGas,
				Message: "out of gas",
			},
		}, nil
	}

	if jsErr != nil {
		info := classifyJSError(jsErr)
		log.Warn("evaluation failed", "kind", info.Kind, "code", info.Code)
		return Result{
			Ok:           false,
			Type:         resultTypeVMError,
			GasUsed:      gasUsed,
			GasRemaining: gasRemaining,
			Tape:         tapeRecords,
			TapeSession:  tapeSession,
			GasTrace:     meter.Trace(),
			Error:        &info,
		}, nil
	}

	outVal, convErr := vmprofile.FromJS(profile.Runtime(), val)
	var raw []byte
	if convErr == nil {
		raw, convErr = dv.Encode(outVal, limits)
	}
	if convErr != nil {
		return Result{
			Ok:           false,
			Type:         resultTypeInvalidOutput,
			GasUsed:      gasUsed,
			GasRemaining: gasRemaining,
			Tape:         tapeRecords,
			TapeSession:  tapeSession,
			GasTrace:     meter.Trace(),
			Error: &ErrorInfo{
				Kind:    KindInvalidOutput,
				Code:    codeInvalidOutput,
				Message: convErr.Error(),
			},
		}, nil
	}

	return Result{
		Ok:           true,
		Value:        outVal,
		Raw:          raw,
		GasUsed:      gasUsed,
		GasRemaining: gasRemaining,
		Tape:         tapeRecords,
		TapeSession:  tapeSession,
		GasTrace:     meter.Trace(),
	}, nil
}

// runUserCode runs code to completion and recovers the one panic kind
// that must never be caught by user code: *gas.OutOfGas. Any other
// recovered value is not ours to swallow and is re-panicked, matching
// vmprofile's documented contract that only a raw (non-goja.Value) panic
// reaches here uncaught.
func runUserCode(p *vmprofile.Profile, code string) (val goja.Value, oog bool, jsErr error) {
	defer func() {
		if r := recover(); r != nil {
			if err, ok := r.(error); ok {
				var oogErr *gas.OutOfGas
				if errors.As(err, &oogErr) {
					oog = true
					return
				}
			}
			panic(r)
		}
	}()
	val, jsErr = p.Runtime().RunString(code)
	return val, oog, jsErr
}

// classifyJSError maps a RunString error onto the {kind, code, tag,
// message, name} shape spec.md §7 describes for HostError and
// JsException. A non-exception error (e.g. a parse failure) is reported
// as a JsException with no name, since it never reached a throw.
func classifyJSError(err error) ErrorInfo {
	exc, ok := err.(*goja.Exception)
	if !ok {
		return ErrorInfo{Kind: KindJsException, Code: codeJSException, Tag: tagJSException, Message: err.Error()}
	}
	obj, ok := exc.Value().(*goja.Object)
	if !ok {
		return ErrorInfo{Kind: KindJsException, Code: codeJSException, Tag: tagJSException, Message: exc.Error(), Name: "Error"}
	}
	if codeVal := obj.Get("code"); codeVal != nil && !goja.IsUndefined(codeVal) {
		info := ErrorInfo{Kind: KindHostError, Code: codeVal.String()}
		if tagVal := obj.Get("tag"); tagVal != nil && !goja.IsUndefined(tagVal) {
			info.Tag = tagVal.String()
		}
		if msgVal := obj.Get("message"); msgVal != nil && !goja.IsUndefined(msgVal) {
			info.Message = msgVal.String()
		}
		return info
	}
	name := "Error"
	if nameVal := obj.Get("name"); nameVal != nil && !goja.IsUndefined(nameVal) {
		name = nameVal.String()
	}
	message := exc.Error()
	if msgVal := obj.Get("message"); msgVal != nil && !goja.IsUndefined(msgVal) {
		message = msgVal.String()
	}
	return ErrorInfo{Kind: KindJsException, Code: codeJSException, Tag: tagJSException, Message: message, Name: name}
}
