package runtime

import (
	"encoding/hex"
	"fmt"

	"github.com/probechain/detjs/dv"
)

// Program is the artifact evaluate() runs: user code plus the ABI pin
// that must match the manifest supplied alongside it.
type Program struct {
	Code            string
	ABIID           string
	ABIVersion      uint32
	ABIManifestHash string
	EngineBuildHash string // optional; empty means unpinned
	RuntimeFlags    map[string]string
}

// InputEnvelope is the deterministic context blob injected into the VM.
type InputEnvelope struct {
	Event          dv.Value
	EventCanonical dv.Value
	Steps          dv.Value
}

const (
	maxCodeBytes        = 1 << 20
	maxABIIDBytes       = 256
	hexHashLen          = 64
	maxRuntimeFlagCount = 64
	maxRuntimeFlagBytes = 256
)

func validateProgram(p Program) error {
	if len(p.Code) == 0 || len(p.Code) > maxCodeBytes {
		return fmt.Errorf("runtime: code length out of bounds")
	}
	if len(p.ABIID) == 0 || len(p.ABIID) > maxABIIDBytes {
		return fmt.Errorf("runtime: abi_id length out of bounds")
	}
	if err := validateHex64(p.ABIManifestHash); err != nil {
		return fmt.Errorf("runtime: abi_manifest_hash: %w", err)
	}
	if p.EngineBuildHash != "" {
		if err := validateHex64(p.EngineBuildHash); err != nil {
			return fmt.Errorf("runtime: engine_build_hash: %w", err)
		}
	}
	if len(p.RuntimeFlags) > maxRuntimeFlagCount {
		return fmt.Errorf("runtime: too many runtime_flags")
	}
	for k, v := range p.RuntimeFlags {
		if len(k) > maxRuntimeFlagBytes || len(v) > maxRuntimeFlagBytes {
			return fmt.Errorf("runtime: runtime_flags entry too long")
		}
	}
	return nil
}

func validateHex64(s string) error {
	if len(s) != hexHashLen {
		return fmt.Errorf("must be %d hex characters, got %d", hexHashLen, len(s))
	}
	if _, err := hex.DecodeString(s); err != nil {
		return fmt.Errorf("not valid hex: %w", err)
	}
	return nil
}

// validateInput bounds each field of i by limits. The zero Value is
// already dv.Null(), so a caller who leaves a field unset gets the
// documented "missing keys default to null" behavior for free.
func validateInput(i InputEnvelope, limits dv.Limits) error {
	for _, v := range []dv.Value{i.Event, i.EventCanonical, i.Steps} {
		if _, err := dv.Encode(v, limits); err != nil {
			return fmt.Errorf("runtime: input envelope: %w", err)
		}
	}
	return nil
}
