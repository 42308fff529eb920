// Command detjsc is a smoke-test CLI around the detjs evaluator: run a
// program against the reference host, print a manifest's canonical hash,
// or disassemble a recorded host-call tape. It exists to exercise the
// runtime/vmprofile/hostcall/refhost stack end to end from the command
// line, the way devp2p exercises the teacher's p2p stack.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/urfave/cli.v1"

	"github.com/probechain/detjs/dv"
	"github.com/probechain/detjs/manifest"
	"github.com/probechain/detjs/refhost"
	"github.com/probechain/detjs/runtime"
)

var gitCommit = ""

func main() {
	app := cli.NewApp()
	app.Name = "detjsc"
	app.Usage = "deterministic JS evaluator smoke tool"
	app.Version = "0.1.0"
	if gitCommit != "" {
		app.Version += "-" + gitCommit
	}
	app.Commands = []cli.Command{
		runCommand,
		manifestHashCommand,
		disasmTapeCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "detjsc:", err)
		os.Exit(1)
	}
}

var (
	gasFlag   = cli.Uint64Flag{Name: "gas", Usage: "gas limit", Value: 1_000_000}
	tapeFlag  = cli.BoolFlag{Name: "tape", Usage: "record the host-call tape"}
	traceFlag = cli.BoolFlag{Name: "trace", Usage: "record the aggregate gas trace"}
)

var runCommand = cli.Command{
	Name:      "run",
	Usage:     "run a program file against the reference host",
	ArgsUsage: "<code-file|->",
	Action:    runAction,
	Flags:     []cli.Flag{gasFlag, tapeFlag, traceFlag},
}

func runAction(ctx *cli.Context) error {
	path := ctx.Args().First()
	if path == "" {
		return cli.NewExitError("detjsc run: missing code file argument", 1)
	}
	code, err := readSource(path)
	if err != nil {
		return err
	}

	limits := dv.DefaultLimits()
	m, err := refhost.Manifest(limits)
	if err != nil {
		return err
	}
	canonical, err := manifest.EncodeCanonical(m, limits)
	if err != nil {
		return err
	}
	hash := manifest.Hash(canonical)

	store := refhost.NewStore()
	prog := runtime.Program{
		Code:            code,
		ABIID:           m.ABIID,
		ABIVersion:      m.ABIVersion,
		ABIManifestHash: hash,
	}
	res, err := runtime.Evaluate(runtime.Config{
		Program:     prog,
		GasLimit:    ctx.Uint64(gasFlag.Name),
		Manifest:    m,
		Handlers:    store.Bindings(limits),
		Limits:      limits,
		EnableTape:  ctx.Bool(tapeFlag.Name),
		EnableTrace: ctx.Bool(traceFlag.Name),
	})
	if err != nil {
		return err
	}
	return printResult(res)
}

func readSource(path string) (string, error) {
	if path == "-" {
		b, err := io.ReadAll(os.Stdin)
		return string(b), err
	}
	b, err := os.ReadFile(path)
	return string(b), err
}

func printResult(res runtime.Result) error {
	out := map[string]interface{}{
		"ok":            res.Ok,
		"gas_used":      res.GasUsed,
		"gas_remaining": res.GasRemaining,
	}
	if res.Ok {
		out["raw_hex"] = fmt.Sprintf("%x", res.Raw)
	} else {
		out["type"] = res.Type
		if res.Error != nil {
			out["error"] = map[string]string{
				"kind":    string(res.Error.Kind),
				"code":    res.Error.Code,
				"tag":     res.Error.Tag,
				"message": res.Error.Message,
			}
		}
	}
	if res.GasTrace != nil {
		out["gas_trace_total"] = res.GasTrace.TotalGas()
	}
	if len(res.Tape) > 0 {
		out["tape"] = res.Tape
		out["tape_session_id"] = res.TapeSession
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

var manifestHashCommand = cli.Command{
	Name:   "manifest-hash",
	Usage:  "print the reference manifest's canonical hash",
	Action: manifestHashAction,
}

func manifestHashAction(ctx *cli.Context) error {
	limits := dv.DefaultLimits()
	m, err := refhost.Manifest(limits)
	if err != nil {
		return err
	}
	canonical, err := manifest.EncodeCanonical(m, limits)
	if err != nil {
		return err
	}
	fmt.Println(manifest.Hash(canonical))
	return nil
}

var disasmTapeCommand = cli.Command{
	Name:      "disasm-tape",
	Usage:     "render a JSON array of host-call tape records (the \"tape\" field of 'run --tape' output)",
	ArgsUsage: "<tape.json>",
	Action:    disasmTapeAction,
}

// disasmTapeAction prints one line per tape record in a fixed-width
// format, mirroring the field order hostcall.TapeRecord declares. It
// mirrors the lineage's disassembly printer, adapted from an opcode
// stream to a host-call tape: each line is one call site instead of one
// bytecode instruction.
func disasmTapeAction(ctx *cli.Context) error {
	path := ctx.Args().First()
	if path == "" {
		return cli.NewExitError("detjsc disasm-tape: missing tape file argument", 1)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var records []tapeRecordJSON
	if err := json.Unmarshal(b, &records); err != nil {
		return fmt.Errorf("detjsc disasm-tape: %w", err)
	}
	for i, r := range records {
		status := "ok"
		if r.IsError {
			status = "err"
		}
		if r.ChargeFailed {
			status = "oog"
		}
		fmt.Printf("%04d  fn=%-6d req=%-6d resp=%-6d units=%-4d gas(pre/post)=%d/%d  %-4s req_hash=%s resp_hash=%s\n",
			i, r.FnID, r.ReqLen, r.RespLen, r.Units, r.GasPre, r.GasPost, status, r.ReqHash, r.RespHash)
	}
	return nil
}

// tapeRecordJSON mirrors hostcall.TapeRecord's field set for JSON
// decoding without importing the runtime package's own encoding
// choices; the CLI's display concern is independent of the tape's
// in-process representation.
type tapeRecordJSON struct {
	FnID         uint32 `json:"FnID"`
	ReqLen       uint32 `json:"ReqLen"`
	RespLen      uint32 `json:"RespLen"`
	Units        uint32 `json:"Units"`
	GasPre       uint64 `json:"GasPre"`
	GasPost      uint64 `json:"GasPost"`
	IsError      bool   `json:"IsError"`
	ChargeFailed bool   `json:"ChargeFailed"`
	ReqHash      string `json:"ReqHash"`
	RespHash     string `json:"RespHash"`
}
