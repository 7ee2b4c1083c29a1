package wasmhost

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	wasi "github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// Metadata is a component's static self-description, read once at
// registration time.
type Metadata struct {
	Name              string
	Description       string
	ParametersSchema  string
	ComponentHash     [32]byte
}

// Runner instantiates one compiled component per Execute call (fresh
// linear memory and a fresh fuel/epoch budget each time), optionally
// wiring an HTTPHost for http-tool components.
type Runner struct {
	runtime   wazero.Runtime
	compiled  wazero.CompiledModule
	hash      [32]byte
	meta      Metadata
	limits    Limits
	httpHost  *HTTPHost
	instanceN uint64
}

// NewRunner compiles wasmBytes and loads its metadata. httpHost is nil
// for a pure-tool component.
func NewRunner(ctx context.Context, wasmBytes []byte, limits Limits, httpHost *HTTPHost) (*Runner, error) {
	limits = limits.WithDefaults()
	hash := sha256.Sum256(wasmBytes)

	runtime := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().
		WithMemoryLimitPages(limits.memoryPages()).
		WithCloseOnContextDone(true))

	if _, err := wasi.Instantiate(ctx, runtime); err != nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("wasmhost: instantiate WASI: %w", err)
	}

	if httpHost != nil {
		if err := registerHTTPHostModule(ctx, runtime, httpHost); err != nil {
			runtime.Close(ctx)
			return nil, err
		}
	}

	compiled, err := runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("wasmhost: compile component: %w", err)
	}

	r := &Runner{runtime: runtime, compiled: compiled, hash: hash, limits: limits, httpHost: httpHost}

	meta, err := r.loadMetadata(ctx)
	if err != nil {
		r.Close(ctx)
		return nil, err
	}
	r.meta = meta
	return r, nil
}

// Metadata returns the component's static self-description.
func (r *Runner) Metadata() Metadata { return r.meta }

// Close releases the compiled module and its runtime.
func (r *Runner) Close(ctx context.Context) error { return r.runtime.Close(ctx) }

func (r *Runner) loadMetadata(parent context.Context) (Metadata, error) {
	ctx, cancel := context.WithTimeout(parent, MetadataTimeout)
	defer cancel()

	mod, err := r.instantiate(ctx, "metadata")
	if err != nil {
		return Metadata{}, err
	}
	defer mod.Close(ctx)

	name, err := r.callStringExport(ctx, mod, "name")
	if err != nil {
		return Metadata{}, err
	}
	desc, err := r.callStringExport(ctx, mod, "description")
	if err != nil {
		return Metadata{}, err
	}
	schema, err := r.callStringExport(ctx, mod, "parameters-schema")
	if err != nil {
		return Metadata{}, err
	}

	return Metadata{Name: name, Description: desc, ParametersSchema: schema, ComponentHash: r.hash}, nil
}

func (r *Runner) instantiate(ctx context.Context, namePrefix string) (api.Module, error) {
	n := atomic.AddUint64(&r.instanceN, 1)
	cfg := wazero.NewModuleConfig().WithName(fmt.Sprintf("%s-%d", namePrefix, n))
	return r.runtime.InstantiateModule(ctx, r.compiled, cfg)
}

func (r *Runner) callStringExport(ctx context.Context, mod api.Module, name string) (string, error) {
	fn := mod.ExportedFunction(name)
	if fn == nil {
		return "", fmt.Errorf("wasmhost: component missing required export %q", name)
	}
	results, err := fn.Call(ctx)
	if err != nil {
		return "", fmt.Errorf("wasmhost: call %q: %w", name, err)
	}
	if len(results) != 1 {
		return "", fmt.Errorf("wasmhost: export %q returned %d results, want 1", name, len(results))
	}
	return readGuestString(mod, results[0])
}

// Execute runs the component's execute() export against paramsJSON,
// enforcing the configured memory/timeout/fuel-budget limits. A fresh
// module instance (and linear memory) is created per call so state never
// leaks between invocations.
func (r *Runner) Execute(parent context.Context, paramsJSON string) (Result, error) {
	ctx, cancel := context.WithTimeout(parent, r.limits.Timeout)
	ctx, cancelFn := context.WithCancel(ctx)
	defer cancel()

	ticker := startEpochTicker(ctx, cancelFn, r.limits)
	defer ticker.stop()

	mod, err := r.instantiate(ctx, "exec")
	if err != nil {
		return Result{}, err
	}
	defer mod.Close(ctx)

	alloc := mod.ExportedFunction("alloc")
	if alloc == nil {
		return Result{}, fmt.Errorf("wasmhost: component missing required export \"alloc\"")
	}
	execute := mod.ExportedFunction("execute")
	if execute == nil {
		return Result{}, fmt.Errorf("wasmhost: component missing required export \"execute\"")
	}

	ptr, err := writeGuestString(ctx, mod, alloc, []byte(paramsJSON))
	if err != nil {
		return Result{}, err
	}

	results, err := execute.Call(ctx, uint64(ptr), uint64(len(paramsJSON)))
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, fmt.Errorf("wasmhost: tool %q exceeded its execution budget: %w", r.meta.Name, ctx.Err())
		}
		return Result{}, fmt.Errorf("wasmhost: execute: %w", err)
	}
	if len(results) != 1 {
		return Result{}, fmt.Errorf("wasmhost: execute returned %d results, want 1", len(results))
	}

	raw, err := readGuestString(mod, results[0])
	if err != nil {
		return Result{}, err
	}
	return decodeWireResult(raw), nil
}
