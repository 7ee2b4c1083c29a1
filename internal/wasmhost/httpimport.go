package wasmhost

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// httpImportModule/httpImportFunc name the host module an http-tool
// component imports to reach outgoing-handler.handle, mirroring the
// http-tool WIT world's import.
const (
	httpImportModule = "moltis:tool/outgoing-handler"
	httpImportFunc   = "handle"
)

type wireHTTPRequest struct {
	Method           string            `json:"method"`
	URL              string            `json:"url"`
	Headers          map[string]string `json:"headers,omitempty"`
	Body             []byte            `json:"body,omitempty"`
	TimeoutMS        *uint32           `json:"timeout_ms,omitempty"`
	MaxResponseBytes *uint64           `json:"max_response_bytes,omitempty"`
}

type wireHTTPResponse struct {
	Status      uint16            `json:"status"`
	Headers     map[string]string `json:"headers,omitempty"`
	Body        []byte            `json:"body,omitempty"`
	ContentType string            `json:"content_type,omitempty"`
}

type wireHTTPEnvelope struct {
	Ok  *wireHTTPResponse `json:"ok,omitempty"`
	Err *HTTPError        `json:"err,omitempty"`
}

// registerHTTPHostModule makes httpHost reachable from guest components
// as an imported function, on the given runtime (shared by every
// instantiation drawn from it).
func registerHTTPHostModule(ctx context.Context, runtime wazero.Runtime, host *HTTPHost) error {
	_, err := runtime.NewHostModuleBuilder(httpImportModule).
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context, mod api.Module, reqPtr, reqLen uint32) uint64 {
			return hostHandleHTTP(ctx, mod, host, reqPtr, reqLen)
		}).
		Export(httpImportFunc).
		Instantiate(ctx)
	if err != nil {
		return fmt.Errorf("wasmhost: register http host module: %w", err)
	}
	return nil
}

func hostHandleHTTP(ctx context.Context, mod api.Module, host *HTTPHost, reqPtr, reqLen uint32) uint64 {
	raw, ok := mod.Memory().Read(reqPtr, reqLen)
	if !ok {
		return writeHTTPEnvelope(ctx, mod, wireHTTPEnvelope{Err: &HTTPError{Kind: "Other", Message: "could not read request from guest memory"}})
	}

	var wreq wireHTTPRequest
	if err := json.Unmarshal(raw, &wreq); err != nil {
		return writeHTTPEnvelope(ctx, mod, wireHTTPEnvelope{Err: &HTTPError{Kind: "InvalidUrl", Message: "malformed request: " + err.Error()}})
	}

	resp, httpErr := host.Handle(HTTPRequest{
		Method:           wreq.Method,
		URL:              wreq.URL,
		Headers:          wreq.Headers,
		Body:             wreq.Body,
		TimeoutMS:        wreq.TimeoutMS,
		MaxResponseBytes: wreq.MaxResponseBytes,
	})
	if httpErr != nil {
		return writeHTTPEnvelope(ctx, mod, wireHTTPEnvelope{Err: httpErr})
	}

	return writeHTTPEnvelope(ctx, mod, wireHTTPEnvelope{Ok: &wireHTTPResponse{
		Status:      resp.Status,
		Headers:     resp.Headers,
		Body:        resp.Body,
		ContentType: resp.ContentType,
	}})
}

func writeHTTPEnvelope(ctx context.Context, mod api.Module, env wireHTTPEnvelope) uint64 {
	data, err := json.Marshal(env)
	if err != nil {
		return 0
	}
	alloc := mod.ExportedFunction("alloc")
	if alloc == nil {
		return 0
	}
	ptr, err := writeGuestString(ctx, mod, alloc, data)
	if err != nil {
		return 0
	}
	return packPtrLen(ptr, uint32(len(data)))
}
