package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// TransferFunc performs the actual SIP transfer against the media server;
// the session wires this to pkg/dialer.
type TransferFunc func(ctx context.Context, transferTo string) error

// EndCallFunc is invoked once endCall (or answering-machine detection)
// should move the session to Ending. It must not block on TTS playout:
// it runs inside the tool call, before the turn's reply is spoken, so
// waiting for that utterance to finish is up to the callback.
type EndCallFunc func(reason string)

// NewTransferCallTool builds the transferCall built-in tool.
func NewTransferCallTool(transfer TransferFunc) Tool {
	return Tool{
		Name:        "transferCall",
		Description: "Transfer the caller to a human agent at the given phone number.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"transferTo": map[string]any{
					"type":        "string",
					"description": "E.164 phone number to transfer the call to.",
				},
			},
			"required": []any{"transferTo"},
		},
		Handler: func(ctx context.Context, params json.RawMessage) (Result, error) {
			var args struct {
				TransferTo string `json:"transferTo"`
			}
			if err := json.Unmarshal(params, &args); err != nil {
				return Result{OK: false, ErrKind: "invalid_params", Message: err.Error()}, nil
			}

			if err := transfer(ctx, args.TransferTo); err != nil {
				return Result{OK: false, ErrKind: "transfer_failed", Message: err.Error()}, nil
			}
			return Result{OK: true, Value: fmt.Sprintf("transferred to %s", args.TransferTo)}, nil
		},
	}
}

// NewEndCallTool builds the endCall built-in tool.
func NewEndCallTool(onEnd EndCallFunc) Tool {
	return Tool{
		Name:        "endCall",
		Description: "End the call after the current response finishes speaking.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		Handler: func(ctx context.Context, params json.RawMessage) (Result, error) {
			onEnd("normal")
			return Result{OK: true, Value: "call will end after this response"}, nil
		},
	}
}

// NewAnsweringMachineTool builds the detectedAnsweringMachine built-in
// tool, which ends the call immediately rather than waiting on TTS.
func NewAnsweringMachineTool(onEnd EndCallFunc) Tool {
	return Tool{
		Name:        "detectedAnsweringMachine",
		Description: "Signal that an answering machine or voicemail greeting was detected and end the call immediately.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		Handler: func(ctx context.Context, params json.RawMessage) (Result, error) {
			onEnd("answering_machine")
			return Result{OK: true, Value: "ending call, answering machine detected"}, nil
		},
	}
}

// ScheduleLookupFunc resolves an appointment/availability query; a real
// deployment backs this with the scheduling database the spec places out
// of scope (§1).
type ScheduleLookupFunc func(ctx context.Context, query string) (string, error)

// NewScheduleLookupTool builds the example calendar-lookup tool called
// out in spec.md §4.5 as a per-config addition.
func NewScheduleLookupTool(lookup ScheduleLookupFunc) Tool {
	return Tool{
		Name:        "scheduleLookup",
		Description: "Look up appointment availability or existing bookings for the caller.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Natural-language description of what to look up, e.g. 'next available Tuesday'.",
				},
			},
			"required": []any{"query"},
		},
		Handler: func(ctx context.Context, params json.RawMessage) (Result, error) {
			var args struct {
				Query string `json:"query"`
			}
			if err := json.Unmarshal(params, &args); err != nil {
				return Result{OK: false, ErrKind: "invalid_params", Message: err.Error()}, nil
			}

			answer, err := lookup(ctx, args.Query)
			if err != nil {
				return Result{OK: false, ErrKind: "lookup_failed", Message: err.Error()}, nil
			}
			return Result{OK: true, Value: answer}, nil
		},
	}
}
