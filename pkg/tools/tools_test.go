package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/matryer/is"
)

func TestDispatchRejectsInvalidParams(t *testing.T) {
	is := is.New(t)

	reg := NewRegistry()
	reg.Register(NewTransferCallTool(func(ctx context.Context, transferTo string) error { return nil }))

	result, err := reg.Dispatch(context.Background(), "transferCall", `{}`)
	is.NoErr(err)
	is.True(!result.OK)
	is.Equal(result.ErrKind, "invalid_params")
}

func TestDispatchUnknownToolNeverPanics(t *testing.T) {
	is := is.New(t)

	reg := NewRegistry()
	result, err := reg.Dispatch(context.Background(), "doesNotExist", `{}`)
	is.NoErr(err)
	is.True(!result.OK)
	is.Equal(result.ErrKind, "unknown_tool")
}

func TestDispatchRecoversPanic(t *testing.T) {
	is := is.New(t)

	reg := NewRegistry()
	reg.Register(Tool{
		Name:       "boom",
		Parameters: map[string]any{"type": "object", "properties": map[string]any{}},
		Handler: func(ctx context.Context, params json.RawMessage) (Result, error) {
			panic("kaboom")
		},
	})

	result, err := reg.Dispatch(context.Background(), "boom", `{}`)
	is.NoErr(err)
	is.True(!result.OK)
	is.Equal(result.ErrKind, "panic")
}

func TestZeroArgToolInvokedExactlyOnce(t *testing.T) {
	is := is.New(t)

	calls := 0
	reg := NewRegistry()
	reg.Register(NewEndCallTool(func(reason string) { calls++ }))

	result, err := reg.Dispatch(context.Background(), "endCall", `{}`)
	is.NoErr(err)
	is.True(result.OK)
	is.Equal(calls, 1)
}
