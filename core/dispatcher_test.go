package core_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leandroluk/golem-odm/core"
)

func recordHook(calls *[]string, name string, result error) core.HookFunc {
	return func(ctx context.Context, event *core.HookEvent) error {
		*calls = append(*calls, name)
		return result
	}
}

func TestHookRegistryRunsInRegistrationOrder(t *testing.T) {
	registry := core.NewHookRegistry()
	var calls []string
	registry.OnNamed(core.BeforeSave, "first", recordHook(&calls, "first", nil))
	registry.OnNamed(core.BeforeSave, "second", recordHook(&calls, "second", nil))
	registry.OnNamed(core.AfterSave, "after", recordHook(&calls, "after", nil))

	aborted, err := registry.Dispatch(context.Background(), &core.HookEvent{Kind: core.BeforeSave})
	require.NoError(t, err)
	assert.False(t, aborted)
	assert.Equal(t, []string{"first", "second"}, calls)
	assert.Equal(t, []string{"first", "second"}, registry.Names(core.BeforeSave))
	assert.True(t, registry.Has(core.AfterSave))
	assert.False(t, registry.Has(core.BeforeDelete))
}

func TestHookRegistryAbortStopsBeforePhase(t *testing.T) {
	registry := core.NewHookRegistry()
	var calls []string
	registry.OnNamed(core.BeforeCreate, "veto", recordHook(&calls, "veto", core.Abort))
	registry.OnNamed(core.BeforeCreate, "never", recordHook(&calls, "never", nil))

	aborted, err := registry.Dispatch(context.Background(), &core.HookEvent{Kind: core.BeforeCreate})
	require.NoError(t, err)
	assert.True(t, aborted)
	assert.Equal(t, []string{"veto"}, calls)
}

func TestHookRegistryIgnoresAbortAfterPhase(t *testing.T) {
	registry := core.NewHookRegistry()
	var calls []string
	registry.OnNamed(core.AfterCreate, "veto", recordHook(&calls, "veto", core.Abort))
	registry.OnNamed(core.AfterCreate, "next", recordHook(&calls, "next", nil))

	aborted, err := registry.Dispatch(context.Background(), &core.HookEvent{Kind: core.AfterCreate})
	require.NoError(t, err)
	assert.False(t, aborted)
	assert.Equal(t, []string{"veto", "next"}, calls)
}

func TestHookRegistryWrapsFailures(t *testing.T) {
	reset(t)
	schema := core.Define("Invoice")
	registry := core.NewHookRegistry()
	boom := errors.New("boom")
	var calls []string
	registry.OnNamed(core.AfterFetch, "audit", recordHook(&calls, "audit", boom))
	registry.OnNamed(core.AfterFetch, "never", recordHook(&calls, "never", nil))

	aborted, err := registry.Dispatch(context.Background(), &core.HookEvent{Kind: core.AfterFetch, Schema: schema})
	require.Error(t, err)
	assert.False(t, aborted)
	assert.Equal(t, []string{"audit"}, calls)
	assert.ErrorIs(t, err, boom)
	assert.True(t, core.IsHookError(err))

	var hookErr *core.HookError
	require.ErrorAs(t, err, &hookErr)
	assert.Equal(t, core.AfterFetch, hookErr.Kind)
	assert.Equal(t, "audit", hookErr.Hook)
	assert.Equal(t, "Invoice", hookErr.Entity)
}

func TestHookRegistryStopsOnCanceledContext(t *testing.T) {
	registry := core.NewHookRegistry()
	var calls []string
	registry.OnNamed(core.BeforeFind, "hook", recordHook(&calls, "hook", nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := registry.Dispatch(ctx, &core.HookEvent{Kind: core.BeforeFind})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, calls)
}

func TestHookRegistryDerivesNames(t *testing.T) {
	registry := core.NewHookRegistry()
	registry.On(core.BeforeSave, func(context.Context, *core.HookEvent) error { return nil })

	names := registry.Names(core.BeforeSave)
	require.Len(t, names, 1)
	assert.Contains(t, names[0], "core_test.")
}

func TestHookKindIsBefore(t *testing.T) {
	assert.True(t, core.BeforeFetch.IsBefore())
	assert.False(t, core.AfterFetch.IsBefore())
}
