package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contoso-voice/backend/internal/voicelive"
)

func catalogEntry(name string) voicelive.ToolDefinition {
	return voicelive.ToolDefinition{
		Type:        "function",
		Name:        name,
		Description: name,
		Parameters:  json.RawMessage(`{"type":"object","properties":{}}`),
	}
}

func TestNewDispatcher_ValidatesCatalog(t *testing.T) {
	echo := func(_ context.Context, args map[string]any) (any, error) { return args, nil }

	_, err := NewDispatcher(
		[]voicelive.ToolDefinition{catalogEntry("echo")},
		map[string]Func{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no implementation")

	_, err = NewDispatcher(
		nil,
		map[string]Func{"echo": echo}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not advertised")

	d, err := NewDispatcher(
		[]voicelive.ToolDefinition{catalogEntry("echo")},
		map[string]Func{"echo": echo}, nil)
	require.NoError(t, err)
	require.NotNil(t, d)
}

func TestDispatcher_Execute(t *testing.T) {
	funcs := map[string]Func{
		"plain": func(_ context.Context, _ map[string]any) (any, error) {
			return "already a string", nil
		},
		"structured": func(_ context.Context, args map[string]any) (any, error) {
			return map[string]any{"category": args["category"]}, nil
		},
		"failing": func(_ context.Context, _ map[string]any) (any, error) {
			return nil, errors.New("backend unavailable")
		},
	}
	catalog := []voicelive.ToolDefinition{
		catalogEntry("plain"), catalogEntry("structured"), catalogEntry("failing"),
	}
	d, err := NewDispatcher(catalog, funcs, nil)
	require.NoError(t, err)
	ctx := context.Background()

	// String results pass through untouched.
	assert.Equal(t, "already a string", d.Execute(ctx, "plain", nil))

	// Non-string results are JSON encoded.
	got := d.Execute(ctx, "structured", json.RawMessage(`{"category":"shoes"}`))
	assert.JSONEq(t, `{"category":"shoes"}`, got)

	// Failures become structured error payloads, never panics.
	assert.JSONEq(t, `{"error":"backend unavailable"}`,
		d.Execute(ctx, "failing", nil))
	assert.JSONEq(t, `{"error":"unknown function: bogus"}`,
		d.Execute(ctx, "bogus", nil))
	assert.Contains(t,
		d.Execute(ctx, "plain", json.RawMessage(`{not json`)),
		"invalid arguments")
}

func TestCatalogMatchesRetailFuncs(t *testing.T) {
	retail := NewRetail(testToolsConfig(), nil, nil)
	_, err := NewDispatcher(Catalog(), retail.Funcs(), nil)
	assert.NoError(t, err)
}
