package locopilot

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTool_Execute(t *testing.T) {
	type Args struct {
		Path string `json:"path"`
	}
	type Out struct {
		Size int `json:"size"`
	}
	tool, err := NewTool("stat_file", "Report file size", func(_ context.Context, a Args) (Out, error) {
		return Out{Size: len(a.Path)}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "stat_file", tool.Name())
	assert.Equal(t, "Report file size", tool.Description())

	res, err := tool.Execute(context.Background(), []byte(`{"path":"main.go"}`))
	require.NoError(t, err)
	var out Out
	require.NoError(t, json.Unmarshal(res, &out))
	assert.Equal(t, 7, out.Size)
}

func TestNewTool_InvalidJSONArgs(t *testing.T) {
	type Args struct {
		X int `json:"x"`
	}
	tool, err := NewTool("noop", "noop", func(_ context.Context, _ Args) (struct{}, error) {
		return struct{}{}, nil
	})
	require.NoError(t, err)
	_, err = tool.Execute(context.Background(), []byte(`{"x": `))
	require.Error(t, err)
	assert.True(t, IsClientError(err), "parse failures must reach the model as ClientError")
}

func TestNewTool_SchemaValidation(t *testing.T) {
	type Args struct {
		Path string `json:"path"`
	}
	tool, err := NewTool("read_file", "Read", func(_ context.Context, a Args) (string, error) {
		return a.Path, nil
	})
	require.NoError(t, err)
	// Wrong type for a declared property.
	_, err = tool.Execute(context.Background(), []byte(`{"path": 12}`))
	require.Error(t, err)
	assert.True(t, IsClientError(err))
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestNewTool_CustomValidation(t *testing.T) {
	tool, err := NewTool("write_file", "Write", func(_ context.Context, a writeProbeArgs) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	_, err = tool.Execute(context.Background(), []byte(`{"path":""}`))
	require.Error(t, err)
	assert.True(t, IsClientError(err))
	assert.Contains(t, err.Error(), "path must not be empty")
}

type writeProbeArgs struct {
	Path string `json:"path"`
}

func (a writeProbeArgs) Validate() error {
	if a.Path == "" {
		return errors.New("path must not be empty")
	}
	return nil
}

func TestNewTool_HandlerErrorBecomesSystemError(t *testing.T) {
	type Args struct {
		X int `json:"x"`
	}
	tool, err := NewTool("boom", "Fails", func(_ context.Context, _ Args) (struct{}, error) {
		return struct{}{}, errors.New("disk on fire")
	})
	require.NoError(t, err)
	_, err = tool.Execute(context.Background(), []byte(`{"x":1}`))
	require.Error(t, err)
	assert.True(t, IsSystemError(err))
	assert.NotContains(t, err.Error(), "disk on fire")
}

func TestNewRawTool(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{"type": "string"},
		},
		"required": []any{"query"},
	}
	tool, err := NewRawTool("search", "Search", schema, func(_ context.Context, args []byte) ([]byte, error) {
		return args, nil
	})
	require.NoError(t, err)

	res, err := tool.Execute(context.Background(), []byte(`{"query":"fib"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"query":"fib"}`, string(res))

	_, err = tool.Execute(context.Background(), []byte(`{}`))
	require.Error(t, err)
	assert.True(t, IsClientError(err), "missing required argument must be a ClientError")
}

func TestToolMetadata(t *testing.T) {
	type Args struct{}
	tool, err := NewTool("danger", "d", func(_ context.Context, _ Args) (struct{}, error) {
		return struct{}{}, nil
	}, WithDangerous(), WithTags("exec"))
	require.NoError(t, err)
	tm, ok := tool.(ToolMetadata)
	require.True(t, ok)
	assert.True(t, tm.IsDangerous())
	assert.Equal(t, []string{"exec"}, tm.Tags())
}
