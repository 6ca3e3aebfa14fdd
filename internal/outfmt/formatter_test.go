package outfmt

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Status int `json:"status"`
	Data   any `json:"data"`
}

func TestFormatter_Output_JSON(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithOptions(context.Background(), Options{Mode: JSON, Compact: true})
	f := NewFormatter(ctx, &buf, &buf)

	require.NoError(t, f.Output(envelope{Status: 200, Data: map[string]any{"name": "test"}}))
	assert.Equal(t, "{\"status\":200,\"data\":{\"name\":\"test\"}}\n", buf.String())
}

func TestFormatter_Output_YAML(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithOptions(context.Background(), Options{Mode: YAML})
	f := NewFormatter(ctx, &buf, &buf)

	require.NoError(t, f.Output(envelope{Status: 201, Data: []any{"a", "b"}}))
	assert.Equal(t, "data:\n  - a\n  - b\nstatus: 201\n", buf.String())
}

func TestFormatter_Output_YAMLWithQuery(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithOptions(context.Background(), Options{Mode: YAML, Query: ".data"})
	f := NewFormatter(ctx, &buf, &buf)

	require.NoError(t, f.Output(envelope{Status: 200, Data: map[string]any{"id": 7}}))
	assert.Equal(t, "id: 7\n", buf.String())
}

func TestFormatter_TextObject(t *testing.T) {
	var out, errOut bytes.Buffer
	f := NewFormatter(context.Background(), &out, &errOut)

	require.NoError(t, f.Output(map[string]any{"name": "Ada", "id": 7, "tags": []any{"x"}}))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "KEY"))
	assert.Contains(t, lines[1], "id")
	assert.Contains(t, lines[1], "7")
	assert.Contains(t, lines[3], `["x"]`)
}

func TestFormatter_TextListOfObjects(t *testing.T) {
	var out, errOut bytes.Buffer
	f := NewFormatter(context.Background(), &out, &errOut)

	require.NoError(t, f.Output([]any{
		map[string]any{"id": 1, "title": "first"},
		map[string]any{"id": 2},
	}))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"ID", "TITLE"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"2", "-"}, strings.Fields(lines[2]))
}

func TestFormatter_TextScalarsAndEmpty(t *testing.T) {
	var out, errOut bytes.Buffer
	f := NewFormatter(context.Background(), &out, &errOut)

	require.NoError(t, f.Output([]any{"a", 1}))
	assert.Equal(t, "a\n1\n", out.String())

	out.Reset()
	require.NoError(t, f.Output(nil))
	assert.Empty(t, out.String())
	assert.Contains(t, errOut.String(), "(no content)")
}

func TestFormatter_Table(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(context.Background(), &buf, &buf)

	assert.True(t, f.StartTable([]string{"ID", "NAME"}))
	f.Row("1", "test")
	require.NoError(t, f.EndTable())
	assert.Contains(t, buf.String(), "ID")

	jf := NewFormatter(WithOptions(context.Background(), Options{Mode: JSON}), &buf, &buf)
	assert.False(t, jf.StartTable([]string{"ID"}))
}

func TestFormatter_Empty(t *testing.T) {
	var out, errOut bytes.Buffer
	f := NewFormatter(context.Background(), &out, &errOut)

	f.Empty("No results found")
	assert.Empty(t, out.String())
	assert.Contains(t, errOut.String(), "No results found")
}

func TestFormatter_Output_QueryInTextMode(t *testing.T) {
	var out bytes.Buffer
	ctx := WithOptions(context.Background(), Options{Query: ".data.name"})
	f := NewFormatter(ctx, &out, &out)

	require.NoError(t, f.Output(envelope{Status: 200, Data: map[string]any{"name": "Ada"}}))
	assert.Equal(t, "Ada\n", out.String())
}

func TestFormatter_Output_InvalidQuery(t *testing.T) {
	var out bytes.Buffer
	ctx := WithOptions(context.Background(), Options{Mode: JSON, Query: "invalid[[["})
	f := NewFormatter(ctx, &out, &out)

	require.Error(t, f.Output(map[string]any{"a": 1}))
	assert.Empty(t, out.String())
}
