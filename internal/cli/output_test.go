package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/roach88/magnolia/internal/errs"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf, OpID: "op-1"}

	require.NoError(t, formatter.Success(map[string]string{"result": "success"}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
	assert.Equal(t, "op-1", resp.OpID)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Error("STORE", "disk full", map[string]string{"collection": "users"}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "STORE", resp.Error.Code)
	assert.Equal(t, "disk full", resp.Error.Message)
	assert.NotNil(t, resp.Error.Details)
	assert.Empty(t, resp.OpID)
}

func TestOutputFormatter_TextError(t *testing.T) {
	tests := []struct {
		name        string
		verbose     bool
		wantDetails bool
	}{
		{"quiet", false, false},
		{"verbose", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{Format: "text", Writer: buf, Verbose: tt.verbose}

			require.NoError(t, formatter.Error("E002", "bad flag", "--step 0"))
			assert.Contains(t, buf.String(), "Error [E002]: bad flag")
			if tt.wantDetails {
				assert.Contains(t, buf.String(), "Details: --step 0")
			} else {
				assert.NotContains(t, buf.String(), "Details:")
			}
		})
	}
}

func TestOutputFormatter_Document(t *testing.T) {
	id, err := primitive.ObjectIDFromHex("5f1a2b3c4d5e6f7a8b9c0d1e")
	require.NoError(t, err)
	doc := map[string]any{"name": "ann", "_id": id, "age": int64(30)}

	buf := &bytes.Buffer{}
	require.NoError(t, (&OutputFormatter{Format: "text", Writer: buf}).Document(doc))
	assert.Equal(t, `{
  "_id": {
    "$oid": "5f1a2b3c4d5e6f7a8b9c0d1e"
  },
  "age": 30,
  "name": "ann"
}
`, buf.String())

	buf.Reset()
	require.NoError(t, (&OutputFormatter{Format: "json", Writer: buf}).Document(doc))
	assert.JSONEq(t, `{"status":"ok","data":{"_id":{"$oid":"5f1a2b3c4d5e6f7a8b9c0d1e"},"age":30,"name":"ann"}}`, buf.String())
}

func TestOutputFormatter_Fail(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	err := formatter.Fail(ExitFailure, "STORE", errors.New("disk full"))
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, "STORE: disk full", err.Error())
	assert.Equal(t, "Error [STORE]: disk full\n", buf.String())
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &bytes.Buffer{}
			diag := &bytes.Buffer{}
			formatter := &OutputFormatter{Format: "json", Writer: out, ErrWriter: diag, Verbose: tt.verbose}

			formatter.VerboseLog("Running %s", "count")

			assert.Empty(t, out.String(), "diagnostics never reach stdout")
			if tt.wantLog {
				assert.Equal(t, "Running count\n", diag.String())
			} else {
				assert.Empty(t, diag.String())
			}
		})
	}
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "INVOCATION", ErrorCode(errs.Invocation("chain", "bad")))
	assert.Equal(t, "CONNECTION", ErrorCode(errs.Connection("dial", "refused", errors.New("x"))))
	assert.Equal(t, ErrCodeGeneric, ErrorCode(errors.New("plain")))
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad")))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))

	wrapped := WrapExitError(ExitCommandError, "E003", errors.New("no config"))
	assert.Equal(t, "E003: no config", wrapped.Error())
	assert.EqualError(t, errors.Unwrap(wrapped), "no config")
}
