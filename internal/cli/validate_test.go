package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/magnolia/internal/compiler"
)

func TestValidate_ValidChain(t *testing.T) {
	out, err := execute(t, "validate",
		"--collection", "users",
		"--db", "app",
		"--step", `filter={"age":{"$gt":18}}`,
		"--step", `sort={"age":-1}`,
		"--step", "limit=10",
		"--step", "one",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Chain valid")
}

func TestValidate_ValidChainJSON(t *testing.T) {
	out, err := execute(t, "validate", "--collection", "users", "--format", "json")
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestValidate_ReportsEveryError(t *testing.T) {
	out, err := execute(t, "validate",
		"--step", "limit=ten",
		"--step", `sort={"age":2}`,
		"--step", "multi=1",
	)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "validation failed with 4 error(s)")

	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, compiler.ErrInvalidNumber)
	assert.Contains(t, out, compiler.ErrInvalidSort)
	assert.Contains(t, out, compiler.ErrInvalidFlag)
	assert.Contains(t, out, compiler.ErrMissingCollection)
}

func TestValidate_ErrorsJSON(t *testing.T) {
	out, err := execute(t, "validate", "--collection", "users", "--step", "skip=x", "--format", "json")
	require.Error(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
		Error  *CLIError        `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)
	require.Len(t, resp.Data.Errors, 1)
	assert.Equal(t, "skip", resp.Data.Errors[0].Field)
	assert.Equal(t, 1, resp.Data.Errors[0].Index, "index counts the collection action")
	assert.Equal(t, compiler.ErrInvalidNumber, resp.Error.Code)
}

func TestValidate_UnknownAction(t *testing.T) {
	out, err := execute(t, "validate", "--collection", "users", "--step", "where={}")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E002]")
}
