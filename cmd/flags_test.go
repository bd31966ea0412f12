package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateOutputFormat(t *testing.T) {
	validator := ValidateOutputFormat("table", "json", "yaml")

	assert.NoError(t, validator("table"))
	assert.NoError(t, validator("json"))
	assert.NoError(t, validator("yaml"))

	err := validator("xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid output format")
	assert.Contains(t, err.Error(), "table, json, yaml")
}

func TestValidatePort(t *testing.T) {
	tests := []struct {
		name        string
		value       string
		expectError bool
	}{
		{name: "valid port", value: "8080", expectError: false},
		{name: "minimum port", value: "1", expectError: false},
		{name: "maximum port", value: "65535", expectError: false},
		{name: "not a number", value: "http", expectError: true},
		{name: "zero", value: "0", expectError: true},
		{name: "negative", value: "-1", expectError: true},
		{name: "too large", value: "70000", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePort(tt.value)
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateFileExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "doc.md")
	require.NoError(t, os.WriteFile(file, []byte("# Doc\n"), 0644))

	assert.NoError(t, ValidateFileExists(file))
	assert.NoError(t, ValidateFileExists(""))

	err := ValidateFileExists(filepath.Join(dir, "absent.md"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")

	err = ValidateFileExists(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "got a directory")
}

func TestValidateDirExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "doc.md")
	require.NoError(t, os.WriteFile(file, []byte("# Doc\n"), 0644))

	assert.NoError(t, ValidateDirExists(dir))
	assert.NoError(t, ValidateDirExists(""))

	err := ValidateDirExists(filepath.Join(dir, "absent"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")

	err = ValidateDirExists(file)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "got a file")
}

func TestAddFlagValidation(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("output", "table", "")

	require.NoError(t, AddFlagValidation(cmd, "output", ValidateOutputFormat("table", "json")))

	assert.NoError(t, cmd.Flags().Set("output", "json"))

	err := cmd.Flags().Set("output", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid output format")
}

func TestAddFlagValidationUnknownFlag(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}

	err := AddFlagValidation(cmd, "missing", ValidatePort)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
