package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// validatingValue wraps a pflag.Value and runs a validator before every Set,
// so bad flag values fail at parse time instead of deep inside a command.
type validatingValue struct {
	pflag.Value
	validator func(string) error
}

func (v *validatingValue) Set(value string) error {
	if err := v.validator(value); err != nil {
		return err
	}
	return v.Value.Set(value)
}

// AddFlagValidation attaches a validator to an already registered flag.
func AddFlagValidation(cmd *cobra.Command, flagName string, validator func(string) error) error {
	flag := cmd.Flags().Lookup(flagName)
	if flag == nil {
		return fmt.Errorf("flag %q not found on command %q", flagName, cmd.Name())
	}
	flag.Value = &validatingValue{Value: flag.Value, validator: validator}
	return nil
}

// ValidateOutputFormat returns a validator accepting only the given formats.
func ValidateOutputFormat(allowed ...string) func(string) error {
	return func(value string) error {
		for _, format := range allowed {
			if value == format {
				return nil
			}
		}
		return fmt.Errorf("invalid output format %q (supported: %s)", value, strings.Join(allowed, ", "))
	}
}

// ValidatePort checks that a flag value is a usable TCP port number.
func ValidatePort(value string) error {
	port, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("port must be a number: %s", value)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}

// ValidateFileExists checks that a flag value names an existing file.
func ValidateFileExists(value string) error {
	if value == "" {
		return nil
	}
	info, err := os.Stat(value)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("file does not exist: %s", value)
		}
		return fmt.Errorf("cannot access file %s: %w", value, err)
	}
	if info.IsDir() {
		return fmt.Errorf("expected a file, got a directory: %s", value)
	}
	return nil
}

// ValidateDirExists checks that a flag value names an existing directory.
func ValidateDirExists(value string) error {
	if value == "" {
		return nil
	}
	info, err := os.Stat(value)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("directory does not exist: %s", value)
		}
		return fmt.Errorf("cannot access directory %s: %w", value, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("expected a directory, got a file: %s", value)
	}
	return nil
}
