package config

import (
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
)

// ValidationSeverity represents the severity of a validation issue.
type ValidationSeverity string

const (
	SeverityError   ValidationSeverity = "error"
	SeverityWarning ValidationSeverity = "warning"
)

// ConfigValidationError represents a single validation issue.
type ConfigValidationError struct {
	Field    string             // Config field with issue (e.g., "source_folder")
	Message  string             // Human-readable description
	Severity ValidationSeverity // "error" or "warning"
}

// ValidationResult contains all validation findings.
type ValidationResult struct {
	Errors   []ConfigValidationError
	Warnings []ConfigValidationError
	Valid    bool // True if no errors (warnings OK)
}

var extensionPattern = regexp.MustCompile(`^[A-Za-z0-9+]{1,5}$`)

// ValidateConfig checks the configuration against the filesystem and returns
// all findings.
func ValidateConfig(cfg *Configuration) *ValidationResult {
	result := &ValidationResult{
		Errors:   []ConfigValidationError{},
		Warnings: []ConfigValidationError{},
		Valid:    true,
	}

	var findings []ConfigValidationError
	findings = append(findings, ValidatePaths(cfg)...)
	findings = append(findings, ValidateCommands(cfg)...)
	findings = append(findings, ValidatePolicies(cfg)...)

	for _, f := range findings {
		if f.Severity == SeverityError {
			result.Errors = append(result.Errors, f)
		} else {
			result.Warnings = append(result.Warnings, f)
		}
	}

	result.Valid = len(result.Errors) == 0
	return result
}

// ValidatePaths checks the folders and the rule database.
func ValidatePaths(cfg *Configuration) []ConfigValidationError {
	var errors []ConfigValidationError

	if cfg.SourceFolder == "" && cfg.PathFilelist == "" {
		errors = append(errors, ConfigValidationError{
			Field:    "source_folder",
			Message:  "source_folder or path_filelist is required",
			Severity: SeverityError,
		})
	}

	if cfg.Listing() {
		if !isFile(cfg.PathFilelist) {
			errors = append(errors, ConfigValidationError{
				Field:    "path_filelist",
				Message:  "listing file does not exist: " + cfg.PathFilelist,
				Severity: SeverityError,
			})
		}
		if cfg.SourceFolder != "" {
			errors = append(errors, ConfigValidationError{
				Field:    "path_filelist",
				Message:  "path_filelist is set, source_folder is ignored and nothing will be compressed",
				Severity: SeverityWarning,
			})
		}
	} else {
		errors = append(errors, checkDirectory("source_folder", cfg.SourceFolder)...)
		if cfg.DestinationFolder != "" {
			errors = append(errors, checkDirectory("destination_folder", cfg.DestinationFolder)...)
		}
	}

	if cfg.WorkingFolder != "" {
		if dirErrs := checkDirectory("working_folder", cfg.WorkingFolder); len(dirErrs) > 0 {
			errors = append(errors, dirErrs...)
		} else if entries, err := os.ReadDir(cfg.WorkingFolder); err == nil && len(entries) > 0 {
			errors = append(errors, ConfigValidationError{
				Field:    "working_folder",
				Message:  "working folder is not empty: " + cfg.WorkingFolder,
				Severity: SeverityError,
			})
		}
	}

	if _, err := cfg.ResolveRuleDatabase(); err != nil {
		errors = append(errors, ConfigValidationError{
			Field:    "path_xmdb",
			Message:  err.Error(),
			Severity: SeverityError,
		})
	}

	return errors
}

// ValidateCommands checks the tool templates and the output extension.
func ValidateCommands(cfg *Configuration) []ConfigValidationError {
	var errors []ConfigValidationError

	for _, cmd := range []struct {
		field    string
		template string
		required string
	}{
		{"cmd_decompress", cfg.CmdDecompress, "{destination_folder}"},
		{"cmd_compress", cfg.CmdCompress, "{destination_file}"},
	} {
		fields := strings.Fields(cmd.template)
		if len(fields) == 0 {
			errors = append(errors, ConfigValidationError{
				Field:    cmd.field,
				Message:  "command template is empty",
				Severity: SeverityError,
			})
			continue
		}
		if !strings.Contains(cmd.template, cmd.required) {
			errors = append(errors, ConfigValidationError{
				Field:    cmd.field,
				Message:  "command template must contain " + cmd.required,
				Severity: SeverityError,
			})
		}
		if cfg.Listing() || cfg.DryRun {
			continue
		}
		if _, err := exec.LookPath(fields[0]); err != nil {
			errors = append(errors, ConfigValidationError{
				Field:    cmd.field,
				Message:  "tool not found on PATH: " + fields[0],
				Severity: SeverityWarning,
			})
		}
	}

	if !extensionPattern.MatchString(cfg.CompressedExtension) {
		errors = append(errors, ConfigValidationError{
			Field:    "compressed_extension",
			Message:  "invalid archive extension: \"" + cfg.CompressedExtension + "\"",
			Severity: SeverityError,
		})
	}

	return errors
}

// ValidatePolicies checks enumerated and pattern values.
func ValidatePolicies(cfg *Configuration) []ConfigValidationError {
	var errors []ConfigValidationError

	if cfg.SymlinkPolicy != "" {
		validPolicies := map[string]bool{"follow": true, "skip": true, "error": true}
		if !validPolicies[cfg.SymlinkPolicy] {
			errors = append(errors, ConfigValidationError{
				Field:    "symlink_policy",
				Message:  "invalid symlink policy: \"" + cfg.SymlinkPolicy + "\". Must be \"follow\", \"skip\", or \"error\"",
				Severity: SeverityError,
			})
		}
	}

	if cfg.Exclude != "" {
		if _, err := regexp.Compile(cfg.Exclude); err != nil {
			errors = append(errors, ConfigValidationError{
				Field:    "exclude",
				Message:  "invalid exclude pattern: " + err.Error(),
				Severity: SeverityError,
			})
		}
	}

	if cfg.ToolTimeout < 0 {
		errors = append(errors, ConfigValidationError{
			Field:    "tool_timeout",
			Message:  "tool_timeout cannot be negative",
			Severity: SeverityError,
		})
	}

	if cfg.Watch != nil {
		if cfg.Watch.DebounceSeconds < 0 {
			errors = append(errors, ConfigValidationError{
				Field:    "watch.debounce_seconds",
				Message:  "debounce_seconds cannot be negative",
				Severity: SeverityError,
			})
		}
		if cfg.Watch.StableThresholdMs < 0 {
			errors = append(errors, ConfigValidationError{
				Field:    "watch.stable_threshold_ms",
				Message:  "stable_threshold_ms cannot be negative",
				Severity: SeverityError,
			})
		}
		for _, pattern := range cfg.Watch.IgnorePatterns {
			if _, err := filepath.Match(pattern, ""); err != nil {
				errors = append(errors, ConfigValidationError{
					Field:    "watch.ignore_patterns",
					Message:  "invalid ignore pattern: \"" + pattern + "\"",
					Severity: SeverityError,
				})
			}
		}
	}

	return errors
}

// checkDirectory reports why dir is not a usable directory.
func checkDirectory(field, dir string) []ConfigValidationError {
	info, err := os.Stat(dir)
	if err != nil {
		msg := "error accessing directory: " + err.Error()
		if os.IsNotExist(err) {
			msg = "directory does not exist: " + dir
		} else if os.IsPermission(err) {
			msg = "directory is not accessible: " + dir
		}
		return []ConfigValidationError{{Field: field, Message: msg, Severity: SeverityError}}
	}
	if !info.IsDir() {
		return []ConfigValidationError{{
			Field:    field,
			Message:  "path is not a directory: " + dir,
			Severity: SeverityError,
		}}
	}
	return nil
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
