package types

import (
	"fmt"
	"strings"
)

// ValidationError reports a malformed or incomplete inventory
type ValidationError struct {
	Source string // file the inventory came from, may be empty
	Host   string // offending host, may be empty
	Reason string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	if e.Source != "" {
		b.WriteString(e.Source)
		b.WriteString(": ")
	}
	if e.Host != "" {
		fmt.Fprintf(&b, "host '%s' ", e.Host)
	}
	b.WriteString(e.Reason)
	return b.String()
}

// MissingRoleError reports a role the derivation needs but the architecture lacks
type MissingRoleError struct {
	Role     string
	NeededBy string
}

func (e *MissingRoleError) Error() string {
	if e.NeededBy != "" && e.NeededBy != e.Role {
		return fmt.Sprintf("role %s is required by %s but is not defined", e.Role, e.NeededBy)
	}
	return fmt.Sprintf("role %s is not defined", e.Role)
}

// MultipleHostsError reports a single-host role defined on several hosts
type MultipleHostsError struct {
	Role  string
	Hosts []string
}

func (e *MultipleHostsError) Error() string {
	return fmt.Sprintf("role %s is defined on multiple hosts (%s), only one instance is supported",
		e.Role, strings.Join(e.Hosts, ", "))
}

// ProvisioningError reports an external command that failed
type ProvisioningError struct {
	Command  []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ProvisioningError) Error() string {
	msg := fmt.Sprintf("command failed: %s", strings.Join(e.Command, " "))
	if e.ExitCode != 0 {
		msg = fmt.Sprintf("%s (exit code %d)", msg, e.ExitCode)
	}
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg = fmt.Sprintf("%s: %s", msg, stderr)
	} else if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ProvisioningError) Unwrap() error {
	return e.Err
}
