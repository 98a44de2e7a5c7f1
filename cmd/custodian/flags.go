package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"lexsign/custodian/pkg/cli"
	"lexsign/custodian/pkg/records"
)

// scopeFlags selects a tenant or a firm.
type scopeFlags struct {
	tenant string
	firm   string
}

func (f *scopeFlags) register(cmd *cobra.Command, verb string) {
	cmd.Flags().StringVar(&f.tenant, "tenant", "", verb+" a single tenant")
	cmd.Flags().StringVar(&f.firm, "firm", "", verb+" a single firm")
	cmd.MarkFlagsMutuallyExclusive("tenant", "firm")
}

// scope returns the selected scope, or nil when neither flag is set.
func (f *scopeFlags) scope() (*records.Scope, error) {
	switch {
	case f.tenant != "" && f.firm != "":
		return nil, cli.NewConfigError("--tenant", "cannot be combined with --firm")
	case f.tenant != "":
		s := records.TenantScope(f.tenant)
		return &s, nil
	case f.firm != "":
		s := records.FirmScope(f.firm)
		return &s, nil
	}
	return nil, nil
}

// requireScope is scope for commands that need exactly one.
func (f *scopeFlags) requireScope() (records.Scope, error) {
	s, err := f.scope()
	if err != nil {
		return records.Scope{}, err
	}
	if s == nil {
		return records.Scope{}, cli.NewConfigError("--tenant", "one of --tenant or --firm is required")
	}
	return *s, nil
}

// parseTime parses an optional RFC 3339 flag value.
func parseTime(flag, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, cli.NewConfigError("--"+flag, fmt.Sprintf("expected an RFC 3339 timestamp, got %q", value))
	}
	return t.UTC(), nil
}

// parseBool parses an optional tri-state flag value ("", "true", "false").
func parseBool(flag, value string) (*bool, error) {
	switch value {
	case "":
		return nil, nil
	case "true":
		b := true
		return &b, nil
	case "false":
		b := false
		return &b, nil
	}
	return nil, cli.NewConfigError("--"+flag, fmt.Sprintf("expected true or false, got %q", value))
}
