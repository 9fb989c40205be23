package mcp

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Policy gates which MCP tools are exposed. Read-only inventory tools
// (source_list, source_status) are always available; everything else must be
// allowed here.
type Policy struct {
	Version       int      `yaml:"version"`
	DefaultAction string   `yaml:"default_action"`
	DeniedTools   []string `yaml:"denied_tools"`
	AllowedTools  []string `yaml:"allowed_tools"`
}

// PolicyFileName is the name of the policy file inside the data directory.
const PolicyFileName = "mcp-policy.yaml"

const (
	ActionAllow = "allow"
	ActionDeny  = "deny"
)

var (
	// ErrPolicyNotFound is returned when no policy file exists.
	ErrPolicyNotFound = errors.New("MCP policy file not found")

	// ErrPolicyInsecure is returned when the policy file has permissions
	// other than 0600.
	ErrPolicyInsecure = errors.New("MCP policy file has insecure permissions")

	// ErrPolicySymlink is returned when the policy file is a symlink.
	ErrPolicySymlink = errors.New("MCP policy file is a symlink")

	// ErrPolicyNotOwnedByUser is returned when the policy file is not owned
	// by the current user.
	ErrPolicyNotOwnedByUser = errors.New("MCP policy file not owned by current user")
)

// LoadPolicy loads the tool policy from the data directory. The file is
// opened without following symlinks and its permissions and ownership are
// verified on the open descriptor.
func LoadPolicy(dataDir string) (*Policy, error) {
	policyPath := filepath.Join(dataDir, PolicyFileName)

	f, err := openPolicyFile(policyPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat policy file: %w", err)
	}

	if perm := info.Mode().Perm(); perm != 0600 {
		return nil, fmt.Errorf("%w: %o (expected 0600)", ErrPolicyInsecure, perm)
	}
	if err := checkFileOwnership(info); err != nil {
		return nil, err
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	var policy Policy
	if err := yaml.Unmarshal(content, &policy); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}

	if policy.Version != 1 {
		return nil, fmt.Errorf("unsupported policy version: %d", policy.Version)
	}
	if policy.DefaultAction == "" {
		policy.DefaultAction = ActionDeny
	}

	return &policy, nil
}

// IsToolAllowed reports whether the policy exposes the named tool. Denials
// take priority over allowances.
func (p *Policy) IsToolAllowed(name string) bool {
	for _, denied := range p.DeniedTools {
		if denied == name {
			return false
		}
	}
	for _, allowed := range p.AllowedTools {
		if allowed == name {
			return true
		}
	}
	return p.DefaultAction == ActionAllow
}

// ValidatePolicy checks the policy configuration for obvious mistakes.
func (p *Policy) ValidatePolicy() error {
	if p.Version != 1 {
		return fmt.Errorf("unsupported policy version: %d", p.Version)
	}
	if p.DefaultAction != ActionDeny && p.DefaultAction != ActionAllow {
		return fmt.Errorf("invalid default_action: %s (must be '%s' or '%s')",
			p.DefaultAction, ActionDeny, ActionAllow)
	}
	return nil
}
