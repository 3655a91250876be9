package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Policy is the agent permission table: which tools are exposed and what
// repo_exec is allowed to run. Loaded from policy.toml in the data dir.
type Policy struct {
	Tools ToolPolicy `toml:"tools"`
	Exec  ExecPolicy `toml:"exec"`
}

// ToolPolicy controls tool exposure.
type ToolPolicy struct {
	// Disabled lists tool names that are hidden from tools/list and
	// rejected on tools/call.
	Disabled []string `toml:"disabled"`
}

// ExecPolicy controls repo_exec.
type ExecPolicy struct {
	// Allow lists command names (argv[0]) permitted for repo_exec.
	Allow []string `toml:"allow"`
	// MaxTimeout caps the per-call timeout an agent may request.
	MaxTimeout duration `toml:"max_timeout"`
}

// duration wraps time.Duration for TOML decoding ("30s", "5m").
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// DefaultPolicy returns the policy used when no policy.toml exists.
func DefaultPolicy() *Policy {
	return &Policy{
		Exec: ExecPolicy{
			Allow: []string{
				"go", "npm", "npx", "pnpm", "yarn", "make",
				"cargo", "python", "python3", "pytest", "bun",
			},
			MaxTimeout: duration{5 * time.Minute},
		},
	}
}

// LoadPolicy loads the tool policy from a file, falling back to defaults
// when the file does not exist.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultPolicy(), nil
		}
		return nil, fmt.Errorf("read policy file: %w", err)
	}

	policy := DefaultPolicy()
	if err := toml.Unmarshal(data, policy); err != nil {
		return nil, fmt.Errorf("parse policy file: %w", err)
	}

	return policy, nil
}

// SavePolicy writes the policy to a file.
func SavePolicy(policy *Policy, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create policy directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create policy file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(policy); err != nil {
		return fmt.Errorf("encode policy: %w", err)
	}
	return nil
}

// ToolEnabled reports whether a tool name is exposed under this policy.
func (p *Policy) ToolEnabled(name string) bool {
	for _, d := range p.Tools.Disabled {
		if strings.EqualFold(d, name) {
			return false
		}
	}
	return true
}

// ExecAllowed reports whether a command name may be run by repo_exec.
// Only bare names on the allow list pass; a path-qualified command like
// "./go" or "/tmp/x/go" would resolve to an arbitrary binary whose
// basename happens to match, so any path separator is rejected.
func (p *Policy) ExecAllowed(command string) bool {
	if strings.ContainsAny(command, `/\`) {
		return false
	}
	for _, a := range p.Exec.Allow {
		if a == command {
			return true
		}
	}
	return false
}

// ExecTimeout clamps a requested timeout to the policy maximum.
func (p *Policy) ExecTimeout(requested time.Duration) time.Duration {
	max := p.Exec.MaxTimeout.Duration
	if max <= 0 {
		max = 5 * time.Minute
	}
	if requested <= 0 || requested > max {
		return max
	}
	return requested
}
