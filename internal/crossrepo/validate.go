package crossrepo

import (
	"fmt"
	"strings"
)

// validateRepoRef checks owner and repo against GitHub naming rules, which
// also keeps them safe for use in URLs and argument vectors.
func validateRepoRef(owner, repo string) error {
	if err := validateName(owner, "owner"); err != nil {
		return err
	}
	return validateName(repo, "repo")
}

func validateName(name, what string) error {
	if name == "" {
		return fmt.Errorf("%s is required", what)
	}
	if len(name) > 100 {
		return fmt.Errorf("%s is too long", what)
	}
	if strings.HasPrefix(name, "-") || strings.HasPrefix(name, ".") {
		return fmt.Errorf("invalid %s: %q", what, name)
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.':
		default:
			return fmt.Errorf("invalid %s: %q", what, name)
		}
	}
	return nil
}

// validateRefName rejects branch names git would refuse or that could be
// parsed as options.
func validateRefName(branch string) error {
	if branch == "" {
		return fmt.Errorf("branch is required")
	}
	if strings.HasPrefix(branch, "-") {
		return fmt.Errorf("invalid branch name: %q", branch)
	}
	if strings.Contains(branch, "..") || strings.HasSuffix(branch, ".lock") ||
		strings.HasSuffix(branch, "/") || strings.Contains(branch, "//") {
		return fmt.Errorf("invalid branch name: %q", branch)
	}
	for _, r := range branch {
		if r <= ' ' || r == '~' || r == '^' || r == ':' || r == '?' || r == '*' || r == '[' || r == '\\' {
			return fmt.Errorf("invalid branch name: %q", branch)
		}
	}
	return nil
}
