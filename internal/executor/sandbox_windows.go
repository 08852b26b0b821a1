//go:build windows

package executor

import (
	"fmt"
	"os/exec"
)

type sandboxCreds struct{}

func resolveSandboxUser(name string) (*sandboxCreds, error) {
	return nil, fmt.Errorf("sandbox user %q: privilege drop not supported on windows", name)
}

func applySandbox(cmd *exec.Cmd, creds *sandboxCreds) {}
