//go:build unix

package executor

import (
	"fmt"
	"os/exec"
	"os/user"
	"strconv"
	"syscall"
)

type sandboxCreds struct {
	uid uint32
	gid uint32
}

func resolveSandboxUser(name string) (*sandboxCreds, error) {
	u, err := user.Lookup(name)
	if err != nil {
		return nil, fmt.Errorf("lookup sandbox user %q: %w", name, err)
	}

	uid, err := strconv.ParseUint(u.Uid, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("parse uid for %q: %w", name, err)
	}
	gid, err := strconv.ParseUint(u.Gid, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("parse gid for %q: %w", name, err)
	}

	return &sandboxCreds{uid: uint32(uid), gid: uint32(gid)}, nil
}

func applySandbox(cmd *exec.Cmd, creds *sandboxCreds) {
	if creds == nil {
		return
	}
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Credential = &syscall.Credential{
		Uid: creds.uid,
		Gid: creds.gid,
	}
}
