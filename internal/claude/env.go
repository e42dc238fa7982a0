// Package claude holds the small amount of process-invocation plumbing
// shared by CLIProvider: environment sanitization for the `claude` binary.
package claude

import (
	"os"
	"os/exec"
	"path/filepath"
)

// swarmTmpDir is a dedicated TMPDIR for `claude` CLI invocations, avoiding
// editor socket files that crash the CLI when --settings is passed (see
// github.com/anthropics/claude-code/issues/7624).
var swarmTmpDir string

func init() {
	swarmTmpDir = filepath.Join(os.TempDir(), "swarm-claude")
	os.MkdirAll(swarmTmpDir, 0755)
}

// SetCleanEnv points cmd's TMPDIR at swarmTmpDir, leaving the rest of the
// parent environment untouched.
func SetCleanEnv(cmd *exec.Cmd) {
	cmd.Env = os.Environ()
	found := false
	for i, env := range cmd.Env {
		if len(env) > 7 && env[:7] == "TMPDIR=" {
			cmd.Env[i] = "TMPDIR=" + swarmTmpDir
			found = true
			break
		}
	}
	if !found {
		cmd.Env = append(cmd.Env, "TMPDIR="+swarmTmpDir)
	}
}

// CleanTmpDir returns the dedicated TMPDIR path for `claude` invocations.
func CleanTmpDir() string {
	return swarmTmpDir
}
