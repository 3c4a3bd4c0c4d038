// Package agentcli invokes the external coding-agent CLI the worker
// delegates task execution to. The agent itself is a black box (spec.md
// §1 Non-goals); this package only implements the contract described in
// §6 "Agent CLI contract": stdin prompt, one-JSON-object-per-line
// stdout, a literal completion sentinel, exit code 0/non-zero.
package agentcli

import (
	"os"
	"os/exec"
	"path/filepath"
)

// swarmTmpDir is a dedicated temp directory for agent CLI invocations,
// following conductor's claude.SetCleanEnv pattern of avoiding a
// developer's ambient TMPDIR (e.g. stray editor socket files) leaking
// into a subprocess that may be sensitive to its contents.
var swarmTmpDir string

func init() {
	swarmTmpDir = filepath.Join(os.TempDir(), "ralph-swarm-agent")
	os.MkdirAll(swarmTmpDir, 0755)
}

// SetCleanEnv configures cmd to run with a clean, dedicated TMPDIR and
// whatever provider/model selectors the caller supplies, mirroring
// conductor's claude.SetCleanEnv for subprocess environment hygiene.
func SetCleanEnv(cmd *exec.Cmd, extra map[string]string) {
	cmd.Env = os.Environ()
	setEnvVar(cmd, "TMPDIR", swarmTmpDir)
	for k, v := range extra {
		setEnvVar(cmd, k, v)
	}
}

func setEnvVar(cmd *exec.Cmd, key, value string) {
	prefix := key + "="
	for i, e := range cmd.Env {
		if len(e) >= len(prefix) && e[:len(prefix)] == prefix {
			cmd.Env[i] = prefix + value
			return
		}
	}
	cmd.Env = append(cmd.Env, prefix+value)
}
