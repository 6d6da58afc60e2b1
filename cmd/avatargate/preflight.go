package main

import (
	"log/slog"
	"os/exec"

	"github.com/avatargate/avatargate/internal/config"
)

// preflight reports whether the synthesis executable can be started. A
// missing executable is not fatal: jobs fail individually until it appears.
func preflight(syn *config.Synthesis) bool {
	path, err := exec.LookPath(syn.Executable)
	if err != nil {
		slog.Warn("preflight: synthesis executable not found, jobs will fail", "executable", syn.Executable, "error", err)
		return false
	}
	slog.Info("preflight: synthesis executable found", "path", path, "args", syn.Args, "dir", syn.Dir)
	return true
}
