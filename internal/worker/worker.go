package worker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/avatargate/avatargate/internal/config"
)

// LineCallback is called for every line the synthesis process writes to
// stdout or stderr.
type LineCallback func(line string)

// Invocation holds the per-job parameters passed to the synthesis process.
type Invocation struct {
	ImagePath      string
	Query          string
	DocumentPath   string
	SourceLang     string
	TargetLang     string
	ResultDir      string
	ReferenceAudio string
	Enhancer       string
}

// ExitError reports a synthesis process that ran but exited unsuccessfully.
type ExitError struct {
	Code int
	Tail string
}

func (e *ExitError) Error() string {
	if e.Tail == "" {
		return fmt.Sprintf("synthesis exited with code %d", e.Code)
	}
	return fmt.Sprintf("synthesis exited with code %d: %s", e.Code, e.Tail)
}

// Args builds the argument vector for inv. Every value is a separate element;
// nothing is ever interpreted by a shell. Optional parameters are omitted when
// empty or when the profile does not name a flag for them.
func Args(syn *config.Synthesis, inv Invocation) []string {
	args := append([]string{}, syn.Args...)
	add := func(flag, value string) {
		if flag != "" && value != "" {
			args = append(args, flag, value)
		}
	}
	add(syn.Flags.SourceImage, inv.ImagePath)
	add(syn.Flags.Query, inv.Query)
	add(syn.Flags.Document, inv.DocumentPath)
	add(syn.Flags.SourceLang, inv.SourceLang)
	add(syn.Flags.TargetLang, inv.TargetLang)
	add(syn.Flags.ResultDir, inv.ResultDir)
	add(syn.Flags.ReferenceAudio, inv.ReferenceAudio)
	add(syn.Flags.Enhancer, inv.Enhancer)
	return args
}

// Run executes the synthesis process and blocks until it exits. Stdout and
// stderr share one pipe so onLine sees them interleaved in write order.
// A cancelled or expired ctx kills the process and its error is returned.
func Run(ctx context.Context, syn *config.Synthesis, inv Invocation, onLine LineCallback) error {
	cmd := exec.CommandContext(ctx, syn.Executable, Args(syn, inv)...)
	cmd.Dir = syn.Dir
	// Bounds Wait when a killed process leaves children holding the pipe.
	cmd.WaitDelay = 5 * time.Second

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pw.Close()
		pr.Close()
		return fmt.Errorf("start synthesis: %w", err)
	}

	var last string
	scanDone := make(chan struct{})
	go func() {
		defer close(scanDone)
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			last = line
			if onLine != nil {
				onLine(line)
			}
		}
		// Keep draining so the child never blocks on a full pipe.
		io.Copy(io.Discard, pr) //nolint:errcheck
	}()

	waitErr := cmd.Wait()
	pw.Close()
	<-scanDone

	if waitErr == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("synthesis interrupted: %w", ctx.Err())
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return &ExitError{Code: exitErr.ExitCode(), Tail: last}
	}
	return fmt.Errorf("wait synthesis: %w", waitErr)
}
