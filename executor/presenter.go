// Copyright 2015 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package executor

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/mattn/go-isatty"
	gdslog "github.com/odeke-em/log"

	"github.com/wukunhuan/gds/gateway"
	"github.com/wukunhuan/gds/gerrors"
	"github.com/wukunhuan/gds/model"
)

// Outcome carries a CommandPresenter's report of what the human (or GUI
// dialog) did with a generated command.
type Outcome struct {
	Action         string // "success", "cancelled", "direct_feedback", "error"
	DirectFeedback string
	ErrorInfo      string
}

// CommandPresenter displays the generated envelope for the operator to run
// on the vendor desktop and reports back what happened, the role the
// teacher's drive-server dialog and terminal prompt both play.
type CommandPresenter interface {
	Present(script, displayCmd, debugInfo string) (Outcome, error)
}

// TTYPresenter prints the script to the terminal and reads a one-line
// disposition, the presenter used whenever stdout is not a GUI session.
type TTYPresenter struct {
	log *gdslog.Logger
	in  *bufio.Reader
}

func NewTTYPresenter(log *gdslog.Logger) *TTYPresenter {
	return &TTYPresenter{log: log, in: bufio.NewReader(os.Stdin)}
}

func (p *TTYPresenter) Present(script, displayCmd, debugInfo string) (Outcome, error) {
	p.log.Logf("\n--- run on the remote desktop ---\n%s\n---------------------------------\n", script)
	p.log.Logf("disposition [s=success/f=failed/c=cancel/paste output directly]: ")

	line, err := p.in.ReadString('\n')
	if err != nil {
		return Outcome{Action: "error", ErrorInfo: err.Error()}, nil
	}
	switch trimmed := trimNewline(line); trimmed {
	case "s", "success":
		return Outcome{Action: "success"}, nil
	case "c", "cancel":
		return Outcome{Action: "cancelled"}, nil
	case "f", "failed":
		return Outcome{Action: "error", ErrorInfo: "user reported failure"}, nil
	default:
		if debugInfo != "" {
			p.log.Logf("debug: %s\n", debugInfo)
		}
		return Outcome{Action: "direct_feedback", DirectFeedback: trimmed}, nil
	}
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

// SelectPresenter picks the TTY or GUI presenter depending on whether
// stdout is attached to a terminal, using go-isatty the same way the
// teacher's canPrompt() gates interactive prompts in src/remote.go.
func SelectPresenter(log *gdslog.Logger) CommandPresenter {
	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return NewTTYPresenter(log)
	}
	return NewGUIPresenter()
}

// BashSyntaxError wraps a bash -n failure.
type BashSyntaxError struct {
	Stderr string
}

func (e *BashSyntaxError) Error() string { return "bash syntax error: " + e.Stderr }

// ValidateBashSyntax runs bash -n over the script with a short timeout,
// mirroring validate_bash_syntax_fast's temp-file + bash -n check.
func ValidateBashSyntax(ctx context.Context, script string) error {
	f, err := os.CreateTemp("", "gds-envelope-*.sh")
	if err != nil {
		return gerrors.SyntaxError(err)
	}
	defer os.Remove(f.Name())
	defer f.Close()

	if _, err := f.WriteString("#!/bin/bash\n" + script); err != nil {
		return gerrors.SyntaxError(err)
	}
	f.Close()

	cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	cmd := exec.CommandContext(cctx, "bash", "-n", f.Name())
	out, err := cmd.CombinedOutput()
	if err != nil {
		return gerrors.SyntaxError(fmt.Errorf("bash -n %s: %s: %w", f.Name(), out, err))
	}
	return nil
}

// Executor ties envelope generation, syntax validation, presentation and
// sentinel polling together into the operations §4.6 names.
type Executor struct {
	api        gateway.DriveAPI
	presenter  CommandPresenter
	log        *gdslog.Logger
	resolveTmp func(ctx context.Context) (string, error)
}

func New(api gateway.DriveAPI, presenter CommandPresenter, log *gdslog.Logger) *Executor {
	return &Executor{api: api, presenter: presenter, log: log}
}

// SetTmpFolderResolver installs the lookup Run uses to turn a blank
// tmpFolderId into the Drive folder id backing REMOTE_ROOT/tmp (§6 "Mirror
// layout"), resolved lazily at poll time rather than at construction time:
// the very first invocation's own envelope is what `mkdir -p`s tmp/ on the
// remote side, so the folder may not exist yet when the Executor itself is
// built.
func (e *Executor) SetTmpFolderResolver(f func(ctx context.Context) (string, error)) {
	e.resolveTmp = f
}

// Run builds the envelope for cmd/argv, validates its syntax, presents it,
// and — unless the presenter reports direct feedback — polls for the
// sentinel result under remoteRoot/tmp. A blank tmpFolderId is resolved via
// the installed resolver just before polling begins.
func (e *Executor) Run(ctx context.Context, cmd string, argv []string, remotePath, remoteRoot string, tmpFolderId string, debug *DebugBuffer) (model.SentinelResult, error) {
	env, err := Build(cmd, argv, remotePath, remoteRoot)
	if err != nil {
		return model.SentinelResult{}, err
	}
	if err := ValidateBashSyntax(ctx, env.Script); err != nil {
		return model.SentinelResult{}, err
	}

	debug.Add(fmt.Sprintf("envelope for %s built, result file %s", cmd, env.ResultFilename))

	outcome, err := e.presenter.Present(env.Script, displayInvocation(cmd, argv), debug.String())
	if err != nil {
		return model.SentinelResult{}, gerrors.RemoteExecFailure(err)
	}

	switch outcome.Action {
	case "cancelled":
		return model.SentinelResult{}, gerrors.UserCancel(fmt.Errorf("executor: user cancelled %s", cmd))
	case "error":
		return model.SentinelResult{}, gerrors.RemoteExecFailure(fmt.Errorf("executor: %s", outcome.ErrorInfo))
	case "direct_feedback":
		return model.SentinelResult{
			Cmd:      cmd,
			Args:     argv,
			ExitCode: inferExitCode(outcome.DirectFeedback),
			Stdout:   outcome.DirectFeedback,
		}, nil
	}

	if tmpFolderId == "" && e.resolveTmp != nil {
		resolved, err := e.resolveTmp(ctx)
		if err != nil {
			return model.SentinelResult{}, fmt.Errorf("executor: resolving tmp folder for %s: %w", cmd, err)
		}
		tmpFolderId = resolved
	}

	return e.pollSentinel(ctx, tmpFolderId, env.ResultFilename)
}

// pollSentinel waits up to 60 seconds for the sentinel file to appear as a
// child of the remote tmp folder, reading and parsing it once found —
// _wait_and_read_result_file's ls-then-cat loop, expressed against the
// Drive API Gateway instead of shelling back through the shell itself.
func (e *Executor) pollSentinel(ctx context.Context, tmpFolderId, resultFilename string) (model.SentinelResult, error) {
	const maxWaitSeconds = 60
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for attempt := 0; attempt < maxWaitSeconds; attempt++ {
		children, err := e.api.ListChildren(ctx, tmpFolderId, 0)
		if err != nil {
			return model.SentinelResult{}, err
		}
		for _, c := range children {
			if c.Name != resultFilename {
				continue
			}
			rc, err := e.api.GetMedia(ctx, c.Id)
			if err != nil {
				return model.SentinelResult{}, err
			}
			defer rc.Close()
			buf := make([]byte, 0, 4096)
			tmp := make([]byte, 4096)
			for {
				n, rerr := rc.Read(tmp)
				if n > 0 {
					buf = append(buf, tmp[:n]...)
				}
				if rerr != nil {
					break
				}
			}
			return parseSentinel(string(buf))
		}

		select {
		case <-ctx.Done():
			return model.SentinelResult{}, gerrors.SyncTimeout(ctx.Err())
		case <-ticker.C:
		}
	}

	return model.SentinelResult{}, gerrors.SyncTimeout(fmt.Errorf("executor: timed out waiting %ds for %s", maxWaitSeconds, resultFilename))
}
