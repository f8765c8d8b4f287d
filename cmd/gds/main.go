// Copyright 2013 Google Inc. All Rights Reserved.
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

// Package main is the thin interactive-shell entry point. Argument parsing,
// help text and credential setup are out of scope (spec §1); this file only
// registers the §6 command table via odeke-em/command, the way the
// teacher's cmd/drive/main.go registers push/pull/ls, so every operation in
// the virtual filesystem surface has one concrete call path to the gds
// packages underneath it.
package main

import (
	"archive/zip"
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/odeke-em/command"
	gdslog "github.com/odeke-em/log"

	"github.com/wukunhuan/gds/cache"
	"github.com/wukunhuan/gds/config"
	"github.com/wukunhuan/gds/editpipe"
	"github.com/wukunhuan/gds/executor"
	"github.com/wukunhuan/gds/gateway"
	"github.com/wukunhuan/gds/listing"
	"github.com/wukunhuan/gds/mirror"
	"github.com/wukunhuan/gds/model"
	"github.com/wukunhuan/gds/resolver"
	"github.com/wukunhuan/gds/shellreg"
	"github.com/wukunhuan/gds/syncwait"
	"github.com/wukunhuan/gds/upload"
	"github.com/wukunhuan/gds/venv"
	"github.com/wukunhuan/gds/verify"
)

// app bundles every wired component a command needs; built once in main and
// closed over by each Cmd the way the teacher's commands close over *Commands.
type app struct {
	log      *gdslog.Logger
	cfg      *config.MirrorConfig
	api      gateway.DriveAPI
	shells   *shellreg.Registry
	resolve  *resolver.Resolver
	list     *listing.Engine
	mirror   *mirror.Mirror
	waiter   *syncwait.Waiter
	exec     *executor.Executor
	verifier *verify.Engine
	uploader *upload.Orchestrator
	dlcache  *cache.Cache
	venv     *venv.Store
}

func newApp() (*app, error) {
	log := gdslog.New(os.Stdin, os.Stdout, os.Stderr)

	cc, err := config.Discover(mustCwd())
	if err != nil {
		return nil, fmt.Errorf("gds: %w (run `gds init`)", err)
	}

	cfg, err := config.NewMirrorConfig(os.Getenv("GDS_REMOTE_ROOT_FOLDER_ID"), os.Getenv("GDS_MIRROR_PATH"), os.Getenv("GDS_DATA_DIR"))
	if err != nil {
		return nil, err
	}

	api, err := gateway.New(context.Background(), cc)
	if err != nil {
		return nil, err
	}

	shells := shellreg.New(cfg.ShellsFilePath())
	resolve := resolver.New(api, cfg)
	list := listing.New(api)
	mir := mirror.New(cfg)
	waiter := syncwait.New(mir)
	presenter := executor.SelectPresenter(log)
	exec := executor.New(api, presenter, log)
	exec.SetTmpFolderResolver(func(ctx context.Context) (string, error) {
		res, err := resolve.Resolve(ctx, "~/tmp", resolver.Shell{CurrentFolderId: cfg.RemoteRootFolderId, CurrentVirtualPath: "~"})
		if err != nil {
			return "", err
		}
		return res.FolderId, nil
	})
	verifier := verify.New(list, log)
	uploader := upload.New(cfg, mir, waiter, exec, list, verifier)

	boltStore, err := cache.OpenBoltStore(cfg.CacheDir() + "/index.bolt")
	if err != nil {
		return nil, err
	}
	dlcache := cache.New(boltStore, api, cfg.CacheDir())

	venvStore := venv.New(exec, cfg.RemoteEnvVenv(), cfg.VenvStatesPath())

	return &app{
		log: log, cfg: cfg, api: api, shells: shells, resolve: resolve, list: list,
		mirror: mir, waiter: waiter, exec: exec, verifier: verifier, uploader: uploader,
		dlcache: dlcache, venv: venvStore,
	}, nil
}

func mustCwd() string {
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

// currentShell loads the active shell record, creating one rooted at ~ on
// first use (§4.3).
func (a *app) currentShell() (*model.ShellRecord, error) {
	rec, err := a.shells.Active()
	if err != nil {
		return nil, err
	}
	if rec != nil {
		return rec, nil
	}
	return a.shells.Create("default")
}

func (a *app) asResolverShell(rec *model.ShellRecord) resolver.Shell {
	return resolver.Shell{CurrentVirtualPath: rec.CurrentVirtualPath, CurrentFolderId: rec.CurrentFolderId}
}

func main() {
	a, err := newApp()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	command.On("pwd", "print the current virtual path", &pwdCmd{a}, []string{})
	command.On("ls", "list a virtual directory", &lsCmd{a}, []string{})
	command.On("cd", "change the current virtual directory", &cdCmd{a}, []string{})
	command.On("mkdir", "create a virtual directory", &mkdirCmd{a}, []string{})
	command.On("rm", "remove a remote file or directory", &rmCmd{a}, []string{})
	command.On("mv", "move or rename a remote file", &mvCmd{a}, []string{})
	command.On("cat", "print a remote file's content", &catCmd{a}, []string{})
	command.On("upload", "stage and relocate local files to a virtual target", &uploadCmd{a}, []string{})
	command.On("upload-folder", "zip and upload a local folder", &uploadFolderCmd{a}, []string{})
	command.On("download", "fetch a remote file through the download cache", &downloadCmd{a}, []string{})
	command.On("edit", "apply a declarative replacement spec to a remote file", &editCmd{a}, []string{})
	command.On("find", "run a remote find", &findCmd{a}, []string{})
	command.On("venv", "manage the active shell's virtual environment", &venvCmd{a}, []string{})
	command.On("read", "print numbered lines from a remote file, optionally range-bounded", &readCmd{a}, []string{})
	command.On("grep", "search remote files for a POSIX-extended pattern", &grepCmd{a}, []string{})
	command.On("echo", "print text, or write it to a remote file via redirection", &echoCmd{a}, []string{})
	command.On("python", "run a remote Python invocation through C7", &pythonCmd{a}, []string{})
	command.On("pip", "run a remote pip invocation through C7", &pipCmd{a}, []string{})

	command.DefineHelp(&helpCmd{})
	command.ParseAndRun()
}

type helpCmd struct{}

func (c *helpCmd) Flags(fs *flag.FlagSet) *flag.FlagSet { return fs }
func (c *helpCmd) Run(args []string, _ map[string]*flag.Flag) {
	fmt.Println("gds: a POSIX-like shell over a synced Google Drive mirror")
}

// pwdCmd implements §6 `pwd`.
type pwdCmd struct{ a *app }

func (c *pwdCmd) Flags(fs *flag.FlagSet) *flag.FlagSet { return fs }
func (c *pwdCmd) Run(args []string, _ map[string]*flag.Flag) {
	rec, err := c.a.currentShell()
	if err != nil {
		c.a.log.LogErrln(err)
		return
	}
	c.a.log.Logln(rec.CurrentVirtualPath)
}

// lsCmd implements §6 `ls [path] [-R] [--detailed]`.
type lsCmd struct{ a *app }

func (c *lsCmd) Flags(fs *flag.FlagSet) *flag.FlagSet {
	fs.Bool("R", false, "recurse, bounded by max depth")
	fs.Bool("detailed", false, "structured entries instead of names")
	return fs
}

func (c *lsCmd) Run(args []string, definedFlags map[string]*flag.Flag) {
	ctx := context.Background()
	rec, err := c.a.currentShell()
	if err != nil {
		c.a.log.LogErrln(err)
		return
	}

	target := rec.CurrentVirtualPath
	if len(args) > 0 {
		target = args[0]
	}

	res, err := c.a.resolve.Resolve(ctx, target, c.a.asResolverShell(rec))
	if err != nil {
		c.a.log.LogErrln(err)
		return
	}

	recursive := definedFlags["R"] != nil && definedFlags["R"].Value.String() == "true"
	detailed := definedFlags["detailed"] != nil && definedFlags["detailed"].Value.String() == "true"

	var entries []*model.ListingEntry
	if recursive {
		entries, err = c.a.list.Recursive(ctx, res.FolderId, c.a.cfg.MaxListDepth)
	} else {
		entries, err = c.a.list.List(ctx, res.FolderId)
	}
	if err != nil {
		c.a.log.LogErrln(err)
		return
	}

	if detailed {
		c.a.log.Logln(listing.FormatDetailed(entries))
		return
	}
	for _, e := range entries {
		c.a.log.Logln(e.Name)
	}
}

// cdCmd implements §6 `cd <path>`.
type cdCmd struct{ a *app }

func (c *cdCmd) Flags(fs *flag.FlagSet) *flag.FlagSet { return fs }
func (c *cdCmd) Run(args []string, _ map[string]*flag.Flag) {
	if len(args) == 0 {
		c.a.log.LogErrln("cd: missing path")
		return
	}
	ctx := context.Background()
	rec, err := c.a.currentShell()
	if err != nil {
		c.a.log.LogErrln(err)
		return
	}
	res, err := c.a.resolve.Resolve(ctx, args[0], c.a.asResolverShell(rec))
	if err != nil {
		c.a.log.LogErrln(err)
		return
	}
	if res.IsFile {
		c.a.log.LogErrln("cd: not a directory")
		return
	}
	if err := c.a.shells.Update(rec.Id, res.DisplayPath, res.FolderId); err != nil {
		c.a.log.LogErrln(err)
	}
}

// mkdirCmd implements §6 `mkdir [-p] <path>` by emitting a remote mkdir -p
// and verifying by listing (§6's contract for mkdir).
type mkdirCmd struct{ a *app }

func (c *mkdirCmd) Flags(fs *flag.FlagSet) *flag.FlagSet { return fs }
func (c *mkdirCmd) Run(args []string, _ map[string]*flag.Flag) {
	if len(args) == 0 {
		c.a.log.LogErrln("mkdir: missing path")
		return
	}
	ctx := context.Background()
	rec, err := c.a.currentShell()
	if err != nil {
		c.a.log.LogErrln(err)
		return
	}
	remotePath := c.a.resolve.RemotePath(joinVirtual(rec.CurrentVirtualPath, args[0]))
	debug := executor.NewDebugBuffer()
	script := fmt.Sprintf("mkdir -p %q", remotePath)
	if _, err := c.a.exec.Run(ctx, "bash", []string{"-c", script}, c.a.cfg.RemoteRoot(), c.a.cfg.RemoteRoot(), "", debug); err != nil {
		c.a.log.LogErrln(err)
		return
	}
	dir, base := splitVirtualTail(joinVirtual(rec.CurrentVirtualPath, args[0]))
	parent, err := c.a.resolve.Resolve(ctx, dir, c.a.asResolverShell(rec))
	if err != nil {
		c.a.log.LogErrln(err)
		return
	}
	if _, err := c.a.verifier.VerifyNames(ctx, parent.FolderId, []string{base}); err != nil {
		c.a.log.LogErrln(err)
	}
}

// rmCmd implements §6 `rm [-r] [-f] <path>`: trust executor's exit, no
// listing verification (§9's documented asymmetry with upload).
type rmCmd struct{ a *app }

func (c *rmCmd) Flags(fs *flag.FlagSet) *flag.FlagSet {
	fs.Bool("r", false, "recurse")
	fs.Bool("f", false, "force, ignore missing")
	return fs
}

func (c *rmCmd) Run(args []string, definedFlags map[string]*flag.Flag) {
	if len(args) == 0 {
		c.a.log.LogErrln("rm: missing path")
		return
	}
	ctx := context.Background()
	rec, err := c.a.currentShell()
	if err != nil {
		c.a.log.LogErrln(err)
		return
	}
	remotePath := c.a.resolve.RemotePath(joinVirtual(rec.CurrentVirtualPath, args[0]))
	flags := "-f"
	if definedFlags["r"] != nil && definedFlags["r"].Value.String() == "true" {
		flags = "-rf"
	}
	debug := executor.NewDebugBuffer()
	script := fmt.Sprintf("rm %s %q", flags, remotePath)
	if _, err := c.a.exec.Run(ctx, "bash", []string{"-c", script}, c.a.cfg.RemoteRoot(), c.a.cfg.RemoteRoot(), "", debug); err != nil {
		c.a.log.LogErrln(err)
	}
}

// mvCmd implements §6 `mv <src> <dst>`.
type mvCmd struct{ a *app }

func (c *mvCmd) Flags(fs *flag.FlagSet) *flag.FlagSet { return fs }
func (c *mvCmd) Run(args []string, _ map[string]*flag.Flag) {
	if len(args) != 2 {
		c.a.log.LogErrln("mv: usage: mv <src> <dst>")
		return
	}
	ctx := context.Background()
	rec, err := c.a.currentShell()
	if err != nil {
		c.a.log.LogErrln(err)
		return
	}
	src := c.a.resolve.RemotePath(joinVirtual(rec.CurrentVirtualPath, args[0]))
	dst := c.a.resolve.RemotePath(joinVirtual(rec.CurrentVirtualPath, args[1]))
	debug := executor.NewDebugBuffer()
	script := fmt.Sprintf("mv %q %q", src, dst)
	if _, err := c.a.exec.Run(ctx, "bash", []string{"-c", script}, c.a.cfg.RemoteRoot(), c.a.cfg.RemoteRoot(), "", debug); err != nil {
		c.a.log.LogErrln(err)
	}
}

// catCmd implements §6 `cat <file>`: download via the gateway and decode
// UTF-8 with replacement fallback.
type catCmd struct{ a *app }

func (c *catCmd) Flags(fs *flag.FlagSet) *flag.FlagSet { return fs }
func (c *catCmd) Run(args []string, _ map[string]*flag.Flag) {
	if len(args) == 0 {
		c.a.log.LogErrln("cat: missing file")
		return
	}
	ctx := context.Background()
	rec, err := c.a.currentShell()
	if err != nil {
		c.a.log.LogErrln(err)
		return
	}
	res, err := c.a.resolve.Resolve(ctx, args[0], c.a.asResolverShell(rec))
	if err != nil {
		c.a.log.LogErrln(err)
		return
	}
	if !res.IsFile {
		c.a.log.LogErrln("cat: not a file")
		return
	}
	live, err := c.a.api.Get(ctx, res.FileId)
	if err != nil {
		c.a.log.LogErrln(err)
		return
	}
	blobPath, err := c.a.dlcache.Fetch(ctx, res.DisplayPath, live)
	if err != nil {
		c.a.log.LogErrln(err)
		return
	}
	data, err := os.ReadFile(blobPath)
	if err != nil {
		c.a.log.LogErrln(err)
		return
	}
	c.a.log.Logln(decodeUTF8Replacement(data))
}

// uploadCmd implements §6 `upload [--force] [--remove-local] <srcs> [target]`.
type uploadCmd struct{ a *app }

func (c *uploadCmd) Flags(fs *flag.FlagSet) *flag.FlagSet {
	fs.Bool("force", false, "overwrite name collisions")
	fs.Bool("remove-local", false, "unlink the local source after a verified upload")
	return fs
}

func (c *uploadCmd) Run(args []string, definedFlags map[string]*flag.Flag) {
	if len(args) == 0 {
		c.a.log.LogErrln("upload: missing source file(s)")
		return
	}
	ctx := context.Background()
	rec, err := c.a.currentShell()
	if err != nil {
		c.a.log.LogErrln(err)
		return
	}

	target := rec.CurrentVirtualPath
	sources := args
	if len(args) > 1 {
		last := args[len(args)-1]
		if _, statErr := os.Stat(last); statErr != nil {
			target = last
			sources = args[:len(args)-1]
		}
	}

	res, err := c.a.resolve.Resolve(ctx, target, c.a.asResolverShell(rec))
	if err != nil {
		c.a.log.LogErrln(err)
		return
	}

	force := definedFlags["force"] != nil && definedFlags["force"].Value.String() == "true"
	removeLocal := definedFlags["remove-local"] != nil && definedFlags["remove-local"].Value.String() == "true"
	result, err := c.a.uploader.Upload(ctx, sources, upload.Options{
		TargetVirtualPath: res.DisplayPath,
		TargetFolderId:    res.FolderId,
		Force:             force,
		RemoveLocal:       removeLocal,
	})
	if err != nil {
		c.a.log.LogErrln(err)
		return
	}
	if len(result.Overridden) > 0 {
		c.a.log.Logf("Overriding %v\n", result.Overridden)
	}
	if result.ManualUploadInstruction != "" {
		c.a.log.Logln(result.ManualUploadInstruction)
	}
	if result.Verify != nil {
		c.a.log.Logf("uploaded %d/%d file(s) to %s\n", len(result.Verify.Found), len(sources), res.DisplayPath)
	}
}

// uploadFolderCmd implements §6 `upload-folder [--keep-zip] [--force] <folder> [target]`.
// Zipping (zipLocalFolder) and the script's unzip -o step live in this file,
// not in the upload package; verification is skipped because
// post-extraction names aren't predictable from the inputs.
type uploadFolderCmd struct{ a *app }

func (c *uploadFolderCmd) Flags(fs *flag.FlagSet) *flag.FlagSet {
	fs.Bool("keep-zip", false, "keep the zip on the remote side after extraction")
	fs.Bool("force", false, "overwrite name collisions")
	return fs
}

func (c *uploadFolderCmd) Run(args []string, definedFlags map[string]*flag.Flag) {
	if len(args) == 0 {
		c.a.log.LogErrln("upload-folder: missing source folder")
		return
	}
	ctx := context.Background()
	rec, err := c.a.currentShell()
	if err != nil {
		c.a.log.LogErrln(err)
		return
	}

	folder := args[0]
	target := rec.CurrentVirtualPath
	if len(args) > 1 {
		target = args[1]
	}

	res, err := c.a.resolve.Resolve(ctx, target, c.a.asResolverShell(rec))
	if err != nil {
		c.a.log.LogErrln(err)
		return
	}

	zipPath, err := zipLocalFolder(folder)
	if err != nil {
		c.a.log.LogErrln(err)
		return
	}
	defer os.RemoveAll(filepath.Dir(zipPath))

	keepZip := definedFlags["keep-zip"] != nil && definedFlags["keep-zip"].Value.String() == "true"
	force := definedFlags["force"] != nil && definedFlags["force"].Value.String() == "true"

	if _, err := c.a.uploader.Upload(ctx, []string{zipPath}, upload.Options{
		TargetVirtualPath: res.DisplayPath,
		TargetFolderId:    res.FolderId,
		Force:             force,
		KeepZip:           keepZip,
	}); err != nil {
		c.a.log.LogErrln(err)
		return
	}

	zipName := filepath.Base(zipPath)
	remotePath := c.a.resolve.RemotePath(res.DisplayPath)
	unzipScript := fmt.Sprintf("cd %q && unzip -o %q", remotePath, zipName)
	if !keepZip {
		unzipScript += fmt.Sprintf(" && rm -f %q", zipName)
	}
	if _, err := c.a.exec.Run(ctx, "bash", []string{"-c", unzipScript}, remotePath, c.a.cfg.RemoteRoot(), "", executor.NewDebugBuffer()); err != nil {
		c.a.log.LogErrln(err)
		return
	}
	c.a.log.Logf("uploaded and extracted %s to %s\n", filepath.Base(filepath.Clean(folder)), res.DisplayPath)
}

// zipLocalFolder archives folderPath into a temp directory as
// <base-name>.zip, rooting every entry under the folder's own base name so
// extraction on the remote side recreates the top-level directory rather
// than scattering its contents.
func zipLocalFolder(folderPath string) (string, error) {
	info, err := os.Stat(folderPath)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("upload-folder: %s is not a directory", folderPath)
	}

	base := filepath.Base(filepath.Clean(folderPath))
	stageDir, err := os.MkdirTemp("", "gds-upload-folder-*")
	if err != nil {
		return "", err
	}
	zipPath := filepath.Join(stageDir, base+".zip")

	f, err := os.Create(zipPath)
	if err != nil {
		os.RemoveAll(stageDir)
		return "", err
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	walkErr := filepath.Walk(folderPath, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(folderPath, p)
		if err != nil {
			return err
		}
		w, err := zw.Create(filepath.ToSlash(filepath.Join(base, rel)))
		if err != nil {
			return err
		}
		src, err := os.Open(p)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(w, src)
		return err
	})
	if walkErr != nil {
		zw.Close()
		os.RemoveAll(stageDir)
		return "", walkErr
	}
	if err := zw.Close(); err != nil {
		os.RemoveAll(stageDir)
		return "", err
	}
	return zipPath, nil
}

// downloadCmd implements §6 `download [--force] <file> [local-path]`.
type downloadCmd struct{ a *app }

func (c *downloadCmd) Flags(fs *flag.FlagSet) *flag.FlagSet {
	fs.Bool("force", false, "bypass the cache and re-fetch")
	return fs
}

func (c *downloadCmd) Run(args []string, definedFlags map[string]*flag.Flag) {
	if len(args) == 0 {
		c.a.log.LogErrln("download: missing file")
		return
	}
	ctx := context.Background()
	rec, err := c.a.currentShell()
	if err != nil {
		c.a.log.LogErrln(err)
		return
	}
	res, err := c.a.resolve.Resolve(ctx, args[0], c.a.asResolverShell(rec))
	if err != nil {
		c.a.log.LogErrln(err)
		return
	}
	if definedFlags["force"] != nil && definedFlags["force"].Value.String() == "true" {
		if err := c.a.dlcache.InvalidateDeleted(res.DisplayPath); err != nil {
			c.a.log.LogErrln(err)
			return
		}
	}
	live, err := c.a.api.Get(ctx, res.FileId)
	if err != nil {
		c.a.log.LogErrln(err)
		return
	}
	blobPath, err := c.a.dlcache.Fetch(ctx, res.DisplayPath, live)
	if err != nil {
		c.a.log.LogErrln(err)
		return
	}
	localPath := res.FileName
	if len(args) > 1 {
		localPath = args[1]
	}
	data, err := os.ReadFile(blobPath)
	if err != nil {
		c.a.log.LogErrln(err)
		return
	}
	if err := os.WriteFile(localPath, data, 0644); err != nil {
		c.a.log.LogErrln(err)
	}
}

// editCmd implements §6 `edit [--preview] [--backup] <file> '<spec>'` (C11).
type editCmd struct{ a *app }

func (c *editCmd) Flags(fs *flag.FlagSet) *flag.FlagSet {
	fs.Bool("preview", false, "show the diff without re-uploading")
	fs.Bool("backup", false, "stage a timestamped backup before re-upload")
	return fs
}

func (c *editCmd) Run(args []string, definedFlags map[string]*flag.Flag) {
	if len(args) < 2 {
		c.a.log.LogErrln("edit: usage: edit <file> '<replacement-spec>'")
		return
	}
	ctx := context.Background()
	rec, err := c.a.currentShell()
	if err != nil {
		c.a.log.LogErrln(err)
		return
	}
	res, err := c.a.resolve.Resolve(ctx, args[0], c.a.asResolverShell(rec))
	if err != nil {
		c.a.log.LogErrln(err)
		return
	}
	live, err := c.a.api.Get(ctx, res.FileId)
	if err != nil {
		c.a.log.LogErrln(err)
		return
	}
	blobPath, err := c.a.dlcache.Fetch(ctx, res.DisplayPath, live)
	if err != nil {
		c.a.log.LogErrln(err)
		return
	}
	content, err := os.ReadFile(blobPath)
	if err != nil {
		c.a.log.LogErrln(err)
		return
	}

	raw, err := parseReplacementSpecJSON(args[1])
	if err != nil {
		c.a.log.LogErrln(err)
		return
	}
	lines := editpipe.Lines(string(content))
	ops, err := editpipe.ParseSpec(raw, lines, string(content))
	if err != nil {
		c.a.log.LogErrln(err)
		return
	}
	after, err := editpipe.Apply(lines, ops)
	if err != nil {
		c.a.log.LogErrln(err)
		return
	}

	diff, err := editpipe.UnifiedDiff(res.DisplayPath, lines, after)
	if err != nil {
		c.a.log.LogErrln(err)
		return
	}
	c.a.log.Logln(diff)

	preview := definedFlags["preview"] != nil && definedFlags["preview"].Value.String() == "true"
	if preview {
		return
	}

	backup := definedFlags["backup"] != nil && definedFlags["backup"].Value.String() == "true"
	sources := []string{}
	tmpEdited, err := os.CreateTemp("", "gds-edit-*")
	if err != nil {
		c.a.log.LogErrln(err)
		return
	}
	defer os.Remove(tmpEdited.Name())
	if _, err := tmpEdited.WriteString(editpipe.JoinLines(after)); err != nil {
		c.a.log.LogErrln(err)
		return
	}
	tmpEdited.Close()
	sources = append(sources, tmpEdited.Name())

	if backup {
		backupPath, err := editpipe.WriteBackup(blobPath, content)
		if err != nil {
			c.a.log.LogErrln(err)
			return
		}
		defer os.Remove(backupPath)
		sources = append(sources, backupPath)
	}

	if _, err := c.a.uploader.Upload(ctx, sources, upload.Options{
		TargetVirtualPath: res.DisplayPath,
		TargetFolderId:    res.FolderId,
		Force:             true, // §4.11 step 8: edit re-upload always forces
	}); err != nil {
		c.a.log.LogErrln(err)
		return
	}

	if err := editpipe.DefaultLinter.Lint(res.DisplayPath, after); err != nil {
		c.a.log.Logf("lint: %v\n", err)
	}
}

// findCmd implements §6 `find [path] -name|-iname|-type <args>` by emitting
// a remote find and parsing lines.
type findCmd struct{ a *app }

func (c *findCmd) Flags(fs *flag.FlagSet) *flag.FlagSet {
	fs.String("name", "", "case-sensitive -name pattern")
	fs.String("iname", "", "case-insensitive -iname pattern")
	fs.String("type", "", "-type filter (f, d)")
	return fs
}

func (c *findCmd) Run(args []string, definedFlags map[string]*flag.Flag) {
	ctx := context.Background()
	rec, err := c.a.currentShell()
	if err != nil {
		c.a.log.LogErrln(err)
		return
	}
	target := rec.CurrentVirtualPath
	if len(args) > 0 {
		target = args[0]
	}
	remotePath := c.a.resolve.RemotePath(joinVirtual(rec.CurrentVirtualPath, target))

	findArgs := "."
	if f := definedFlags["name"]; f != nil && f.Value.String() != "" {
		findArgs += fmt.Sprintf(" -name %q", f.Value.String())
	}
	if f := definedFlags["iname"]; f != nil && f.Value.String() != "" {
		findArgs += fmt.Sprintf(" -iname %q", f.Value.String())
	}
	if f := definedFlags["type"]; f != nil && f.Value.String() != "" {
		findArgs += fmt.Sprintf(" -type %s", f.Value.String())
	}

	debug := executor.NewDebugBuffer()
	script := fmt.Sprintf("cd %q && find %s", remotePath, findArgs)
	res, err := c.a.exec.Run(ctx, "bash", []string{"-c", script}, c.a.cfg.RemoteRoot(), c.a.cfg.RemoteRoot(), "", debug)
	if err != nil {
		c.a.log.LogErrln(err)
		return
	}
	c.a.log.Logln(res.Stdout)
}

// venvCmd implements §6 `venv --create|--delete|--activate|--deactivate|--list|--current <names…>` (C12).
type venvCmd struct{ a *app }

func (c *venvCmd) Flags(fs *flag.FlagSet) *flag.FlagSet {
	fs.Bool("create", false, "create a new virtual environment")
	fs.Bool("delete", false, "delete a virtual environment")
	fs.Bool("activate", false, "activate an environment for the current shell")
	fs.Bool("deactivate", false, "clear the current shell's active environment")
	fs.Bool("list", false, "list every recorded environment")
	fs.Bool("current", false, "print the current shell's active environment")
	return fs
}

func (c *venvCmd) Run(args []string, definedFlags map[string]*flag.Flag) {
	ctx := context.Background()
	rec, err := c.a.currentShell()
	if err != nil {
		c.a.log.LogErrln(err)
		return
	}

	switch {
	case definedFlags["list"] != nil && definedFlags["list"].Value.String() == "true":
		names, err := c.a.venv.List(ctx, rec.CurrentVirtualPath)
		if err != nil {
			c.a.log.LogErrln(err)
			return
		}
		for _, name := range names {
			c.a.log.Logln(name)
		}

	case definedFlags["create"] != nil && definedFlags["create"].Value.String() == "true":
		if len(args) == 0 {
			c.a.log.LogErrln("venv --create: missing environment name")
			return
		}
		envPath := c.a.cfg.RemoteEnvVenv() + "/" + args[0]
		if err := c.a.venv.Create(ctx, rec.CurrentVirtualPath, args[0], envPath); err != nil {
			c.a.log.LogErrln(err)
		}

	case definedFlags["delete"] != nil && definedFlags["delete"].Value.String() == "true":
		if len(args) == 0 {
			c.a.log.LogErrln("venv --delete: missing environment name")
			return
		}
		envPath := c.a.cfg.RemoteEnvVenv() + "/" + args[0]
		if err := c.a.venv.Delete(ctx, rec.CurrentVirtualPath, args[0], envPath); err != nil {
			c.a.log.LogErrln(err)
			return
		}
		if shellState, err := c.a.venv.Read(ctx, rec.CurrentVirtualPath); err == nil {
			if s := shellState.Shells[rec.Id]; s == nil || s.ActiveEnv != args[0] {
				return
			}
		}
		if err := c.a.shells.UpdateVenv(rec.Id, ""); err != nil {
			c.a.log.LogErrln(err)
		}

	case definedFlags["current"] != nil && definedFlags["current"].Value.String() == "true":
		// "venv --current reads directly via C1, never opening a remote
		// dialog" (§4.11) — read straight off the Drive-side file.
		vs, err := c.a.venv.Read(ctx, rec.CurrentVirtualPath)
		if err != nil {
			c.a.log.LogErrln(err)
			return
		}
		shellState := vs.Shells[rec.Id]
		if shellState == nil || shellState.ActiveEnv == "" {
			c.a.log.Logln("none")
			return
		}
		c.a.log.Logln(shellState.ActiveEnv)

	case definedFlags["activate"] != nil && definedFlags["activate"].Value.String() == "true":
		if len(args) == 0 {
			c.a.log.LogErrln("venv --activate: missing environment name")
			return
		}
		envPath := c.a.cfg.RemoteEnvVenv() + "/" + args[0]
		if err := c.a.venv.Activate(ctx, rec.CurrentVirtualPath, rec.Id, args[0], envPath); err != nil {
			c.a.log.LogErrln(err)
			return
		}
		if err := c.a.shells.UpdateVenv(rec.Id, args[0]); err != nil {
			c.a.log.LogErrln(err)
		}

	case definedFlags["deactivate"] != nil && definedFlags["deactivate"].Value.String() == "true":
		if err := c.a.venv.Activate(ctx, rec.CurrentVirtualPath, rec.Id, "", ""); err != nil {
			c.a.log.LogErrln(err)
			return
		}
		if err := c.a.shells.UpdateVenv(rec.Id, ""); err != nil {
			c.a.log.LogErrln(err)
		}

	default:
		c.a.log.LogErrln("venv: unrecognized or unimplemented subcommand")
	}
}

// readCmd implements §6 `read <file> [start end]` / `read <file> '[[s1,e1],...]'`.
type readCmd struct{ a *app }

func (c *readCmd) Flags(fs *flag.FlagSet) *flag.FlagSet { return fs }

func (c *readCmd) Run(args []string, _ map[string]*flag.Flag) {
	if len(args) == 0 {
		c.a.log.LogErrln("read: missing file")
		return
	}
	ctx := context.Background()
	rec, err := c.a.currentShell()
	if err != nil {
		c.a.log.LogErrln(err)
		return
	}
	res, err := c.a.resolve.Resolve(ctx, args[0], c.a.asResolverShell(rec))
	if err != nil {
		c.a.log.LogErrln(err)
		return
	}
	if !res.IsFile {
		c.a.log.LogErrln("read: not a file")
		return
	}

	live, err := c.a.api.Get(ctx, res.FileId)
	if err != nil {
		c.a.log.LogErrln(err)
		return
	}
	blobPath, err := c.a.dlcache.Fetch(ctx, res.DisplayPath, live)
	if err != nil {
		c.a.log.LogErrln(err)
		return
	}
	content, err := os.ReadFile(blobPath)
	if err != nil {
		c.a.log.LogErrln(err)
		return
	}

	lines := editpipe.Lines(decodeUTF8Replacement(content))
	ranges, err := parseReadRanges(args[1:], len(lines))
	if err != nil {
		c.a.log.LogErrln(err)
		return
	}
	for _, rg := range ranges {
		for i := rg[0]; i <= rg[1]; i++ {
			c.a.log.Logf("%d\t%s\n", i, lines[i])
		}
	}
}

// parseReadRanges turns `read`'s optional trailing arguments into 0-based
// inclusive [start,end] ranges clipped to [0, numLines-1] (P6), mirroring
// file_core.py's read_file_content range handling: no args reads the whole
// file, two numeric args are a single range, and one JSON-array arg is a
// list of [start,end] pairs.
func parseReadRanges(args []string, numLines int) ([][2]int, error) {
	clip := func(a, b int) [2]int {
		if a < 0 {
			a = 0
		}
		if b >= numLines {
			b = numLines - 1
		}
		return [2]int{a, b}
	}

	switch len(args) {
	case 0:
		if numLines == 0 {
			return nil, nil
		}
		return [][2]int{clip(0, numLines-1)}, nil
	case 1:
		var raw [][2]int
		if err := json.Unmarshal([]byte(args[0]), &raw); err != nil {
			return nil, fmt.Errorf("read: parsing ranges: %w", err)
		}
		out := make([][2]int, 0, len(raw))
		for _, r := range raw {
			if r[1] < r[0] {
				continue
			}
			out = append(out, clip(r[0], r[1]))
		}
		return out, nil
	case 2:
		start, err := strconv.Atoi(args[0])
		if err != nil {
			return nil, fmt.Errorf("read: start must be an integer: %w", err)
		}
		end, err := strconv.Atoi(args[1])
		if err != nil {
			return nil, fmt.Errorf("read: end must be an integer: %w", err)
		}
		if end < start {
			return nil, nil
		}
		return [][2]int{clip(start, end)}, nil
	default:
		return nil, fmt.Errorf("read: usage: read <file> [start end] | read <file> '[[s,e],...]'")
	}
}

// grepCmd implements §6 `grep <pat> <file...>`.
type grepCmd struct{ a *app }

func (c *grepCmd) Flags(fs *flag.FlagSet) *flag.FlagSet { return fs }

func (c *grepCmd) Run(args []string, _ map[string]*flag.Flag) {
	if len(args) < 2 {
		c.a.log.LogErrln("grep: usage: grep <pattern> <file...>")
		return
	}
	re, err := regexp.CompilePOSIX(args[0])
	if err != nil {
		c.a.log.LogErrln(fmt.Errorf("grep: %w", err))
		return
	}

	ctx := context.Background()
	rec, err := c.a.currentShell()
	if err != nil {
		c.a.log.LogErrln(err)
		return
	}

	matches := map[string]map[int][]int{}
	for _, arg := range args[1:] {
		res, err := c.a.resolve.Resolve(ctx, arg, c.a.asResolverShell(rec))
		if err != nil {
			c.a.log.LogErrln(err)
			continue
		}
		if !res.IsFile {
			c.a.log.LogErrln(fmt.Sprintf("grep: %s: not a file", arg))
			continue
		}

		live, err := c.a.api.Get(ctx, res.FileId)
		if err != nil {
			c.a.log.LogErrln(err)
			continue
		}
		blobPath, err := c.a.dlcache.Fetch(ctx, res.DisplayPath, live)
		if err != nil {
			c.a.log.LogErrln(err)
			continue
		}
		content, err := os.ReadFile(blobPath)
		if err != nil {
			c.a.log.LogErrln(err)
			continue
		}

		lines := editpipe.Lines(decodeUTF8Replacement(content))
		fileMatches := map[int][]int{}
		for i, line := range lines {
			locs := re.FindAllStringIndex(line, -1)
			if len(locs) == 0 {
				continue
			}
			cols := make([]int, len(locs))
			for j, loc := range locs {
				cols[j] = loc[0]
			}
			fileMatches[i] = cols
		}
		if len(fileMatches) > 0 {
			matches[res.DisplayPath] = fileMatches
		}
	}

	out, err := json.Marshal(matches)
	if err != nil {
		c.a.log.LogErrln(err)
		return
	}
	c.a.log.Logln(string(out))
}

// echoCmd implements §6 `echo <text> [> file]`.
type echoCmd struct{ a *app }

func (c *echoCmd) Flags(fs *flag.FlagSet) *flag.FlagSet { return fs }

func (c *echoCmd) Run(args []string, _ map[string]*flag.Flag) {
	if len(args) == 0 {
		c.a.log.Logln("")
		return
	}

	redirectIdx := -1
	for i, a := range args {
		if a == ">" {
			redirectIdx = i
			break
		}
	}
	if redirectIdx == -1 {
		c.a.log.Logln(strings.Join(args, " "))
		return
	}
	if redirectIdx == len(args)-1 {
		c.a.log.LogErrln("echo: missing redirect target")
		return
	}

	text := strings.Join(args[:redirectIdx], " ")
	target := args[redirectIdx+1]

	ctx := context.Background()
	rec, err := c.a.currentShell()
	if err != nil {
		c.a.log.LogErrln(err)
		return
	}

	dir, base := splitVirtualTail(target)
	res, err := c.a.resolve.Resolve(ctx, dir, c.a.asResolverShell(rec))
	if err != nil {
		c.a.log.LogErrln(err)
		return
	}

	stageDir, err := os.MkdirTemp("", "gds-echo-*")
	if err != nil {
		c.a.log.LogErrln(err)
		return
	}
	defer os.RemoveAll(stageDir)

	localPath := filepath.Join(stageDir, base)
	if err := os.WriteFile(localPath, []byte(text), 0644); err != nil {
		c.a.log.LogErrln(err)
		return
	}

	if _, err := c.a.uploader.Upload(ctx, []string{localPath}, upload.Options{
		TargetVirtualPath: res.DisplayPath,
		TargetFolderId:    res.FolderId,
		Force:             true, // redirection overwrites an existing remote file
	}); err != nil {
		c.a.log.LogErrln(err)
		return
	}
	c.a.log.Logf("wrote %s/%s\n", res.DisplayPath, base)
}

// splitVirtualTail splits a virtual path into its parent directory and its
// final component, so a command writing a brand-new file can resolve the
// (existing) directory while choosing the (not yet existing) file name
// itself, since the resolver never creates what it walks.
func splitVirtualTail(target string) (dir string, base string) {
	clean := strings.TrimSuffix(target, "/")
	idx := strings.LastIndex(clean, "/")
	if idx < 0 {
		return "", clean
	}
	return clean[:idx], clean[idx+1:]
}

// pythonCmd implements §6 `python -c <code>` / `python <file> [args]`. The
// -c program is sent base64-encoded and decoded by an exec wrapper remotely.
type pythonCmd struct{ a *app }

func (c *pythonCmd) Flags(fs *flag.FlagSet) *flag.FlagSet { return fs }

func (c *pythonCmd) Run(args []string, _ map[string]*flag.Flag) {
	if len(args) == 0 {
		c.a.log.LogErrln("python: missing code or file")
		return
	}
	ctx := context.Background()
	rec, err := c.a.currentShell()
	if err != nil {
		c.a.log.LogErrln(err)
		return
	}
	remotePath := c.a.resolve.RemotePath(rec.CurrentVirtualPath)

	argv := args
	if args[0] == "-c" && len(args) < 2 {
		c.a.log.LogErrln("python -c: missing code")
		return
	}
	if args[0] == "-c" {
		encoded := base64.StdEncoding.EncodeToString([]byte(args[1]))
		wrapper := fmt.Sprintf("import base64;exec(base64.b64decode('%s').decode())", encoded)
		argv = append([]string{"-c", wrapper}, args[2:]...)
	}

	res, err := c.a.exec.Run(ctx, "python3", argv, remotePath, c.a.cfg.RemoteRoot(), "", executor.NewDebugBuffer())
	if err != nil {
		c.a.log.LogErrln(err)
		return
	}
	c.a.log.Logln(res.Stdout)
}

// pipCmd implements §6 `pip install|list|show|--show-deps <pkg...>`, a
// peripheral helper run through C7 like any other remote command, with
// `--show-deps` breaking the single-threaded rule for a small bounded
// worker pool of PyPI metadata lookups (§9).
type pipCmd struct{ a *app }

func (c *pipCmd) Flags(fs *flag.FlagSet) *flag.FlagSet {
	fs.Bool("show-deps", false, "resolve and print each package's declared dependencies")
	return fs
}

func (c *pipCmd) Run(args []string, definedFlags map[string]*flag.Flag) {
	if len(args) == 0 {
		c.a.log.LogErrln("pip: usage: pip install|list|show <pkg...>")
		return
	}
	ctx := context.Background()
	rec, err := c.a.currentShell()
	if err != nil {
		c.a.log.LogErrln(err)
		return
	}
	remotePath := c.a.resolve.RemotePath(rec.CurrentVirtualPath)

	if definedFlags["show-deps"] != nil && definedFlags["show-deps"].Value.String() == "true" {
		deps, err := fetchPackageDeps(ctx, args)
		if err != nil {
			c.a.log.LogErrln(err)
			return
		}
		out, err := json.Marshal(deps)
		if err != nil {
			c.a.log.LogErrln(err)
			return
		}
		c.a.log.Logln(string(out))
		return
	}

	res, err := c.a.exec.Run(ctx, "pip3", args, remotePath, c.a.cfg.RemoteRoot(), "", executor.NewDebugBuffer())
	if err != nil {
		c.a.log.LogErrln(err)
		return
	}
	c.a.log.Logln(res.Stdout)

	if args[0] != "install" {
		return
	}

	manifestRes, err := c.a.exec.Run(ctx, "pip3", []string{"freeze"}, remotePath, c.a.cfg.RemoteRoot(), "", executor.NewDebugBuffer())
	if err != nil {
		c.a.log.LogErrln(err)
		return
	}
	manifest := venv.ParseFreezeOutput(manifestRes.Stdout)

	env := ""
	if shellState, err := c.a.venv.Read(ctx, rec.CurrentVirtualPath); err == nil {
		if s := shellState.Shells[rec.Id]; s != nil {
			env = s.ActiveEnv
		}
	}
	if env == "" {
		env = "default"
	}

	added, upgraded, err := c.a.venv.RecordInstalls(ctx, rec.CurrentVirtualPath, env, manifest)
	if err != nil {
		c.a.log.LogErrln(err)
		return
	}
	if len(added) > 0 || len(upgraded) > 0 {
		c.a.log.Logf("pip: added=%v upgraded=%v\n", added, upgraded)
	}
}

// pypiPackageMetadata is the sliver of PyPI's JSON API response pip
// --show-deps needs.
type pypiPackageMetadata struct {
	Info struct {
		RequiresDist []string `json:"requires_dist"`
	} `json:"info"`
}

// maxDepsWorkers bounds the concurrent PyPI metadata lookups, the one
// exception to GDS's single-threaded rule (§9), matching the ≤5 the spec
// names for this peripheral helper.
const maxDepsWorkers = 5

func fetchPackageDeps(ctx context.Context, pkgs []string) (map[string][]string, error) {
	client := &http.Client{Timeout: 10 * time.Second}
	sem := make(chan struct{}, maxDepsWorkers)
	var mu sync.Mutex
	var wg sync.WaitGroup

	result := map[string][]string{}
	var firstErr error
	recordErr := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	for _, pkg := range pkgs {
		wg.Add(1)
		sem <- struct{}{}
		go func(pkg string) {
			defer wg.Done()
			defer func() { <-sem }()

			url := fmt.Sprintf("https://pypi.org/pypi/%s/json", pkg)
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				recordErr(err)
				return
			}
			resp, err := client.Do(req)
			if err != nil {
				recordErr(err)
				return
			}
			defer resp.Body.Close()

			var parsed pypiPackageMetadata
			if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
				recordErr(err)
				return
			}

			mu.Lock()
			result[pkg] = parsed.Info.RequiresDist
			mu.Unlock()
		}(pkg)
	}
	wg.Wait()

	if firstErr != nil && len(result) == 0 {
		return nil, firstErr
	}
	return result, nil
}

// joinVirtual appends a relative component to a base virtual path, leaving
// an already-absolute arg untouched — the resolver does the real component
// walk; this only decides what string to hand it.
func joinVirtual(base, arg string) string {
	if len(arg) > 0 && (arg[0] == '~' || arg[0] == '/') {
		return arg
	}
	if base == "~" {
		return "~/" + arg
	}
	return base + "/" + arg
}
