// Package cli implements the hash command line: build, check, run, and
// watch over the compile pipeline.
package cli

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/hash-lang/hash/compile"
	"github.com/hash-lang/hash/hashlet"
)

// Version is stamped at build time.
var Version = "dev"

type app struct {
	noColor  bool
	cacheDir string
	repoDir  string
	output   string
}

// Execute runs the root command; main reports its error as exit status 1.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "hash",
		Short:         "Compile hash scripts to portable bash",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&a.noColor, "no-color", false, "Disable colored output")
	root.PersistentFlags().StringVar(&a.cacheDir, "cache-dir", defaultCacheDir(), "Hashlet cache directory")
	root.PersistentFlags().StringVar(&a.repoDir, "repo", "", "Local hashlet repository root")

	build := &cobra.Command{
		Use:   "build <script.hash>",
		Short: "Compile a script and write the generated bash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.build(cmd, args[0])
		},
	}
	build.Flags().StringVarP(&a.output, "output", "o", "", "Output file (default: <script>.sh)")

	check := &cobra.Command{
		Use:   "check <script.hash>",
		Short: "Compile without writing output, reporting all diagnostics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.check(cmd, args[0])
		},
	}

	run := &cobra.Command{
		Use:   "run <script.hash> [args...]",
		Short: "Compile and execute a script in one step",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, args[0], args[1:])
		},
	}

	watch := &cobra.Command{
		Use:   "watch <script.hash>",
		Short: "Recompile on every change to the script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.watch(cmd, args[0])
		},
	}

	root.AddCommand(build, check, run, watch)
	return root
}

func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "hash", "hashlets")
	}
	return ".hash-cache"
}

// options wires the hashlet resolver when a repository is configured.
func (a *app) options() (compile.Options, error) {
	if a.repoDir == "" {
		return compile.Options{}, nil
	}
	resolver, err := hashlet.NewResolver(&hashlet.DirFetcher{Root: a.repoDir}, a.cacheDir)
	if err != nil {
		return compile.Options{}, err
	}
	return compile.Options{Resolver: resolver}, nil
}

// compileFile runs the pipeline over one file and reports its diagnostics.
func (a *app) compileFile(cmd *cobra.Command, path string) (*compile.Result, error) {
	unit, err := compile.ReadUnit(path)
	if err != nil {
		return nil, err
	}
	opts, err := a.options()
	if err != nil {
		return nil, err
	}

	r := &reporter{out: cmd.ErrOrStderr(), useColor: shouldUseColor(a.noColor)}
	res, diags := compile.Compile(cmd.Context(), unit, opts)
	if r.report(path, diags) {
		return nil, fmt.Errorf("%s: compilation failed", path)
	}
	return res, nil
}

func (a *app) build(cmd *cobra.Command, path string) error {
	res, err := a.compileFile(cmd, path)
	if err != nil {
		return err
	}

	out := a.output
	if out == "" {
		out = strings.TrimSuffix(path, filepath.Ext(path)) + ".sh"
	}
	if err := os.WriteFile(out, []byte(res.Script), 0o755); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", path, out)
	return nil
}

func (a *app) check(cmd *cobra.Command, path string) error {
	res, err := a.compileFile(cmd, path)
	if err != nil {
		return err
	}
	if len(res.Warnings) == 0 {
		r := &reporter{out: cmd.OutOrStdout(), useColor: shouldUseColor(a.noColor)}
		r.ok(path)
	}
	return nil
}

func (a *app) run(cmd *cobra.Command, path string, args []string) error {
	res, err := a.compileFile(cmd, path)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp("", "hash-run-*.sh")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(res.Script); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	bash := exec.CommandContext(cmd.Context(), "bash", append([]string{tmp.Name()}, args...)...)
	bash.Stdin = os.Stdin
	bash.Stdout = cmd.OutOrStdout()
	bash.Stderr = cmd.ErrOrStderr()
	return bash.Run()
}

// watch recompiles on every write to the script. Editors often replace the
// file instead of writing in place, so the watch sits on the directory and
// filters events by name.
func (a *app) watch(cmd *cobra.Command, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return err
	}

	recompile := func() {
		if _, err := a.compileFile(cmd, path); err == nil {
			r := &reporter{out: cmd.OutOrStdout(), useColor: shouldUseColor(a.noColor)}
			r.ok(path)
		}
	}
	recompile()

	for {
		select {
		case <-cmd.Context().Done():
			return nil
		case event, open := <-watcher.Events:
			if !open {
				return nil
			}
			if event.Name != abs {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				recompile()
			}
		case err, open := <-watcher.Errors:
			if !open {
				return nil
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "watch: %v\n", err)
		}
	}
}
