// Package cli implements the civicstore operator command line.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/civicstore/internal/logging"
	"github.com/mesh-intelligence/civicstore/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// Version is set at build time with -ldflags "-X ...cli.Version=...".
var Version = "0.1.0-dev"

// rootFlags holds global flag values.
type rootFlags struct {
	configDir string
	dataDir   string
	jsonMode  bool
	verbose   bool
	metrics   bool
}

// app is the state shared by one command invocation.
type app struct {
	flags  rootFlags
	cfg    types.Config
	logger *zap.Logger
	stderr io.Writer
}

// NewRootCmd creates the civicstore command tree. Each call returns an
// independent tree, so tests can run commands side by side.
func NewRootCmd() *cobra.Command {
	a := &app{logger: zap.NewNop(), stderr: os.Stderr}

	root := &cobra.Command{
		Use:   "civicstore",
		Short: "Record store access for the municipal operations portal",
		Long: "civicstore provisions the portal's lists and folders, reads and writes\n" +
			"records through a short-lived cache, records governed public records\n" +
			"requests and replays writes queued while the store was unreachable.",
		Version:           Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.logger.Sync()
		},
	}
	a.stderr = root.ErrOrStderr()

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.configDir, "config-dir", "", "configuration directory (default: platform config dir)")
	pf.StringVar(&a.flags.dataDir, "data-dir", "", "data directory (default: platform data dir)")
	pf.BoolVar(&a.flags.jsonMode, "json", false, "output as JSON")
	pf.BoolVarP(&a.flags.verbose, "verbose", "v", false, "debug logging")
	pf.BoolVar(&a.flags.metrics, "metrics", false, "print collected metrics to stderr on exit")

	root.AddCommand(
		newVersionCmd(),
		newInitCmd(a),
		newProvisionCmd(a),
		newListCmd(a),
		newGetCmd(a),
		newCreateCmd(a),
		newUpdateCmd(a),
		newDeleteCmd(a),
		newIntakeCmd(a),
		newQueueCmd(a),
		newDeadlineCmd(a),
		newCaseIDCmd(a),
		newFiscalYearCmd(a),
	)
	return root
}

// setup loads configuration and builds the logger. Commands that need no
// configuration skip it.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	a.stderr = cmd.ErrOrStderr()
	if cmd.Annotations[annotationNoConfig] == "true" {
		return nil
	}

	configDir, err := a.configDir()
	if err != nil {
		return err
	}
	cfg, err := loadConfig(configDir)
	if err != nil {
		return err
	}
	a.cfg = cfg

	level := cfg.Log.Level
	if a.flags.verbose {
		level = "debug"
	}
	logger, err := logging.New(level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	a.logger = logger
	return nil
}

const annotationNoConfig = "civicstore/no-config"

func noConfig() map[string]string {
	return map[string]string{annotationNoConfig: "true"}
}

// Execute runs the root command and exits with a code reflecting the error
// kind: user errors (bad input, missing records) exit 1, everything else 2.
func Execute() {
	root := NewRootCmd()
	err := root.Execute()
	if err == nil {
		os.Exit(exitSuccess)
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	switch types.Kind(err) {
	case types.KindValidation, types.KindNotFound, types.KindConflict:
		return exitUserError
	}
	if errors.Is(err, errUsage) {
		return exitUserError
	}
	return exitSysError
}

// errUsage marks malformed command-line input.
var errUsage = errors.New("invalid usage")

func usageErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errUsage, fmt.Sprintf(format, args...))
}
