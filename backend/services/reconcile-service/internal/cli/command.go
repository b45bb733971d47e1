package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"expolis/backend/services/reconcile-service/internal/app"
	"expolis/backend/services/reconcile-service/internal/config"
	"expolis/backend/services/reconcile-service/internal/parser"
	"expolis/backend/services/reconcile-service/internal/service"
)

// Process exit codes.
const (
	ExitOK          = 0
	ExitFileMissing = 1
	ExitNotRegular  = 2
	ExitOpenFailed  = 3
	ExitMalformed   = 4
	ExitStore       = 5
	ExitSetup       = 6
	ExitUsage       = 64
	ExitInterrupted = 130
)

// ExitError carries the process exit code for a failed run.
// Printed is set when the message already went to stdout.
type ExitError struct {
	Code    int
	Err     error
	Printed bool
}

func (e *ExitError) Error() string { return e.Err.Error() }

func (e *ExitError) Unwrap() error { return e.Err }

// ExitCode maps an error returned by Execute to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitUsage
}

// Printed reports whether the message of err was already written to stdout.
func Printed(err error) bool {
	var exitErr *ExitError
	return errors.As(err, &exitErr) && exitErr.Printed
}

// AppFactory builds the application once configuration is known.
type AppFactory func(cfg *config.Config, logger *zap.Logger) (*app.App, error)

// Command holds the dependencies of the compare-csv command line.
type Command struct {
	Stdout     io.Writer
	Logger     *zap.Logger
	NewApp     AppFactory
	LoadConfig func(path string) (*config.Config, error)

	configFile    string
	report        bool
	skipMalformed bool
	exportPath    string
}

// New returns a Command writing reports to stdout and using the real store.
func New(logger *zap.Logger) *Command {
	return &Command{
		Stdout:     os.Stdout,
		Logger:     logger,
		NewApp:     app.New,
		LoadConfig: config.Load,
	}
}

// Execute runs the command line with args.
func (c *Command) Execute(ctx context.Context, args []string) error {
	root := c.rootCommand()
	root.SetArgs(args)
	root.SetOut(c.Stdout)
	return root.ExecuteContext(ctx)
}

func (c *Command) rootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare-csv ID FILENAME",
		Short: "Compare a sensor node CSV file with the ExpoLIS database",
		Long: `Compare the data in a CSV file generated by a sensor node with the data
stored in the ExpoLIS database.

ID is the integer topic number identifying the sensor node and FILENAME the
file exported by the node. A single summary line is printed on stdout.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          c.run,
	}

	cmd.Flags().BoolVar(&c.report, "report", false, "also list every row missing from the database")
	cmd.Flags().BoolVar(&c.skipMalformed, "skip-malformed", false, "count malformed rows instead of aborting")
	cmd.Flags().StringVar(&c.exportPath, "export", "", "write missing rows to this .xlsx file")
	cmd.Flags().StringVar(&c.configFile, "config", "", "YAML config file (default $CONFIG_FILE)")

	return cmd
}

func (c *Command) run(cmd *cobra.Command, args []string) error {
	sensorID, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid sensor node id %q: %w", args[0], err)
	}
	fileName := args[1]

	out := cmd.OutOrStdout()

	info, err := os.Stat(fileName)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fileError(out, ExitFileMissing, fmt.Errorf("File %s does not exist!", fileName))
		}
		return fileError(out, ExitOpenFailed, fmt.Errorf("Could not open file %s!.", fileName))
	}
	if !info.Mode().IsRegular() {
		return fileError(out, ExitNotRegular, fmt.Errorf("File %s is not a regular file!", fileName))
	}

	cfg, err := c.LoadConfig(c.configFile)
	if err != nil {
		return &ExitError{Code: ExitSetup, Err: err}
	}
	if c.skipMalformed {
		cfg.Reconcile.SkipMalformed = true
	}

	application, err := c.NewApp(cfg, c.Logger)
	if err != nil {
		return &ExitError{Code: ExitSetup, Err: fmt.Errorf("failed to init application: %w", err)}
	}
	defer application.Close()

	fd, err := os.Open(fileName)
	if err != nil {
		c.Logger.Debug("open failed", zap.String("file", fileName), zap.Error(err))
		return fileError(out, ExitOpenFailed, fmt.Errorf("Could not open file %s!.", fileName))
	}
	defer fd.Close()

	result, err := application.Reconcile(cmd.Context(), app.Run{
		SensorID:   sensorID,
		FileName:   fileName,
		Input:      fd,
		Report:     c.report,
		ExportPath: c.exportPath,
	}, out)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		return &ExitError{Code: ExitInterrupted, Err: err}
	case errors.Is(err, parser.ErrMalformedLine):
		return &ExitError{Code: ExitMalformed, Err: err}
	case errors.Is(err, service.ErrStore):
		return &ExitError{Code: ExitStore, Err: err}
	default:
		return &ExitError{Code: ExitSetup, Err: err}
	}

	// Missing rows are reported, not turned into a failing exit status.
	c.Logger.Debug("run complete", zap.Bool("ok", result.Tally.OK()))
	return nil
}

// fileError reports an input file problem on stdout, where the node operator
// reads the summary line.
func fileError(out io.Writer, code int, err error) *ExitError {
	fmt.Fprintln(out, err)
	return &ExitError{Code: code, Err: err, Printed: true}
}
