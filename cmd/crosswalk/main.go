// Command crosswalk builds crosswalks between the Swiss municipality
// identities valid at two dates, caches the federal register and serves
// the result over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"crosswalk/internal/config"
	"crosswalk/internal/export"
	"crosswalk/pkg/domain"
)

var exitFunc = os.Exit

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	exitFunc(code)
}

// usageError marks errors caused by the command line itself.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

// cli runs the command tree and maps the outcome to an exit code: 0 on
// success, 2 for invalid usage or parameters, 1 for every other failure.
func cli(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root, a := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	err := errors.Join(root.ExecuteContext(ctx), a.close())
	if err == nil {
		return 0
	}
	if _, writeErr := fmt.Fprintf(stderr, "crosswalk: %v\n", err); writeErr != nil {
		return 1
	}
	var uerr usageError
	if errors.As(err, &uerr) || domain.IsConfigError(err) || errors.Is(err, export.ErrUnsupportedFormat) {
		return 2
	}
	return 1
}

func newRootCmd(stdout, stderr io.Writer) (*cobra.Command, *app) {
	a := &app{stdout: stdout, stderr: stderr}
	root := &cobra.Command{
		Use:           "crosswalk",
		Short:         "Map Swiss municipality identities between two dates",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.Context())
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return usageError{err} })

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", os.Getenv(config.EnvConfigFile), "YAML configuration file")
	flags.StringVar(&a.logFormat, "log-format", "", "log format: text or json")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error")

	root.AddCommand(newResolveCmd(a), newImportCmd(a), newServeCmd(a))
	return root, a
}
