/*
Package cli provides command-line interface utilities for deepstore.

The cli package includes output formatters, a stage progress reporter,
exit code mapping and signal handling used by the deepstore command.

Output Formatting:

Results are printed as text or JSON. Types implementing Texter render
their own text form:

	formatter := cli.NewFormatter(cli.FormatJSON)
	if err := formatter.FormatTo(os.Stdout, report); err != nil {
		return err
	}

Progress Reporting:

The store command reports each stage of a run as it finishes:

	progress := cli.NewProgressReporter(os.Stderr)
	runner.OnStage = progress.Stage

Exit Codes:

ExitCode maps command errors to 0 (success), 1 (failure), 2 (invalid
configuration) and 3 (another run holds the lock).
*/
package cli
