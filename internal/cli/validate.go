package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/DikshantJangra/hoperxpharma-sub011/internal/config"
	"github.com/DikshantJangra/hoperxpharma-sub011/internal/purchaseorder/domain"
	"github.com/DikshantJangra/hoperxpharma-sub011/internal/purchaseorder/validation"
)

func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <fixture.yml>",
		Short: "Report blocking errors and warnings for a document fixture",
		Long: `Validate a purchase order fixture with the same rules the composer uses.

Warning rules and the price deviation threshold come from composer.yml
(--config, or ./composer.yml when present). Exits 1 when the document
has blocking errors.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	out := &outputFormatter{format: opts.Format, w: cmd.OutOrStdout(), errWriter: cmd.ErrOrStderr(), verbose: opts.Verbose}

	settings, err := composerSettings(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid composer config", err)
	}
	pipeline, err := validation.FromConfig(settings)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid warning rules", err)
	}

	doc, err := loadFixture(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid fixture", err)
	}
	out.verboseLog("validating %d line(s) with %d warning rule(s)", len(doc.Lines), len(settings.WarningRules))

	result := pipeline.Validate(doc)
	status := "ok"
	if !result.Valid() {
		status = "invalid"
	}
	if err := out.emit(status, result, func(w io.Writer) { writeValidation(w, result) }); err != nil {
		return err
	}
	if !result.Valid() {
		return &ExitError{Code: ExitFailure, Message: fmt.Sprintf("%d blocking error(s)", len(result.Errors))}
	}
	return nil
}

func composerSettings(path string) (config.ComposerConfig, error) {
	if path == "" {
		return config.DefaultComposerConfig(), nil
	}
	holder, err := config.NewComposerConfigHolder(config.Config{ComposerConfigPath: path}, zap.NewNop())
	if err != nil {
		return config.ComposerConfig{}, err
	}
	return holder.Get(), nil
}

func writeValidation(w io.Writer, result domain.ValidationResult) {
	if result.Valid() {
		fmt.Fprintln(w, "Document is valid")
	}
	for _, issue := range result.Errors {
		fmt.Fprintf(w, "error   %-22s %s\n", issue.Code, issue.Message)
	}
	for _, issue := range result.Warnings {
		fmt.Fprintf(w, "warning %-22s %s\n", issue.Code, issue.Message)
	}
}
