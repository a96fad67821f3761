package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/DikshantJangra/hoperxpharma-sub011/internal/clock"
	"github.com/DikshantJangra/hoperxpharma-sub011/internal/config"
	"github.com/DikshantJangra/hoperxpharma-sub011/internal/purchaseorder"
	"github.com/DikshantJangra/hoperxpharma-sub011/internal/purchaseorder/composer"
	"github.com/DikshantJangra/hoperxpharma-sub011/internal/purchaseorder/domain"
	taxdomain "github.com/DikshantJangra/hoperxpharma-sub011/internal/tax/domain"
)

type composeOptions struct {
	OrderID   string
	Save      bool
	Send      bool
	Channel   string
	Approvers []string
	Note      string
}

func NewComposeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &composeOptions{}
	cmd := &cobra.Command{
		Use:   "compose <fixture.yml>",
		Short: "Compose a purchase order from a fixture in a composer session",
		Long: `Open a composer session, apply the fixture's supplier, meta and lines,
and keep the result as a local draft.

--save creates or updates the order on the authority (AUTHORITY_BASE_URL),
--send dispatches it to the supplier and --approver submits it for
approval instead. A restored local draft for the same order is replaced
by the fixture.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompose(rootOpts, opts, args[0], cmd)
		},
	}
	cmd.Flags().StringVar(&opts.OrderID, "order", "", "remote order id to edit; empty starts a new order")
	cmd.Flags().BoolVar(&opts.Save, "save", false, "save the order on the authority")
	cmd.Flags().BoolVar(&opts.Send, "send", false, "send the order to the supplier")
	cmd.Flags().StringVar(&opts.Channel, "channel", "email", "send channel")
	cmd.Flags().StringSliceVar(&opts.Approvers, "approver", nil, "request approval from these subjects or roles")
	cmd.Flags().StringVar(&opts.Note, "note", "", "approval note")
	return cmd
}

type composeView struct {
	DraftKey   string                  `json:"draft_key"`
	Restored   bool                    `json:"restored"`
	SaveStatus domain.SaveStatus       `json:"save_status"`
	Document   domain.Document         `json:"document"`
	Totals     taxdomain.Totals        `json:"totals"`
	Validation domain.ValidationResult `json:"validation"`
	Notices    []string                `json:"notices,omitempty"`
}

// noticeLog collects notices raised during the session.
type noticeLog struct {
	domain.NopListener
	mu      sync.Mutex
	notices []string
}

func (l *noticeLog) Notice(n domain.Notice) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notices = append(l.notices, fmt.Sprintf("%s: %s", n.Kind, n.Message))
}

func (l *noticeLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.notices...)
}

func runCompose(rootOpts *RootOptions, opts *composeOptions, path string, cmd *cobra.Command) error {
	out := &outputFormatter{format: rootOpts.Format, w: cmd.OutOrStdout(), errWriter: cmd.ErrOrStderr(), verbose: rootOpts.Verbose}
	if opts.Send && len(opts.Approvers) > 0 {
		return &ExitError{Code: ExitCommandError, Message: "--send and --approver are mutually exclusive"}
	}

	fixture, err := loadFixture(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid fixture", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	var (
		cfg     config.Config
		factory *composer.Factory
	)
	app := fx.New(
		fx.NopLogger,
		fx.Provide(config.Load),
		fx.Provide(zap.NewNop),
		fx.Provide(func(cfg config.Config, log *zap.Logger) (*config.ComposerConfigHolder, error) {
			if rootOpts.Config != "" {
				cfg.ComposerConfigPath = rootOpts.Config
			}
			return config.NewComposerConfigHolder(cfg, log)
		}),
		clock.Module,
		purchaseorder.Module,
		fx.Populate(&cfg, &factory),
	)
	if err := app.Err(); err != nil {
		return WrapExitError(ExitCommandError, "composer unavailable", err)
	}
	if err := app.Start(ctx); err != nil {
		return WrapExitError(ExitCommandError, "composer unavailable", err)
	}
	defer func() { _ = app.Stop(context.Background()) }()

	storeID := fixture.StoreID
	if storeID == "" || storeID == "local" {
		if cfg.StoreID != "" {
			storeID = cfg.StoreID
		}
	}
	notices := &noticeLog{}
	session, err := factory.New(storeID, notices)
	if err != nil {
		return WrapExitError(ExitCommandError, "open composer", err)
	}
	defer session.Close()

	opened, err := session.Open(ctx, composer.OpenRequest{OrderID: strings.TrimSpace(opts.OrderID)})
	if err != nil {
		return WrapExitError(ExitCommandError, "open order", err)
	}
	if opened.Restored {
		out.verboseLog("replacing restored draft with %d line(s)", len(opened.Document.Lines))
	}
	if err := applyFixture(session, opened.Document, fixture); err != nil {
		return WrapExitError(ExitCommandError, "apply fixture", err)
	}

	var runErr error
	switch {
	case opts.Send:
		_, runErr = session.Send(ctx, domain.SendRequest{Channel: opts.Channel, Format: "pdf"})
	case len(opts.Approvers) > 0:
		_, runErr = session.RequestApproval(ctx, domain.ApprovalRequest{Approvers: opts.Approvers, Note: opts.Note})
	case opts.Save:
		_, runErr = session.SaveDraft(ctx)
	}

	doc := session.Document()
	view := composeView{
		DraftKey:   session.DraftKey(),
		Restored:   opened.Restored,
		SaveStatus: session.SaveStatus(),
		Document:   doc,
		Totals:     doc.Totals(),
		Validation: session.Validation(),
		Notices:    notices.all(),
	}
	status := "ok"
	if runErr != nil {
		status = "failed"
	}
	if err := out.emit(status, view, func(w io.Writer) { writeCompose(w, view) }); err != nil {
		return err
	}
	if runErr != nil {
		return WrapExitError(ExitFailure, "authority request failed", runErr)
	}
	return nil
}

// applyFixture replaces the session's supplier, meta and lines with the
// fixture's.
func applyFixture(session *composer.Composer, current domain.Document, fixture domain.Document) error {
	for _, line := range current.Lines {
		if err := session.RemoveLine(line.ID); err != nil {
			return err
		}
	}
	if fixture.Supplier != nil {
		if err := session.SetSupplier(fixture.Supplier); err != nil {
			return err
		}
	}
	if err := session.SetMeta(fixture.Meta); err != nil {
		return err
	}
	for i, line := range fixture.Lines {
		if _, err := session.AddLine(domain.LineInput{
			CatalogRef:      line.CatalogRef,
			Description:     line.Description,
			Quantity:        line.Quantity,
			UnitPrice:       line.UnitPrice,
			DiscountPercent: line.DiscountPercent,
			TaxRate:         line.TaxRate,
			LastPrice:       line.LastPrice,
		}); err != nil {
			return fmt.Errorf("line %d: %w", i+1, err)
		}
	}
	return nil
}

func writeCompose(w io.Writer, view composeView) {
	fmt.Fprintf(w, "Draft %s (%s, %s)\n", view.DraftKey, view.Document.Status, view.SaveStatus)
	if view.Document.ID != "" {
		fmt.Fprintf(w, "Order %s %s\n", view.Document.ID, view.Document.Number)
	}
	if view.Document.Supplier != nil {
		fmt.Fprintf(w, "Supplier %s %s\n", view.Document.Supplier.ID, view.Document.Supplier.Name)
	}
	fmt.Fprintf(w, "%d line(s)\n", len(view.Document.Lines))
	writeTotals(w, view.Totals)
	writeValidation(w, view.Validation)
	for _, n := range view.Notices {
		fmt.Fprintln(w, n)
	}
}
