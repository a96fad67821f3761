package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/DikshantJangra/hoperxpharma-sub011/internal/clock"
	"github.com/DikshantJangra/hoperxpharma-sub011/internal/config"
	"github.com/DikshantJangra/hoperxpharma-sub011/internal/draftstore"
	"github.com/DikshantJangra/hoperxpharma-sub011/internal/purchaseorder/domain"
	"github.com/DikshantJangra/hoperxpharma-sub011/internal/scheduler"
	taxdomain "github.com/DikshantJangra/hoperxpharma-sub011/internal/tax/domain"
)

type draftOptions struct {
	StoreID string
	OrderID string
}

// NewDraftCommand groups commands over the local draft store configured by
// DRAFT_STORE and friends.
func NewDraftCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &draftOptions{}
	cmd := &cobra.Command{
		Use:   "draft",
		Short: "Inspect and remove locally persisted drafts",
	}
	cmd.PersistentFlags().StringVar(&opts.StoreID, "store", "", "store id (defaults to STORE_ID)")
	cmd.PersistentFlags().StringVar(&opts.OrderID, "order", "", "remote order id; empty addresses the new-order draft")

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print a stored draft",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDraftStore(cmd.Context(), func(cfg config.Config, store draftstore.Store) error {
				return runDraftShow(rootOpts, opts, cfg, store, cmd)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored draft keys of a store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDraftStore(cmd.Context(), func(cfg config.Config, store draftstore.Store) error {
				return runDraftList(rootOpts, opts, cfg, store, cmd)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "discard",
		Short: "Remove a stored draft",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDraftStore(cmd.Context(), func(cfg config.Config, store draftstore.Store) error {
				return runDraftDiscard(rootOpts, opts, cfg, store, cmd)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Remove expired drafts of every store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDraftStore(cmd.Context(), func(cfg config.Config, store draftstore.Store) error {
				return runDraftPurge(rootOpts, store, cmd)
			})
		},
	})
	return cmd
}

// withDraftStore starts a minimal fx app owning the draft store for the
// duration of fn.
func withDraftStore(ctx context.Context, fn func(config.Config, draftstore.Store) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var (
		cfg   config.Config
		store draftstore.Store
	)
	app := fx.New(
		fx.NopLogger,
		fx.Provide(config.Load),
		fx.Provide(zap.NewNop),
		clock.Module,
		draftstore.Module,
		fx.Populate(&cfg, &store),
	)
	if err := app.Err(); err != nil {
		return WrapExitError(ExitCommandError, "draft store unavailable", err)
	}
	if err := app.Start(ctx); err != nil {
		return WrapExitError(ExitCommandError, "draft store unavailable", err)
	}
	defer func() { _ = app.Stop(context.Background()) }()

	return fn(cfg, store)
}

func draftKey(opts *draftOptions, cfg config.Config) (string, string, error) {
	storeID := strings.TrimSpace(opts.StoreID)
	if storeID == "" {
		storeID = cfg.StoreID
	}
	if storeID == "" {
		return "", "", WrapExitError(ExitCommandError, "store is required", domain.ErrInvalidStore)
	}
	return storeID, draftstore.Key(storeID, opts.OrderID), nil
}

type draftView struct {
	Key      string           `json:"key"`
	Document domain.Document  `json:"document"`
	Totals   taxdomain.Totals `json:"totals"`
}

func runDraftShow(rootOpts *RootOptions, opts *draftOptions, cfg config.Config, store draftstore.Store, cmd *cobra.Command) error {
	out := &outputFormatter{format: rootOpts.Format, w: cmd.OutOrStdout(), errWriter: cmd.ErrOrStderr(), verbose: rootOpts.Verbose}
	_, key, err := draftKey(opts, cfg)
	if err != nil {
		return err
	}
	doc, err := store.Load(cmd.Context(), key)
	if err != nil {
		return WrapExitError(ExitCommandError, "read draft", err)
	}
	if doc == nil {
		return WrapExitError(ExitFailure, fmt.Sprintf("no draft stored under %s", key), nil)
	}

	view := draftView{Key: key, Document: *doc, Totals: doc.Totals()}
	return out.emit("ok", view, func(w io.Writer) {
		fmt.Fprintf(w, "Draft %s (%s)\n", key, doc.Status)
		if doc.ID != "" {
			fmt.Fprintf(w, "Order %s %s\n", doc.ID, doc.Number)
		}
		if doc.Supplier != nil {
			fmt.Fprintf(w, "Supplier %s %s\n", doc.Supplier.ID, doc.Supplier.Name)
		}
		for i, line := range doc.Lines {
			fmt.Fprintf(w, "%3d. %-16s qty %s @ %s disc %s%% tax %s\n",
				i+1, line.CatalogRef, line.Quantity.String(),
				line.UnitPrice.StringFixed(taxdomain.MinorUnitPlaces),
				line.DiscountPercent.String(), line.TaxRate)
		}
		writeTotals(w, view.Totals)
	})
}

func runDraftList(rootOpts *RootOptions, opts *draftOptions, cfg config.Config, store draftstore.Store, cmd *cobra.Command) error {
	out := &outputFormatter{format: rootOpts.Format, w: cmd.OutOrStdout(), errWriter: cmd.ErrOrStderr(), verbose: rootOpts.Verbose}
	storeID, _, err := draftKey(opts, cfg)
	if err != nil {
		return err
	}
	keys, err := store.Keys(cmd.Context(), storeID)
	if err != nil {
		return WrapExitError(ExitCommandError, "list drafts", err)
	}
	return out.emit("ok", keys, func(w io.Writer) {
		for _, key := range keys {
			fmt.Fprintln(w, key)
		}
	})
}

func runDraftDiscard(rootOpts *RootOptions, opts *draftOptions, cfg config.Config, store draftstore.Store, cmd *cobra.Command) error {
	out := &outputFormatter{format: rootOpts.Format, w: cmd.OutOrStdout(), errWriter: cmd.ErrOrStderr(), verbose: rootOpts.Verbose}
	_, key, err := draftKey(opts, cfg)
	if err != nil {
		return err
	}
	if err := store.Delete(cmd.Context(), key); err != nil {
		return WrapExitError(ExitCommandError, "discard draft", err)
	}
	return out.emit("ok", map[string]string{"discarded": key}, func(w io.Writer) {
		fmt.Fprintf(w, "Discarded %s\n", key)
	})
}

func runDraftPurge(rootOpts *RootOptions, store draftstore.Store, cmd *cobra.Command) error {
	out := &outputFormatter{format: rootOpts.Format, w: cmd.OutOrStdout(), errWriter: cmd.ErrOrStderr(), verbose: rootOpts.Verbose}
	sched, err := scheduler.New(scheduler.Params{Store: store, Log: zap.NewNop(), Clock: clock.New()})
	if err != nil {
		return WrapExitError(ExitCommandError, "purge drafts", err)
	}
	if !sched.Enabled() {
		out.verboseLog("draft store expires entries natively")
	}
	removed, err := sched.PurgeExpired(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "purge drafts", err)
	}
	return out.emit("ok", map[string]int64{"purged": removed}, func(w io.Writer) {
		fmt.Fprintf(w, "Purged %d expired draft(s)\n", removed)
	})
}
