package cli

import (
	"github.com/bwmarrin/snowflake"
	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/DikshantJangra/hoperxpharma-sub011/internal/authority"
	"github.com/DikshantJangra/hoperxpharma-sub011/internal/clock"
	"github.com/DikshantJangra/hoperxpharma-sub011/internal/config"
	"github.com/DikshantJangra/hoperxpharma-sub011/internal/migration"
	"github.com/DikshantJangra/hoperxpharma-sub011/internal/observability"
	"github.com/DikshantJangra/hoperxpharma-sub011/internal/server"
	"github.com/DikshantJangra/hoperxpharma-sub011/pkg/db"
)

type authorityOptions struct {
	NodeID int64
}

func NewAuthorityCommand(_ *RootOptions) *cobra.Command {
	opts := &authorityOptions{}
	cmd := &cobra.Command{
		Use:   "authority",
		Short: "Reference purchase order authority",
	}
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve the authority HTTP API until interrupted",
		Long: `Serve the reference authority. Listen address, database and auth
come from AUTHORITY_ADDR, DATABASE_* and AUTHORITY_JWT_SECRET / AUTHORITY_TOKEN.
Approver roles come from AUTHORITY_APPROVER_ROLES, e.g. "ann=manager,bob=manager".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app := newAuthorityApp(opts)
			if err := app.Err(); err != nil {
				return WrapExitError(ExitCommandError, "authority wiring", err)
			}
			app.Run()
			return nil
		},
	}
	serve.Flags().Int64Var(&opts.NodeID, "node", 1, "snowflake node id of this replica")
	cmd.AddCommand(serve)
	return cmd
}

// newAuthorityApp assembles the authority server.
func newAuthorityApp(opts *authorityOptions) *fx.App {
	return fx.New(
		config.Module,
		observability.Module,
		clock.Module,
		fx.Provide(func() (*snowflake.Node, error) {
			return snowflake.NewNode(opts.NodeID)
		}),
		db.Module,
		migration.Module,
		authority.Module,
		server.Module,
	)
}
