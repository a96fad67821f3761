// Package purchaseorder wires the composer with its local draft store, the
// draft purge scheduler and the remote authority client.
package purchaseorder

import (
	"go.uber.org/fx"

	"github.com/DikshantJangra/hoperxpharma-sub011/internal/draftstore"
	"github.com/DikshantJangra/hoperxpharma-sub011/internal/purchaseorder/composer"
	"github.com/DikshantJangra/hoperxpharma-sub011/internal/purchaseorder/domain"
	"github.com/DikshantJangra/hoperxpharma-sub011/internal/remote"
	"github.com/DikshantJangra/hoperxpharma-sub011/internal/scheduler"
)

var Module = fx.Module("purchaseorder",
	draftstore.Module,
	remote.Module,
	scheduler.Module,
	fx.Provide(provideDraftStore),
	fx.Provide(composer.NewFactory),
)

func provideDraftStore(s draftstore.Store) domain.DraftStore {
	return s
}
