package worker

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ordersync/internal/config"
	"ordersync/internal/models"
	"ordersync/internal/platform"
)

// Loader is the persistence boundary. Satisfied by store.Store.
type Loader interface {
	ListKnownOrderIDs(ctx context.Context, platform models.Platform) (map[string]struct{}, error)
	BulkInsert(ctx context.Context, orders []models.Order, items []models.LineItem) error
}

// Per-platform pipeline states. Failed is terminal for the platform only;
// the other platforms keep running.
type runState string

const (
	stateIdle           runState = "idle"
	stateAuthenticating runState = "authenticating"
	stateFetching       runState = "fetching"
	stateNormalizing    runState = "normalizing"
	stateDone           runState = "done"
	stateFailed         runState = "failed"
)

// Worker runs one sync pass over all configured platforms and performs a
// single bulk insert of everything the succeeded platforms produced.
type Worker struct {
	Loader  Loader
	Sources []platform.Source
	Config  *config.Config
	Log     *zap.Logger
}

type platformRun struct {
	source platform.Source
	state  runState
	log    *zap.Logger
}

func (r *platformRun) step(next runState) {
	r.log.Debug("state transition",
		zap.String("from", string(r.state)),
		zap.String("to", string(next)))
	r.state = next
}

// fail logs the failure with its stage and cause; the error stops here and
// never crosses into another platform's pipeline.
func (r *platformRun) fail(err error) {
	r.log.Error("platform sync failed",
		zap.String("stage", string(r.state)),
		zap.Error(err))
	r.state = stateFailed
}

// SyncOnce drives every platform through authenticate → fetch → normalize,
// then inserts all gathered rows at once. Watermarks advance in memory per
// succeeded platform and are persisted only after the insert commits, so a
// failed run re-fetches the same window next time.
func (w *Worker) SyncOnce(ctx context.Context) error {
	log := w.Log.With(zap.String("run_id", uuid.NewString()))

	var orders []models.Order
	var items []models.LineItem
	watermarks := map[models.Platform]string{}

	for _, src := range w.Sources {
		run := &platformRun{
			source: src,
			state:  stateIdle,
			log:    log.With(zap.String("platform", string(src.Platform()))),
		}

		run.step(stateAuthenticating)
		if err := src.Authenticate(ctx); err != nil {
			run.fail(err)
			continue
		}

		run.step(stateFetching)
		known, err := w.Loader.ListKnownOrderIDs(ctx, src.Platform())
		if err != nil {
			run.fail(err)
			continue
		}
		fetched, err := src.Fetch(ctx, known)
		if err != nil {
			run.fail(err)
			continue
		}

		run.step(stateNormalizing)
		batch, err := src.Normalize()
		if err != nil {
			run.fail(err)
			continue
		}

		run.step(stateDone)
		run.log.Info("platform sync done",
			zap.Int("fetched", fetched),
			zap.Int("orders", len(batch.Orders)),
			zap.Int("line_items", len(batch.Items)))

		orders = append(orders, batch.Orders...)
		items = append(items, batch.Items...)
		if batch.Watermark != "" {
			watermarks[src.Platform()] = batch.Watermark
		}
	}

	if len(orders) == 0 {
		log.Info("no new orders")
		return nil
	}

	if err := w.Loader.BulkInsert(ctx, orders, items); err != nil {
		log.Error("bulk insert failed", zap.Error(err))
		return err
	}
	log.Info("run complete",
		zap.Int("orders", len(orders)),
		zap.Int("line_items", len(items)))

	if len(watermarks) == 0 {
		return nil
	}
	for p, mark := range watermarks {
		if err := w.Config.SetWatermark(p, mark); err != nil {
			log.Error("watermark advance failed", zap.String("platform", string(p)), zap.Error(err))
			return err
		}
	}
	if err := w.Config.Save(); err != nil {
		log.Error("watermark persist failed", zap.Error(err))
		return err
	}
	return nil
}
