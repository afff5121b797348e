package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"sugarwatch/internal/etl"
	"sugarwatch/internal/scheduler"
	"sugarwatch/internal/storage"
)

// Once executes a single synchronous pipeline run and prints the result.
func (a *App) Once(ctx context.Context) error {
	store, pool, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if a.Config.Database.RunMigrations {
		if err := storage.RunMigrations(ctx, pool); err != nil {
			return err
		}
	}

	sched := scheduler.New(a.Config.Location(), a.Logger)
	svc := a.newService(a.newPipeline(store), sched, store)

	result, err := svc.RunOnce(ctx)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(result); err != nil {
		return err
	}

	if result.Status == etl.StatusError {
		return fmt.Errorf("pipeline run failed: %s", result.Detail)
	}
	return nil
}
