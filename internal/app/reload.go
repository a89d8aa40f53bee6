package app

import (
	"context"
	"errors"
	"log/slog"

	"github.com/MrWong99/voxbridge/internal/config"
	"github.com/MrWong99/voxbridge/internal/pipeline"
)

// ApplyDiff applies the hot-reloadable part of a config change to the
// running app. It is meant as the body of a [config.ChangeFunc]. Fields that
// need a restart are ignored here; the watcher already warned about them.
func (a *App) ApplyDiff(ctx context.Context, d config.ConfigDiff) error {
	var errs []error

	if d.LogLevelChanged {
		if a.logLevel != nil {
			a.logLevel.Set(d.NewLogLevel.Level())
		}
		slog.Info("config reload: log level changed", "level", d.NewLogLevel)
	}

	if d.GateChanged {
		a.gate.SetVerbs(d.NewVerbs)
		slog.Info("config reload: gate verbs changed", "languages", len(d.NewVerbs))
	}

	if d.GlossaryChanged {
		a.glossary.SetTerms(d.NewTerms)
		slog.Info("config reload: glossary changed", "terms", len(d.NewTerms))
	}

	if d.DraftChanged {
		err := a.pipe.SetDraft(ctx, pipeline.DraftConfig{
			Enabled: d.NewDraftEnabled,
			Cadence: d.NewDraftCadence,
		})
		if err != nil {
			errs = append(errs, err)
		}
	}

	if d.EnvironmentChanged {
		var err error
		if d.NewEnvironment == "" {
			err = a.pipe.ResetAdaptation(ctx)
		} else {
			err = a.pipe.ForceEnvironment(ctx, d.NewEnvironment.Environment())
		}
		if err != nil {
			errs = append(errs, err)
		} else {
			slog.Info("config reload: environment changed", "environment", d.NewEnvironment)
		}
	}

	return errors.Join(errs...)
}
