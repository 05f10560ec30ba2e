package watcher

import (
	"context"

	"github.com/rs/zerolog"

	"iotexplorer/internal/codec"
	"iotexplorer/internal/domain"
)

// WatchDescriptors reloads the device-types file whenever it changes and
// hands each valid table to apply. A file that fails to load or validate is
// logged and the previous table stays in effect.
func WatchDescriptors(ctx context.Context, path string, apply func(domain.DescriptorTable), logger zerolog.Logger) error {
	reload := func() {
		table, err := codec.LoadDescriptorFile(path)
		if err != nil {
			logger.Error().Err(err).Str("path", path).Msg("Rejected device types file, keeping previous table")
			return
		}
		apply(table)
		logger.Info().Strs("types", table.Types()).Msg("Reloaded device types")
	}
	return New(path, reload, logger).Watch(ctx)
}
