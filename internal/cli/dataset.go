package cli

import (
	"github.com/daryltucker/fleet-sim/internal/dataset"
	"github.com/daryltucker/fleet-sim/internal/model"
	"github.com/daryltucker/fleet-sim/internal/output"
)

var (
	datasetOverride string
	filterOverride  string
)

// loadDataset reads the configured dataset, honouring --dataset and --filter.
func loadDataset() (*model.Dataset, error) {
	opts := cfg.Dataset
	if datasetOverride != "" {
		opts.Path = datasetOverride
	}
	if filterOverride != "" {
		opts.Filter = filterOverride
	}

	output.Logger.Info("Loading dataset...", "path", opts.Path, "filter", opts.Filter)
	ds, err := dataset.Load(opts)
	if err != nil {
		return nil, err
	}
	output.Logger.Info("Dataset loaded", "records", ds.Len(), "pollutants", ds.Pollutants())
	return ds, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&datasetOverride, "dataset", "", "Path to the emission records CSV (overrides config)")
	rootCmd.PersistentFlags().StringVar(&filterOverride, "filter", "", "Population filter: all, electric or combustion")
}
