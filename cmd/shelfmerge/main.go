// Command shelfmerge collapses a harvested catalog CSV by normalized
// product name, keeping the best row per group and recording price
// spreads. Safe to re-run on its own output.
package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/pricecheckph/shelfwatch/mergecsv"
)

func main() {
	var (
		input       = flag.String("in", "data/catalog.csv", "input CSV from the harvester")
		output      = flag.String("out", "", "output CSV (default: overwrite input, keeping a .bak)")
		sep         = flag.String("sep", ";", "separator for the merged_ids column")
		keepNoPrice = flag.Bool("keep-no-price", false, "keep groups whose every row is unpriced")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	out := *output
	if out == "" {
		out = *input
	}

	res, err := mergecsv.MergeFile(*input, out, mergecsv.Options{
		Sep:         *sep,
		KeepNoPrice: *keepNoPrice,
	})
	if err != nil {
		logger.Error("merge failed", "input", *input, "error", err)
		os.Exit(1)
	}

	logger.Info("merge complete",
		"input", *input,
		"output", out,
		"rows_in", res.In,
		"rows_out", len(res.Rows))
}
