// build.go implements the build pipeline. It is kept apart from main.go so the
// whole flow can be driven from tests with a fixed seed source and without
// exiting the process.
//
// Pipeline
// ========
//
// The order of the steps is chosen so that cheap failures happen before
// expensive ones:
//
//  1. Parse the false positive rate.
//  2. Preflight OUTFILE and OUTFILE.json, so an unwritable destination is
//     reported before reading a possibly huge corpus.
//  3. Count pass: read INFILE once to learn the item count n.
//  4. Derive m and k from (n, rate) and allocate the filter.
//  5. Populate pass: re-open INFILE and insert every line. The pass must see
//     the same lines as the count pass.
//  6. Freeze and write the output pair (bitmap first, metadata last).
//  7. Optionally write the metrics textfile.

package main

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"mkbloom.lopezb.com/internal/mkbloom/artifact"
	"mkbloom.lopezb.com/internal/mkbloom/bloom"
	"mkbloom.lopezb.com/internal/mkbloom/corpus"
	"mkbloom.lopezb.com/internal/mkbloom/metrics"
)

type builder struct {
	config  config
	logger  *slog.Logger
	seeds   bloom.SeedSource
	metrics *metrics.Build
}

// result summarizes a finished build.
type result struct {
	pass   corpus.Pass
	params bloom.Parameters
	meta   bloom.Metadata
	stats  bloom.Stats
}

func newBuilder(cfg config, logger *slog.Logger) *builder {
	return &builder{
		config:  cfg,
		logger:  logger,
		seeds:   bloom.CryptoSeeds{},
		metrics: metrics.NewBuild(),
	}
}

// parseRate parses the operator supplied false positive rate.
func parseRate(s string) (float64, error) {
	p, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, rateError(err)
	}
	if err := bloom.ValidateRate(p); err != nil {
		return 0, rateError(fmt.Errorf("%s: %w", s, err))
	}
	return p, nil
}

func (b *builder) run() (*result, error) {
	rate, err := parseRate(b.config.Rate)
	if err != nil {
		return nil, err
	}
	b.metrics.TargetFPRate.Set(rate)

	pair := artifact.NewPair(b.config.Outfile)
	if err := pair.Preflight(); err != nil {
		return nil, outputError("creating", err)
	}

	src := corpus.FileSource(b.config.Infile)

	start := time.Now()
	counted, err := corpus.Count(src)
	if err != nil {
		return nil, inputError(err)
	}
	b.metrics.ObservePhase("count", start)
	b.metrics.Items.Set(float64(counted.Lines))
	b.metrics.InputBytes.Set(float64(counted.Bytes))

	b.logger.Info("counted corpus",
		"path", b.config.Infile,
		"items", counted.Lines,
		"size", humanize.IBytes(counted.Bytes),
		"duration", time.Since(start))

	params := bloom.DeriveParameters(counted.Lines, rate)
	b.metrics.BitmapBits.Set(float64(params.BitmapBits))
	b.metrics.BitmapBytes.Set(float64(params.BitmapBytes()))
	b.metrics.HashFunctions.Set(float64(params.HashFunctions))

	b.logger.Info("using bitmap size appropriate for false positive rate",
		"bitmap_bits", params.BitmapBits,
		"bitmap_bytes", params.BitmapBytes(),
		"size", humanize.IBytes(params.BitmapBytes()),
		"hash_functions", params.HashFunctions,
		"fp_rate", rate,
		"expected_fp_rate", bloom.EstimateFalsePositiveRate(params.BitmapBits, params.HashFunctions, counted.Lines))

	filter, err := bloom.New(params, b.seeds)
	if err != nil {
		return nil, &buildError{kind: EntropyUnavailable, action: "seeding", resource: "filter", err: err}
	}

	start = time.Now()
	if _, err := corpus.Replay(src, counted, filter.InsertBytes); err != nil {
		return nil, inputError(err)
	}
	b.metrics.ObservePhase("populate", start)

	frozen := filter.Freeze()
	stats := frozen.Stats()
	b.metrics.SetBits.Set(float64(stats.SetBits))
	b.metrics.EstimatedFPRate.Set(stats.FalsePositiveRate)

	b.logger.Info("writing bloom filter to file",
		"path", pair.BitmapPath,
		"metadata", pair.MetadataPath,
		"set_bits", stats.SetBits,
		"fill_ratio", stats.FillRatio)

	start = time.Now()
	if err := pair.Write(frozen, frozen.Metadata()); err != nil {
		return nil, outputError("writing", err)
	}
	b.metrics.ObservePhase("write", start)
	b.metrics.LastSuccess.SetToCurrentTime()

	if b.config.MetricsFile != "" {
		if err := b.metrics.WriteTextfile(b.config.MetricsFile); err != nil {
			return nil, &buildError{kind: OutputUnwritable, action: "writing", resource: "metrics file", err: err}
		}
	}

	b.logger.Info("bloom filter written",
		"sha256sum", frozen.Metadata().SHA256Sum,
		"estimated_fp_rate", stats.FalsePositiveRate)

	return &result{
		pass:   counted,
		params: params,
		meta:   frozen.Metadata(),
		stats:  stats,
	}, nil
}
