// mkbloom builds a Bloom filter from a newline-delimited text corpus and
// writes it out as a raw bitmap plus a JSON metadata sidecar. Together the two
// files are enough for a separate tool to rebuild the filter and answer
// membership queries.
//
// Usage
// =====
//
//	mkbloom [options] INFILE OUTFILE FALSE_POSITIVE_RATE
//
// Each line of INFILE is one item; surrounding whitespace is trimmed before
// hashing. The bitmap is written to OUTFILE and the metadata to OUTFILE.json:
//
//	{
//	  "sha256sum": "<hex digest of OUTFILE>",
//	  "bitmap_bits": 29,
//	  "k_num": 7,
//	  "sip_keys": [["<k0>", "<k1>"], ["<k0>", "<k1>"]]
//	}
//
// Use mkbloom-check to validate a pair after copying it around.
//
// Exit Codes
// ==========
//
// 0: The output pair was written.
// 1: Anything went wrong. The message names the resource that failed
// (INFILE, OUTFILE, the metadata file, or FALSE_POSITIVE_RATE). Metadata is
// never left behind for a bitmap that failed to write.

package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/jpillora/opts"
)

var version = "0.0.0-src" // set with ldflags

const usage = "Usage: mkbloom [options] INFILE OUTFILE FALSE_POSITIVE_RATE"

type config struct {
	Infile      string `opts:"mode=arg" help:"newline-delimited corpus, one item per line"`
	Outfile     string `opts:"mode=arg" help:"bitmap output path; metadata is written to OUTFILE.json"`
	Rate        string `opts:"mode=arg" help:"target false positive rate, between 0 and 1 exclusive"`
	MetricsFile string `help:"write build metrics in Prometheus text format to this file"`
	LogFormat   string `help:"log format: text or json"`
	Quiet       bool   `help:"only log warnings and errors"`
}

func main() {
	cfg := config{LogFormat: "text"}

	opts.New(&cfg).
		Name("mkbloom").
		Version(version).
		Summary("Builds a Bloom filter bitmap and its metadata from a newline-delimited corpus.").
		Parse()

	logger, err := newLogger(os.Stdout, cfg.LogFormat, cfg.Quiet)
	if err != nil {
		die(err)
	}

	if _, err := newBuilder(cfg, logger).run(); err != nil {
		die(err)
	}
}

// newLogger builds the process logger. Logs go to stdout; fatal errors go to
// stderr through die.
func newLogger(w io.Writer, format string, quiet bool) (*slog.Logger, error) {
	level := slog.LevelInfo
	if quiet {
		level = slog.LevelWarn
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	switch format {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, handlerOpts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, handlerOpts)), nil
	default:
		return nil, &buildError{
			kind:     InvalidOption,
			action:   "parsing",
			resource: "--log-format",
			err:      fmt.Errorf("unknown format %q (want text or json)", format),
		}
	}
}

// die prints a fatal error with the usage line and exits.
func die(err error) {
	fmt.Fprintln(os.Stderr, err)
	fmt.Fprintln(os.Stderr, usage)
	os.Exit(1)
}
