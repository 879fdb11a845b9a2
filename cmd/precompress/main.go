package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/spf13/afero"
	"github.com/wtnb75/devserve"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	cmpr := flag.NewFlagSet("compress", flag.ExitOnError)
	cmprdir := cmpr.String("dir", "", "target directory")
	cmprdry := cmpr.Bool("dry-run", false, "dry run")
	minsize := cmpr.Int64("min-size", 128, "minimum file size to compress")
	maxsize := cmpr.Int64("max-size", 10*1024*1024, "maximum file size to compress")
	cleanup := flag.NewFlagSet("cleanup", flag.ExitOnError)
	cleanold := cleanup.Bool("old", false, "remove only old compressed files")
	cleandir := cleanup.String("dir", "", "target directory")
	cleandry := cleanup.Bool("dry-run", false, "dry run")

	args := os.Args[1:]
	slog.Info("args", "args", args)

	if len(args) == 0 {
		slog.Error("subcommand is required")
		panic("subcommand is required")
	}

	var err error
	switch args[0] {
	case "compress":
		if err := cmpr.Parse(args[1:]); err != nil {
			slog.Error("parse error", "error", err)
			panic(err)
		}
		if *cmprdir == "" {
			slog.Error("dir is required")
			panic("dir is required")
		}
		pc := devserve.NewPrecompressor(afero.NewBasePathFs(afero.NewOsFs(), *cmprdir))
		pc.MinSize, pc.MaxSize, pc.DryRun = *minsize, *maxsize, *cmprdry
		err = pc.CompressTree("/")
	case "cleanup":
		if err := cleanup.Parse(args[1:]); err != nil {
			slog.Error("parse error", "error", err)
			panic(err)
		}
		if *cleandir == "" {
			slog.Error("dir is required")
			panic("dir is required")
		}
		pc := devserve.NewPrecompressor(afero.NewBasePathFs(afero.NewOsFs(), *cleandir))
		pc.DryRun = *cleandry
		err = pc.CleanupTree("/", *cleanold)
	default:
		slog.Error("unknown subcommand", "subcommand", args)
		panic("unknown subcommand: " + args[0])
	}
	if err != nil {
		slog.Error("walk failed", "error", err)
		panic(err)
	}
}
