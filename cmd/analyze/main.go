package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/photolingo/photolingo/internal/analyze"
	"github.com/photolingo/photolingo/internal/common"
	"github.com/photolingo/photolingo/internal/export"
	"github.com/photolingo/photolingo/internal/imgprep"
	"github.com/photolingo/photolingo/internal/remote"
	"github.com/photolingo/photolingo/internal/translate"
	"github.com/photolingo/photolingo/internal/vocab"
)

func main() {
	var (
		image      = flag.String("image", "", "path to the photo to analyze (required unless -build-vocab)")
		topK       = flag.Int("topk", 0, "number of tags to request (default from config)")
		langsFlag  = flag.String("langs", "", "comma-separated target languages (default from config)")
		out        = flag.String("out", "", "write the result as an XLSX workbook to this path")
		buildVocab = flag.String("build-vocab", "", "fetch the label vocabulary and write it to this path, then exit")
		timeout    = flag.Duration("timeout", 2*time.Minute, "overall deadline")
	)
	flag.Parse()

	_ = godotenv.Load()

	logger := common.NewLogger()
	slog.SetDefault(logger)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if *buildVocab != "" {
		n, err := vocab.Build(ctx, vocab.DefaultClassesURL, *buildVocab, logger)
		if err != nil {
			logger.Error("vocabulary build failed", "error", err)
			os.Exit(1)
		}
		fmt.Printf("%d classes written to %s\n", n, *buildVocab)
		return
	}

	if *image == "" {
		fmt.Fprintln(os.Stderr, "Error: -image is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := common.LoadConfig()
	if err != nil {
		logger.Error("config load failed", "error", err)
		os.Exit(1)
	}
	if *topK == 0 {
		*topK = cfg.Remote.DefaultTopK
	}
	langs := cfg.Translate.Languages
	if *langsFlag != "" {
		langs = nil
		for _, l := range strings.Split(*langsFlag, ",") {
			if l = strings.TrimSpace(l); l != "" {
				langs = append(langs, l)
			}
		}
	}

	prep, err := imgprep.NewPreparer(cfg.Image)
	if err != nil {
		logger.Error("image preparer", "error", err)
		os.Exit(1)
	}

	// One-shot runs keep the memo in process only; the gateway daemon is
	// the one that persists it.
	cache := translate.NewCache(cfg.Translate.CacheCeiling, nil, nil, logger)

	client := remote.NewClient(cfg.Remote, logger)
	orch := analyze.NewOrchestrator(prep, client, cache, analyze.NotifierFunc(func(stage analyze.Stage, message string) {
		fmt.Fprintf(os.Stderr, "[%s] %s\n", stage, message)
	}), logger)

	f, err := os.Open(*image)
	if err != nil {
		logger.Error("open image", "path", *image, "error", err)
		os.Exit(1)
	}
	defer f.Close()

	start := time.Now()
	result, err := orch.Analyze(ctx, f, *topK, langs)
	dur := time.Since(start)
	if err != nil {
		if common.IsKind(err, common.KindEmptyResult) {
			fmt.Println("No recognizable objects in this photo.")
			return
		}
		logger.Error("analysis failed", "error", err, "duration_ms", dur.Milliseconds())
		os.Exit(1)
	}

	printResult(result, langs)
	logger.Info("analysis OK",
		"run_id", result.RunID,
		"tags", len(result.Tags),
		"partial", result.Partial,
		"duration_ms", dur.Milliseconds(),
	)

	if *out != "" {
		data, err := export.NewService(logger).ExportXLSX(result, langs)
		if err != nil {
			logger.Error("export failed", "error", err)
			os.Exit(1)
		}
		if err := os.WriteFile(*out, data, 0o644); err != nil {
			logger.Error("write output file", "path", *out, "error", err)
			os.Exit(1)
		}
		fmt.Printf("workbook written to %s\n", *out)
	}
}

func printResult(result *analyze.Result, langs []string) {
	for _, tag := range result.Tags {
		fmt.Printf("%-24s %5.1f%%", tag.Label, tag.Score*100)
		for _, lang := range langs {
			entry := tag.Translations[lang]
			if entry.OK {
				fmt.Printf("  %s=%s", lang, entry.Text)
			} else {
				fmt.Printf("  %s=unavailable", lang)
			}
		}
		fmt.Println()
	}
	if result.Partial {
		fmt.Println("Some translations are unavailable right now.")
	}
}
