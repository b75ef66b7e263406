package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mriroimask/internal/models"
	"mriroimask/pkg/config"
	"mriroimask/pkg/logging"
	"mriroimask/pkg/pipeline"
	"mriroimask/pkg/segmentation"
)

func main() {
	// Parse command line arguments
	inputDir := flag.String("input", "", "Directory containing the Sag, Cor and Tra acquisitions")
	outputRoot := flag.String("output", "", "Root directory for study outputs (overrides config)")
	study := flag.String("study", "", "Study name, the first level under the output root")
	patient := flag.String("patient", "", "Patient name, the second level under the output root")
	configPath := flag.String("config", "mriroimask.yaml", "Configuration file")
	labelList := flag.String("labels", "", "Comma separated labels to overlay, e.g. 181,185 (overrides config)")
	timeout := flag.Duration("timeout", -1, "Segmentation timeout, 0 disables (overrides config)")
	image := flag.String("image", "", "Segmenter container image (overrides config)")
	previews := flag.Bool("previews", false, "Render preview images of each masked record")
	noCache := flag.Bool("no-cache", false, "Always decode and convert the sagittal record")
	logFile := flag.String("log-file", "", "Write logs to a rotating file (overrides config)")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	initConfig := flag.Bool("init-config", false, "Write a default configuration file and exit")
	flag.Parse()

	if *initConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to create config file: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	// Validate inputs
	if *inputDir == "" || *study == "" || *patient == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Command line flags take precedence over the config file
	if *labelList != "" {
		labels, err := models.ParseLabelSet(*labelList)
		if err != nil {
			log.Fatalf("Invalid labels: %v", err)
		}
		cfg.Labels = labels
	}
	if *timeout >= 0 {
		cfg.Segmentation.Timeout = timeout.String()
	}
	if *image != "" {
		cfg.Segmentation.Image = *image
	}
	if *previews {
		cfg.Output.Previews = true
	}
	if *noCache {
		cfg.Cache.Enabled = false
	}
	if *logFile != "" {
		cfg.Logging.File = *logFile
	}
	if *verbose {
		cfg.Logging.Verbose = true
	}
	if *outputRoot != "" {
		cfg.Output.Directory = *outputRoot
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	outputDir, err := cfg.OutputDir(*study, *patient)
	if err != nil {
		log.Fatalf("Invalid output directory: %v", err)
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	closeLog := logging.Setup(cfg.Logging)
	defer closeLog()

	segTimeout, _ := cfg.SegmentationTimeout()
	segmenter := segmentation.NewDockerSegmenter()
	segmenter.Docker = cfg.Segmentation.Docker
	segmenter.Image = cfg.Segmentation.Image
	segmenter.OutputPattern = cfg.Segmentation.OutputPattern
	segmenter.Timeout = segTimeout

	fmt.Println("================================")
	fmt.Println("MRI ROI MASKING")
	fmt.Printf("Labels: %s\n", cfg.LabelSet())
	fmt.Printf("Segmenter: %s\n", segmenter.Image)
	fmt.Printf("Output: %s\n", outputDir)
	fmt.Println("================================")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := pipeline.NewPipeline(pipeline.Params{
		InputDir:         *inputDir,
		OutputDir:        outputDir,
		Labels:           cfg.LabelSet(),
		ProtocolSuffix:   cfg.Output.ProtocolSuffix,
		IntermediatesDir: cfg.Output.IntermediatesDir,
		MaskedDir:        cfg.Output.MaskedDir,
		Previews:         cfg.Output.Previews,
		PreviewFormat:    cfg.Output.PreviewFormat,
		UseCache:         cfg.Cache.Enabled,
		Segmenter:        segmenter,
	})

	startTime := time.Now()
	report, err := p.Process(ctx)
	if err != nil {
		logging.Errorf("Processing failed: %v", err)
		closeLog()
		log.Fatalf("Processing failed: %v", err)
	}

	fmt.Printf("\nProcessing completed successfully in %.2f seconds!\n\n", time.Since(startTime).Seconds())
	report.Print(os.Stdout)
}
