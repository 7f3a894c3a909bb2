package main

import (
	"flag"
	"log"
	"math/rand"
	"os"
	"path/filepath"

	cyclegan "github.com/LdDl/cyclegan-go"
)

var (
	configPath = flag.String("config", "", "Path to YAML configuration file. Default configuration is used if empty")
)

func main() {
	flag.Parse()
	logger := log.New(os.Stdout, "[cyclegan_inference] ", log.LstdFlags)

	cfg := cyclegan.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = cyclegan.LoadConfig(*configPath)
		if err != nil {
			log.Fatalln(err)
		}
	}
	// Initialize seed with constant value to reproduce results
	rand.Seed(cfg.Seed)

	// Define networks and replace their parameters by trained ones
	model, err := cyclegan.NewCycleGAN(cfg)
	if err != nil {
		log.Fatalln(err)
	}
	err = cyclegan.LoadWeights(model, cfg.ModelPath)
	if err != nil {
		log.Fatalln(err)
	}
	logger.Printf("Weights have been loaded from '%s' [%s]\n", cfg.ModelPath, cfg.Topology())

	// Prepare test data
	setA, setB, err := cyclegan.LoadData(cfg.InputPathA, cfg.InputPathB, logger)
	if err != nil {
		log.Fatalln(err)
	}
	logger.Printf("Loaded %d images of domain A and %d images of domain B\n", setA.Len(), setB.Len())
	preprocess := cyclegan.TestPreprocessor(cfg.ImageHeight, cfg.ImageWidth)
	opts := cyclegan.DatasetOptions{
		BatchSize:     cfg.BatchSize,
		ShuffleBuffer: cfg.ShuffleBuffer,
		Seed:          cfg.Seed,
	}
	datasetA, err := cyclegan.NewDataset(setA, preprocess, opts)
	if err != nil {
		log.Fatalln(err)
	}
	datasetB, err := cyclegan.NewDataset(setB, preprocess, opts)
	if err != nil {
		log.Fatalln(err)
	}

	sources := map[cyclegan.Direction]*cyclegan.Dataset{
		cyclegan.AToB: datasetA,
		cyclegan.BToA: datasetB,
	}
	for _, direction := range []cyclegan.Direction{cyclegan.AToB, cyclegan.BToA} {
		translator, err := model.NewTranslator(direction)
		if err != nil {
			log.Fatalln(err)
		}
		err = cyclegan.Visualize(sources[direction], translator, cfg.NumSamples, filepath.Join(cfg.ResultsPath, direction.FigureName()), logger)
		if err != nil {
			log.Fatalln(err)
		}
		translator.Close()
	}
}
