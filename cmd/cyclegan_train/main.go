package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	cyclegan "github.com/LdDl/cyclegan-go"
	"gonum.org/v1/gonum/stat"
)

var (
	configPath = flag.String("config", "", "Path to YAML configuration file. Default configuration is used if empty")
	evalPrint  = flag.Int("print", 10, "Print losses every N steps")
)

func main() {
	flag.Parse()
	logger := log.New(os.Stdout, "[cyclegan_train] ", log.LstdFlags)

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

	// Prepare train data
	setA, setB, err := cyclegan.LoadData(cfg.InputPathA, cfg.InputPathB, logger)
	if err != nil {
		log.Fatalln(err)
	}
	logger.Printf("Loaded %d images of domain A and %d images of domain B\n", setA.Len(), setB.Len())
	preprocess := cyclegan.TrainPreprocessor(cfg.ImageHeight, cfg.ImageWidth)
	opts := cyclegan.DatasetOptions{
		BatchSize:     cfg.BatchSize,
		ShuffleBuffer: cfg.ShuffleBuffer,
		DropRemainder: true,
		Seed:          cfg.Seed,
	}
	datasetA, err := cyclegan.NewDataset(setA, preprocess, opts)
	if err != nil {
		log.Fatalln(err)
	}
	opts.Seed++
	datasetB, err := cyclegan.NewDataset(setB, preprocess, opts)
	if err != nil {
		log.Fatalln(err)
	}

	model, err := cyclegan.NewCycleGAN(cfg)
	if err != nil {
		log.Fatalln(err)
	}
	if _, err := os.Stat(cfg.ModelPath); err == nil {
		err = cyclegan.LoadWeights(model, cfg.ModelPath)
		if err != nil {
			log.Fatalln(err)
		}
		logger.Printf("Training continues from '%s'\n", cfg.ModelPath)
	}
	trainer, err := model.NewTrainer(cfg.BatchSize)
	if err != nil {
		log.Fatalln(err)
	}
	defer trainer.Close()

	/* Training process */
	history := make([]cyclegan.Losses, 0, cfg.Epochs)
	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		st := time.Now()
		var lossesG, lossesF, lossesDX, lossesDY []float64
		iterA, iterB := datasetA.Iterator(), datasetB.Iterator()
		for step := 0; ; step++ {
			batchA, okA := iterA.Next()
			batchB, okB := iterB.Next()
			if !okA || !okB {
				break
			}
			losses, err := trainer.Step(batchA.Images, batchB.Images)
			if err != nil {
				log.Fatalln(err)
			}
			lossesG = append(lossesG, losses.G)
			lossesF = append(lossesF, losses.F)
			lossesDX = append(lossesDX, losses.DX)
			lossesDY = append(lossesDY, losses.DY)
			if *evalPrint > 0 && step%*evalPrint == 0 {
				logger.Printf("Epoch %d, step %d: %s\n", epoch+1, step, losses)
			}
		}
		if len(lossesG) == 0 {
			log.Fatalln("Not enough images for a single batch in both domains")
		}
		epochLosses := cyclegan.Losses{
			G:  stat.Mean(lossesG, nil),
			F:  stat.Mean(lossesF, nil),
			DX: stat.Mean(lossesDX, nil),
			DY: stat.Mean(lossesDY, nil),
		}
		history = append(history, epochLosses)
		logger.Printf("Epoch %d: %s\n\tTaken time: %v\n", epoch+1, epochLosses, time.Since(st))

		checkpoint := filepath.Join(filepath.Dir(cfg.ModelPath), fmt.Sprintf("model_%03d.gob", epoch+1))
		err = cyclegan.SaveWeights(model, checkpoint)
		if err != nil {
			log.Fatalln(err)
		}
	}

	err = cyclegan.SaveWeights(model, cfg.ModelPath)
	if err != nil {
		log.Fatalln(err)
	}
	logger.Printf("Weights have been saved to '%s'\n", cfg.ModelPath)
	if err := os.MkdirAll(cfg.ResultsPath, 0755); err != nil {
		log.Fatalln(err)
	}
	err = cyclegan.PlotLosses(history, filepath.Join(cfg.ResultsPath, "losses.png"))
	if err != nil {
		log.Fatalln(err)
	}
}
