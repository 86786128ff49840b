package main

import (
	"flag"
	"fmt"
	"math/rand"

	"github.com/sirupsen/logrus"
	"gorgonia.org/tensor"

	"github.com/StefanoZanoni/deepRMN/dataset"
	"github.com/StefanoZanoni/deepRMN/readout"
	"github.com/StefanoZanoni/deepRMN/reservoir"
)

// delayedRecall builds count random sequences whose target is the input
// delay steps before the end.
func delayedRecall(rng *rand.Rand, count, steps, delay int) (*dataset.Tensors, error) {
	data := make([]float64, count*steps)
	target := make([]float64, count)
	for i := 0; i < count; i++ {
		for t := 0; t < steps; t++ {
			data[i*steps+t] = rng.Float64()*2 - 1
		}
		target[i] = data[i*steps+steps-1-delay]
	}
	return dataset.NewTensors(
		tensor.New(tensor.WithShape(count, steps), tensor.WithBacking(data)),
		tensor.New(tensor.WithShape(count, 1), tensor.WithBacking(target)),
	)
}

// split keeps the first share of samples for training and the rest for
// testing.
func split(ds dataset.Dataset, share float64) (train, test *dataset.Subset) {
	n := ds.Len()
	cut := int(float64(n) * share)
	train = &dataset.Subset{Parent: ds}
	test = &dataset.Subset{Parent: ds}
	for i := 0; i < n; i++ {
		if i < cut {
			train.Indices = append(train.Indices, i)
		} else {
			test.Indices = append(test.Indices, i)
		}
	}
	return train, test
}

func main() {
	configPath := flag.String("config", "", "JSON network configuration")
	dataPath := flag.String("data", "", "CSV dataset, one \"label,v1,...,vT\" sequence per line")
	task := flag.String("task", string(readout.Regression), "task when no configuration is given")
	batchSize := flag.Int("batch", 32, "batch size")
	share := flag.Float64("train", 0.8, "share of samples used for training")
	standardize := flag.Bool("standardize", false, "standardize readout features")
	trajectory := flag.Bool("trajectory", false, "train on every kept timestep instead of the last state")
	oneHot := flag.Bool("onehot", false, "train classifiers on one-hot encoded CSV labels")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	log := logrus.New()
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	cfg := reservoir.DefaultConfig(readout.Task(*task), 1, 100, 50)
	cfg.InitialTransients = 10
	if *configPath != "" {
		var err error
		if cfg, err = reservoir.LoadConfig(*configPath); err != nil {
			log.WithError(err).Fatal("loading configuration")
		}
	}

	var ds dataset.Dataset
	var err error
	if *dataPath != "" {
		var csv *dataset.Tensors
		if csv, err = dataset.LoadCSV(*dataPath); err == nil {
			ds = csv
			if *oneHot && cfg.Task == readout.Classification {
				ds, err = csv.OneHotTargets()
			}
		}
	} else {
		ds, err = delayedRecall(rand.New(rand.NewSource(1)), 500, 50, 5)
	}
	if err != nil {
		log.WithError(err).Fatal("loading data")
	}
	train, test := split(ds, *share)

	net, err := reservoir.New(cfg, reservoir.WithLogger(log))
	if err != nil {
		log.WithError(err).Fatal("building network")
	}
	fmt.Print(net)

	opts := reservoir.Options{Standardize: *standardize, Trajectory: *trajectory}
	trainLoader, err := dataset.NewLoader(train, *batchSize)
	if err != nil {
		log.WithError(err).Fatal("train loader")
	}
	if err := net.Fit(trainLoader, opts); err != nil {
		log.WithError(err).Fatal("fitting")
	}

	score := readout.RSquared
	metric := "r2"
	if cfg.Task == readout.Classification {
		score, metric = readout.Accuracy, "accuracy"
	}
	for _, part := range []struct {
		name   string
		subset *dataset.Subset
	}{{"train", train}, {"test", test}} {
		name, subset := part.name, part.subset
		if subset.Len() == 0 {
			continue
		}
		l, err := dataset.NewLoader(subset, *batchSize)
		if err != nil {
			log.WithError(err).Fatal("score loader")
		}
		v, err := net.Score(l, score, opts)
		if err != nil {
			log.WithError(err).Fatal("scoring")
		}
		log.WithFields(logrus.Fields{"split": name, metric: v}).Info("score")
	}
}
