// geogp-fit trains a sparse variational GP network on a CSV table of
// spatial data and writes the posterior at the data locations to stdout.
//
// Example:
//
//	geogp-fit -x easting,northing -y grade -inducing 64 -iterations 500 samples.csv
//
// Observation cells left empty are treated as missing; each observed
// variable gets an independent Gaussian likelihood.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/geogp/geogp/latent"
	"github.com/geogp/geogp/likelihoods"
	"github.com/geogp/geogp/pointset"
	"github.com/geogp/geogp/train"
	"k8s.io/klog/v2"
)

var (
	flagCoords = flag.String("x", "x,y", "Comma-separated names of the coordinate columns.")
	flagValues = flag.String("y", "", "Comma-separated names of the observed value columns.")

	flagInducing   = flag.Int("inducing", 32, "Number of inducing points, subsampled evenly from the data.")
	flagIterations = flag.Int("iterations", 200, "Number of Adam steps.")
	flagLearning   = flag.Float64("learning_rate", train.AdamDefaultLearningRate, "Adam base learning rate.")
	flagQuiet      = flag.Bool("quiet", false, "Disable the progress bar.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	args := flag.Args()
	if len(args) != 1 {
		klog.Errorf("Expected exactly one CSV file argument. See 'geogp-fit -help'.")
		os.Exit(1)
	}
	if *flagValues == "" {
		klog.Errorf("Missing -y: at least one observed value column is required.")
		os.Exit(1)
	}
	if err := run(args[0]); err != nil {
		klog.Errorf("%+v", err)
		os.Exit(1)
	}
}

func run(path string) error {
	coordCols := strings.Split(*flagCoords, ",")
	valueCols := strings.Split(*flagValues, ",")

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	data, y, err := pointset.FromCSV(f, coordCols, valueCols)
	if err != nil {
		return err
	}
	klog.V(1).Infof("loaded %d points with %d coordinates and %d variables",
		data.Len(), data.NDim(), len(valueCols))

	node := buildNetwork(data, len(valueCols))
	liks := make([]likelihoods.Likelihood, len(valueCols))
	for i := range liks {
		liks[i] = likelihoods.NewGaussian()
	}
	model := train.NewModel(node, data, y, liks...)

	cfg := train.Fit(model).
		MaxIter(*flagIterations).
		WithOptimizer(train.Adam().LearningRate(*flagLearning).Done())
	if *flagQuiet {
		cfg = cfg.Quiet()
	}
	trace := cfg.Done()
	klog.Infof("final ELBO: %.6g", trace[len(trace)-1])

	return report(model, data, valueCols)
}

// buildNetwork assembles one independent GP output per observed variable
// over a shared root, with the inducing points subsampled evenly from the
// data locations.
func buildNetwork(data *pointset.Points, dims int) latent.Node {
	nIP := *flagInducing
	if nIP > data.Len() {
		nIP = data.Len()
	}
	rows := make([]int, nIP)
	for i := range rows {
		rows[i] = i * data.Len() / nIP
	}
	root := latent.Input(data.Subset(rows)).Centered().Done()
	return latent.GP(root).WithSize(dims).Done()
}

func report(model *train.Model, data *pointset.Points, valueCols []string) error {
	pred := model.Predict(data.Coordinates(), 0, latent.Seed{})

	w := os.Stdout
	for _, name := range valueCols {
		if _, err := fmt.Fprintf(w, ",%s_mean,%s_variance", name, name); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintln(w); err != nil {
		return err
	}
	for i := 0; i < data.Len(); i++ {
		if _, err := fmt.Fprintf(w, "%d", i); err != nil {
			return err
		}
		for s := range valueCols {
			if _, err := fmt.Fprintf(w, ",%g,%g",
				pred.Mean.At(s, i), pred.Variance.At(s, i)); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	return nil
}
