package main

import (
	"flag"
	"log"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/ChristopherRabotin/sarloc"
	kitlog "github.com/go-kit/kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
)

// This binary plays the metadata reader: it builds a sensor model from a
// scenario, optimizes it with the GCPs and localizes a regular grid of the image.

const defaultScenario = "~~unset~~"

var (
	scenario string
	gridSize int
	outName  string
	saveRef  string
	workers  int
	wg       sync.WaitGroup
)

func init() {
	flag.StringVar(&scenario, "scenario", defaultScenario, "sarloc scenario TOML file")
	flag.IntVar(&gridSize, "grid", 10, "number of grid nodes per image axis")
	flag.StringVar(&outName, "out", "grid", "grid file name, without extension")
	flag.StringVar(&saveRef, "save", "", "write the scenario with the corrected reference point to this file")
	flag.IntVar(&workers, "workers", runtime.NumCPU(), "localization workers")
}

func main() {
	flag.Parse()
	if scenario == defaultScenario {
		log.Fatal("no scenario provided")
	}
	scenario = strings.Replace(scenario, ".toml", "", 1)
	viper.AddConfigPath(".")
	viper.SetConfigName(scenario)
	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("./%s.toml: Error %s", scenario, err)
	}

	logger := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stdout))
	logger = kitlog.With(logger, "ts", kitlog.DefaultTimestampUTC)

	conf, err := sarloc.ConfigFromViper(viper.GetViper())
	if err != nil {
		log.Fatalf("configuration: %s", err)
	}

	// Read mission
	samples, err := loadEphemerisFile(viper.GetString("ephemeris.file"), logger)
	if err != nil {
		log.Fatalf("could not load ephemeris: %s", err)
	}
	timing, err := loadTiming()
	if err != nil {
		log.Fatalf("could not load timing: %s", err)
	}
	mission := sarloc.Mission{
		Name:      viper.GetString("mission.name"),
		Ephemeris: samples,
		Timing:    timing,
		Lines:     viper.GetInt("mission.lines"),
		Columns:   viper.GetInt("mission.columns"),
	}
	if viper.IsSet("reference") {
		ref, rerr := sarloc.LoadReference(viper.GetViper(), "reference")
		if rerr != nil {
			log.Fatalf("could not load reference point: %s", rerr)
		}
		mission.Reference = &ref
	}

	reg := prometheus.NewRegistry()
	metrics, err := sarloc.NewMetrics(reg)
	if err != nil {
		log.Fatalf("metrics: %s", err)
	}
	model, err := sarloc.NewSensorModel(mission,
		sarloc.WithConfig(conf),
		sarloc.WithLogger(logger),
		sarloc.WithMetrics(metrics),
		sarloc.WithHeightSource(sarloc.ConstantHeight(viper.GetFloat64("dem.height"))))
	if err != nil {
		log.Fatalf("could not build sensor model: %s", err)
	}

	// Optimize
	gcps, err := loadGCPFile(viper.GetString("gcp.file"))
	if err != nil {
		log.Fatalf("could not load GCPs: %s", err)
	}
	if len(gcps) > 0 {
		report, oerr := model.Optimize(gcps)
		if oerr != nil {
			logger.Log("level", "critical", "subsys", "optimizer", "err", oerr)
		} else {
			logger.Log("level", "notice", "subsys", "optimizer", "used", report.Used, "skipped", report.Skipped, "rmsBefore", report.RMSBefore, "rmsAfter", report.RMSAfter)
			if saveRef != "" {
				sarloc.SaveReference(viper.GetViper(), "reference", report.Reference)
				if werr := viper.WriteConfigAs(saveRef); werr != nil {
					log.Fatalf("could not save reference point: %s", werr)
				}
			}
		}
	}

	// Localize the grid. The model is only read from now on.
	f, err := sarloc.CreateGridFile(sarloc.ExportConfig{Filename: outName, OutputDir: viper.GetString("export.dir"), Timestamp: viper.GetBool("export.timestamp")}, mission.Name)
	if err != nil {
		log.Fatalf("%s", err)
	}
	defer f.Close()

	type node struct{ line, column float64 }
	nodes := make(chan node, workers)
	points := make(chan sarloc.GridPoint, workers)
	start := time.Now()
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := range nodes {
				loc, lerr := model.ImageToGroundWithHeights(n.line, n.column)
				points <- sarloc.GridPoint{Line: n.line, Column: n.column, Loc: loc, Err: lerr}
			}
		}()
	}
	go func() {
		for i := 0; i < gridSize; i++ {
			for j := 0; j < gridSize; j++ {
				nodes <- node{gridNode(i, mission.Lines), gridNode(j, mission.Columns)}
			}
		}
		close(nodes)
		wg.Wait()
		close(points)
	}()
	failed, err := sarloc.StreamGrid(f, points)
	if err != nil {
		log.Fatalf("could not write grid: %s", err)
	}
	logger.Log("level", "notice", "subsys", "grid", "file", f.Name(), "points", gridSize*gridSize, "failed", failed, "duration", time.Since(start))

	if mfs, gerr := reg.Gather(); gerr == nil {
		for _, mf := range mfs {
			for _, m := range mf.GetMetric() {
				if c := m.GetCounter(); c != nil {
					logger.Log("level", "info", "subsys", "metrics", "name", mf.GetName(), "labels", m.GetLabel(), "value", c.GetValue())
				}
			}
		}
	}
}

// gridNode returns the i-th of gridSize nodes evenly spread over [0, size-1].
func gridNode(i, size int) float64 {
	if gridSize < 2 {
		return float64(size-1) / 2
	}
	return float64(i) * float64(size-1) / float64(gridSize-1)
}
