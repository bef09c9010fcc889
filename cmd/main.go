package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/BurntSushi/toml"
	"github.com/shirou/gopsutil/v3/process"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"tracking/cell_tracking/adapter"
	"tracking/cell_tracking/common"
)

// Config struct to hold configuration from toml file
type TrackingConfig struct {
	Solver  SolverConfig  `toml:"solver"`
	Runtime RuntimeConfig `toml:"runtime"`
}

type SolverConfig struct {
	Algorithm        string `toml:"algorithm"`
	UseBackArcs      bool   `toml:"use_back_arcs"`
	MaxNumPaths      int    `toml:"max_num_paths"`
	OrderedBF        bool   `toml:"ordered_bf"`
	PartialBFUpdates bool   `toml:"partial_bf_updates"`
}

type RuntimeConfig struct {
	MaxWorkers int `toml:"max_workers"`
}

func loadConfig(path string) (*TrackingConfig, error) {
	config := TrackingConfig{
		Solver: SolverConfig{
			Algorithm:   adapter.AlgorithmSSP,
			UseBackArcs: true,
			OrderedBF:   true,
		},
		Runtime: RuntimeConfig{MaxWorkers: 4},
	}
	if _, err := toml.DecodeFile(path, &config); err != nil {
		if os.IsNotExist(err) {
			log.Warningf("Config file %s not found, using defaults.", path)
			return &config, nil
		}
		return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	if config.Solver.Algorithm == "" {
		log.Warningf("Solver algorithm not specified in config, using default %s.", adapter.AlgorithmSSP)
		config.Solver.Algorithm = adapter.AlgorithmSSP
	}
	if config.Runtime.MaxWorkers < 1 {
		config.Runtime.MaxWorkers = 1
	}
	return &config, nil
}

// log init
func init() {
	logDir := "./logs"
	os.MkdirAll(logDir, 0755)

	// Configure log rotation with lumberjack
	fileLogger := &lumberjack.Logger{
		Filename:   logDir + "/tracking.log",
		MaxSize:    100,  // MB
		MaxBackups: 7,    // Keep 7 old log files
		MaxAge:     30,   // Days
		Compress:   true, // Compress old log files
	}

	// Output to both file and stdout
	multiWriter := io.MultiWriter(os.Stdout, fileLogger)
	log.SetOutput(multiWriter)

	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	log.SetLevel(log.InfoLevel)
}

func main() {
	configPath := flag.String("config", "tracking_config.toml", "path to the toml configuration file")
	flag.Parse()

	inputs := flag.Args()
	if len(inputs) == 0 {
		log.Errorf("No model files given. Usage: %s [-config file] model.json ...", os.Args[0])
		os.Exit(2)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("loading configuration failed, err:%v", err)
	}

	solver, err := common.GetGlobal(cfg.Solver.Algorithm)
	if err != nil {
		log.Fatalf("unknown solver %q, available: %v", cfg.Solver.Algorithm, common.ListGlobal())
	}
	params := common.SolverParams{
		UseBackArcs:      cfg.Solver.UseBackArcs,
		MaxNumPaths:      cfg.Solver.MaxNumPaths,
		UseOrderedBF:     cfg.Solver.OrderedBF,
		PartialBFUpdates: cfg.Solver.PartialBFUpdates,
	}

	pool, err := common.NewPool(common.PoolConfig{MaxWorkers: cfg.Runtime.MaxWorkers})
	if err != nil {
		log.Fatalf("creating worker pool failed, err:%v", err)
	}
	defer pool.Release()

	var failures int32
	var wg sync.WaitGroup
	for _, input := range inputs {
		input := input
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			if err := solveOne(solver, params, input); err != nil {
				log.Errorf("solving %s failed, err:%v", input, err)
				atomic.AddInt32(&failures, 1)
			}
		})
		if err != nil {
			wg.Done()
			log.Errorf("submitting %s to the pool failed, err:%v", input, err)
			atomic.AddInt32(&failures, 1)
		}
	}
	wg.Wait()

	reportResourceUsage()

	if failures > 0 {
		log.Errorf("%d of %d models failed", failures, len(inputs))
		os.Exit(1)
	}
	log.Infof("All %d models solved", len(inputs))
}

func solveOne(solver common.TrackingSolver, params common.SolverParams, input string) error {
	problem, err := common.LoadProblem(input)
	if err != nil {
		return err
	}

	log.Infof("Solving %s with %d detections and %d links", input, len(problem.Detections), len(problem.Links))
	result, err := solver.Solve(problem, params)
	if err != nil {
		return err
	}

	out := input + ".result.json"
	if err := common.SaveResult(out, result); err != nil {
		return err
	}
	log.Infof("Solved %s: energy=%f iterations=%d result=%s", input, result.Energy, result.Iterations, out)
	return nil
}

// reportResourceUsage logs the memory and CPU footprint of the batch.
func reportResourceUsage() {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Debugf("resource usage unavailable: %v", err)
		return
	}
	if mem, err := proc.MemoryInfo(); err == nil {
		log.Infof("Resource usage: rss=%d MB", mem.RSS/(1024*1024))
	}
	if cpu, err := proc.CPUPercent(); err == nil {
		log.Infof("Resource usage: cpu=%.1f%%", cpu)
	}
}
