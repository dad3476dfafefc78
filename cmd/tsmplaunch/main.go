package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/core-tools/hsu-tsmp/pkg/config"
	"github.com/core-tools/hsu-tsmp/pkg/controller"
	"github.com/core-tools/hsu-tsmp/pkg/logging"
	"github.com/core-tools/hsu-tsmp/pkg/metrics"
	"github.com/core-tools/hsu-tsmp/pkg/pathcom"
	"github.com/core-tools/hsu-tsmp/pkg/tacl"

	flags "github.com/jessevdk/go-flags"
)

type flagOptions struct {
	Config          string        `long:"config" short:"c" default:"tsmp.config.yaml" description:"launch properties file"`
	Defines         []string      `long:"define" short:"D" description:"DEFINE list applied after the file's, may be repeated"`
	WorkingDir      string        `long:"cwd" description:"working directory of the server processes (default: current directory)"`
	Strict          bool          `long:"strict" description:"fail on malformed CPU pairs and DEFINE entries instead of dropping them"`
	LogLevel        string        `long:"log-level" default:"info" description:"debug, info, warn or error"`
	LogFormat       string        `long:"log-format" default:"console" description:"console or json"`
	MetricsTextfile string        `long:"metrics-textfile" description:"write session metrics in Prometheus text format to this file"`
	Gtacl           string        `long:"gtacl" default:"gtacl" description:"gtacl executable"`
	Grace           time.Duration `long:"grace" default:"1s" description:"time a pathcom session gets to exit before it is killed"`
}

func logPrefix(module string) string {
	return fmt.Sprintf("module: %s , ", module)
}

func main() {
	var opts flagOptions
	var argv []string = os.Args[1:]
	var parser = flags.NewParser(&opts, flags.HelpFlag|flags.PassAfterNonOption)
	parser.Usage = "[OPTIONS] program [args...]"
	command, err := parser.ParseArgs(argv)
	if err != nil {
		fmt.Printf("Command line flags parsing failed: %v\n", err)
		os.Exit(1)
	}
	if len(command) == 0 {
		fmt.Println("Program to launch is required")
		os.Exit(1)
	}

	zapConfig := logging.DefaultZapConfig()
	zapConfig.Level = opts.LogLevel
	zapConfig.Format = opts.LogFormat
	zapLogger := logging.NewZapLogger(zapConfig)
	defer zapLogger.Sync()

	if err := run(opts, command, zapLogger); err != nil {
		zapLogger.Errorf("Launch failed: %v", err)
		zapLogger.Sync()
		os.Exit(1)
	}
}

func run(opts flagOptions, command []string, logger logging.Logger) error {
	logger.Debugf("opts: %+v, command: %v", opts, command)

	workingDir := opts.WorkingDir
	if workingDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		workingDir = wd
	}

	props, err := config.LoadPropertiesFromFile(opts.Config)
	if err != nil {
		return err
	}
	descriptors, warnings, err := config.Build(props, config.LaunchOptions{
		Command:    command,
		WorkingDir: workingDir,
		Defines:    opts.Defines,
		Strict:     opts.Strict,
	})
	if err != nil {
		return err
	}
	for _, warning := range warnings {
		logger.Warnf("Configuration: %s", warning)
	}

	collector := metrics.NewPrometheusCollector("tsmp")
	if opts.MetricsTextfile != "" {
		defer func() {
			if err := collector.WriteToTextfile(opts.MetricsTextfile); err != nil {
				logger.Warnf("Failed to write metrics textfile, filename: %s, error: %v", opts.MetricsTextfile, err)
			}
		}()
	}

	execution := pathcom.DefaultExecution()
	execution.ExecutablePath = opts.Gtacl
	executor := pathcom.NewProcessExecutor(pathcom.ExecutorConfig{
		Execution:    execution,
		GraceTimeout: opts.Grace,
		Transcript:   os.Stdout,
	}, collector, logging.WithPrefix(logger, logPrefix("pathcom")))

	utilities := tacl.NewUtilities(
		tacl.NewExecRunner(logging.WithPrefix(logger, logPrefix("tacl"))),
		opts.Gtacl,
		logging.WithPrefix(logger, logPrefix("tacl")))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := controller.NewController(descriptors.Monitor, descriptors.Server, utilities, executor,
		logging.WithPrefix(logger, logPrefix("controller")))
	return c.Run(ctx)
}
