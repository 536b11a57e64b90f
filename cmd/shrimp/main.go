package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"shrimp/internal/config"
	"shrimp/internal/httpapi"
	"shrimp/internal/manager"
)

const (
	defaultAddress   = "localhost"
	defaultPort      = 80
	defaultIPVersion = 4
	defaultImagesDir = "."
	defaultLogLevel  = "info"
)

// threadCounts derives the IO and worker pool sizes from the CPU count:
// IO gets at most two cores, the workers get the rest.
func threadCounts() (io, workers int) {
	cores := runtime.NumCPU()
	io = (cores + 2) / 3
	if io > 2 {
		io = 2
	}
	if io < 1 {
		io = 1
	}
	workers = cores - io
	if workers < 2 {
		workers = 2
	}
	return io, workers
}

func newRootCmd() *cobra.Command {
	var (
		configPath     string
		address        string
		port           int
		ipVersion      int
		imagesDir      string
		ioThreads      int
		workerThreads  int
		logLevel       string
		managerTracing bool
		requestTracing bool
	)

	defaultIO, defaultWorkers := threadCounts()
	defaultIO = config.EnvInt("SHRIMP_IO_THREADS", defaultIO)
	defaultWorkers = config.EnvInt("SHRIMP_WORKER_THREADS", defaultWorkers)

	root := &cobra.Command{
		Use:           "shrimp",
		Short:         "HTTP service serving on-the-fly resized images",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath != "" {
				fileCfg, err := config.Load(configPath)
				if err != nil {
					return fmt.Errorf("config file: %w", err)
				}
				// Flags explicitly set on the command line win over the file.
				if !cmd.Flags().Changed("address") && fileCfg.Address != "" {
					address = fileCfg.Address
				}
				if !cmd.Flags().Changed("port") && fileCfg.Port != 0 {
					port = fileCfg.Port
				}
				if !cmd.Flags().Changed("ip-version") && fileCfg.IPVersion != 0 {
					ipVersion = fileCfg.IPVersion
				}
				if !cmd.Flags().Changed("images") && fileCfg.ImagesDir != "" {
					imagesDir = fileCfg.ImagesDir
				}
				if !cmd.Flags().Changed("io-threads") && fileCfg.IOThreads != 0 {
					ioThreads = fileCfg.IOThreads
				}
				if !cmd.Flags().Changed("worker-threads") && fileCfg.WorkerThreads != 0 {
					workerThreads = fileCfg.WorkerThreads
				}
				if !cmd.Flags().Changed("log-level") && fileCfg.LogLevel != "" {
					logLevel = fileCfg.LogLevel
				}
			}

			if ipVersion != 4 && ipVersion != 6 {
				return fmt.Errorf("invalid value for IP version: %d", ipVersion)
			}
			if port < 1 || port > 65535 {
				return fmt.Errorf("invalid port: %d", port)
			}
			if ioThreads < 1 || workerThreads < 1 {
				return fmt.Errorf("thread counts must be positive (io=%d, workers=%d)", ioThreads, workerThreads)
			}
			level, err := httpapi.ParseLevel(logLevel)
			if err != nil {
				return err
			}
			if st, err := os.Stat(imagesDir); err != nil || !st.IsDir() {
				return fmt.Errorf("images directory is not usable: %s", imagesDir)
			}

			return runApp(appParams{
				address:        address,
				port:           port,
				ipVersion:      ipVersion,
				imagesDir:      imagesDir,
				ioThreads:      ioThreads,
				workerThreads:  workerThreads,
				logLevel:       level,
				managerTracing: managerTracing,
				requestTracing: requestTracing,
			})
		},
	}

	root.Flags().StringVarP(&address, "address", "a", defaultAddress, "address to listen")
	root.Flags().IntVarP(&port, "port", "p", defaultPort, "port to listen")
	root.Flags().IntVarP(&ipVersion, "ip-version", "P", defaultIPVersion, "IP version to use (4 or 6)")
	root.Flags().StringVarP(&imagesDir, "images", "i", defaultImagesDir, "path for searching images")
	root.Flags().IntVar(&ioThreads, "io-threads", defaultIO, "HTTP IO threads; allows 64 concurrent requests per thread (defaults SHRIMP_IO_THREADS)")
	root.Flags().IntVar(&workerThreads, "worker-threads", defaultWorkers, "transformer pool size (defaults SHRIMP_WORKER_THREADS)")
	root.Flags().StringVarP(&logLevel, "log-level", "l", defaultLogLevel, "log level: trace|debug|info|warning|error|critical|off")
	root.Flags().BoolVar(&managerTracing, "sobj-tracing", false, "turn manager message delivery tracing on")
	root.Flags().BoolVar(&requestTracing, "restinio-tracing", false, "turn HTTP request tracing on")
	root.Flags().StringVar(&configPath, "config", "", "optional config file (.yaml/.json/.toml)")

	return root
}

type appParams struct {
	address        string
	port           int
	ipVersion      int
	imagesDir      string
	ioThreads      int
	workerThreads  int
	logLevel       zerolog.Level
	managerTracing bool
	requestTracing bool
}

func runApp(p appParams) error {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger().Level(p.logLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mgr := manager.NewWithConfig(manager.ManagerConfig{
		RootDir: p.imagesDir,
		Workers: p.workerThreads,
		Logger:  log.With().Str("component", "manager").Logger(),
		Tracing: p.managerTracing,
	})
	go mgr.Run(ctx)

	mux := httpapi.NewMux(mgr, httpapi.Options{
		RootDir: p.imagesDir,
		// Keep roughly the same request concurrency an IO thread pool
		// of this size would allow.
		Throttle: p.ioThreads * 64,
		Tracing:  p.requestTracing,
		Logger:   log.With().Str("component", "http").Logger(),
	})

	network := "tcp4"
	if p.ipVersion == 6 {
		network = "tcp6"
	}
	addr := fmt.Sprintf("%s:%d", p.address, p.port)
	ln, err := net.Listen(network, addr)
	if err != nil {
		return fmt.Errorf("listen on %s (%s): %w", addr, network, err)
	}

	srv := &http.Server{Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", addr).
			Str("images", p.imagesDir).
			Int("io_threads", p.ioThreads).
			Int("worker_threads", p.workerThreads).
			Msg("shrimp listening")
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-stop:
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown error")
	}
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}
