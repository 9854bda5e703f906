package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luma/respkv/admin"
	"github.com/luma/respkv/internal/env"
	"github.com/luma/respkv/storage"
	"github.com/luma/respkv/transport"
)

var (
	// The host to listen on
	host string

	// The port to listen for http requests on
	httpPort string

	// The port to listen for tcp clients on
	port int

	// Whether to listen with SO_REUSEPORT
	reuse bool

	// Number of listeners when reuse is set
	listeners int
)

func init() {
	flags := StartCmd.PersistentFlags()

	flags.IntVarP(&port, "port", "p", 6379, "The port to listen client connections on")
	flags.StringVar(&httpPort, "http-port", "6380", "The port to listen to HTTP requests on")
	flags.StringVarP(&host, "host", "a", "0.0.0.0", "The host to listen on")
	flags.BoolVar(&reuse, "reuseport", true, "Listen with SO_REUSEPORT")
	flags.IntVar(&listeners, "listeners", 0, "Number of listeners with --reuseport, defaults to the number of CPUs")
}

var StartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start up the respkv server",
	Long: `Start up the respkv server

Usage
	respkv start --port 6379 --http-port 6380

`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer signalStop()

		conf, err := env.LoadConfig(ctx)
		if err != nil {
			return err
		}

		log, err := env.MakeLogger(conf.LogLevel)
		if err != nil {
			return err
		}
		defer log.Sync() //nolint:errcheck

		fileLimit, err := setFileLimit()
		if err != nil {
			return err
		}

		log.Info("Set file limit", zap.Uint64("fileLimit", fileLimit))

		store := storage.NewInmemoryStoreWithShards(conf.Shards)
		defer store.Close()

		tcp := transport.NewTCP(transport.Options{
			Host:           host,
			Port:           port,
			Reuseport:      reuse,
			NumListeners:   listeners,
			MaxBufferSize:  conf.MaxBufferSize,
			MaxDepth:       conf.MaxDepth,
			CommandTimeout: conf.CommandTimeout,
			Trace:          conf.Trace,
			Store:          store,
			Log:            log.Named("transport"),
		})

		if err := tcp.Start(ctx); err != nil {
			return err
		}

		router := admin.NewRouter(admin.Options{
			Store: store,
			Stats: tcp,
			Log:   log.Named("http"),
			Debug: conf.DebugHTTP,
		})

		s := &http.Server{
			Addr:    net.JoinHostPort(host, httpPort),
			Handler: router,
		}

		// Initializing the server in a goroutine so that
		// it won't block the graceful shutdown handling below
		go func() {
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Http server errored", zap.Error(err))
			}
		}()

		log.Info("Listening",
			zap.Any("config", conf),
			zap.Stringer("addr", tcp.Addr()),
			zap.String("httpPort", httpPort))

		// Listen for the interrupt signal.
		<-ctx.Done()

		// Restore default behavior on the interrupt signal and notify user of shutdown.
		signalStop()
		log.Info("Shutting down gracefully, press Ctrl+C again to force")

		// The context is used to inform the server it has 5 seconds to finish
		// the request it is currently handling
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.SetKeepAlivesEnabled(false)

		if err := s.Shutdown(shutdownCtx); err != nil {
			log.Error("Http server forced to shutdown", zap.Error(err))
		}

		if err := tcp.Close(); err != nil {
			log.Error("TCP server forced to shutdown", zap.Error(err))
		}

		log.Info("Exiting")
		return nil
	},
}

func setFileLimit() (uint64, error) {
	var rLimit syscall.Rlimit

	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, err
	}

	rLimit.Cur = rLimit.Max
	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, err
	}

	return rLimit.Cur, nil
}
