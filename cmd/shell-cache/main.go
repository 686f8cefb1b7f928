package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	shellcache "github.com/always-cache/shell-cache"
	"github.com/always-cache/shell-cache/agent"
	"github.com/always-cache/shell-cache/cache"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
)

var (
	// CLI flags
	configFilenameFlag string
	portFlag           int
	originFlag         string
	addrFlag           string
	hostFlag           string
	dirFlag            string
	dbFilenameFlag     string
	versionFlag        string
	verbosityTraceFlag bool
	logFilenameFlag    string

	// this is set by goreleaser
	version string
)

func init() {
	flag.StringVar(&configFilenameFlag, "config", "", "Path to config file")
	flag.StringVar(&originFlag, "origin", "", "Origin URL serving the app shell (overrides addr and host)")
	flag.StringVar(&addrFlag, "addr", "", "Origin IP address to proxy to")
	flag.StringVar(&hostFlag, "host", "", "Hostname of origin")
	flag.StringVar(&dirFlag, "dir", "", "Serve the app shell from this directory instead of an origin")
	flag.IntVar(&portFlag, "port", 8080, "Port to listen on")
	flag.StringVar(&dbFilenameFlag, "db", "cache.db", "Cache DB file name (use 'memory' for in-memory storage)")
	flag.StringVar(&versionFlag, "cache-version", "", "Cache version, i.e. bucket name")
	flag.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
	flag.StringVar(&logFilenameFlag, "log-file", "", "Log file to use (in addition to stdout)")

	if version == "" {
		version = "DEV"
	}
}

func main() {
	flag.Parse()

	config, err := getConfig(configFilenameFlag)
	if err != nil {
		// logging is not set up yet
		fmt.Fprintf(os.Stderr, "Could not read config: %v\n", err)
		os.Exit(1)
	}
	applyFlags(&config)

	setupLogging(config.LogFile)

	storage, err := openStorage(config.DB)
	if err != nil {
		log.Fatal().Err(err).Str("db", config.DB).Msg("Could not open cache storage")
	}

	shellConfig := shellcache.Config{
		Cache:        storage,
		Version:      config.Version,
		Manifest:     agent.Manifest(config.Manifest),
		OfflinePage:  config.OfflinePage,
		Rules:        config.Rules,
		InstallRetry: config.InstallRetry,
	}
	if len(config.Manifest) == 0 {
		shellConfig.Manifest = nil
	}
	if config.Scope != "" {
		scope, err := url.Parse(config.Scope)
		if err != nil {
			log.Fatal().Err(err).Msg("Could not parse scope")
		}
		shellConfig.Scope = scope
	}

	// get the downstream server
	switch {
	case config.Dir != "":
		shellConfig.Handler = serveDir(config.Dir)
	case config.Origin != "":
		originUrl, err := url.Parse(config.Origin)
		if err != nil {
			log.Fatal().Err(err).Msg("Could not parse url")
		}
		shellConfig.OriginURL = *originUrl
		shellConfig.OriginHost = config.Host
	case addrFlag != "":
		originUrl, err := url.Parse("https://" + addrFlag)
		if err != nil {
			log.Fatal().Err(err).Msg("Could not parse url")
		}
		shellConfig.OriginURL = *originUrl
		shellConfig.OriginHost = config.Host
	default:
		log.Fatal().Msg("Please specify origin or directory")
	}

	shell, err := shellcache.CreateShell(shellConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not create shell")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := shell.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Agent did not start")
		}
	}()

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", config.Port),
		Handler: router(shell),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Could not shut down server")
		}
		if err := shell.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Could not shut down shell")
		}
	}()

	log.Info().Msgf("Serving app shell on port %v (version %s)", config.Port, shell.Agent().Version())
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server failed")
	}
	<-ctx.Done()
}

// applyFlags overrides the config with the flags given on the command line.
func applyFlags(config *Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "origin":
			config.Origin = originFlag
		case "host":
			config.Host = hostFlag
		case "dir":
			config.Dir = dirFlag
		case "port":
			config.Port = portFlag
		case "db":
			config.DB = dbFilenameFlag
		case "cache-version":
			config.Version = versionFlag
		case "log-file":
			config.LogFile = logFilenameFlag
		}
	})
}

func setupLogging(logFilename string) {
	// set log level
	logLevel := zerolog.DebugLevel
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}

	// set up log output to stdout
	// also output to logfile if specified
	logOutputs := make([]io.Writer, 0)
	logOutputs = append(logOutputs, zerolog.ConsoleWriter{Out: os.Stdout})
	if logFilename != "" {
		if logFileOutput, err := os.OpenFile(logFilename, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644); err != nil {
			log.Fatal().Err(err).Msg("Cannot open log file")
		} else {
			logOutputs = append(logOutputs, logFileOutput)
		}
	}
	multiWriter := zerolog.MultiLevelWriter(logOutputs...)
	log.Logger = log.Level(logLevel).Output(multiWriter).
		With().Str("build", version).Logger()
}

func openStorage(dbFilename string) (cache.Storage, error) {
	if dbFilename == "memory" {
		return cache.NewMemStorage(), nil
	}
	return cache.NewSQLiteStorage(dbFilename)
}

// serveDir serves static files from dir.
// Unlike a plain FileServer it answers ".../index.html" directly instead of redirecting,
// since a redirect would fail the install.
func serveDir(dir string) http.Handler {
	fs := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/index.html") {
			r = r.Clone(r.Context())
			r.URL.Path = strings.TrimSuffix(r.URL.Path, "index.html")
		}
		fs.ServeHTTP(w, r)
	})
}

func router(shell *shellcache.Shell) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(hlog.NewHandler(log.Logger))
	r.Use(hlog.RequestIDHandler("req_id", "Request-Id"))
	r.Use(hlog.RemoteAddrHandler("ip"))
	r.Use(hlog.UserAgentHandler("user_agent"))
	r.Use(middleware.Recoverer)

	r.Get("/.shell/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		if err := json.NewEncoder(w).Encode(shell.Status()); err != nil {
			hlog.FromRequest(r).Error().Err(err).Msg("Could not write status")
		}
	})
	r.Handle("/*", shell)
	return r
}
