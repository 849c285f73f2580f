package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/afero"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"deathteller/skull/internal/api"
	"deathteller/skull/internal/audio"
	"deathteller/skull/internal/config"
	"deathteller/skull/internal/fortune"
	"deathteller/skull/internal/hardware"
	"deathteller/skull/internal/health"
	"deathteller/skull/internal/log"
	"deathteller/skull/internal/peerlink"
	"deathteller/skull/internal/printer"
	"deathteller/skull/internal/skull"
	"deathteller/skull/internal/store"
)

const healthInterval = 15 * time.Second

func main() {
	// Load .env file if present (ignored if missing)
	_ = godotenv.Load()

	cfg := config.Load()
	log.Init(cfg.Server.LogLevel)
	log.Info("skull starting", "config", cfg.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clock := skull.NewSystemClock()
	random := skull.Random{}

	selector := audio.NewSelector(rooted(cfg.Audio.Root), clock.NowMillis, random)
	planner := audio.NewPlanner(selector)
	player := audio.NewPlayer(cfg.Audio.PlayerCmd, cfg.Audio.Root, time.Duration(cfg.Audio.SimClipMs)*time.Millisecond)

	generator := fortune.NewGenerator(rooted(cfg.Fortune.Root), random)
	fortunes := fortune.NewService(generator)

	prn, err := printer.Open(cfg.Printer.Device, cfg.Printer.Columns, cfg.Printer.Baud)
	if err != nil {
		log.Warn("printer unavailable; fortunes will not print", "error", err)
	}
	defer prn.Close()

	lights := hardware.NewLights(hardware.LightsConfig{
		MouthBright:   cfg.Lights.MouthBright,
		PulseMin:      cfg.Lights.PulseMin,
		PulseMax:      cfg.Lights.PulseMax,
		PulsePeriodMs: cfg.Lights.PulsePeriodMs,
		BlinkOnMs:     cfg.Lights.BlinkOnMs,
		BlinkOffMs:    cfg.Lights.BlinkOffMs,
	}, clock.NowMillis)
	finger := hardware.NewFinger(cfg.Device.CapThreshold, uint32(cfg.Device.FingerDetectMs), clock.NowMillis)

	st := store.New()
	journal, err := store.OpenJournal(cfg.Journal.Path)
	if err != nil {
		log.Error("journal unavailable; visits will not be persisted", "path", cfg.Journal.Path, "error", err)
	} else {
		defer journal.Close()
	}

	reg := peerlink.NewRegistry()
	opts := skull.Options{
		Config:      cfg.Snapshot(),
		Tick:        time.Duration(cfg.Device.TickMs) * time.Millisecond,
		Clock:       clock,
		Random:      random,
		Audio:       planner,
		Fortune:     fortunes,
		Calibration: hardware.Calibrator{Lights: lights, Finger: finger, Bright: cfg.Lights.MouthBright},
		Player:      player,
		Printer:     prn,
		Mouth:       &hardware.Mouth{},
		Lights:      lights,
		Finger:      finger,
		Store:       st,
		Notifier:    reg,
	}
	deps := health.Deps{Clips: selector, Templates: generator, Printer: prn}
	if journal != nil {
		opts.Journal = journal
		deps.Journal = journal
	}
	rt := skull.New(opts)

	check := func(ctx context.Context) health.HealthStatus { return health.CheckAll(ctx, cfg, deps) }

	var visits api.VisitLog
	if journal != nil {
		visits = journal
	}
	h := api.NewHandlers(cfg, rt, st, finger, visits, check).WithPrinter(prn)
	mux := http.NewServeMux()
	mux.Handle("/", api.NewRouter(h))
	mux.Handle("/metrics", promhttp.Handler())
	// WS peer route
	pls := peerlink.NewServer(peerlink.Config{
		TokenSecret:   cfg.Peer.TokenSecret,
		TokenSkewSecs: cfg.Peer.TokenSkewSecs,
	}, st, reg, rt)
	mux.HandleFunc("/ws/peer", pls.HandlePeerWS)

	srv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           logMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	gs := grpc.NewServer()
	hs := grpchealth.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	go player.Run(ctx)
	runtimeDone := make(chan struct{})
	go func() {
		defer close(runtimeDone)
		if err := rt.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("runtime stopped", "error", err)
		}
	}()
	go watchHealth(ctx, hs, check)
	go serveGRPC(gs, cfg.Server.GRPCAddr)

	go func() {
		<-ctx.Done()
		log.Info("shutdown signal received; stopping server")
		hs.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		gs.GracefulStop()
	}()

	log.Info("server starting", "addr", cfg.Server.HTTPAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	// The journal closes on return; let the last visit land first.
	<-runtimeDone
}

// rooted maps the SD card paths the controller uses onto a host directory.
func rooted(root string) afero.Fs {
	fs := afero.NewOsFs()
	if root == "" || root == "/" {
		return fs
	}
	return afero.NewBasePathFs(fs, root)
}

func serveGRPC(gs *grpc.Server, addr string) {
	if addr == "" {
		return
	}
	l, err := net.Listen("tcp", addr)
	if err != nil {
		log.Error("grpc listen failed", "addr", addr, "error", err)
		return
	}
	log.Info("grpc health listening", "addr", addr)
	if err := gs.Serve(l); err != nil {
		log.Error("grpc serve failed", "error", err)
	}
}

// watchHealth mirrors the readiness checks into the gRPC health service.
func watchHealth(ctx context.Context, hs *grpchealth.Server, check func(context.Context) health.HealthStatus) {
	t := time.NewTicker(healthInterval)
	defer t.Stop()
	last := healthpb.HealthCheckResponse_UNKNOWN
	for {
		cctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		status := check(cctx)
		cancel()
		next := healthpb.HealthCheckResponse_SERVING
		if !status.OK {
			next = healthpb.HealthCheckResponse_NOT_SERVING
		}
		if next != last {
			log.Info("health changed", "serving", status.OK, "detail", status.String())
			last = next
		}
		hs.SetServingStatus("", next)
		hs.SetServingStatus("skull", next)

		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debug("http request", "method", r.Method, "path", r.URL.Path, "elapsed", time.Since(start))
	})
}
