// File: cmd/rpcengine/main.go
// Author: momentics <momentics@gmail.com>
//
// A minimal composition root wiring every engine component into a running
// echo service over a single TCP connection: config, logging, the clock,
// statistics, the pending-call table, the module registry, a request
// scheduler, the crash-fingerprint watchdog, a cooperative-task backend, and
// the RPC dispatcher, driven by Engine.Run. Grounded in style on
// examples/echo/main.go's flag-parse/construct/signal-wait/shutdown shape,
// generalized away from that file's listener-per-connection accept loop since
// one Engine drains exactly one default api.Transport per tick (§4.3 phase 2).

package main

import (
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/momentics/rpcengine/api"
	"github.com/momentics/rpcengine/clock"
	"github.com/momentics/rpcengine/config"
	"github.com/momentics/rpcengine/crashwatch"
	"github.com/momentics/rpcengine/dispatcher"
	"github.com/momentics/rpcengine/engine"
	"github.com/momentics/rpcengine/logging"
	"github.com/momentics/rpcengine/module"
	"github.com/momentics/rpcengine/pending"
	"github.com/momentics/rpcengine/scheduler"
	"github.com/momentics/rpcengine/stats"
	"github.com/momentics/rpcengine/task"
	"github.com/momentics/rpcengine/timer"
	"github.com/momentics/rpcengine/transport"
)

const echoCmd uint32 = 1

func main() {
	addr := flag.String("addr", "127.0.0.1:9501", "TCP address to listen on")
	cfgPath := flag.String("config", "", "path to a TOML config file (optional, overlays Default())")
	fingerprintPath := flag.String("fingerprint", "", "path to the crash-fingerprint region file (empty disables it)")
	flag.Parse()

	store := config.NewStore(config.Default())
	if *cfgPath != "" {
		loaded, err := config.Load(*cfgPath)
		if err != nil {
			bootLogger := logging.New(config.Logging{})
			bootLogger.Fatal().Err(err).Msg("config load failed")
		}
		store = loaded
	}
	cfg := store.Snapshot()
	logger := logging.New(cfg.Log)

	watchdog := crashwatch.NewNoop()
	if *fingerprintPath != "" {
		w, err := crashwatch.Open(*fingerprintPath)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to open crash-fingerprint region")
		}
		watchdog = w
		defer w.Close()
	}

	clk := clock.New()
	ids := clock.NewIDGenerator()
	st := stats.New()
	wheel := timer.New()
	pend := pending.New(wheel, clk, ids, st.IncRpcTimeout)
	modules := module.New(0)
	sched := scheduler.New(0)

	d := dispatcher.New(clk, ids, st, pend, watchdog, cfg.SendBufLimit, logger)
	d.SetScheduler(sched)
	if cfg.MaxCoroNum > 0 {
		d.SetTaskBackend(task.NewGoroutineBackend(cfg.MaxCoroNum))
	}

	if err := d.RegisterMethod(api.MethodDesc{
		Cmd: echoCmd,
		Handler: func(ctx *api.ServerContext, req []byte) {
			ctx.Response = append([]byte("echo:"), req...)
		},
	}); err != nil {
		logger.Fatal().Err(err).Msg("failed to register echo method")
	}

	listener, err := net.Listen("tcp", *addr)
	if err != nil {
		logger.Fatal().Err(err).Str("addr", *addr).Msg("listen failed")
	}
	logger.Info().Str("addr", *addr).Msg("waiting for a connection")

	conn, err := listener.Accept()
	listener.Close()
	if err != nil {
		logger.Fatal().Err(err).Msg("accept failed")
	}
	logger.Info().Str("remote", conn.RemoteAddr().String()).Msg("client connected")

	channel := transport.NewTCPChannel(1, conn, clk.CurrentMicros)
	router := transport.NewStaticRouter()
	svrTransport := &api.Transport{
		ID:        1,
		Channel:   channel,
		RecvCodec: func() api.RecvCodec { return transport.NewSimpleCodec() },
		SendCodec: func() api.SendCodec { return transport.NewSimpleCodec() },
		Routing:   router,
	}
	d.AddTransport(svrTransport)

	eng := engine.New(engine.Options{
		Frame:      engine.FrameLimitOptions{MaxProcMs: cfg.Frame.MaxProcMs, MaxCtxProcMs: cfg.Frame.MaxCtxProcMs, MinOnProcMs: cfg.Frame.MinOnProcMs},
		FlowCtrl:   engine.FlowControlOptions(cfg.FlowCtrl),
		MaxTickMs:  cfg.MaxTickMs,
		MaxCoroNum: cfg.MaxCoroNum,
		PinCPU:     cfg.PinCPU,
	}, engine.Hooks{}, clk, modules, pend, st, sched, nil, svrTransport, logger)

	if err := eng.Init(); err != nil {
		logger.Fatal().Err(err).Msg("engine init failed")
	}

	stopCh := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info().Msg("shutdown signal received")
		close(stopCh)
	}()

	eng.Run(10, stopCh)
	eng.Finish()
	channel.Close()
	logger.Info().Msg("rpcengine stopped")
}
