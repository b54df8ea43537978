// Package supervisor wires together every component of the device agent:
// connectivity monitoring, the local bus, the cloud channel, routing, the
// NTP monitor, and the update orchestrator.
package supervisor

import (
	"context"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/marco-svitol/dunebugger-remote/internal/auth"
	"github.com/marco-svitol/dunebugger-remote/internal/cloudchannel"
	"github.com/marco-svitol/dunebugger-remote/internal/config"
	"github.com/marco-svitol/dunebugger-remote/internal/connectivity"
	"github.com/marco-svitol/dunebugger-remote/internal/domain"
	"github.com/marco-svitol/dunebugger-remote/internal/localbus"
	"github.com/marco-svitol/dunebugger-remote/internal/metrics"
	"github.com/marco-svitol/dunebugger-remote/internal/ntpmonitor"
	"github.com/marco-svitol/dunebugger-remote/internal/routing"
	"github.com/marco-svitol/dunebugger-remote/internal/sysinfo"
	"github.com/marco-svitol/dunebugger-remote/internal/updater"
	loggerpkg "github.com/marco-svitol/dunebugger-remote/pkg/logger"
)

// Supervisor owns every long-running subsystem and the wiring between
// them.
type Supervisor struct {
	cfg    *config.Config
	logger *slog.Logger

	Registry     *prometheus.Registry
	Metrics      *metrics.Registry
	Connectivity *connectivity.Monitor
	LocalBus     *localbus.Bus
	CloudChannel *cloudchannel.Channel
	NTP          *ntpmonitor.Monitor
	Updater      *updater.Orchestrator
	SysInfo      *sysinfo.Model
	Router       *routing.Router

	localBusListenAddr string
}

// New builds a fully-wired Supervisor from cfg, but starts nothing.
func New(cfg *config.Config, logger *slog.Logger) *Supervisor {
	reg := prometheus.NewRegistry()
	m := metrics.NewRegistry(reg)

	model := sysinfo.New(cfg.System.DeviceID, cfg.System.LocationDescription)

	connMonitor := connectivity.New(cfg.Websocket.TestDomain, cfg.Websocket.ConnectionIntervalOrDefault(), cfg.Websocket.ConnectionTimeoutOrDefault(), loggerpkg.WithComponent(logger, "connectivity"))

	authCli := auth.NewClient(cfg.Auth)

	upd := updater.New(cfg.Updater, loggerpkg.WithComponent(logger, "updater"), &m.Updater)

	bus := localbus.New(cfg.MQueue.SubjectRoot, cfg.MQueue.ClientID, loggerpkg.WithComponent(logger, "localbus"))

	localAddrs := make(map[domain.ComponentType]string, len(cfg.MQueue.Servers))
	for name, addr := range cfg.MQueue.Servers {
		localAddrs[domain.ComponentType(name)] = addr
	}

	ntpMon := ntpmonitor.New(cfg.NTP.Servers, cfg.NTP.CheckInterval, cfg.NTP.Timeout, loggerpkg.WithComponent(logger, "ntp"), func(state domain.NTPState) {
		model.SetNTPAvailable(state)
		m.NTP.Available.Set(boolToFloat(state == domain.NTPStateSynced))
	})

	s := &Supervisor{
		cfg:                cfg,
		logger:             logger,
		Registry:           reg,
		Metrics:            m,
		Connectivity:       connMonitor,
		LocalBus:           bus,
		NTP:                ntpMon,
		Updater:            upd,
		SysInfo:            model,
		localBusListenAddr: cfg.MQueue.ListenAddress,
	}

	router := routing.New(nil, bus, localAddrs, model, upd, &m.LocalBus, loggerpkg.WithComponent(logger, "routing"), cfg.Websocket.HeartBeatEvery, cfg.Websocket.HeartBeatLoopDuration)
	channel := cloudchannel.New(cfg.Websocket, authCli, connMonitor, &m.CloudChannel, loggerpkg.WithComponent(logger, "cloudchannel"), router.HandleCloudMessage)
	router.SetCloudSender(channel)

	s.CloudChannel = channel
	s.Router = router

	connMonitor.AddCallback(func(state domain.ConnectivityState) {
		m.Connectivity.StateTransitionsTotal.WithLabelValues(string(state)).Inc()
		m.Connectivity.Up.Set(boolToFloat(state == domain.ConnectivityUp))
	})
	connMonitor.AddCallback(channel.NotifyConnectivity)

	bus.Handle("heartbeat", s.handleLocalHeartbeat)
	bus.Handle("get_version", s.handleLocalGetVersion)
	bus.Handle("get_ntp_status", s.handleLocalGetNTPStatus)

	return s
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Run starts every subsystem and blocks until ctx is cancelled, then waits
// for each subsystem to stop.
func (s *Supervisor) Run(ctx context.Context) {
	var wg sync.WaitGroup

	run := func(name string, f func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.logger.Info("starting subsystem", "subsystem", name)
			f(ctx)
			s.logger.Info("subsystem stopped", "subsystem", name)
		}()
	}

	run("connectivity", s.Connectivity.Run)
	run("cloudchannel", s.CloudChannel.Run)
	run("ntpmonitor", s.NTP.Run)
	run("updater", s.Updater.Run)
	run("heartbeat_loop", s.Router.RunHeartbeatLoop)
	run("component_heartbeat", s.Router.RunComponentHeartbeat)
	run("localbus", func(ctx context.Context) {
		if err := s.LocalBus.Listen(ctx, s.localBusListenAddr); err != nil && ctx.Err() == nil {
			s.logger.Error("local bus listener exited", "error", err)
		}
	})

	wg.Wait()
}
