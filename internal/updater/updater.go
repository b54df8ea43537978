// Package updater checks sibling components for available releases and
// drives updates through the host coordinator's filesystem RPC, enforcing
// that the remote component itself is always updated before any other.
package updater

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/marco-svitol/dunebugger-remote/internal/config"
	"github.com/marco-svitol/dunebugger-remote/internal/domain"
	"github.com/marco-svitol/dunebugger-remote/internal/metrics"
	"github.com/marco-svitol/dunebugger-remote/internal/semver"
	"github.com/marco-svitol/dunebugger-remote/internal/version"
)

// repoNames maps each managed component to its GitHub repository name.
var repoNames = map[domain.ComponentType]string{
	domain.ComponentCore:      "dunebugger",
	domain.ComponentScheduler: "dunebugger-scheduler",
}

// state is the orchestrator's live view of one component's versions.
type state struct {
	current         semver.Version
	latest          semver.Version
	updateAvailable bool
	lastChecked     time.Time
}

// Orchestrator checks and performs updates for the core, scheduler, and
// remote (this binary) components.
type Orchestrator struct {
	cfg     config.UpdaterConfig
	logger  *slog.Logger
	github  *GithubClient
	rpc     *hostRPC
	metrics *metrics.UpdaterMetrics

	mu    sync.Mutex
	state map[domain.ComponentType]*state
}

// New builds an Orchestrator, reading each component's currently-installed
// version from its version source. m may be nil in tests.
func New(cfg config.UpdaterConfig, logger *slog.Logger, m *metrics.UpdaterMetrics) *Orchestrator {
	o := &Orchestrator{
		cfg:     cfg,
		logger:  logger,
		github:  NewGithubClient(cfg.GithubAccount),
		rpc:     newHostRPC(cfg.RequestDir),
		metrics: m,
		state:   make(map[domain.ComponentType]*state),
	}

	o.state[domain.ComponentCore] = &state{current: semver.Parse(ReadPythonAppVersion(cfg.CoreInstallPath))}
	o.state[domain.ComponentScheduler] = &state{current: semver.Parse(ReadContainerVersion(cfg.DockerComposePath, "scheduler"))}
	o.state[domain.ComponentRemote] = &state{current: semver.Parse(version.Get().Version)}

	return o
}

// Run periodically checks for updates until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) {
	o.CheckAll(ctx)

	ticker := time.NewTicker(o.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.logger.Info("update orchestrator stopped")
			return
		case <-ticker.C:
			o.CheckAll(ctx)
		}
	}
}

// CheckAll fetches the latest release for every managed component (core,
// scheduler, and remote) and records whether an update is available. The
// remote component's repository is not in repoNames, so checkOne falls
// back to its RepoName.
func (o *Orchestrator) CheckAll(ctx context.Context) {
	for component, repo := range repoNames {
		o.checkOne(ctx, component, repo)
	}
	o.checkOne(ctx, domain.ComponentRemote, repoNames[domain.ComponentRemote])
}

func (o *Orchestrator) checkOne(ctx context.Context, component domain.ComponentType, repo string) {
	if repo == "" {
		repo = domain.ComponentRemote.RepoName()
	}

	if o.metrics != nil {
		o.metrics.ChecksTotal.WithLabelValues(string(component)).Inc()
	}

	latest, err := o.github.FetchLatest(ctx, repo, o.cfg.IncludePrerelease)
	if err != nil {
		o.logger.Warn("update check failed", "component", component, "error", err)
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	st, ok := o.state[component]
	if !ok {
		st = &state{}
		o.state[component] = st
	}
	st.latest = semver.Parse(latest.Version)
	st.updateAvailable = semver.LessThan(st.current, st.latest)
	st.lastChecked = time.Now()

	o.logger.Info("update check complete", "component", component, "current", st.current, "latest", st.latest, "update_available", st.updateAvailable)
}

// Status returns the update-check status for a component.
func (o *Orchestrator) Status(component domain.ComponentType) domain.ComponentVersion {
	o.mu.Lock()
	defer o.mu.Unlock()
	st := o.state[component]
	if st == nil {
		return domain.ComponentVersion{Component: component}
	}
	return domain.ComponentVersion{Component: component, Version: st.latest, CheckedAt: st.lastChecked}
}

// verifyUpdateOrder enforces that the remote component is updated first
// whenever it has an update available, regardless of which component the
// caller asked to update.
func (o *Orchestrator) verifyUpdateOrder(component domain.ComponentType) error {
	if component == domain.ComponentRemote {
		return nil
	}
	o.mu.Lock()
	remote := o.state[domain.ComponentRemote]
	o.mu.Unlock()

	if remote != nil && remote.updateAvailable {
		if o.metrics != nil {
			o.metrics.UpdateOrderViolationsTotal.Inc()
		}
		return fmt.Errorf("updater: cannot update %s before remote: remote has an available update and must be updated first", component)
	}
	return nil
}

// Update requests an update for component via the host coordinator,
// blocking until the coordinator reports completion or the request times
// out. It enforces the remote-first update-order invariant.
func (o *Orchestrator) Update(ctx context.Context, component domain.ComponentType) (domain.UpdateStatus, error) {
	if err := o.verifyUpdateOrder(component); err != nil {
		return domain.UpdateStatus{}, err
	}

	o.mu.Lock()
	st, ok := o.state[component]
	o.mu.Unlock()
	if !ok {
		return domain.UpdateStatus{}, fmt.Errorf("updater: unknown component %q", component)
	}
	if !st.updateAvailable {
		return domain.UpdateStatus{}, fmt.Errorf("updater: no update available for %s", component)
	}

	o.logger.Info("requesting update", "component", component, "from", st.current, "to", st.latest)
	if o.metrics != nil {
		o.metrics.UpdatesAttemptedTotal.WithLabelValues(string(component)).Inc()
	}

	status, err := o.rpc.Request(ctx, component, st.latest.Raw, o.cfg.StatusPollTimeout)
	if err != nil {
		return domain.UpdateStatus{}, err
	}

	if status.Success {
		o.mu.Lock()
		st.current = st.latest
		st.updateAvailable = false
		o.mu.Unlock()
		if o.metrics != nil {
			o.metrics.UpdatesSucceededTotal.WithLabelValues(string(component)).Inc()
		}
	}
	return status, nil
}
