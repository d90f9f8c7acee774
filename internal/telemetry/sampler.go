package telemetry

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/disk"
	"github.com/shirou/gopsutil/mem"

	"github.com/klingon-exchange/tradecore/internal/storage"
	"github.com/klingon-exchange/tradecore/pkg/logging"
)

const (
	systemSampleInterval = 60 * time.Second
	userSampleInterval   = 300 * time.Second
	activeUserWindow     = 24 * time.Hour
)

// Sampler periodically refreshes gauges that have no natural call site of
// their own: host resource usage and the active-user count. It follows the
// same multi-ticker run-loop shape as the order engine's trigger watcher and
// the teacher's retry worker.
type Sampler struct {
	metrics *Metrics
	storage *storage.Storage
	dataDir string
	log     *logging.Logger
}

// NewSampler builds a Sampler that reports disk usage for dataDir.
func NewSampler(metrics *Metrics, store *storage.Storage, dataDir string, log *logging.Logger) *Sampler {
	return &Sampler{metrics: metrics, storage: store, dataDir: dataDir, log: log.Component("telemetry")}
}

// Run blocks, sampling gauges on their configured intervals until ctx is
// canceled.
func (s *Sampler) Run(ctx context.Context) {
	systemTicker := time.NewTicker(systemSampleInterval)
	defer systemTicker.Stop()
	userTicker := time.NewTicker(userSampleInterval)
	defer userTicker.Stop()

	s.sampleSystem()
	s.sampleUsers()

	for {
		select {
		case <-ctx.Done():
			return
		case <-systemTicker.C:
			s.sampleSystem()
		case <-userTicker.C:
			s.sampleUsers()
		}
	}
}

func (s *Sampler) sampleSystem() {
	if pcts, err := cpu.Percent(0, false); err != nil {
		s.log.Warn("failed to sample cpu usage", "error", err)
	} else if len(pcts) > 0 {
		s.metrics.CPUUsagePercent.Set(pcts[0])
	}

	if vm, err := mem.VirtualMemory(); err != nil {
		s.log.Warn("failed to sample memory usage", "error", err)
	} else {
		s.metrics.MemUsagePercent.Set(vm.UsedPercent)
	}

	path := s.dataDir
	if path == "" {
		path = "/"
	}
	if du, err := disk.Usage(path); err != nil {
		s.log.Warn("failed to sample disk usage", "path", path, "error", err)
	} else {
		s.metrics.DiskUsagePercent.Set(du.UsedPercent)
	}
}

func (s *Sampler) sampleUsers() {
	count, err := s.storage.CountActiveUsers(time.Now().Add(-activeUserWindow))
	if err != nil {
		s.log.Warn("failed to sample active users", "error", err)
		return
	}
	s.metrics.ActiveUsers.Set(float64(count))
}
