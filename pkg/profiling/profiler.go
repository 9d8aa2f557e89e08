// Package profiling adds pprof flags to a cobra command tree. Profiles of
// the daemon are written when it shuts down.
package profiling

import (
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Profiler owns the profile flags and the open CPU profile.
type Profiler struct {
	cpuPath string
	memPath string
	cpuFile *os.File
	logger  *logrus.Entry
}

// New creates a Profiler. A nil logger discards messages.
func New(logger *logrus.Entry) *Profiler {
	if logger == nil {
		l := logrus.New()
		l.SetOutput(os.Stderr)
		l.SetLevel(logrus.WarnLevel)
		logger = logrus.NewEntry(l)
	}
	return &Profiler{logger: logger}
}

// AddFlags registers --cpu-profile and --mem-profile on cmd.
func (p *Profiler) AddFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&p.cpuPath, "cpu-profile", "", "Write a CPU profile to this file")
	cmd.PersistentFlags().StringVar(&p.memPath, "mem-profile", "", "Write a heap profile to this file on exit")
}

// Start begins CPU profiling when requested. Use it from PersistentPreRunE.
func (p *Profiler) Start() error {
	if p.cpuPath == "" {
		return nil
	}
	f, err := os.Create(p.cpuPath)
	if err != nil {
		return fmt.Errorf("could not create CPU profile: %w", err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		f.Close()
		return fmt.Errorf("could not start CPU profile: %w", err)
	}
	p.cpuFile = f
	return nil
}

// Stop writes the requested profiles. Use it from PersistentPostRun.
func (p *Profiler) Stop() {
	if p.cpuFile != nil {
		pprof.StopCPUProfile()
		p.cpuFile.Close()
		p.cpuFile = nil
		p.logger.WithField("path", p.cpuPath).Info("CPU profile written")
	}

	if p.memPath == "" {
		return
	}
	f, err := os.Create(p.memPath)
	if err != nil {
		p.logger.WithError(err).Warn("Could not create heap profile")
		return
	}
	defer f.Close()
	runtime.GC()
	if err := pprof.WriteHeapProfile(f); err != nil {
		p.logger.WithError(err).Warn("Could not write heap profile")
		return
	}
	p.logger.WithField("path", p.memPath).Info("Heap profile written")
}
