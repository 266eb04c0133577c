package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"time"

	"github.com/golang/glog"
)

const (
	memProfileRate  = 4096
	profileTimeFmt  = "20060102_150405"
	goroutineDetail = 2
)

// profiler captures cpu and heap profiles of the client between start and
// Stop, toggled by SIGUSR2.
type profiler struct {
	dir     string
	closers []func()
}

func startProfiler(dir string) *profiler {
	p := &profiler{dir: dir}

	if f := p.create("cpu"); f != nil {
		if err := pprof.StartCPUProfile(f); err != nil {
			glog.Errorf("pprof: start cpu profile error: %v", err)
			f.Close()
		} else {
			p.closers = append(p.closers, func() {
				pprof.StopCPUProfile()
				f.Close()
			})
		}
	}

	if f := p.create("heap"); f != nil {
		old := runtime.MemProfileRate
		runtime.MemProfileRate = memProfileRate
		p.closers = append(p.closers, func() {
			if err := pprof.Lookup("heap").WriteTo(f, 0); err != nil {
				glog.Errorf("pprof: write heap profile error: %v", err)
			}
			f.Close()
			runtime.MemProfileRate = old
		})
	}

	glog.Infof("pprof: profiling started, dir: %s", dir)
	return p
}

func (p *profiler) Stop() {
	for _, closer := range p.closers {
		closer()
	}
	p.closers = nil
	glog.Infof("pprof: profiling stopped, dir: %s", p.dir)
}

func (p *profiler) create(kind string) *os.File {
	name := filepath.Join(p.dir, fmt.Sprintf("%s-%s.pprof", kind, time.Now().Format(profileTimeFmt)))
	f, err := os.Create(name)
	if err != nil {
		glog.Errorf("pprof: could not create %s profile %q: %v", kind, name, err)
		return nil
	}
	return f
}

// dumpGoroutines writes the stacks of all goroutines to dir, on SIGUSR1.
func dumpGoroutines(dir string) {
	name := filepath.Join(dir, fmt.Sprintf("goroutines-%s.dump", time.Now().Format(profileTimeFmt)))
	f, err := os.Create(name)
	if err != nil {
		glog.Errorf("pprof: dump goroutines error: %v", err)
		return
	}
	defer f.Close()
	if err := pprof.Lookup("goroutine").WriteTo(f, goroutineDetail); err != nil {
		glog.Errorf("pprof: write goroutines to %s error: %v", name, err)
		return
	}
	glog.Infof("pprof: goroutines dumped to %s", name)
}
