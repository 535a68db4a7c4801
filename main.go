package main

import (
	"flag"
	"os"
	"runtime/pprof"
	"runtime/trace"

	"github.com/fernandosanchezjr/gousbhost/config"
	"github.com/fernandosanchezjr/gousbhost/daemon"
	"github.com/fernandosanchezjr/gousbhost/logging"
	"github.com/fernandosanchezjr/gousbhost/utils"
	log "github.com/sirupsen/logrus"
)

var cpuProfile bool
var tracing bool

func init() {
	flag.BoolVar(&cpuProfile, "cpu-profile", cpuProfile, "enable cpu profiling")
	flag.BoolVar(&tracing, "trace", tracing, "enable tracing")
}

func main() {
	flag.Parse()
	logging.SetupLogger()
	if cpuProfile {
		f, err := os.Create("gousbhost.prof")
		if err != nil {
			log.Fatal(err)
		}
		if err = pprof.StartCPUProfile(f); err != nil {
			log.Fatal(err)
		}
		defer pprof.StopCPUProfile()
	}
	if tracing {
		f, err := os.Create("gousbhost.trace")
		if err != nil {
			log.Fatal(err)
		}
		if err := trace.Start(f); err != nil {
			log.Fatal(err)
		}
		defer trace.Stop()
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		log.WithError(err).Fatal("Could not load config")
	}
	d := daemon.NewDaemon(cfg)
	if err := d.Start(); err != nil {
		log.WithError(err).Fatal("Could not start daemon")
	}
	utils.Wait()
	d.Stop()
}
