// Package daemon wires the configured bus backend, permission broker, host
// core and network surfaces into one start/stop lifecycle.
package daemon

import (
	"errors"
	"time"

	"github.com/fernandosanchezjr/gousbhost/bus"
	"github.com/fernandosanchezjr/gousbhost/bus/physical"
	"github.com/fernandosanchezjr/gousbhost/config"
	"github.com/fernandosanchezjr/gousbhost/host"
	"github.com/fernandosanchezjr/gousbhost/logging"
	"github.com/fernandosanchezjr/gousbhost/networking/server"
	"github.com/fernandosanchezjr/gousbhost/networking/services"
	"github.com/fernandosanchezjr/gousbhost/permissions"
	"github.com/fernandosanchezjr/gousbhost/status"
	"github.com/fernandosanchezjr/gousbhost/utils"
	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
	"github.com/valyala/gorpc"
	"go.etcd.io/bbolt"
)

// ServiceName is the RPC service the host operations are published under.
const ServiceName = "USBHost"

// PermissionsServiceName is the grant administration service, published
// only when the "grants" broker is configured.
const PermissionsServiceName = "Permissions"

type Daemon struct {
	Config    *config.Config
	Host      *host.Host
	bus       bus.Bus
	db        *bbolt.DB
	grants    *permissions.GrantStore
	counters  *logging.CounterHook
	rpcServer *gorpc.Server
	statusSvc *status.Service
	scheduler *cron.Cron
	watcher   *fsnotify.Watcher
}

func NewDaemon(cfg *config.Config) *Daemon {
	return &Daemon{Config: cfg, counters: logging.NewCounterHook()}
}

func newBackend(cfg config.Bus) (bus.Bus, error) {
	switch cfg.Backend {
	case "", "physical":
		return physical.New(cfg.VendorAllowList), nil
	case "none":
		return nopBus{}, nil
	default:
		return nil, errors.New("unknown bus backend " + cfg.Backend)
	}
}

func (d *Daemon) newBroker() (permissions.Broker, error) {
	var broker permissions.Broker
	switch d.Config.Permissions.Broker {
	case "", "allow":
		broker = permissions.AllowAll{}
	case "grants":
		db, err := permissions.OpenDB()
		if err != nil {
			return nil, err
		}
		d.db = db
		d.grants = permissions.NewGrantStore(db)
		broker = d.grants
	default:
		return nil, errors.New("unknown permission broker " + d.Config.Permissions.Broker)
	}
	if ttl := d.Config.Permissions.CacheTTLSeconds; ttl > 0 {
		broker = permissions.NewCachedBroker(broker, time.Duration(ttl)*time.Second)
	}
	return broker, nil
}

func (d *Daemon) Start() error {
	if d.Config.LogLevel != "" {
		logging.SetLevel(d.Config.LogLevel)
	}
	log.AddHook(d.counters)
	b, err := newBackend(d.Config.Bus)
	if err != nil {
		return err
	}
	d.bus = b
	broker, err := d.newBroker()
	if err != nil {
		return err
	}
	d.Host = host.New(d.bus, broker)
	registry := services.NewRegistry()
	registry.AddService(ServiceName, services.NewUSBHostService(d.Host))
	if d.grants != nil {
		registry.AddService(PermissionsServiceName, services.NewPermissionsService(d.Host, d.grants))
	}
	d.rpcServer = server.NewServer(d.Config.RPCAddress, registry)
	if err := d.rpcServer.Start(); err != nil {
		return err
	}
	if d.Config.StatusAddress != "" {
		d.statusSvc = status.NewService(d.Host, d.counters)
		if err := d.statusSvc.Start(d.Config.StatusAddress); err != nil {
			return err
		}
	}
	if d.Config.RescanSpec != "" {
		d.scheduler = cron.New()
		if _, err := d.scheduler.AddFunc(d.Config.RescanSpec, d.Host.Registry().Refresh); err != nil {
			return err
		}
		d.scheduler.Start()
	}
	if watcher, err := utils.NewFileWatcher(config.ConfigPath(), d.configChanged); err != nil {
		log.WithError(err).Warnln("Could not watch config file")
	} else {
		d.watcher = watcher
	}
	log.WithFields(log.Fields{
		"backend": d.Config.Bus.Backend,
		"rpc":     d.Config.RPCAddress,
	}).Println("Daemon started")
	return nil
}

// configChanged applies the settings that are safe to change at runtime.
func (d *Daemon) configChanged() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.WithError(err).Warnln("Could not reload config")
		return
	}
	if cfg.LogLevel != "" && cfg.LogLevel != d.Config.LogLevel {
		logging.SetLevel(cfg.LogLevel)
		d.Config.LogLevel = cfg.LogLevel
	}
}

func (d *Daemon) Stop() {
	if d.watcher != nil {
		_ = d.watcher.Close()
	}
	if d.scheduler != nil {
		d.scheduler.Stop()
	}
	if d.statusSvc != nil {
		d.statusSvc.Stop()
	}
	if d.rpcServer != nil {
		d.rpcServer.Stop()
	}
	if d.Host != nil {
		d.Host.Shutdown()
	}
	if d.bus != nil {
		if err := d.bus.Close(); err != nil {
			log.WithError(err).Warnln("Error closing bus")
		}
	}
	if d.db != nil {
		_ = d.db.Close()
	}
	log.Println("Daemon stopped")
}
