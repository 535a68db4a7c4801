package daemon

import (
	"testing"

	"github.com/fernandosanchezjr/gousbhost/config"
	"github.com/fernandosanchezjr/gousbhost/permissions"
)

func TestNewBackendNone(t *testing.T) {
	b, err := newBackend(config.Bus{Backend: "none"})
	if err != nil {
		t.Fatal(err)
	}
	devices, err := b.Enumerate()
	if err != nil {
		t.Fatal(err)
	}
	if len(devices) != 0 {
		t.Fatalf("expected empty bus, got %d devices", len(devices))
	}
	if _, err := b.Open(1); err == nil {
		t.Fatal("expected open on empty bus to fail")
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestNewBackendUnknown(t *testing.T) {
	if _, err := newBackend(config.Bus{Backend: "virtual"}); err == nil {
		t.Fatal("expected unknown backend to fail")
	}
}

func TestNewBrokerSelection(t *testing.T) {
	d := NewDaemon(&config.Config{})
	broker, err := d.newBroker()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := broker.(permissions.AllowAll); !ok {
		t.Fatalf("expected AllowAll broker, got %T", broker)
	}
	d = NewDaemon(&config.Config{Permissions: config.Permissions{CacheTTLSeconds: 60}})
	broker, err = d.newBroker()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := broker.(*permissions.CachedBroker); !ok {
		t.Fatalf("expected cached broker, got %T", broker)
	}
	d = NewDaemon(&config.Config{Permissions: config.Permissions{Broker: "deny"}})
	if _, err := d.newBroker(); err == nil {
		t.Fatal("expected unknown broker to fail")
	}
}
