package status

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fernandosanchezjr/gousbhost/host"
	"github.com/fernandosanchezjr/gousbhost/logging"
	"github.com/fernandosanchezjr/gousbhost/networking/certs"
	"github.com/julienschmidt/httprouter"
	log "github.com/sirupsen/logrus"
)

// Service serves a read-only HTTPS status API: attached devices, open
// handles, claim counts and transfer totals.
type Service struct {
	host     *host.Host
	counters *logging.CounterHook
	started  time.Time
	server   *http.Server
}

func NewService(h *host.Host, counters *logging.CounterHook) *Service {
	return &Service{host: h, counters: counters, started: time.Now()}
}

func (s *Service) Start(address string) error {
	if _, err := certs.GetCert("https"); err != nil {
		return err
	}
	cert, key, _ := certs.GetCertsPath("https")
	router := httprouter.New()
	router.GET("/status", s.GetStatus)
	router.GET("/devices", s.GetDevices)
	s.server = &http.Server{Addr: address, Handler: router}
	go func() {
		if err := s.server.ListenAndServeTLS(cert, key); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("Status service stopped")
		}
	}()
	return nil
}

func (s *Service) Stop() {
	if s.server != nil {
		_ = s.server.Close()
	}
}

type statusReport struct {
	Uptime     string `json:"uptime"`
	Devices    int    `json:"devices"`
	Handles    int    `json:"handles"`
	Claims     int    `json:"claims"`
	Completed  uint64 `json:"transfersCompleted"`
	Cancelled  uint64 `json:"transfersCancelled"`
	BytesIn    string `json:"bytesIn"`
	BytesOut   string `json:"bytesOut"`
	LogWarning uint64 `json:"logWarnings"`
	LogErrors  uint64 `json:"logErrors"`
}

type deviceReport struct {
	ID         uint32 `json:"id"`
	Vendor     string `json:"vendor"`
	Product    string `json:"product"`
	Serial     string `json:"serial,omitempty"`
	Interfaces int    `json:"interfaces"`
}

func (s *Service) GetStatus(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	handles, devices, claims, stats := s.host.Counters()
	report := statusReport{
		Uptime:    time.Since(s.started).Round(time.Second).String(),
		Devices:   devices,
		Handles:   handles,
		Claims:    claims,
		Completed: stats.Completed,
		Cancelled: stats.Cancelled,
		BytesIn:   humanize.Bytes(stats.BytesIn),
		BytesOut:  humanize.Bytes(stats.BytesOut),
	}
	if s.counters != nil {
		report.LogWarning = s.counters.Warnings()
		report.LogErrors = s.counters.Errors()
	}
	s.writeJSON(w, report)
}

func (s *Service) GetDevices(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	resp := <-s.host.GetDevices(host.Filter{})
	if resp.Err != nil {
		log.WithError(resp.Err).Error("Error enumerating devices")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	reports := make([]deviceReport, 0, len(resp.Devices))
	for _, desc := range resp.Devices {
		reports = append(reports, deviceReport{
			ID:         desc.ID,
			Vendor:     fmt.Sprintf("%04x", desc.Vendor),
			Product:    fmt.Sprintf("%04x", desc.Product),
			Serial:     desc.Serial,
			Interfaces: len(desc.Interfaces),
		})
	}
	s.writeJSON(w, reports)
}

func (s *Service) writeJSON(w http.ResponseWriter, value interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(value); err != nil {
		log.WithError(err).Error("Error writing status response")
	}
}
