package server

import (
	"crypto/tls"
	"fmt"

	"github.com/fernandosanchezjr/gousbhost/networking/certs"
	"github.com/fernandosanchezjr/gousbhost/networking/services"
	log "github.com/sirupsen/logrus"
	"github.com/valyala/gorpc"
)

const Port = 12000

func NewServer(address string, registry *services.Registry) *gorpc.Server {
	dispatcher := gorpc.NewDispatcher()
	for name, service := range registry.Services {
		dispatcher.AddService(name, service)
	}
	cert, err := certs.GetCert("rpc")
	if err != nil {
		log.WithError(err).Fatal("Could not load RPC cert")
	}
	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
	}
	server := gorpc.NewTLSServer(fmt.Sprintf("%s:%d", address, Port), dispatcher.NewHandlerFunc(), tlsConfig)
	server.LogError = gorpc.NilErrorLogger
	return server
}
