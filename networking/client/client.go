package client

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/fernandosanchezjr/gousbhost/networking/server"
	"github.com/fernandosanchezjr/gousbhost/networking/services"
	log "github.com/sirupsen/logrus"
	"github.com/valyala/gorpc"
)

const ClientTimeout = 5 * time.Second

var ServiceNotFound = errors.New("service not found")

func isTimeout(err error) bool {
	return strings.Contains(err.Error(), "timeout")
}

type Client struct {
	RpcClient   *gorpc.Client
	Dispatchers map[string]*gorpc.DispatcherClient
}

func NewClient(address string, registry *services.Registry) *Client {
	ipAddrs, err := net.LookupHost(address)
	if err != nil {
		log.WithError(err).Fatal("Could not look up client address")
	}
	if len(ipAddrs) == 0 {
		log.WithField("address", address).Fatal("Could not resolve address to IP")
	}
	tlsConfig := &tls.Config{InsecureSkipVerify: true}
	return wrap(gorpc.NewTLSClient(fmt.Sprintf("%s:%d", ipAddrs[0], server.Port), tlsConfig), registry)
}

// NewUnixClient connects over a local unix socket, used by same-machine
// tooling.
func NewUnixClient(socketPath string, registry *services.Registry) *Client {
	return wrap(gorpc.NewUnixClient(socketPath), registry)
}

func wrap(rpcClient *gorpc.Client, registry *services.Registry) *Client {
	cl := &Client{
		RpcClient:   rpcClient,
		Dispatchers: map[string]*gorpc.DispatcherClient{},
	}
	cl.RpcClient.RequestTimeout = ClientTimeout
	cl.RpcClient.LogError = gorpc.NilErrorLogger
	dispatcher := gorpc.NewDispatcher()
	for name, service := range registry.Services {
		dispatcher.AddService(name, service)
		cl.Dispatchers[name] = dispatcher.NewServiceClient(name, cl.RpcClient)
	}
	return cl
}

func (cl *Client) Start() {
	cl.RpcClient.Start()
}

func (cl *Client) Stop() {
	cl.RpcClient.Stop()
}

func (cl *Client) Restart() {
	cl.Stop()
	cl.Start()
}

func (cl *Client) Call(service, funcName string, request interface{}) (interface{}, error) {
	client, found := cl.Dispatchers[service]
	if !found {
		return nil, ServiceNotFound
	}
	result, err := client.Call(funcName, request)
	if err != nil && isTimeout(err) {
		cl.Restart()
	}
	return result, err
}

func (cl *Client) Send(service, funcName string, request interface{}) error {
	client, found := cl.Dispatchers[service]
	if !found {
		return ServiceNotFound
	}
	err := client.Send(funcName, request)
	if err != nil && isTimeout(err) {
		cl.Restart()
	}
	return err
}
