package services

import (
	"github.com/valyala/gorpc"
)

// The dispatcher registers the request and reply structs itself when a
// service is added; only the message types nested inside them are listed
// here.
func init() {
	gorpc.RegisterType(DeviceMessage{})
	gorpc.RegisterType(EndpointMessage{})
	gorpc.RegisterType(AltSettingMessage{})
	gorpc.RegisterType(InterfaceMessage{})
	gorpc.RegisterType(HandleMessage{})
	gorpc.RegisterType(PacketMessage{})
}

type Registry struct {
	Services map[string]interface{}
}

func NewRegistry() *Registry {
	return &Registry{Services: map[string]interface{}{}}
}

func (r *Registry) AddService(name string, service interface{}) {
	r.Services[name] = service
}
