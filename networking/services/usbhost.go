package services

import (
	"github.com/fernandosanchezjr/gousbhost/bus"
	"github.com/fernandosanchezjr/gousbhost/host"
)

// USBHostService exposes the host operation surface over the RPC
// dispatcher. Requests and replies are passed by reference, as the
// dispatcher requires. Each method blocks on the host's completion channel
// and returns exactly one reply or error.
type USBHostService struct {
	host *host.Host
}

func NewUSBHostService(h *host.Host) *USBHostService {
	return &USBHostService{host: h}
}

func deviceMessage(desc *bus.DeviceDesc) DeviceMessage {
	return DeviceMessage{ID: desc.ID, Vendor: desc.Vendor, Product: desc.Product, Serial: desc.Serial}
}

func handleMessage(info host.HandleInfo) HandleMessage {
	return HandleMessage{Handle: info.Handle, Vendor: info.Vendor, Product: info.Product}
}

func interfaceMessages(interfaces []bus.InterfaceDesc) []InterfaceMessage {
	var out []InterfaceMessage
	for _, intf := range interfaces {
		msg := InterfaceMessage{Number: intf.Number}
		for _, alt := range intf.AltSettings {
			altMsg := AltSettingMessage{
				Alternate: alt.Alternate,
				Class:     alt.Class,
				SubClass:  alt.SubClass,
				Protocol:  alt.Protocol,
			}
			for _, ep := range alt.Endpoints {
				altMsg.Endpoints = append(altMsg.Endpoints, EndpointMessage{
					Number:          ep.Number,
					Direction:       int(ep.Direction),
					TransferType:    int(ep.TransferType),
					MaxPacketSize:   ep.MaxPacketSize,
					PollingInterval: ep.PollingInterval,
				})
			}
			msg.AltSettings = append(msg.AltSettings, altMsg)
		}
		out = append(out, msg)
	}
	return out
}

func transferReply(resp host.TransferResponse) (*TransferReply, error) {
	if resp.Err != nil {
		return nil, resp.Err
	}
	reply := &TransferReply{Code: int32(resp.Result.Code), Data: resp.Result.Data}
	for _, packet := range resp.Result.Packets {
		reply.Packets = append(reply.Packets, PacketMessage{Length: packet.Length, Code: int32(packet.Code)})
	}
	return reply, nil
}

func (s *USBHostService) GetDevices(req *DevicesRequest) (*DevicesReply, error) {
	resp := <-s.host.GetDevices(host.Filter{Vendor: req.Vendor, Product: req.Product})
	if resp.Err != nil {
		return nil, resp.Err
	}
	reply := &DevicesReply{}
	for _, desc := range resp.Devices {
		reply.Devices = append(reply.Devices, deviceMessage(desc))
	}
	return reply, nil
}

func (s *USBHostService) RequestAccess(req *AccessRequest) (*AccessReply, error) {
	resp := <-s.host.RequestAccess(req.Device, req.Interface)
	if resp.Err != nil {
		return nil, resp.Err
	}
	return &AccessReply{Granted: resp.Granted}, nil
}

func (s *USBHostService) OpenDevice(req *OpenRequest) (*OpenReply, error) {
	resp := <-s.host.OpenDevice(req.Device)
	if resp.Err != nil {
		return nil, resp.Err
	}
	return &OpenReply{Handle: handleMessage(resp.Info)}, nil
}

func (s *USBHostService) FindDevices(req *FindRequest) (*FindReply, error) {
	var interfaceID *int
	if req.HasInterface {
		interfaceID = &req.Interface
	}
	resp := <-s.host.FindDevices(host.Filter{Vendor: req.Vendor, Product: req.Product}, interfaceID)
	reply := &FindReply{}
	for _, info := range resp.Handles {
		reply.Handles = append(reply.Handles, handleMessage(info))
	}
	return reply, nil
}

func (s *USBHostService) CloseDevice(req *CloseRequest) error {
	<-s.host.CloseDevice(req.Handle)
	return nil
}

func (s *USBHostService) ListInterfaces(req *ListInterfacesRequest) (*ListInterfacesReply, error) {
	resp := <-s.host.ListInterfaces(req.Handle)
	if resp.Err != nil {
		return nil, resp.Err
	}
	return &ListInterfacesReply{Interfaces: interfaceMessages(resp.Interfaces)}, nil
}

func (s *USBHostService) ClaimInterface(req *ClaimRequest) error {
	return (<-s.host.ClaimInterface(req.Handle, req.Interface)).Err
}

func (s *USBHostService) ReleaseInterface(req *ClaimRequest) error {
	return (<-s.host.ReleaseInterface(req.Handle, req.Interface)).Err
}

func (s *USBHostService) SetInterfaceAltSetting(req *AltSettingRequest) error {
	return (<-s.host.SetInterfaceAltSetting(req.Handle, req.Interface, req.Alternate)).Err
}

func (s *USBHostService) ControlTransfer(req *ControlTransferRequest) (*TransferReply, error) {
	return transferReply(<-s.host.ControlTransfer(req.Handle, &host.ControlRequest{
		Direction: bus.Direction(req.Direction),
		Recipient: host.Recipient(req.Recipient),
		Type:      host.RequestType(req.RequestType),
		Request:   req.Request,
		Value:     req.Value,
		Index:     req.Index,
		Length:    req.Length,
		Data:      req.Data,
	}))
}

func genericRequest(req *GenericTransferRequest) *host.GenericRequest {
	return &host.GenericRequest{
		Direction: bus.Direction(req.Direction),
		Endpoint:  req.Endpoint,
		Length:    req.Length,
		Data:      req.Data,
	}
}

func (s *USBHostService) BulkTransfer(req *GenericTransferRequest) (*TransferReply, error) {
	return transferReply(<-s.host.BulkTransfer(req.Handle, genericRequest(req)))
}

func (s *USBHostService) InterruptTransfer(req *GenericTransferRequest) (*TransferReply, error) {
	return transferReply(<-s.host.InterruptTransfer(req.Handle, genericRequest(req)))
}

func (s *USBHostService) IsochronousTransfer(req *IsochronousTransferRequest) (*TransferReply, error) {
	return transferReply(<-s.host.IsochronousTransfer(req.Generic.Handle, &host.IsochronousRequest{
		Generic:      *genericRequest(&req.Generic),
		PacketCount:  req.PacketCount,
		PacketLength: req.PacketLength,
	}))
}

func (s *USBHostService) ResetDevice(req *ResetRequest) *ResetReply {
	return &ResetReply{Success: (<-s.host.ResetDevice(req.Handle)).Success}
}
