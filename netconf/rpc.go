package netconf

import (
	"encoding/xml"
	"fmt"
)

// rpcRequest is the outer <rpc message-id="N">...</rpc> envelope. Body
// carries the already-serialised operation element.
type rpcRequest struct {
	XMLName   xml.Name `xml:"urn:ietf:params:xml:ns:netconf:base:1.0 rpc"`
	MessageID uint64   `xml:"message-id,attr"`
	Body      []byte   `xml:",innerxml"`
}

// rpcReplyEnvelope is the generic shape of an <rpc-reply>; Data captures
// the reply's entire inner XML, including any <ok/> or <rpc-error> elements
// alongside the payload (e.g. <data> for get-config,
// <configuration-information> for Junos ops), for the caller to re-parse
// against the specific schema it expects.
type rpcReplyEnvelope struct {
	XMLName   xml.Name       `xml:"rpc-reply"`
	MessageID string         `xml:"message-id,attr"`
	OK        *struct{}      `xml:"ok"`
	Errors    []rpcErrorXML  `xml:"rpc-error"`
	Data      string         `xml:",innerxml"`
}

type rpcErrorXML struct {
	Type     string `xml:"error-type"`
	Tag      string `xml:"error-tag"`
	Severity string `xml:"error-severity"`
	AppTag   string `xml:"error-app-tag"`
	Path     string `xml:"error-path"`
	Message  string `xml:"error-message"`
	Info     string `xml:"error-info,innerxml"`
}

// Reply is the parsed, application-visible result of one RPC: Ok indicates an
// <ok/> or error-free reply; Data is the raw inner XML for the caller to
// decode further.
type Reply struct {
	Ok   bool
	Data string
}

// asError converts a reply carrying <rpc-error> elements into an *RPCError,
// or returns nil if the reply was successful.
func (env *rpcReplyEnvelope) asError() error {
	if len(env.Errors) == 0 {
		return nil
	}
	errs := make([]RPCErrorInfo, len(env.Errors))
	for i, e := range env.Errors {
		errs[i] = RPCErrorInfo{
			Type:     e.Type,
			Tag:      e.Tag,
			Severity: e.Severity,
			AppTag:   e.AppTag,
			Path:     e.Path,
			Message:  e.Message,
		}
	}
	return &RPCError{Errors: errs}
}

func decodeReply(raw []byte) (Reply, error) {
	var env rpcReplyEnvelope
	if err := xml.Unmarshal(raw, &env); err != nil {
		return Reply{}, fmt.Errorf("netconf: decoding rpc-reply: %w", err)
	}
	if err := env.asError(); err != nil {
		return Reply{Data: env.Data}, err
	}
	return Reply{Ok: true, Data: env.Data}, nil
}
