package netconf

import (
	"bufio"
	"encoding/xml"
	"fmt"
	"io"
)

// ClientCapabilities are the capabilities this client advertises in its
// <hello> (spec.md §4.4): both NETCONF base versions, so the server's own
// capability set determines the negotiated version.
var ClientCapabilities = []string{CapBase10, CapBase11}

type helloMessage struct {
	XMLName      xml.Name `xml:"urn:ietf:params:xml:ns:netconf:base:1.0 hello"`
	Capabilities []string `xml:"capabilities>capability"`
	SessionID    int      `xml:"session-id,omitempty"`
}

// exchangeHello sends the client hello (framed with base:1.0 framing, since
// the version is not yet negotiated) and reads the server's, returning the
// server's session id and capability set.
func exchangeHello(w io.Writer, r *bufio.Reader) (sessionID int, serverCaps Capabilities, err error) {
	hello := helloMessage{Capabilities: ClientCapabilities}
	payload, err := xml.Marshal(hello)
	if err != nil {
		return 0, nil, fmt.Errorf("netconf: encoding hello: %w", err)
	}
	if err := eomFramer{}.WriteMessage(w, payload); err != nil {
		return 0, nil, &TransportError{Op: "write hello", Cause: err}
	}

	raw, err := eomFramer{}.ReadMessage(r)
	if err != nil {
		return 0, nil, &TransportError{Op: "read hello", Cause: err}
	}
	var serverHello helloMessage
	if err := xml.Unmarshal(raw, &serverHello); err != nil {
		return 0, nil, fmt.Errorf("netconf: decoding server hello: %w", err)
	}
	if serverHello.SessionID == 0 {
		return 0, nil, fmt.Errorf("netconf: server hello missing session-id")
	}
	return serverHello.SessionID, NewCapabilities(serverHello.Capabilities), nil
}
