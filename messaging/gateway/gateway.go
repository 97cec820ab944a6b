package gateway

import (
	"encoding/json"
	"errors"

	"github.com/nbd-wtf/go-nostr"
	"meshnostr/engine/library"
	"meshnostr/messaging/relays"
	"meshnostr/protocol/eventcodec"
	"meshnostr/protocol/pow"
)

// ErrInsufficientProofOfWork rejects an event at the mesh boundary: relaying
// over the mesh while offline costs proof of work, and an event below the
// floor is refused rather than silently dropped.
var ErrInsufficientProofOfWork = errors.New("event does not meet the mesh proof of work floor")

// MeshTransport is the local offline transport collaborator. Send is fire
// and forget; the transport delivers inbound frames to Gateway.OnMeshFrame.
type MeshTransport interface {
	Send(frame []byte)
}

// Probe reports whether the device currently has an internet path.
type Probe interface {
	HasInternet() bool
}

// Gateway decides, per outbound event, between direct relay delivery and
// store-and-forward over the mesh, and bridges mesh frames back onto relays
// when this device is the one with connectivity.
type Gateway struct {
	pool     *relays.Pool
	mesh     MeshTransport
	probe    Probe
	codec    Codec
	selector *RelaySelector
	powFloor int
}

func NewGateway(pool *relays.Pool, mesh MeshTransport, probe Probe, codec Codec, selector *RelaySelector, powFloor int) *Gateway {
	if powFloor <= 0 {
		powFloor = 8
	}
	return &Gateway{
		pool:     pool,
		mesh:     mesh,
		probe:    probe,
		codec:    codec,
		selector: selector,
		powFloor: powFloor,
	}
}

// Deliver routes one signed event. Online: publish to relays, falling back
// to the mesh if no relay takes it. Offline: the event must already carry
// the proof of work floor before it is accepted onto the mesh.
func (g *Gateway) Deliver(ev *nostr.Event) error {
	if g.probe.HasInternet() {
		if delivered := g.pool.Send(ev); delivered > 0 {
			return nil
		}
		library.LogCLI("no relay took event "+ev.ID+", falling back to mesh", 3)
	}
	return g.deliverToMesh(ev)
}

func (g *Gateway) deliverToMesh(ev *nostr.Event) error {
	if !pow.ValidateDifficulty(ev, g.powFloor) {
		return ErrInsufficientProofOfWork
	}
	body, err := eventcodec.Marshal(ev)
	if err != nil {
		return err
	}
	g.mesh.Send(EncodeMeshFrame(body, g.codec))
	return nil
}

// OnMeshFrame is the receive callback registered with the mesh transport.
// A frame that decodes to a signature- and PoW-valid unseen event gets
// republished to relays when this device is online, with a best-effort
// acknowledgement frame back over the mesh.
func (g *Gateway) OnMeshFrame(frame []byte) {
	body, err := DecodeMeshFrame(frame, g.codec)
	if err != nil {
		library.LogCLI("dropping mesh frame: "+err.Error(), 3)
		return
	}
	if isAckFrame(body) {
		return
	}
	ev, err := eventcodec.Unmarshal(body)
	if err != nil {
		library.LogCLI("dropping mesh frame: "+err.Error(), 3)
		return
	}
	if ok, _ := eventcodec.Verify(ev); !ok {
		library.LogCLI("dropping mesh event "+ev.ID+": bad signature", 3)
		return
	}
	if !pow.ValidateDifficulty(ev, g.powFloor) {
		library.LogCLI("dropping mesh event "+ev.ID+": below proof of work floor", 3)
		return
	}
	if g.pool.Dedupe().Seen(ev.ID) {
		return
	}
	if !g.probe.HasInternet() {
		//the mesh layer handles forwarding; leave the event unseen so a
		//redelivery after connectivity returns can still be bridged
		return
	}
	if !g.pool.Dedupe().MarkSeen(ev.ID) {
		return
	}
	if delivered := g.pool.Send(ev); delivered > 0 {
		g.ackOverMesh(ev.ID)
	}
}

// RelaysForGeohash picks geo-proximal relays for a location context and
// registers them with the pool.
func (g *Gateway) RelaysForGeohash(gh library.Geohash) []string {
	urls := g.selector.RelaysFor(gh)
	for _, url := range urls {
		g.pool.AddRelay(url)
	}
	return urls
}

func (g *Gateway) ackOverMesh(eventID library.Sha256) {
	ack, err := json.Marshal([]interface{}{"OK", eventID, true, "relayed"})
	if err != nil {
		return
	}
	g.mesh.Send(EncodeMeshFrame(ack, g.codec))
}

func isAckFrame(body []byte) bool {
	var parts []json.RawMessage
	if err := json.Unmarshal(body, &parts); err != nil || len(parts) == 0 {
		return false
	}
	var label string
	if err := json.Unmarshal(parts[0], &label); err != nil {
		return false
	}
	return label == "OK"
}
