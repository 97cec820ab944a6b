package main

import (
	_ "embed"
	"fmt"

	"github.com/spf13/viper"
	"meshnostr/engine/actors"
	"meshnostr/engine/library"
	"meshnostr/messaging/gateway"
	"meshnostr/messaging/relays"
	"meshnostr/protocol/eventcodec"
	"meshnostr/protocol/giftwrap"

	"github.com/nbd-wtf/go-nostr"
)

//go:embed relays.json
var relayDirectoryFile []byte

func main() {
	// Various aspects of this application require global and local settings. To keep things
	// clean and tidy we put these settings in a Viper configuration.
	conf := viper.New()

	// Now we initialise this configuration with basic settings that are required on startup.
	actors.InitConfig(conf)
	// make the config accessible globally
	actors.SetConfig(conf)

	terminateChan := make(chan struct{})
	actors.SetTerminateChan(terminateChan)

	// The secure store would be the platform keystore on a device; the CLI
	// keeps it in memory.
	store := actors.NewMemoryKeyValueStore()
	bridge := actors.NewIdentityBridge(store)
	me := bridge.MyIdentity()
	library.LogCLI("running as "+me.Account, 4)

	pool := relays.NewPool(relays.ConfigFromViper())
	for _, url := range conf.GetStringSlice("relays") {
		pool.AddRelay(url)
	}

	directory, err := gateway.LoadDirectory(relayDirectoryFile)
	if err != nil {
		library.LogCLI("relay directory unavailable: "+err.Error(), 2)
	}
	selector := gateway.NewRelaySelector(directory, conf.GetStringSlice("relays"), conf.GetInt("geoRelayCount"))

	mesh := &loopbackMesh{}
	probe := &poolProbe{pool: pool}
	gw := gateway.NewGateway(pool, mesh, probe, nil, selector, conf.GetInt("meshPowFloor"))
	mesh.receive = gw.OnMeshFrame

	// Private messages arrive as gift wraps addressed to us; everything else
	// is relay noise we do not ask for.
	pool.Subscribe(relays.Subscription{
		Filter: nostr.Filter{
			Kinds: []int{eventcodec.KindGiftWrap},
			Tags:  nostr.TagMap{"p": []string{me.Account}},
		},
		Handler: func(relayURL string, ev *nostr.Event) {
			rumor, err := giftwrap.Unwrap(ev, me)
			if err != nil {
				//wraps for other recipients on shared subscriptions land
				//here too, so a failed unwrap is routine
				return
			}
			fmt.Printf("\nPRIVATE MESSAGE from %s:\n%s\n", rumor.PubKey, rumor.Content)
		},
	})

	pool.Start()
	cliListener(terminateChan, bridge, pool, gw)
	pool.Shutdown()
	actors.Shutdown()
	library.LogCLI("goodbye", 4)
}

// loopbackMesh stands in for the Bluetooth transport collaborator: frames
// sent while offline come straight back, which exercises the full
// serialize/deserialize/republish path in one process.
type loopbackMesh struct {
	receive func([]byte)
}

func (m *loopbackMesh) Send(frame []byte) {
	if m.receive != nil {
		go m.receive(frame)
	}
}

// poolProbe treats "some relay socket is up" as having an internet path.
type poolProbe struct {
	pool *relays.Pool
}

func (p *poolProbe) HasInternet() bool {
	for _, status := range p.pool.Relays() {
		if status.State == relays.StateConnected {
			return true
		}
	}
	return false
}
