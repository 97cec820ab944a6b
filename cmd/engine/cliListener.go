package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/eiannone/keyboard"
	"meshnostr/engine/actors"
	"meshnostr/engine/library"
	"meshnostr/messaging/gateway"
	"meshnostr/messaging/relays"
	"meshnostr/protocol/eventcodec"
	"meshnostr/protocol/giftwrap"
	"meshnostr/protocol/identity"
)

// cliListener is a cheap and nasty way to speed up development cycles. It listens for keypresses and executes commands.
func cliListener(interrupt chan struct{}, bridge *actors.IdentityBridge, pool *relays.Pool, gw *gateway.Gateway) {
	fmt.Println("COMMANDS:\nr: relay status\ns: subscription status\ni: identity\nd: send a private message\ng: pick relays for a geohash\nc: engine config\nq: to quit\nSee cliListener.go for more")
	for {
		r, k, err := keyboard.GetSingleKey()
		if err != nil {
			panic(err)
		}
		str := string(r)
		switch str {
		default:
			if k == 13 {
				fmt.Println("\n-----------------------------------")
				break
			}
			if r == 0 {
				break
			}
			fmt.Println("Key " + str + " is not bound to any test procedures. See main.cliListener for more details.")
		case "q":
			close(interrupt)
			return
		case "r":
			for _, status := range pool.Relays() {
				fmt.Printf("\nRelay: %s\nState: %s\nAttempts: %d\nSent: %d Received: %d Queued: %d\nLast Error: %s\n",
					status.URL, status.State, status.ReconnectAttempts, status.MessagesSent, status.MessagesReceived, status.QueuedEvents, status.LastError)
			}
		case "s":
			for _, status := range pool.Subscriptions() {
				fmt.Printf("\nSubscription: %s\nTargets: %v\nSent To: %v\nCreated: %s\n",
					status.ID, status.TargetRelays, status.SentTo, status.CreatedAt.Format(time.RFC3339))
			}
		case "i":
			fmt.Printf("Current Identity: \n%s\n", bridge.MyIdentity().Account)
		case "d":
			sendPrivateMessage(bridge, gw)
		case "g":
			fmt.Print("\ngeohash: ")
			gh := readLine()
			fmt.Printf("Relays for %s: %v\n", gh, gw.RelaysForGeohash(gh))
		case "c":
			fmt.Println("CURRENT CONFIG")
			for key, v := range actors.MakeOrGetConfig().AllSettings() {
				fmt.Printf("\nKey: %s; Value: %v\n", key, v)
			}
		}
	}
}

func sendPrivateMessage(bridge *actors.IdentityBridge, gw *gateway.Gateway) {
	fmt.Print("\nrecipient pubkey (hex): ")
	recipient := readLine()
	fmt.Print("message: ")
	message := readLine()
	// Mining can take a while at higher floors; hand it to a worker so the
	// keyboard stays responsive.
	floor := actors.MakeOrGetConfig().GetInt("meshPowFloor")
	go mineAndDeliver(bridge.MyIdentity(), recipient, message, floor, gw)
}

// mineAndDeliver wraps a chat rumor, mines it to the mesh floor so delivery
// still works if we are offline and the event has to travel
// store-and-forward, and hands it to the gateway.
func mineAndDeliver(me identity.Identity, recipient library.Account, message string, floor int, gw *gateway.Gateway) {
	rumor := giftwrap.BuildRumor(eventcodec.KindRumorChat, message, me, recipient, nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*30)
	defer cancel()
	wrap, err := giftwrap.WrapWithPoW(ctx, rumor, me, recipient, floor)
	if err != nil {
		fmt.Printf("could not wrap message: %s\n", err)
		return
	}
	if err := gw.Deliver(wrap); err != nil {
		fmt.Printf("delivery failed: %s\n", err)
		return
	}
	fmt.Println("sent")
}

func readLine() string {
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}
