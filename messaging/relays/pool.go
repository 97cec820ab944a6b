package relays

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/sasha-s/go-deadlock"
	"golang.org/x/exp/slices"
	"meshnostr/engine/library"
	"meshnostr/protocol/eventcodec"
)

// Pool is the relay connection engine: it owns every relay socket, the
// subscription registry, the dedup cache and the per-event OK ledger. All
// of that shared state sits behind one mutex; callers only ever get
// snapshot copies out.
type Pool struct {
	cfg Config

	mu    deadlock.Mutex
	conns map[string]*connection
	subs  map[string]*Subscription
	//sub ID -> relay URL -> subscription request actually written to the
	//socket. The consistency check re-sends anything missing here.
	subsSent map[string]map[string]bool
	//verdicts per event, bounded like the dedup cache: oldest event evicted
	//once more than DedupeCapacity distinct IDs have verdicts
	oks     map[library.Sha256][]OKStatus
	okOrder []library.Sha256

	dedupe  *DedupeCache
	stop    chan struct{}
	wg      deadlock.WaitGroup
	started bool
}

func NewPool(cfg Config) *Pool {
	cfg = cfg.withDefaults()
	return &Pool{
		cfg:      cfg,
		conns:    make(map[string]*connection),
		subs:     make(map[string]*Subscription),
		subsSent: make(map[string]map[string]bool),
		oks:      make(map[library.Sha256][]OKStatus),
		dedupe:   NewDedupeCache(cfg.DedupeCapacity),
		stop:     make(chan struct{}),
	}
}

// AddRelay registers a relay URL and, once the pool is started, begins
// connecting to it. Adding an existing URL is a no-op.
func (p *Pool) AddRelay(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.conns[url]; ok {
		return
	}
	c := newConnection(url, p)
	p.conns[url] = c
	if p.started {
		p.wg.Add(1)
		go c.run()
	}
}

// Start launches one connection goroutine per registered relay plus the
// background subscription consistency check.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	for _, c := range p.conns {
		p.wg.Add(1)
		go c.run()
	}
	p.wg.Add(1)
	go p.consistencyLoop()
}

// Shutdown cancels every connection attempt, backoff timer and the
// consistency check as a group, closes all sockets, and waits.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	select {
	case <-p.stop:
	default:
		close(p.stop)
	}
	conns := make([]*connection, 0, len(p.conns))
	for _, c := range p.conns {
		conns = append(conns, c)
	}
	p.mu.Unlock()
	for _, c := range conns {
		c.closeSocket()
	}
	p.wg.Wait()
}

// Subscribe registers the subscription before any network I/O so it
// survives relays that are currently down, then sends the wire REQ to every
// connected relay in its target set. Returns the subscription ID.
func (p *Pool) Subscribe(sub Subscription) string {
	if sub.ID == "" {
		sub.ID = newSubscriptionID()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now()
	}
	p.mu.Lock()
	p.subs[sub.ID] = &sub
	p.subsSent[sub.ID] = make(map[string]bool)
	targets := p.connectedTargetsLocked(&sub)
	p.mu.Unlock()
	for _, c := range targets {
		p.sendSubscription(&sub, c)
	}
	return sub.ID
}

// connectedTargetsLocked lists the live connections in a subscription's
// target set. Callers hold p.mu.
func (p *Pool) connectedTargetsLocked(sub *Subscription) []*connection {
	var targets []*connection
	for url, c := range p.conns {
		if sub.targets(url) && c.isConnected() {
			targets = append(targets, c)
		}
	}
	return targets
}

// Unsubscribe drops the bookkeeping and best-effort notifies every relay
// the subscription was active on.
func (p *Pool) Unsubscribe(id string) {
	p.mu.Lock()
	sub, ok := p.subs[id]
	if !ok {
		p.mu.Unlock()
		return
	}
	delete(p.subs, id)
	sentTo := p.subsSent[id]
	delete(p.subsSent, id)
	var notify []*connection
	for url := range sentTo {
		if c, ok := p.conns[url]; ok && c.isConnected() {
			notify = append(notify, c)
		}
	}
	p.mu.Unlock()
	msg, err := encodeCloseMessage(sub.ID)
	if err != nil {
		return
	}
	for _, c := range notify {
		c.write(msg)
	}
}

// Send enqueues the event for reconnect replay on relays that are down and
// attempts immediate delivery to connected ones. Fire and forget: per-relay
// failures update counters and queues, never the caller. Returns how many
// relays took the event right now.
func (p *Pool) Send(ev *nostr.Event, targetRelays ...string) int {
	msg, err := encodeEventMessage(ev)
	if err != nil {
		library.LogCLI(err.Error(), 2)
		return 0
	}
	p.mu.Lock()
	var targets []*connection
	for url, c := range p.conns {
		if len(targetRelays) > 0 && !slices.Contains(targetRelays, url) {
			continue
		}
		targets = append(targets, c)
	}
	p.mu.Unlock()
	delivered := 0
	for _, c := range targets {
		if c.isConnected() {
			if err := c.write(msg); err == nil {
				delivered++
				continue
			}
		}
		c.mu.Lock()
		queued := *ev
		c.queue.Push(&queued)
		c.mu.Unlock()
	}
	return delivered
}

// RetryRelay resets a parked relay (permanent error or attempt cap) and
// kicks an immediate reconnect.
func (p *Pool) RetryRelay(url string) {
	p.mu.Lock()
	c, ok := p.conns[url]
	p.mu.Unlock()
	if ok {
		c.kickRetry()
	}
}

// Relays returns a snapshot of every relay's state.
func (p *Pool) Relays() []RelayStatus {
	p.mu.Lock()
	conns := make([]*connection, 0, len(p.conns))
	for _, c := range p.conns {
		conns = append(conns, c)
	}
	p.mu.Unlock()
	statuses := make([]RelayStatus, 0, len(conns))
	for _, c := range conns {
		statuses = append(statuses, c.snapshot())
	}
	slices.SortFunc(statuses, func(a, b RelayStatus) bool { return a.URL < b.URL })
	return statuses
}

// Subscriptions returns a snapshot of the registry.
func (p *Pool) Subscriptions() []SubscriptionStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	statuses := make([]SubscriptionStatus, 0, len(p.subs))
	for id, sub := range p.subs {
		s := SubscriptionStatus{
			ID:        id,
			CreatedAt: sub.CreatedAt,
		}
		if sub.TargetRelays != nil {
			s.TargetRelays = slices.Clone(sub.TargetRelays)
		}
		for url, sent := range p.subsSent[id] {
			if sent {
				s.SentTo = append(s.SentTo, url)
			}
		}
		statuses = append(statuses, s)
	}
	return statuses
}

// OKsFor returns the acceptance verdicts recorded for an event ID.
func (p *Pool) OKsFor(eventID library.Sha256) []OKStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.oks[eventID])
}

// Dedupe exposes the cache for callers that feed events in from outside
// the socket path (the mesh gateway).
func (p *Pool) Dedupe() *DedupeCache {
	return p.dedupe
}

// onRelayConnected re-sends every matching subscription verbatim and then
// flushes the queued outbound events in FIFO order.
func (p *Pool) onRelayConnected(c *connection) {
	p.mu.Lock()
	var resend []*Subscription
	for _, sub := range p.subs {
		if sub.targets(c.url) {
			resend = append(resend, sub)
		}
	}
	p.mu.Unlock()
	for _, sub := range resend {
		p.sendSubscription(sub, c)
	}
	for {
		c.mu.Lock()
		ev, ok := c.queue.Pop()
		c.mu.Unlock()
		if !ok {
			break
		}
		msg, err := encodeEventMessage(ev)
		if err != nil {
			continue
		}
		if err := c.write(msg); err != nil {
			c.mu.Lock()
			c.queue.Push(ev)
			c.mu.Unlock()
			break
		}
	}
}

// onRelayDisconnected clears the sent markers so the subscriptions go out
// again on the next connect.
func (p *Pool) onRelayDisconnected(c *connection) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, sentTo := range p.subsSent {
		delete(sentTo, c.url)
	}
}

func (p *Pool) sendSubscription(sub *Subscription, c *connection) {
	msg, err := encodeReqMessage(sub.ID, []nostr.Filter{sub.Filter})
	if err != nil {
		library.LogCLI(err.Error(), 2)
		return
	}
	if err := c.write(msg); err != nil {
		return
	}
	p.mu.Lock()
	if sentTo, ok := p.subsSent[sub.ID]; ok {
		sentTo[c.url] = true
	}
	p.mu.Unlock()
}

// consistencyLoop guards against silently dropped sends: every interval it
// compares which subscriptions each connected relay should have against
// what was actually written, and re-sends the difference.
func (p *Pool) consistencyLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.SubscriptionCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.checkSubscriptionConsistency()
		case <-p.stop:
			return
		}
	}
}

func (p *Pool) checkSubscriptionConsistency() {
	type missing struct {
		sub *Subscription
		c   *connection
	}
	p.mu.Lock()
	var toSend []missing
	for id, sub := range p.subs {
		for url, c := range p.conns {
			if !sub.targets(url) || !c.isConnected() {
				continue
			}
			if !p.subsSent[id][url] {
				toSend = append(toSend, missing{sub: sub, c: c})
			}
		}
	}
	p.mu.Unlock()
	for _, m := range toSend {
		library.LogCLI("re-sending subscription "+m.sub.ID+" to "+m.c.url, 3)
		p.sendSubscription(m.sub, m.c)
	}
}

// handleFrame processes one inbound frame from a relay socket. Events are
// signature-checked, deduplicated atomically, and dispatched to the owning
// subscription's handler; everything else updates bookkeeping.
func (p *Pool) handleFrame(c *connection, data []byte) {
	env, err := decodeRelayMessage(data)
	if err != nil {
		library.LogCLI("dropping malformed frame from "+c.url+": "+err.Error(), 3)
		return
	}
	switch e := env.(type) {
	case EventEnvelope:
		p.handleEvent(c, e)
	case EOSEEnvelope:
		p.mu.Lock()
		sub, ok := p.subs[e.SubscriptionID]
		p.mu.Unlock()
		if ok && sub.OnEndOfStoredEvents != nil {
			sub.OnEndOfStoredEvents(c.url)
		}
	case OKEnvelope:
		p.mu.Lock()
		if _, ok := p.oks[e.EventID]; !ok {
			p.okOrder = append(p.okOrder, e.EventID)
			if len(p.okOrder) > p.cfg.DedupeCapacity {
				oldest := p.okOrder[0]
				p.okOrder = p.okOrder[1:]
				delete(p.oks, oldest)
			}
		}
		p.oks[e.EventID] = append(p.oks[e.EventID], OKStatus{
			EventID:  e.EventID,
			RelayURL: c.url,
			Accepted: e.Accepted,
			Message:  e.Message,
		})
		p.mu.Unlock()
	case NoticeEnvelope:
		library.LogCLI("notice from "+c.url+": "+e.Message, 3)
	case UnknownEnvelope:
		//ignored per protocol
	}
}

func (p *Pool) handleEvent(c *connection, env EventEnvelope) {
	sane := library.ValidateSaneExecutionTime()
	defer sane()
	if ok, err := eventcodec.Verify(env.Event); !ok {
		if err != nil {
			library.LogCLI("dropping event with bad shape from "+c.url+": "+err.Error(), 3)
		}
		return
	}
	if !p.dedupe.MarkSeen(env.Event.ID) {
		return
	}
	p.mu.Lock()
	sub, ok := p.subs[env.SubscriptionID]
	p.mu.Unlock()
	if !ok {
		return
	}
	if !sub.Filter.Matches(env.Event) {
		return
	}
	//a subscription registered without a handler only feeds the dedup cache
	if sub.Handler == nil {
		return
	}
	sub.Handler(c.url, env.Event)
}

func newSubscriptionID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}
