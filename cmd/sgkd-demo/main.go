package main

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dct-go/sgkd/internal/certstore"
	"github.com/dct-go/sgkd/internal/synccoll"
	"github.com/dct-go/sgkd/pkg/bus"
	"github.com/dct-go/sgkd/pkg/lifecycle"
	"github.com/dct-go/sgkd/pkg/logger"
	"github.com/dct-go/sgkd/pkg/trace"
)

// rosterEntry is one identity in a shared, pre-generated cast used to wire
// several sgkd-demo processes (or, in -gossip=false mode, several
// in-process simulated identities) onto the same subscriber group.
type rosterEntry struct {
	Name string `json:"name"`
	Seed string `json:"seed_hex"` // 32-byte ed25519 seed
	SG   string `json:"sg,omitempty"`
	KM   int    `json:"km,omitempty"`
}

func main() {
	var (
		prefix       string
		rekey        time.Duration
		rekeyJitter  time.Duration
		identities   int
		genRoster    int
		rosterOut    string
		rosterIn     string
		selfIdx      int
		gossipOn     bool
		gossipListen string
		gossipBoot   string
		gossipTopic  string
		runFor       time.Duration
	)
	flag.StringVar(&prefix, "prefix", "/dct/sg1", "subscriber-group name prefix")
	flag.DurationVar(&rekey, "rekey", 30*time.Second, "rekey interval")
	flag.DurationVar(&rekeyJitter, "rekey-jitter", 5*time.Second, "rekey jitter")
	flag.IntVar(&identities, "identities", 3, "number of simulated identities (in-memory mode only)")
	flag.IntVar(&genRoster, "gen-roster", 0, "write a roster of N identities to -roster-out and exit")
	flag.StringVar(&rosterOut, "roster-out", "roster.json", "output path for -gen-roster")
	flag.StringVar(&rosterIn, "roster", "", "roster file (required with -gossip)")
	flag.IntVar(&selfIdx, "self", 0, "this process's index into -roster (with -gossip)")
	flag.BoolVar(&gossipOn, "gossip", false, "use the libp2p+gossipsub transport (built with -tags gossip) instead of the in-memory simulation")
	flag.StringVar(&gossipListen, "gossip-listen", "", "comma-separated listen multiaddrs")
	flag.StringVar(&gossipBoot, "gossip-bootnodes", "", "comma-separated bootnode multiaddrs, or a path to a file of one per line")
	flag.StringVar(&gossipTopic, "gossip-topic", "sgkd-demo", "gossipsub topic name")
	flag.DurationVar(&runFor, "run-for", 0, "exit after this long (0 = run until interrupted)")
	flag.Parse()

	if genRoster > 0 {
		if err := writeRoster(rosterOut, genRoster); err != nil {
			logger.ErrorJ("roster_gen_failed", map[string]any{"err": err.Error()})
			os.Exit(1)
		}
		fmt.Printf("wrote %d identities to %s\n", genRoster, rosterOut)
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if runFor > 0 {
		var runCancel context.CancelFunc
		ctx, runCancel = context.WithTimeout(ctx, runFor)
		defer runCancel()
	}
	ctx = trace.New(ctx)

	b := bus.New(256)
	m := lifecycle.New()

	if gossipOn {
		if rosterIn == "" {
			logger.ErrorJ("gossip_requires_roster", nil)
			os.Exit(1)
		}
		roster, err := readRoster(rosterIn)
		if err != nil {
			logger.ErrorJ("roster_read_failed", map[string]any{"err": err.Error()})
			os.Exit(1)
		}
		if selfIdx < 0 || selfIdx >= len(roster) {
			logger.ErrorJ("self_index_out_of_range", map[string]any{"self": selfIdx, "roster_len": len(roster)})
			os.Exit(1)
		}
		svc, err := newGossipDemo(prefix, rekey, rekeyJitter, roster, selfIdx, gossipConfig(gossipListen, gossipBoot, gossipTopic), b)
		if err != nil {
			logger.ErrorJ("gossip_demo_init_failed", map[string]any{"err": err.Error()})
			os.Exit(1)
		}
		m.Add(svc)
	} else {
		m.Add(newMemDemo(prefix, rekey, rekeyJitter, identities, b))
	}

	go logKeyChanges(ctx, b.Subscribe())

	if err := m.Start(ctx); err != nil {
		logger.ErrorJ("demo_start_failed", map[string]any{"err": err.Error()})
		os.Exit(1)
	}
	<-ctx.Done()
	m.Stop(context.Background())
	logger.Sync()
}

func logKeyChanges(ctx context.Context, sub bus.Subscriber) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			logger.InfoJ("sgkd_demo_event", map[string]any{"kind": string(ev.Kind), "trace": ev.TraceID})
		}
	}
}

func gossipConfig(listen, boot, topic string) synccoll.GossipConfig {
	cfg := synccoll.GossipConfig{Topic: topic}
	for _, s := range strings.Split(listen, ",") {
		if s = strings.TrimSpace(s); s != "" {
			cfg.Listen = append(cfg.Listen, s)
		}
	}
	if boot == "" {
		return cfg
	}
	if fi, err := os.Stat(boot); err == nil && !fi.IsDir() {
		if raw, err := os.ReadFile(boot); err == nil {
			for _, ln := range strings.Split(string(raw), "\n") {
				if ln = strings.TrimSpace(ln); ln != "" {
					cfg.Bootnodes = append(cfg.Bootnodes, ln)
				}
			}
		}
		return cfg
	}
	for _, s := range strings.Split(boot, ",") {
		if s = strings.TrimSpace(s); s != "" {
			cfg.Bootnodes = append(cfg.Bootnodes, s)
		}
	}
	return cfg
}

func writeRoster(path string, n int) error {
	roster := make([]rosterEntry, 0, n)
	for i := 0; i < n; i++ {
		_, priv, err := ed25519.GenerateKey(nil)
		if err != nil {
			return err
		}
		e := rosterEntry{Name: fmt.Sprintf("peer%d", i), Seed: hex.EncodeToString(priv.Seed())}
		switch {
		case i == 0:
			e.SG, e.KM = "sg1", 5 // the sole keymaker candidate
		case i == n-1 && n > 2:
			// last peer is publish-only: no SG capability, receives the
			// public half only (spec §8 scenario 3).
		default:
			e.SG = "sg1"
		}
		roster = append(roster, e)
	}
	b, err := json.MarshalIndent(roster, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

func readRoster(path string) ([]rosterEntry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var roster []rosterEntry
	if err := json.Unmarshal(b, &roster); err != nil {
		return nil, err
	}
	return roster, nil
}

// buildCert turns a roster entry into a long-lived demo certificate plus
// its private signing key.
func buildCert(e rosterEntry) (certstore.Cert, ed25519.PrivateKey, error) {
	seed, err := hex.DecodeString(e.Seed)
	if err != nil || len(seed) != ed25519.SeedSize {
		return certstore.Cert{}, nil, fmt.Errorf("sgkd-demo: bad seed for %q", e.Name)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	caps := map[certstore.Capability]string{}
	if e.SG != "" {
		caps[certstore.CapSG] = e.SG
	}
	if e.KM > 0 {
		caps[certstore.CapKM] = fmt.Sprintf("%d", e.KM)
	}
	cert := certstore.Cert{
		Name:         "/demo/" + e.Name,
		Thumbprint:   certstore.ComputeThumbPrint(pub),
		SigningKey:   pub,
		ValidFrom:    time.Now().Add(-time.Hour),
		ValidUntil:   time.Now().Add(24 * time.Hour),
		Capabilities: caps,
	}
	return cert, priv, nil
}

func rosterStore(roster []rosterEntry, self int) (*certstore.MemStore, ed25519.PrivateKey, certstore.Cert, error) {
	cs := certstore.NewMemStore()
	var selfPriv ed25519.PrivateKey
	var selfCert certstore.Cert
	for i, e := range roster {
		cert, priv, err := buildCert(e)
		if err != nil {
			return nil, nil, certstore.Cert{}, err
		}
		cs.Add(cert)
		if i == self {
			selfPriv, selfCert = priv, cert
		}
	}
	cs.SetOwnChain([]certstore.ThumbPrint{selfCert.Thumbprint}, selfPriv)
	return cs, selfPriv, selfCert, nil
}
