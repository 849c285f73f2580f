package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	ws "nhooyr.io/websocket"

	"deathteller/skull/internal/auth"
	"deathteller/skull/internal/log"
	"deathteller/skull/internal/peerlink"
)

func main() {
	_ = godotenv.Load()

	addr := flag.String("addr", "ws://localhost:8080/ws/peer", "skull peer websocket URL")
	peerID := flag.String("peer", "proximity-sim", "peer id")
	role := flag.String("role", "proximity", "hello role (proximity or fabric)")
	gap := flag.Duration("gap", 2*time.Second, "delay between FAR and NEAR triggers")
	script := flag.String("script", "FAR_MOTION_TRIGGER,NEAR_MOTION_TRIGGER", "comma separated commands sent after hello")
	timeout := flag.Duration("timeout", 60*time.Second, "how long to keep listening for skull events")
	flag.Parse()
	log.Init(os.Getenv("LOG_LEVEL"))

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	secret := os.Getenv("PEER_TOKEN_SECRET")
	token, err := auth.MintPeerToken(secret, *peerID, time.Now(), 10*time.Minute)
	if err != nil {
		log.Error("mint token", "error", err)
		os.Exit(1)
	}

	c, _, err := ws.Dial(ctx, *addr+"?peer_id="+*peerID, &ws.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + token}},
	})
	if err != nil {
		log.Error("dial skull", "addr", *addr, "error", err)
		os.Exit(1)
	}
	defer c.Close(ws.StatusNormalClosure, "bye")

	// Start receiver goroutine
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, data, err := c.Read(ctx)
			if err != nil {
				if ctx.Err() == nil {
					fmt.Printf("\n[link] read error: %v\n", err)
				}
				return
			}
			var msg peerlink.Message
			if err := json.Unmarshal(data, &msg); err != nil {
				fmt.Printf("[link] bad frame: %s\n", data)
				continue
			}
			printMessage(msg)
		}
	}()

	fmt.Printf("=== Skull peer simulator ===\n")
	fmt.Printf("Peer: %s  Role: %s\n\n", *peerID, *role)

	var seq int64
	send := func(msg peerlink.Message) {
		seq++
		msg.Seq = seq
		msg.PeerID = *peerID
		msg.TsMs = time.Now().UnixMilli()
		b, _ := json.Marshal(msg)
		if err := c.Write(ctx, ws.MessageText, b); err != nil {
			log.Error("send", "type", msg.Type, "error", err)
			os.Exit(1)
		}
	}

	fmt.Println("[1] hello")
	send(peerlink.Message{Type: "hello", Payload: map[string]any{"role": *role}})
	time.Sleep(200 * time.Millisecond)

	for i, name := range strings.Split(*script, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if i > 0 {
			time.Sleep(*gap)
		}
		fmt.Printf("[%d] command %s\n", i+2, name)
		send(peerlink.Message{Type: "command", Command: name})
	}

	fmt.Println("\nlistening for skull events (ctrl-c or timeout to stop)")
	<-done
}

func printMessage(msg peerlink.Message) {
	switch msg.Type {
	case "cmd_ack":
		fmt.Printf("  <- ack seq=%d %s accepted=%v id=%s\n", msg.Seq, msg.Command, msg.Payload["accepted"], msg.CommandID)
	case "state":
		fmt.Printf("  <- state %v -> %v (%v)\n", msg.Payload["from"], msg.Payload["to"], msg.Payload["reason"])
	case "error":
		fmt.Printf("  <- error %v\n", msg.Payload["error"])
	default:
		b, _ := json.Marshal(msg.Payload)
		fmt.Printf("  <- %s %s\n", msg.Type, b)
	}
}
