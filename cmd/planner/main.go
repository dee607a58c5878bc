// Package main provides a one-shot derivation session CLI: it reads a
// session request from a JSON file (or stdin), runs the session, and prints
// the plan and receipt as JSON.
package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"evalys-gmpc/internal/api"
	"evalys-gmpc/internal/cipher"
	"evalys-gmpc/internal/mxe"
	"evalys-gmpc/internal/mxe/stub"
	"evalys-gmpc/internal/orchestrator"
	"evalys-gmpc/internal/storage/memory"
)

func main() {
	gatewayEndpoint := flag.String("gateway-endpoint", os.Getenv("EVALYS_GATEWAY_ENDPOINT"), "Cluster gateway JSON-RPC endpoint")
	sharedKeyHex := flag.String("shared-key", os.Getenv("EVALYS_SHARED_KEY"), "Hex-encoded 32-byte shared secret with the cluster")
	inputPath := flag.String("input", "-", "Session request JSON file, or - for stdin")
	useStub := flag.Bool("use-stub", false, "Run against an in-process cluster instead of a gateway")
	deadline := flag.Duration("session-deadline", 2*time.Minute, "Completion deadline")
	verbose := flag.Bool("verbose", false, "Log session progress to stderr")
	flag.Parse()

	if !*useStub && *gatewayEndpoint == "" {
		fmt.Fprintln(os.Stderr, "Error: --gateway-endpoint is required (use --use-stub for an in-process cluster)")
		os.Exit(1)
	}

	req, err := readRequest(*inputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading request: %v\n", err)
		os.Exit(1)
	}
	in, err := req.ToDomain()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid request: %v\n", err)
		os.Exit(1)
	}

	key, err := resolveSharedKey(*sharedKeyHex, *useStub)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: shared key: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	var client mxe.ComputeClient
	if *useStub {
		cluster, err := stub.NewCluster(key, func() int64 { return time.Now().Unix() })
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating stub cluster: %v\n", err)
			os.Exit(1)
		}
		client = cluster
	} else {
		client = mxe.NewHTTPClient(*gatewayEndpoint)
	}

	orch, err := orchestrator.New(ctx, orchestrator.Options{
		Client:       client,
		SharedKey:    key,
		ReceiptStore: memory.NewReceiptStore(),
		Config: orchestrator.Config{
			PollInterval:      500 * time.Millisecond,
			MaxPollInterval:   5 * time.Second,
			BackoffMultiplier: 2.0,
			Deadline:          *deadline,
		},
		Logger:  log.New(os.Stderr, "[planner] ", log.LstdFlags),
		Verbose: *verbose,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating orchestrator: %v\n", err)
		os.Exit(1)
	}

	result, err := orch.Run(ctx, in)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Session failed: %v\n", err)
		os.Exit(1)
	}

	resp := api.SessionResponse{
		SessionID:     result.SessionID,
		ComputationID: result.ComputationID,
		Plan:          api.PlanToJSON(result.Plan),
		Receipt:       api.ReceiptToJSON(&result.Receipt),
		Polls:         result.Polls,
		DurationMs:    result.FinishedAt.Sub(result.SubmittedAt).Milliseconds(),
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding response: %v\n", err)
		os.Exit(1)
	}
}

func readRequest(path string) (*api.SessionRequest, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var req api.SessionRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return &req, nil
}

func resolveSharedKey(keyHex string, useStub bool) (cipher.Key, error) {
	if keyHex == "" {
		if useStub {
			return cipher.NewKey()
		}
		return cipher.Key{}, fmt.Errorf("--shared-key is required")
	}

	raw, err := hex.DecodeString(keyHex)
	if err != nil {
		return cipher.Key{}, fmt.Errorf("decode hex: %w", err)
	}
	if len(raw) != cipher.KeySize {
		return cipher.Key{}, fmt.Errorf("key is %d bytes, want %d", len(raw), cipher.KeySize)
	}
	var key cipher.Key
	copy(key[:], raw)
	return key, nil
}
