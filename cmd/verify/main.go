// Package main provides offline receipt verification: given a receipt JSON
// file, the canonical plan bytes, and the cluster authority key, it re-runs
// every receipt check without touching the network.
package main

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"evalys-gmpc/internal/api"
	"evalys-gmpc/internal/domain"
	"evalys-gmpc/internal/verification"
)

func main() {
	receiptPath := flag.String("receipt", "", "Receipt JSON file")
	planHex := flag.String("plan", "", "Hex-encoded canonical plan bytes")
	planPath := flag.String("plan-file", "", "File with raw canonical plan bytes (alternative to --plan)")
	authorityHex := flag.String("authority", os.Getenv("EVALYS_AUTHORITY_KEY"), "Hex-encoded 32-byte cluster authority public key")
	computationID := flag.String("computation-id", "", "Expected computation id (defaults to the receipt's)")
	submittedAt := flag.Int64("submitted-at", 0, "Submission time as unix seconds (defaults to receipt timestamp)")
	skewBound := flag.Duration("skew-bound", verification.DefaultSkewBound, "Accepted forward clock skew")
	flag.Parse()

	if *receiptPath == "" || *authorityHex == "" {
		fmt.Fprintln(os.Stderr, "Error: --receipt and --authority are required")
		os.Exit(1)
	}
	if (*planHex == "") == (*planPath == "") {
		fmt.Fprintln(os.Stderr, "Error: exactly one of --plan or --plan-file is required")
		os.Exit(1)
	}

	receipt, err := readReceipt(*receiptPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading receipt: %v\n", err)
		os.Exit(1)
	}

	planBytes, err := readPlan(*planHex, *planPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading plan bytes: %v\n", err)
		os.Exit(1)
	}

	authority, err := hex.DecodeString(*authorityHex)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: authority key is not hex: %v\n", err)
		os.Exit(1)
	}

	verifier, err := verification.NewVerifier(ed25519.PublicKey(authority), verification.WithSkewBound(*skewBound))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	expectedID := *computationID
	if expectedID == "" {
		expectedID = receipt.ComputationID
	}
	submitted := time.Unix(receipt.Timestamp, 0)
	if *submittedAt != 0 {
		submitted = time.Unix(*submittedAt, 0)
	}

	if err := verifier.Verify(receipt, planBytes, expectedID, submitted); err != nil {
		fmt.Fprintf(os.Stderr, "FAIL: %v\n", err)
		os.Exit(2)
	}

	fmt.Printf("OK: receipt %s verifies for computation %s\n",
		hex.EncodeToString(receipt.ReceiptID[:8]), receipt.ComputationID)
}

func readReceipt(path string) (*domain.ComputationReceipt, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var j api.ReceiptJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return j.ToDomain()
}

func readPlan(planHex, planPath string) ([]byte, error) {
	if planHex != "" {
		return hex.DecodeString(planHex)
	}
	return os.ReadFile(planPath)
}
