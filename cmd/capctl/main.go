// Copyright 2025 Certen Protocol
//
// capctl is the operator CLI: verify bundles, inspect signing keys,
// and inspect the audit chain. It is a thin collaborator over the core
// packages — it holds no business logic of its own.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/capengine/cap-core/internal/audit"
	"github.com/capengine/cap-core/internal/config"
	"github.com/capengine/cap-core/internal/keystore"
	"github.com/capengine/cap-core/internal/pkgverifier"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	logger := log.New(os.Stderr, "[capctl] ", log.LstdFlags)

	var err error
	switch os.Args[1] {
	case "verify":
		err = runVerify(os.Args[2:])
	case "keys":
		err = runKeys(os.Args[2:])
	case "audit":
		err = runAudit(os.Args[2:])
	case "-help", "--help", "help":
		usage()
		return
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		logger.Fatalf("%v", err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: capctl <verify|keys|audit> [flags]")
}

func runVerify(args []string) error {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	dir := fs.String("bundle", "", "path to the bundle directory")
	policyHash := fs.String("policy-hash", "", "expected policy_hash")
	policyID := fs.String("policy-id", "", "expected policy_id")
	backend := fs.String("backend", "", "proof backend hint")
	checkSig := fs.Bool("check-signature", true, "verify the manifest signature")
	checkTS := fs.Bool("check-timestamp", true, "verify the time anchor")
	checkReg := fs.Bool("check-registry", false, "verify registry inclusion")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dir == "" {
		return fmt.Errorf("-bundle is required")
	}

	results, err := pkgverifier.VerifyBundle(*dir, pkgverifier.VerifyOptions{
		PolicyHash:     *policyHash,
		PolicyID:       *policyID,
		Backend:        *backend,
		CheckSignature: *checkSig,
		CheckTimestamp: *checkTS,
		CheckRegistry:  *checkReg,
	})
	if err != nil {
		return fmt.Errorf("verify bundle: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

func runKeys(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: capctl keys <list|rotate> [flags]")
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	switch args[0] {
	case "list":
		store, err := keystore.NewStore(cfg.KeyStoreRoot)
		if err != nil {
			return err
		}
		metas, err := store.List()
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(metas)
	case "rotate":
		// rotate reports the owner's active key; it creates no key and does
		// not change any rotation state.
		fs := flag.NewFlagSet("rotate", flag.ExitOnError)
		owner := fs.String("owner", "", "key owner identifier")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if *owner == "" {
			return fmt.Errorf("-owner is required")
		}
		store, err := keystore.NewStore(cfg.KeyStoreRoot)
		if err != nil {
			return err
		}
		active, err := store.GetActive(*owner)
		if err != nil {
			return fmt.Errorf("no active key for owner %q: %w", *owner, err)
		}
		fmt.Printf("active key for %s: kid=%s status=%s\n", *owner, active.KID, active.Status)
		return nil
	default:
		return fmt.Errorf("unknown keys subcommand %q", args[0])
	}
}

func runAudit(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: capctl audit <verify|export> [flags]")
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	switch args[0] {
	case "verify":
		report, err := audit.VerifyChain(cfg.AuditChainPath)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case "export":
		fs := flag.NewFlagSet("export", flag.ExitOnError)
		from := fs.String("from", "", "RFC3339 lower bound (inclusive)")
		to := fs.String("to", "", "RFC3339 upper bound (inclusive)")
		policyID := fs.String("policy-id", "", "filter by policy_id")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		events, err := audit.ExportEvents(cfg.AuditChainPath, *from, *to, *policyID)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(events)
	default:
		return fmt.Errorf("unknown audit subcommand %q", args[0])
	}
}
