package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/network"

	"marketplace/internal/client"
	"marketplace/internal/retry"
)

const usage = `Usage: marketctl [global flags] <command> [flags] [args]

Commands:
  keygen                       Generate a keypair
  convert <strkey|hex>         Convert an address between strkey and hex
  addr                         Derive offering, group and listing addresses
  account <address>            Fetch an account from the node
  offering <vendor> <name>     Fetch a service offering from the node
  airdrop <address> <sol>      Credit a wallet (node must enable the faucet)
  create-offering              Publish a service offering
  set-active <name> <bool>     Pause or resume an offering
  buy <vendor> <name>          Buy one unit of an offering
  list <asset> <sol>           List an owned asset for resale
  buy-listing                  Buy a listed asset
  delist <asset>               Withdraw a listing
  submit <file|->              Submit newline-delimited signed transactions

Global flags:
`

// env holds what every command shares
type env struct {
	ctx      context.Context
	node     *client.HTTPClient
	builder  *client.Builder
	programs client.Programs
	secret   string
	dryRun   bool
}

func main() {
	_ = godotenv.Load()
	log.SetFlags(0)

	var (
		nodeURL     = flag.String("node", envOr("MARKETPLACE_URL", "http://localhost:8080"), "Node API URL")
		networkPass = flag.String("network", envOr("NETWORK_PASSPHRASE", network.TestNetworkPassphrase), "Network passphrase")
		programSeed = flag.String("program-seed", os.Getenv("PROGRAM_SEED"), "Deployment seed the program ids derive from")
		secret      = flag.String("key", os.Getenv("MARKETPLACE_SECRET"), "Signing secret seed (S...)")
		dryRun      = flag.Bool("dry-run", false, "Print signed transactions instead of submitting them")
		verbose     = flag.Bool("v", false, "Debug logging")
	)
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	programs := client.ProgramsFor(*networkPass, *programSeed)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	e := &env{
		ctx: ctx,
		node: client.NewHTTPClient(client.Config{
			BaseURL: *nodeURL,
			Retry:   retry.Config{Enabled: true, MaxRetries: 3, InitialDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second},
		}),
		builder:  client.NewBuilder(programs),
		programs: programs,
		secret:   *secret,
		dryRun:   *dryRun,
	}

	cmd, args := flag.Arg(0), flag.Args()[1:]
	run, ok := commands[cmd]
	if !ok {
		log.Fatalf("unknown command %q", cmd)
	}
	if err := run(e, args); err != nil {
		log.Fatalf("❌ %s: %v", cmd, err)
	}
}

var commands = map[string]func(*env, []string) error{
	"keygen":          runKeygen,
	"convert":         runConvert,
	"addr":            runAddr,
	"account":         runAccount,
	"offering":        runOffering,
	"airdrop":         runAirdrop,
	"create-offering": runCreateOffering,
	"set-active":      runSetActive,
	"buy":             runBuy,
	"list":            runList,
	"buy-listing":     runBuyListing,
	"delist":          runDelist,
	"submit":          runSubmit,
}

func (e *env) signer() (*keypair.Full, error) {
	if e.secret == "" {
		return nil, fmt.Errorf("a signing key is required (-key or MARKETPLACE_SECRET)")
	}
	kp, err := keypair.ParseFull(e.secret)
	if err != nil {
		return nil, fmt.Errorf("invalid signing key: %w", err)
	}
	return kp, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
