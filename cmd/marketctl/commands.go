package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/stellar/go/keypair"

	"marketplace/internal/address"
	"marketplace/internal/api"
	"marketplace/internal/ledger"
	"marketplace/internal/marketplace"
	"marketplace/internal/models"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func needArgs(args []string, n int, names string) error {
	if len(args) != n {
		return fmt.Errorf("expected %s", names)
	}
	return nil
}

// emit submits tx to the node, or prints it under -dry-run
func (e *env) emit(tx *ledger.Transaction, extra map[string]any) error {
	if e.dryRun {
		return ledger.WriteTransactions(os.Stdout, tx)
	}

	receipt, err := e.node.Submit(e.ctx, tx)
	if receipt != nil {
		out := map[string]any{"receipt": receipt}
		for k, v := range extra {
			out[k] = v
		}
		if perr := printJSON(out); perr != nil {
			return perr
		}
	}
	return err
}

func expiry(d time.Duration) *int64 {
	if d <= 0 {
		return nil
	}
	at := time.Now().Add(d).Unix()
	return &at
}

func runKeygen(e *env, args []string) error {
	kp, err := keypair.Random()
	if err != nil {
		return err
	}
	return printJSON(map[string]string{
		"address": kp.Address(),
		"seed":    kp.Seed(),
		"hex":     address.FromKeypair(kp).Hex(),
	})
}

// convert turns a strkey into hex and hex into a strkey
func convert(s string) (string, error) {
	addr, err := address.Parse(s)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(s, "G") {
		return addr.Hex(), nil
	}
	return addr.String(), nil
}

func runConvert(e *env, args []string) error {
	if err := needArgs(args, 1, "<strkey|hex>"); err != nil {
		return err
	}
	out, err := convert(args[0])
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}

func runAddr(e *env, args []string) error {
	fs := flag.NewFlagSet("addr", flag.ExitOnError)
	vendor := fs.String("vendor", "", "Vendor address")
	name := fs.String("name", "", "Offering name")
	asset := fs.String("asset", "", "Asset address")
	seller := fs.String("seller", "", "Seller address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	out := map[string]any{
		"marketplace_program": e.programs.Marketplace,
		"asset_program":       e.programs.Assets,
	}
	if *vendor != "" {
		v, err := address.Parse(*vendor)
		if err != nil {
			return err
		}
		offering, err := e.builder.OfferingAddress(v, *name)
		if err != nil {
			return err
		}
		group, err := e.builder.GroupAddress(offering)
		if err != nil {
			return err
		}
		out["offering"], out["group"] = offering, group
	}
	if *asset != "" && *seller != "" {
		a, err := address.Parse(*asset)
		if err != nil {
			return err
		}
		s, err := address.Parse(*seller)
		if err != nil {
			return err
		}
		listing, err := e.builder.ListingAddress(a, s)
		if err != nil {
			return err
		}
		out["listing"] = listing
	}
	return printJSON(out)
}

func runAccount(e *env, args []string) error {
	if err := needArgs(args, 1, "<address>"); err != nil {
		return err
	}
	addr, err := address.Parse(args[0])
	if err != nil {
		return err
	}
	acct, err := e.node.Account(e.ctx, addr)
	if err != nil {
		return err
	}
	return printJSON(acct)
}

func runOffering(e *env, args []string) error {
	if err := needArgs(args, 2, "<vendor> <name>"); err != nil {
		return err
	}
	vendor, err := address.Parse(args[0])
	if err != nil {
		return err
	}
	offering, err := e.node.Offering(e.ctx, vendor, args[1])
	if err != nil {
		return err
	}
	return printJSON(offering)
}

func runAirdrop(e *env, args []string) error {
	if err := needArgs(args, 2, "<address> <sol>"); err != nil {
		return err
	}
	addr, err := address.Parse(args[0])
	if err != nil {
		return err
	}
	lamports, err := api.SOLToLamports(args[1])
	if err != nil {
		return err
	}
	acct, err := e.node.Airdrop(e.ctx, addr, lamports)
	if err != nil {
		return err
	}
	return printJSON(acct)
}

func runCreateOffering(e *env, args []string) error {
	fs := flag.NewFlagSet("create-offering", flag.ExitOnError)
	name := fs.String("name", "", "Offering name (max 32 bytes)")
	quantity := fs.Uint64("quantity", 1, "Units for sale")
	price := fs.String("price", "", "Price per unit in SOL")
	expires := fs.Duration("expires", 0, "Sale window from now, 0 for none")
	symbol := fs.String("symbol", "", "Asset symbol")
	description := fs.String("description", "", "Service description")
	uri := fs.String("uri", "", "Metadata URI")
	image := fs.String("image", "", "Image URI")
	royalty := fs.Uint("royalty-bps", 0, "Vendor royalty on resales, basis points")
	tos := fs.String("tos", "", "Terms of service URI")
	transferrable := fs.Bool("transferrable", true, "Whether buyers may resell")
	if err := fs.Parse(args); err != nil {
		return err
	}

	kp, err := e.signer()
	if err != nil {
		return err
	}
	lamports, err := api.SOLToLamports(*price)
	if err != nil {
		return err
	}
	if *royalty > models.MaxRoyaltyBasisPoints {
		return fmt.Errorf("royalty-bps %d exceeds %d", *royalty, models.MaxRoyaltyBasisPoints)
	}

	tx, refs, err := e.builder.CreateServiceOffering(kp, marketplace.CreateServiceOfferingArgs{
		OfferingName: *name,
		MaxQuantity:  *quantity,
		SolPrice:     lamports,
		ExpiresAt:    expiry(*expires),
		Metadata: models.OfferingMetadata{
			Symbol:             *symbol,
			Description:        *description,
			URI:                *uri,
			Image:              *image,
			RoyaltyBasisPoints: uint16(*royalty),
			TermsOfServiceURI:  *tos,
			IsTransferrable:    *transferrable,
		},
	})
	if err != nil {
		return err
	}
	return e.emit(tx, map[string]any{"offering": refs.Offering, "group": refs.Group})
}

func runSetActive(e *env, args []string) error {
	if err := needArgs(args, 2, "<name> <true|false>"); err != nil {
		return err
	}
	active, err := strconv.ParseBool(args[1])
	if err != nil {
		return err
	}
	kp, err := e.signer()
	if err != nil {
		return err
	}
	tx, err := e.builder.SetOfferingActive(kp, args[0], active)
	if err != nil {
		return err
	}
	return e.emit(tx, nil)
}

func runBuy(e *env, args []string) error {
	if err := needArgs(args, 2, "<vendor> <name>"); err != nil {
		return err
	}
	vendor, err := address.Parse(args[0])
	if err != nil {
		return err
	}
	kp, err := e.signer()
	if err != nil {
		return err
	}
	tx, asset, err := e.builder.BuyService(kp, vendor, args[1])
	if err != nil {
		return err
	}
	return e.emit(tx, map[string]any{"asset": asset})
}

func runList(e *env, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	expires := fs.Duration("expires", 0, "Listing lifetime from now, 0 for none")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := needArgs(fs.Args(), 2, "<asset> <sol>"); err != nil {
		return err
	}

	asset, err := address.Parse(fs.Arg(0))
	if err != nil {
		return err
	}
	price, err := api.SOLToLamports(fs.Arg(1))
	if err != nil {
		return err
	}
	kp, err := e.signer()
	if err != nil {
		return err
	}
	tx, listing, err := e.builder.ListAsset(kp, asset, price, expiry(*expires))
	if err != nil {
		return err
	}
	return e.emit(tx, map[string]any{"listing": listing})
}

func runBuyListing(e *env, args []string) error {
	fs := flag.NewFlagSet("buy-listing", flag.ExitOnError)
	seller := fs.String("seller", "", "Seller address")
	asset := fs.String("asset", "", "Asset address")
	vendor := fs.String("vendor", "", "Vendor of the asset's offering")
	name := fs.String("name", "", "Offering name")
	price := fs.String("price", "", "Listing price in SOL the buyer agrees to")
	if err := fs.Parse(args); err != nil {
		return err
	}
	lamports, err := api.SOLToLamports(*price)
	if err != nil {
		return err
	}

	addrs := make([]address.Address, 3)
	for i, s := range []string{*seller, *asset, *vendor} {
		a, err := address.Parse(s)
		if err != nil {
			return err
		}
		addrs[i] = a
	}
	kp, err := e.signer()
	if err != nil {
		return err
	}
	tx, err := e.builder.BuyListing(kp, addrs[0], addrs[1], addrs[2], *name, lamports)
	if err != nil {
		return err
	}
	return e.emit(tx, nil)
}

func runDelist(e *env, args []string) error {
	if err := needArgs(args, 1, "<asset>"); err != nil {
		return err
	}
	asset, err := address.Parse(args[0])
	if err != nil {
		return err
	}
	kp, err := e.signer()
	if err != nil {
		return err
	}
	tx, err := e.builder.DelistAsset(kp, asset)
	if err != nil {
		return err
	}
	return e.emit(tx, nil)
}

func runSubmit(e *env, args []string) error {
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	stopOnReject := fs.Bool("stop-on-reject", false, "Stop at the first rejected transaction")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := needArgs(fs.Args(), 1, "<file|->"); err != nil {
		return err
	}

	var r io.Reader = os.Stdin
	if path := fs.Arg(0); path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	stats, err := ledger.NewStreamer(e.node, *stopOnReject).Run(e.ctx, r)
	if perr := printJSON(stats); perr != nil {
		return perr
	}
	return err
}
