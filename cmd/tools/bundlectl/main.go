// Command bundlectl runs bundle operations against the configured store and
// prints the result as JSON.
//
//	bundlectl resolve <id>
//	bundlectl inventory [-select pa=va:2,pb=vb:1] <id>
//	bundlectl price [-select ...] <id>
//	bundlectl validate [-select ...] <id>
//	bundlectl lines [-select ...] [-qty 1] <id>
//	bundlectl warm <id>...
//	bundlectl group < lines.json
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-bundles/internal/app"
	"github.com/noah-isme/toko-bundles/internal/bundle"
	"github.com/noah-isme/toko-bundles/internal/cart"
	"github.com/noah-isme/toko-bundles/internal/cartattr"
	"github.com/noah-isme/toko-bundles/internal/config"
	"github.com/noah-isme/toko-bundles/internal/obs"
	"github.com/noah-isme/toko-bundles/internal/storefront"
)

type bundleService interface {
	Bundle(ctx context.Context, id string, skipCache bool) (*bundle.Definition, error)
	Inventory(ctx context.Context, id string, selections []bundle.Selection) (*bundle.Inventory, error)
	Price(ctx context.Context, id string, selections []bundle.Selection) (*bundle.PriceResult, error)
	Validate(ctx context.Context, id string, selections []bundle.Selection) (bundle.ValidationResult, error)
	Lines(ctx context.Context, id string, in cart.Input) ([]storefront.CartLineInput, error)
	Warm(ctx context.Context, ids []string) error
}

var errUsage = errors.New("usage: bundlectl <resolve|inventory|price|validate|lines|warm|group> [flags] <id>")

func main() {
	timeout := flag.Duration("timeout", 30*time.Second, "overall deadline for the command")
	verbose := flag.Bool("v", false, "log debug output to stderr")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	args := flag.Args()
	if len(args) > 0 && args[0] == "group" {
		if err := run(ctx, nil, args, os.Stdin, os.Stdout); err != nil {
			log.Fatal(err)
		}
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := zerolog.Nop()
	if *verbose {
		logger = obs.NewLogger("console", "debug")
	}
	deps, err := app.Build(ctx, cfg, logger, app.Options{})
	if err != nil {
		log.Fatalf("initialise bundle services: %v", err)
	}
	defer func() { _ = deps.Close() }()

	if err := run(ctx, deps.Service, args, os.Stdin, os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, svc bundleService, args []string, stdin io.Reader, stdout io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, rest := args[0], args[1:]

	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	selectFlag := fs.String("select", "", "selections as productId=variantId:qty, comma separated")
	qty := fs.Int("qty", 1, "bundle quantity (lines only)")
	skipCache := fs.Bool("fresh", false, "bypass the cache (resolve only)")
	if err := fs.Parse(rest); err != nil {
		return fmt.Errorf("%s: %w", cmd, err)
	}
	selections, err := parseSelections(*selectFlag)
	if err != nil {
		return err
	}

	var out any
	switch cmd {
	case "group":
		var lines []cartattr.Line
		if err := json.NewDecoder(stdin).Decode(&lines); err != nil {
			return fmt.Errorf("decode cart lines: %w", err)
		}
		out = cartattr.OrderedGroups(lines)
	case "warm":
		if fs.NArg() == 0 {
			return errUsage
		}
		if err := svc.Warm(ctx, fs.Args()); err != nil {
			return err
		}
		out = map[string]any{"warmed": fs.Args()}
	default:
		if fs.NArg() != 1 {
			return errUsage
		}
		id := fs.Arg(0)
		switch cmd {
		case "resolve":
			out, err = svc.Bundle(ctx, id, *skipCache)
		case "inventory":
			out, err = svc.Inventory(ctx, id, selections)
		case "price":
			out, err = svc.Price(ctx, id, selections)
		case "validate":
			out, err = svc.Validate(ctx, id, selections)
		case "lines":
			out, err = svc.Lines(ctx, id, cart.Input{Selections: selections, Quantity: *qty})
		default:
			return errUsage
		}
		if err != nil {
			return err
		}
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// parseSelections reads "pa=va:2,pb=vb". A missing quantity means 1.
func parseSelections(raw string) ([]bundle.Selection, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var out []bundle.Selection
	for _, part := range strings.Split(raw, ",") {
		productID, rest, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || productID == "" || rest == "" {
			return nil, fmt.Errorf("invalid selection %q", part)
		}
		variantID, qtyRaw, hasQty := strings.Cut(rest, ":")
		qty := 1
		if hasQty {
			n, err := strconv.Atoi(qtyRaw)
			if err != nil || n < 0 {
				return nil, fmt.Errorf("invalid quantity in %q", part)
			}
			qty = n
		}
		out = append(out, bundle.Selection{ProductID: productID, VariantID: variantID, Quantity: qty})
	}
	return out, nil
}
