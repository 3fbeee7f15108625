package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/celerix-dev/celerix-mint/internal/api"
	"github.com/celerix-dev/celerix-mint/internal/config"
	"github.com/celerix-dev/celerix-mint/pkg/ledger"
	"github.com/celerix-dev/celerix-mint/pkg/sdk"
)

var errUsage = errors.New("usage")

type usageError string

func (u usageError) Error() string { return "Usage: celerix-mint " + string(u) }
func (u usageError) Unwrap() error { return errUsage }

func main() {
	if len(os.Args) < 2 {
		printUsage()
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	command := strings.ToUpper(os.Args[1])
	args := os.Args[2:]

	if command == "BEARER" {
		token, err := bearer(cfg, args)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(token)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	l, err := sdk.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open ledger: %v", err)
	}
	defer l.Close()

	out, err := run(ctx, l, command, args)
	if errors.Is(err, errUsage) && strings.HasPrefix(err.Error(), "unknown") {
		fmt.Println(err)
		printUsage()
		return
	}
	if err != nil {
		log.Fatal(err)
	}
	printJSON(out)
}

func run(ctx context.Context, l sdk.Ledger, command string, args []string) (any, error) {
	switch command {
	case "PING":
		client, ok := l.(*sdk.Client)
		if !ok {
			return "embedded", nil
		}
		if err := client.Ping(ctx); err != nil {
			return nil, err
		}
		return "PONG", nil

	case "PROFILE_CREATE":
		if len(args) != 3 {
			return nil, usageError("PROFILE_CREATE <caller> <name> <age>")
		}
		age, err := parseAge(args[2])
		if err != nil {
			return nil, err
		}
		return l.CreateProfile(ctx, ledger.Identity(args[0]), args[1], age)

	case "PROFILE_UPDATE":
		if len(args) != 4 {
			return nil, usageError("PROFILE_UPDATE <caller> <owner> <name> <age>")
		}
		age, err := parseAge(args[3])
		if err != nil {
			return nil, err
		}
		return l.UpdateProfile(ctx, ledger.Identity(args[0]), ledger.Identity(args[1]), args[2], age)

	case "PROFILE_GET":
		if len(args) != 1 {
			return nil, usageError("PROFILE_GET <owner>")
		}
		return l.GetProfile(ctx, ledger.Identity(args[0]))

	case "PROFILE_LIST":
		return l.ListProfiles(ctx)

	case "BALANCE_ADD":
		if len(args) != 3 {
			return nil, usageError("BALANCE_ADD <caller> <owner> <amount>")
		}
		amount, err := strconv.ParseUint(args[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("amount %q: %w", args[2], ledger.ErrInvalidArgument)
		}
		return l.AddBalance(ctx, ledger.Identity(args[0]), ledger.Identity(args[1]), amount)

	case "TOKEN_CREATE":
		if len(args) < 4 || len(args) > 6 {
			return nil, usageError("TOKEN_CREATE <authority> <token_id> <name> <symbol> [decimals] [description]")
		}
		params := ledger.TokenParams{
			TokenID: ledger.Identity(args[1]),
			Name:    args[2],
			Symbol:  args[3],
		}
		if len(args) > 4 {
			d, err := strconv.ParseUint(args[4], 10, 8)
			if err != nil {
				return nil, fmt.Errorf("decimals %q: %w", args[4], ledger.ErrInvalidArgument)
			}
			params.Decimals = uint8(d)
		}
		if len(args) > 5 {
			params.Description = args[5]
		}
		return l.CreateToken(ctx, ledger.Identity(args[0]), params)

	case "TOKEN_GET":
		if len(args) != 1 {
			return nil, usageError("TOKEN_GET <token_id>")
		}
		return l.GetToken(ctx, ledger.Identity(args[0]))

	case "MINT_DAILY":
		if len(args) != 1 {
			return nil, usageError("MINT_DAILY <caller>")
		}
		return l.RequestDailyMint(ctx, ledger.Identity(args[0]))

	case "ELIGIBILITY":
		if len(args) != 1 {
			return nil, usageError("ELIGIBILITY <holder>")
		}
		return l.Eligibility(ctx, ledger.Identity(args[0]))

	case "HOLDING":
		if len(args) != 2 {
			return nil, usageError("HOLDING <token_id> <holder>")
		}
		return l.Holding(ctx, ledger.Identity(args[0]), ledger.Identity(args[1]))

	default:
		return nil, fmt.Errorf("unknown command: %s: %w", command, errUsage)
	}
}

func bearer(cfg config.Config, args []string) (string, error) {
	if len(args) < 1 || len(args) > 2 {
		return "", usageError("BEARER <caller> [ttl]")
	}
	if cfg.JWTSecret == "" {
		return "", fmt.Errorf("CELERIX_JWT_SECRET is not set")
	}
	ttl := 24 * time.Hour
	if len(args) == 2 {
		d, err := time.ParseDuration(args[1])
		if err != nil {
			return "", fmt.Errorf("ttl %q: %w", args[1], err)
		}
		ttl = d
	}
	return api.SignCaller([]byte(cfg.JWTSecret), args[0], ttl)
}

func parseAge(s string) (uint8, error) {
	age, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("age %q: %w", s, ledger.ErrInvalidArgument)
	}
	return uint8(age), nil
}

func printUsage() {
	fmt.Println("Celerix Mint CLI - Interface for celerix-mintd")
	fmt.Println("\nUsage:")
	fmt.Println("  celerix-mint PROFILE_CREATE <caller> <name> <age>")
	fmt.Println("  celerix-mint PROFILE_UPDATE <caller> <owner> <name> <age>")
	fmt.Println("  celerix-mint PROFILE_GET <owner>")
	fmt.Println("  celerix-mint PROFILE_LIST")
	fmt.Println("  celerix-mint BALANCE_ADD <caller> <owner> <amount>")
	fmt.Println("  celerix-mint TOKEN_CREATE <authority> <token_id> <name> <symbol> [decimals] [description]")
	fmt.Println("  celerix-mint TOKEN_GET <token_id>")
	fmt.Println("  celerix-mint MINT_DAILY <caller>")
	fmt.Println("  celerix-mint ELIGIBILITY <holder>")
	fmt.Println("  celerix-mint HOLDING <token_id> <holder>")
	fmt.Println("  celerix-mint BEARER <caller> [ttl]")
	fmt.Println("  celerix-mint PING")
	fmt.Println("\nEnvironment Variables:")
	fmt.Println("  CELERIX_STORE_ADDR    Address of the daemon; unset runs against CELERIX_DATA_DIR directly")
	fmt.Println("  CELERIX_DISABLE_TLS   Set to true to disable TLS")
	fmt.Println("  CELERIX_JWT_SECRET    Secret used by BEARER to sign HTTP caller tokens")
}

func printJSON(v any) {
	bytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println(v)
		return
	}
	fmt.Println(string(bytes))
}
