// ABOUTME: Admin CLI for leadflow token minting and audit inspection
// ABOUTME: Operates directly on the gateway config and database

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/2389/leadflow/internal/auth"
	"github.com/2389/leadflow/internal/config"
	"github.com/2389/leadflow/internal/store"
)

const banner = `
 _                _  __ _                             _           _
| | ___  __ _  __| |/ _| | _____      __        __ _| |_ __ ___ (_)_ __
| |/ _ \/ _' |/ _' | |_| |/ _ \ \ /\ / /_____ / _' | | '_ ' _ \| | '_ \
| |  __/ (_| | (_| |  _| | (_) \ V  V /_____| (_| | | | | | | | | | | |
|_|\___|\__,_|\__,_|_| |_|\___/ \_/\_/        \__,_|_|_| |_| |_|_|_| |_|
`

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "token":
		err = cmdToken(args)
	case "apitoken":
		err = cmdAPIToken(ctx, args)
	case "audit":
		err = cmdAudit(ctx, args)
	case "lead":
		err = cmdLead(ctx, args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: leadflow-admin <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  token create --sub ID --role ROLE [--ttl DUR]  Generate a JWT for an operator or service")
	fmt.Println("  apitoken create --name NAME                    Mint a long-lived API token")
	fmt.Println("  audit <lead-id> [--stream S] [--limit N]       Show a lead's audit log")
	fmt.Println("  lead <lead-id>                                 Show a lead's score and classification")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  LEADFLOW_CONFIG          Gateway config path (default: ~/.config/leadflow/gateway.yaml)")
	fmt.Println()
	yellow.Println("Examples:")
	fmt.Println("  leadflow-admin token create --sub alice --role operator --ttl 720h")
	fmt.Println("  leadflow-admin apitoken create --name scoring-worker")
	fmt.Println("  leadflow-admin audit 6f1c... --stream score --limit 20")
	fmt.Println()
}

func getConfigPath() string {
	if envPath := os.Getenv("LEADFLOW_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "leadflow", "gateway.yaml")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func openStore() (*store.SQLiteStore, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return s, nil
}

// parseFlag extracts "--name value" and "--name=value" style flags.
func parseFlag(args []string, name string) (string, []string, error) {
	long := "--" + name
	rest := make([]string, 0, len(args))
	var value string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == long:
			if i+1 >= len(args) {
				return "", nil, fmt.Errorf("%s requires a value", long)
			}
			value = args[i+1]
			i++
		case strings.HasPrefix(arg, long+"="):
			value = strings.TrimPrefix(arg, long+"=")
		default:
			rest = append(rest, arg)
		}
	}
	return value, rest, nil
}

func cmdToken(args []string) error {
	if len(args) == 0 || args[0] != "create" {
		return fmt.Errorf("usage: leadflow-admin token create --sub ID --role ROLE [--ttl DUR]")
	}
	args = args[1:]

	sub, args, err := parseFlag(args, "sub")
	if err != nil {
		return err
	}
	role, args, err := parseFlag(args, "role")
	if err != nil {
		return err
	}
	ttlStr, args, err := parseFlag(args, "ttl")
	if err != nil {
		return err
	}
	if len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}
	if sub == "" || role == "" {
		return fmt.Errorf("--sub and --role are required")
	}

	ttl := 30 * 24 * time.Hour
	if ttlStr != "" {
		ttl, err = time.ParseDuration(ttlStr)
		if err != nil {
			return fmt.Errorf("parsing --ttl: %w", err)
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	verifier := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	token, err := verifier.Generate(sub, role, ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	green := color.New(color.FgGreen)
	fmt.Println()
	green.Println("  Token created")
	fmt.Printf("  Subject: %s\n", sub)
	fmt.Printf("  Role:    %s\n", role)
	fmt.Printf("  Expires: %s\n", time.Now().Add(ttl).UTC().Format("Jan 02, 2006"))
	fmt.Println()
	fmt.Println(token)
	return nil
}

func cmdAPIToken(ctx context.Context, args []string) error {
	if len(args) == 0 || args[0] != "create" {
		return fmt.Errorf("usage: leadflow-admin apitoken create --name NAME")
	}
	args = args[1:]

	name, args, err := parseFlag(args, "name")
	if err != nil {
		return err
	}
	if len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("--name is required")
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	credential, err := auth.MintAPIToken(ctx, s, name)
	if err != nil {
		return fmt.Errorf("minting token: %w", err)
	}

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	fmt.Println()
	green.Printf("  ✓ API token created: %s\n", name)
	fmt.Println()
	fmt.Println(credential)
	fmt.Println()
	yellow.Println("  Save this now. The secret is not stored and cannot be shown again.")
	return nil
}

func cmdAudit(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: leadflow-admin audit <lead-id> [--stream S] [--limit N]")
	}
	leadID := args[0]
	args = args[1:]

	streamStr, args, err := parseFlag(args, "stream")
	if err != nil {
		return err
	}
	limitStr, args, err := parseFlag(args, "limit")
	if err != nil {
		return err
	}
	if len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	stream := store.StreamAll
	if streamStr != "" {
		stream = store.AuditStream(streamStr)
	}
	limit := 0
	if limitStr != "" {
		if _, err := fmt.Sscanf(limitStr, "%d", &limit); err != nil {
			return fmt.Errorf("parsing --limit: %w", err)
		}
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	records, err := s.ListAudit(ctx, leadID, stream, limit, 0)
	if err != nil {
		return fmt.Errorf("listing audit records: %w", err)
	}
	totals, err := s.AuditTotals(ctx, leadID)
	if err != nil {
		return fmt.Errorf("counting audit records: %w", err)
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Printf("  Audit log for %s\n", leadID)
	fmt.Printf("  score: %d  transfer: %d  decision: %d\n\n",
		totals[store.StreamScore], totals[store.StreamTransfer], totals[store.StreamDecision])

	if len(records) == 0 {
		fmt.Println("  (no records)")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "  TIME\tSTREAM\tACTOR\tCHANGE\tREASON")
	for _, rec := range records {
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s -> %s\t%s\n",
			rec.CreatedAt.Format("2006-01-02 15:04:05"),
			rec.Stream,
			rec.Actor,
			rec.Previous,
			rec.New,
			rec.Reason,
		)
	}
	return w.Flush()
}

func cmdLead(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: leadflow-admin lead <lead-id>")
	}
	leadID := args[0]

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	lead, err := s.GetLead(ctx, leadID)
	if err != nil {
		return fmt.Errorf("loading lead: %w", err)
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Lead")
	cyan.Println("  ----")
	fmt.Printf("  ID:              %s\n", lead.ID)
	fmt.Printf("  Address:         %s\n", lead.Address)
	fmt.Printf("  Display Name:    %s\n", lead.DisplayName)
	fmt.Printf("  Score:           %d\n", lead.Score)
	fmt.Printf("  Classification:  %s\n", lead.Classification)
	fmt.Printf("  Qualifying:      %t\n", lead.HasQualifyingClaim)
	fmt.Printf("  Eligible:        %t\n", lead.Eligible)
	fmt.Printf("  High urgency:    %t\n", lead.HighUrgency)
	fmt.Printf("  Docs complete:   %t\n", lead.DocumentsComplete)
	if lead.LastInteractionAt != nil {
		fmt.Printf("  Last contact:    %s\n", lead.LastInteractionAt.Format(time.RFC3339))
	}
	fmt.Println()
	return nil
}
