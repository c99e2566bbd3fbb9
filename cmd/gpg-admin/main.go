// ABOUTME: Admin CLI for gpg-gateway operator tasks
// ABOUTME: Issues operator JWTs and manages principals over the admin HTTP API

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/sealway/gpg-gateway/internal/auth"
)

const banner = `
  __ _ _ __   __ _        __ _  __| |_ __ ___ (_)_ __
 / _' | '_ \ / _' |_____ / _' |/ _' | '_ ' _ \| | '_ \
| (_| | |_) | (_| |_____| (_| | (_| | | | | | | | | | |
 \__, | .__/ \__, |      \__,_|\__,_|_| |_| |_|_|_| |_|
 |___/|_|    |___/
`

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	baseURL := os.Getenv("GPG_GATEWAY_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	token := os.Getenv("GPG_GATEWAY_TOKEN")

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "token":
		err = cmdToken(args)
	case "principals":
		err = cmdPrincipals(baseURL, token, args)
	case "challenges":
		err = cmdChallenges(baseURL, token, args)
	case "audit":
		err = cmdAudit(baseURL, token, args)
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
	fmt.Println("Usage: gpg-admin <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  token create <subject>     Generate an operator JWT (needs GPG_GATEWAY_JWT_SECRET)")
	fmt.Println("  principals                 List all principals")
	fmt.Println("  principals list            List all principals")
	fmt.Println("  principals delete <id>     Delete a principal and its keys/challenges")
	fmt.Println("  challenges prune           Delete expired challenges for all principals")
	fmt.Println("  audit <principal-id>       Show a principal's audit log")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  GPG_GATEWAY_URL            Gateway base URL (default: http://localhost:8080)")
	fmt.Println("  GPG_GATEWAY_TOKEN          Operator JWT for API commands")
	fmt.Println("  GPG_GATEWAY_JWT_SECRET     Signing secret, only for 'token create'")
}

// cmdToken signs an operator JWT locally; it never talks to the server.
func cmdToken(args []string) error {
	if len(args) < 2 || args[0] != "create" {
		return fmt.Errorf("usage: gpg-admin token create <subject>")
	}
	subject := args[1]

	secret := os.Getenv("GPG_GATEWAY_JWT_SECRET")
	if secret == "" {
		return fmt.Errorf("GPG_GATEWAY_JWT_SECRET is required")
	}

	token, err := auth.NewJWTVerifier([]byte(secret)).Generate(subject, 24*time.Hour)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Println("Token (valid 24h):")
	fmt.Println(token)
	return nil
}

func cmdPrincipals(baseURL, token string, args []string) error {
	if len(args) == 0 || args[0] == "list" {
		return listPrincipals(baseURL, token)
	}
	if args[0] == "delete" {
		if len(args) < 2 {
			return fmt.Errorf("usage: gpg-admin principals delete <id>")
		}
		return deletePrincipal(baseURL, token, args[1])
	}
	return fmt.Errorf("unknown subcommand: principals %s", args[0])
}

func listPrincipals(baseURL, token string) error {
	var body struct {
		Principals []struct {
			ID        string `json:"id"`
			Username  string `json:"username"`
			Legacy    bool   `json:"legacy"`
			CreatedAt string `json:"created_at"`
		} `json:"principals"`
	}
	if err := apiCall(baseURL, token, "GET", "/admin/principals", &body); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSERNAME\tAUTH\tCREATED")
	for _, p := range body.Principals {
		authKind := "session-key"
		if p.Legacy {
			authKind = "legacy-token"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.ID, p.Username, authKind, p.CreatedAt)
	}
	return w.Flush()
}

func deletePrincipal(baseURL, token, id string) error {
	if err := apiCall(baseURL, token, "DELETE", "/admin/principals/"+id, nil); err != nil {
		return err
	}
	color.Green("Deleted principal %s", id)
	return nil
}

func cmdChallenges(baseURL, token string, args []string) error {
	if len(args) < 1 || args[0] != "prune" {
		return fmt.Errorf("usage: gpg-admin challenges prune")
	}

	var body struct {
		Deleted int `json:"deleted"`
	}
	if err := apiCall(baseURL, token, "POST", "/admin/challenges/prune", &body); err != nil {
		return err
	}
	color.Green("Pruned %d expired challenges", body.Deleted)
	return nil
}

func cmdAudit(baseURL, token string, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: gpg-admin audit <principal-id>")
	}

	var body struct {
		Entries []struct {
			Action    string `json:"action"`
			Method    string `json:"method"`
			Outcome   string `json:"outcome"`
			Timestamp string `json:"timestamp"`
		} `json:"entries"`
	}
	if err := apiCall(baseURL, token, "GET", "/admin/principals/"+args[0]+"/audit", &body); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIMESTAMP\tACTION\tMETHOD\tOUTCOME")
	for _, e := range body.Entries {
		outcome := e.Outcome
		if outcome == "failure" {
			outcome = color.RedString(outcome)
		} else {
			outcome = color.GreenString(outcome)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Timestamp, e.Action, e.Method, outcome)
	}
	return w.Flush()
}

// apiCall performs an authenticated request and decodes the JSON response
// into out when non-nil.
func apiCall(baseURL, token, method, path string, out any) error {
	if token == "" {
		return fmt.Errorf("GPG_GATEWAY_TOKEN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, string(data))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
