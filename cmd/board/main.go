package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/term"

	apiclient "github.com/uww-saigusa/messageboard/pkg/api/client"
)

type cliConfig struct {
	APIBaseURL  string `json:"api_base_url"`
	AccessToken string `json:"access_token"`
	Email       string `json:"email,omitempty"`
}

var buildVersion = "dev"

const requestTimeout = 15 * time.Second

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "register":
		err = commandRegister(args)
	case "login":
		err = commandLogin(args)
	case "messages":
		err = commandMessages(args)
	case "version", "--version", "-v":
		printVersion()
		return
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func commandRegister(args []string) error {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	email := fs.String("email", "", "Email address")
	password := fs.String("password", "", "Password (supply to avoid prompt)")
	apiBase := fs.String("api", "", "API base URL (default "+apiclient.DefaultBaseURL+")")
	fs.Parse(args)

	if strings.TrimSpace(*email) == "" {
		return errors.New("--email is required")
	}
	secret, err := readSecret(*password)
	if err != nil {
		return err
	}
	cfg, client, err := clientFor(*apiBase)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	user, err := client.Register(ctx, *email, secret)
	if err != nil {
		return err
	}
	if strings.TrimSpace(*apiBase) != "" {
		if err := saveConfig(cfg); err != nil {
			return err
		}
	}
	fmt.Printf("registered %s (%s)\n", user.Email, user.ID)
	return nil
}

func commandLogin(args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "Email address")
	password := fs.String("password", "", "Password (supply to avoid prompt)")
	apiBase := fs.String("api", "", "API base URL (default "+apiclient.DefaultBaseURL+")")
	fs.Parse(args)

	if strings.TrimSpace(*email) == "" {
		return errors.New("--email is required")
	}
	secret, err := readSecret(*password)
	if err != nil {
		return err
	}
	cfg, client, err := clientFor(*apiBase)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	token, err := client.Login(ctx, *email, secret)
	if err != nil {
		return err
	}
	cfg.AccessToken = token.AccessToken
	cfg.Email = strings.TrimSpace(*email)
	if err := saveConfig(cfg); err != nil {
		return err
	}
	fmt.Printf("login successful, token valid for %s\n", time.Duration(token.ExpiresIn)*time.Second)
	return nil
}

func commandMessages(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: board messages [list|show|post|edit|delete]")
	}
	sub := args[0]
	switch sub {
	case "list":
		return messagesList(args[1:])
	case "show":
		return messagesShow(args[1:])
	case "post":
		return messagesPost(args[1:])
	case "edit":
		return messagesEdit(args[1:])
	case "delete":
		return messagesDelete(args[1:])
	default:
		return fmt.Errorf("unknown messages command: %s", sub)
	}
}

func messagesList(args []string) error {
	fs := flag.NewFlagSet("messages list", flag.ExitOnError)
	skip := fs.Int("skip", 0, "Number of messages to skip")
	limit := fs.Int("limit", 10, "Maximum number of messages to display")
	fs.Parse(args)

	_, client, err := clientFor("")
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	messages, err := client.ListMessages(ctx, *skip, *limit)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		fmt.Println("no messages")
		return nil
	}
	for _, m := range messages {
		printMessage(m)
	}
	return nil
}

func messagesShow(args []string) error {
	fs := flag.NewFlagSet("messages show", flag.ExitOnError)
	id := fs.Int64("id", 0, "Message identifier")
	fs.Parse(args)
	if *id <= 0 {
		return errors.New("--id is required")
	}

	_, client, err := clientFor("")
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	m, err := client.GetMessage(ctx, *id)
	if err != nil {
		return err
	}
	printMessage(m)
	return nil
}

func messagesPost(args []string) error {
	fs := flag.NewFlagSet("messages post", flag.ExitOnError)
	content := fs.String("content", "", "Message text")
	fs.Parse(args)
	text := *content
	if text == "" {
		text = strings.Join(fs.Args(), " ")
	}

	cfg, client, err := clientFor("")
	if err != nil {
		return err
	}
	token, err := requireToken(cfg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	m, err := client.CreateMessage(ctx, token, text)
	if err != nil {
		return err
	}
	fmt.Printf("message posted: %d\n", m.ID)
	return nil
}

func messagesEdit(args []string) error {
	fs := flag.NewFlagSet("messages edit", flag.ExitOnError)
	id := fs.Int64("id", 0, "Message identifier")
	content := fs.String("content", "", "Replacement text")
	fs.Parse(args)
	if *id <= 0 {
		return errors.New("--id is required")
	}

	cfg, client, err := clientFor("")
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	m, err := client.UpdateMessage(ctx, cfg.AccessToken, *id, *content)
	if err != nil {
		return err
	}
	fmt.Printf("message updated: %d\n", m.ID)
	return nil
}

func messagesDelete(args []string) error {
	fs := flag.NewFlagSet("messages delete", flag.ExitOnError)
	id := fs.Int64("id", 0, "Message identifier")
	fs.Parse(args)
	if *id <= 0 {
		return errors.New("--id is required")
	}

	cfg, client, err := clientFor("")
	if err != nil {
		return err
	}
	token, err := requireToken(cfg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if err := client.DeleteMessage(ctx, token, *id); err != nil {
		return err
	}
	fmt.Println("message deleted")
	return nil
}

func printMessage(m apiclient.Message) {
	fmt.Printf("%d\t%s\t%s\n", m.ID, m.CreatedAt.Local().Format(time.RFC3339), m.Content)
}

func readSecret(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	fmt.Print("Password: ")
	bytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Print("\n")
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(bytes), nil
}

func requireToken(cfg cliConfig) (string, error) {
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		return "", errors.New("please login first using 'board login'")
	}
	return token, nil
}

func clientFor(apiBase string) (cliConfig, *apiclient.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return cliConfig{}, nil, err
	}
	if strings.TrimSpace(apiBase) != "" {
		cfg.APIBaseURL = strings.TrimSpace(apiBase)
	}
	client, err := apiclient.New(cfg.APIBaseURL)
	if err != nil {
		return cliConfig{}, nil, err
	}
	return cfg, client, nil
}

func loadConfig() (cliConfig, error) {
	path, err := configPath()
	if err != nil {
		return cliConfig{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cliConfig{APIBaseURL: apiclient.DefaultBaseURL}, nil
		}
		return cliConfig{}, err
	}
	var cfg cliConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cliConfig{}, err
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = apiclient.DefaultBaseURL
	}
	return cfg, nil
}

func saveConfig(cfg cliConfig) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func configPath() (string, error) {
	if override := strings.TrimSpace(os.Getenv("BOARD_CONFIG")); override != "" {
		return override, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "messageboard", "config.json"), nil
}

func printUsage() {
	fmt.Printf("board CLI %s\n\n", buildVersion)
	fmt.Print(`Usage:
	board register --email user@example.com [--password secret] [--api http://localhost:8000]
	board login --email user@example.com [--password secret] [--api http://localhost:8000]
	board messages list [--skip N] [--limit N]
	board messages show --id <message-id>
	board messages post --content "hello"
	board messages edit --id <message-id> --content "new text"
	board messages delete --id <message-id>
	board version
`)
}

func printVersion() {
	fmt.Println(strings.TrimSpace(buildVersion))
}
