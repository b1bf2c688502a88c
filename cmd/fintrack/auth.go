package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"fintrack/internal/config"
	"fintrack/internal/session"
)

func runLogin(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "login")
	username := fs.String("username", os.Getenv("FINTRACK_USERNAME"), "account username")
	password := fs.String("password", "", "account password (default: $FINTRACK_PASSWORD or prompt)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	if *username == "" {
		v, err := prompt(e, "Username: ")
		if err != nil {
			return err
		}
		*username = v
	}
	pw, err := resolvePassword(e, *password)
	if err != nil {
		return err
	}
	if *username == "" || pw == "" {
		return usagef("username and password are required")
	}

	if err := e.app.Session.Login(ctx, *username, pw); err != nil {
		if session.IsUnauthorized(err) || session.IsStatus(err, http.StatusBadRequest) {
			return errors.New("invalid username or password")
		}
		return err
	}
	fmt.Fprintf(e.stdout, "Logged in as %s\n", *username)
	return nil
}

func runSignup(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "signup")
	username := fs.String("username", "", "account username")
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password (default: $FINTRACK_PASSWORD or prompt)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *username == "" || *email == "" {
		return usagef("-username and -email are required")
	}
	if !strings.Contains(*email, "@") {
		return usagef("invalid email %q", *email)
	}
	pw, err := resolvePassword(e, *password)
	if err != nil {
		return err
	}
	if pw == "" {
		return usagef("password is required")
	}

	if err := e.app.Session.Signup(ctx, *username, *email, pw); err != nil {
		var se *session.StatusError
		if errors.As(err, &se) && len(se.Body) > 0 {
			return fmt.Errorf("signup rejected: %s", se.Body)
		}
		return err
	}
	fmt.Fprintf(e.stdout, "Account created, logged in as %s\n", *username)
	return nil
}

func runLogout(ctx context.Context, e *env, args []string) error {
	if err := parseFlags(newFlagSet(e, "logout"), args); err != nil {
		return err
	}
	if err := e.app.Session.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(e.stdout, "Logged out")
	return nil
}

func runStatus(ctx context.Context, e *env, args []string) error {
	if err := parseFlags(newFlagSet(e, "status"), args); err != nil {
		return err
	}

	creds, err := e.app.Session.Credentials(ctx)
	if err != nil {
		return err
	}
	status := e.app.Session.AuthStatus(ctx)

	fmt.Fprintf(e.stdout, "API:            %s\n", e.app.Session.BaseURL())
	fmt.Fprintf(e.stdout, "Store:          %s\n", e.app.Config.CredentialStore)
	fmt.Fprintf(e.stdout, "Stored session: %s\n", yesNo(creds.LoggedIn()))
	if exp, err := e.app.Session.AccessExpiry(ctx); err == nil && !exp.IsZero() {
		fmt.Fprintf(e.stdout, "Token expires:  %s\n", exp.Local().Format(time.RFC1123))
	}
	fmt.Fprintf(e.stdout, "Authenticated:  %s\n", yesNo(status.Authenticated))
	return nil
}

// runLoginGoogle runs the installed-app OAuth flow against a loopback
// redirect and trades the resulting ID token for a session.
func runLoginGoogle(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "login-google")
	port := fs.Int("port", 8085, "loopback port for the OAuth redirect")
	timeout := fs.Duration("timeout", 5*time.Minute, "how long to wait for the browser")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	clientJSON, err := oauthClientJSON(e.app.Config)
	if err != nil {
		return err
	}
	oc, err := google.ConfigFromJSON(clientJSON, "openid", "email", "profile")
	if err != nil {
		return fmt.Errorf("oauth config: %w", err)
	}
	oc.RedirectURL = "http://localhost:" + strconv.Itoa(*port) + "/callback"

	state := uuid.NewString()
	type result struct {
		code string
		err  error
	}
	resCh := make(chan result, 1)
	deliver := func(r result) {
		select {
		case resCh <- r:
		default:
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case q.Get("error") != "":
			http.Error(w, "OAuth error: "+q.Get("error"), http.StatusBadRequest)
			deliver(result{err: fmt.Errorf("authorization denied: %s", q.Get("error"))})
		case q.Get("state") != state:
			http.Error(w, "state mismatch", http.StatusBadRequest)
			deliver(result{err: errors.New("oauth state mismatch")})
		default:
			fmt.Fprintln(w, "You may close this window and return to the terminal.")
			deliver(result{code: q.Get("code")})
		}
	})

	ln, err := net.Listen("tcp", "127.0.0.1:"+strconv.Itoa(*port))
	if err != nil {
		return fmt.Errorf("listen for oauth redirect: %w", err)
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	defer srv.Close()

	fmt.Fprintf(e.stdout, "Open this URL to sign in:\n%s\n", oc.AuthCodeURL(state, oauth2.AccessTypeOnline))

	var res result
	select {
	case res = <-resCh:
	case <-time.After(*timeout):
		return errors.New("authorization timed out")
	case <-ctx.Done():
		return ctx.Err()
	}
	if res.err != nil {
		return res.err
	}

	tok, err := oc.Exchange(ctx, res.code)
	if err != nil {
		return fmt.Errorf("token exchange: %w", err)
	}
	idToken, _ := tok.Extra("id_token").(string)
	if idToken == "" {
		return errors.New("google did not return an ID token")
	}

	if err := e.app.Session.GoogleLogin(ctx, idToken); err != nil {
		return err
	}
	fmt.Fprintln(e.stdout, "Logged in with Google")
	return nil
}

func oauthClientJSON(cfg *config.Config) ([]byte, error) {
	switch {
	case cfg.GoogleOAuthClientJSON != "":
		return []byte(cfg.GoogleOAuthClientJSON), nil
	case cfg.GoogleOAuthClientFile != "":
		b, err := os.ReadFile(cfg.GoogleOAuthClientFile)
		if err != nil {
			return nil, fmt.Errorf("read client file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE")
	}
}

func resolvePassword(e *env, flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if v := os.Getenv("FINTRACK_PASSWORD"); v != "" {
		return v, nil
	}
	return prompt(e, "Password: ")
}

// prompt reads one line from stdin. Input is echoed; pipe the password
// or use $FINTRACK_PASSWORD to keep it off the terminal.
func prompt(e *env, label string) (string, error) {
	fmt.Fprint(e.stderr, label)
	line, err := e.stdin.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read %s: %w", strings.TrimSuffix(label, ": "), err)
	}
	return strings.TrimSpace(line), nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
