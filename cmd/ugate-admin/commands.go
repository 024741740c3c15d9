package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jrsteele09/ugate-admin/identity"
	apperrors "github.com/jrsteele09/ugate-admin/internal/errors"
	"github.com/jrsteele09/ugate-admin/server"
	"github.com/jrsteele09/ugate-admin/token/jwt"
	"github.com/jrsteele09/ugate-admin/users"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"golang.org/x/term"
)

type command struct {
	summary string
	run     func(a *app, args []string) error
}

var commandOrder = []string{
	"serve", "login", "direct-login", "whoami", "logout", "stats", "syndicates",
	"register", "forgot-password", "verify-code", "reset-password", "roles", "version",
}

var commands = map[string]command{
	"serve":           {"run the console server", runServe},
	"login":           {"sign in and persist the session", runLogin},
	"direct-login":    {"adopt an existing access and refresh token pair", runDirectLogin},
	"whoami":          {"show the signed-in super admin", runWhoami},
	"logout":          {"end the session and clear the store", runLogout},
	"stats":           {"print the dashboard statistics", runStats},
	"syndicates":      {"list syndicates", runSyndicates},
	"register":        {"create an administrator account", runRegister},
	"forgot-password": {"request a password reset code", runForgotPassword},
	"verify-code":     {"check a password reset code", runVerifyCode},
	"reset-password":  {"set a new password with a reset code", runResetPassword},
	"roles":           {"list, create or assign roles (list | create <name> | assign <user-id> <role>)", runRoles},
	"version":         {"print the version", runVersion},
}

func newFlagSet(name string) *pflag.FlagSet {
	return pflag.NewFlagSet(appName+" "+name, pflag.ContinueOnError)
}

func runServe(a *app, args []string) error {
	flagSet := newFlagSet("serve")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.init(ctx); err != nil {
		log.Warn().Err(err).Msg("no usable stored session, starting signed out")
	}

	handler, err := server.New(a.cfg, a.session, a.admin)
	if err != nil {
		return err
	}
	httpServer := &http.Server{
		Addr:              a.cfg.GetPort(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if !isLoopback(httpServer.Addr) {
		log.Warn().Str("addr", httpServer.Addr).Msg("console server reachable beyond this host, every caller acts as the signed-in super admin")
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("console server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server.ListenAndServe: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	log.Info().Msg("console server stopped")
	return nil
}

func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func runLogin(a *app, args []string) error {
	var identifier, passwordFile string
	flagSet := newFlagSet("login")
	flagSet.StringVarP(&identifier, "identifier", "u", "", "email or username")
	flagSet.StringVar(&passwordFile, "password-file", "", "read the password from this file instead of prompting")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	if identifier == "" {
		var err error
		if identifier, err = prompt("Identifiant: "); err != nil {
			return err
		}
	}
	password, err := readPassword(passwordFile, "Mot de passe: ")
	if err != nil {
		return err
	}

	ctx := context.Background()
	if err := a.session.Login(ctx, identity.Credentials{Identifier: identifier, Password: password}); err != nil {
		return userError(err)
	}
	user := a.session.User()
	fmt.Printf("Connecté en tant que %s (%s)\n", user.FullName(), strings.Join(user.Roles, ", "))
	return nil
}

func runDirectLogin(a *app, args []string) error {
	var accessToken, refreshToken string
	flagSet := newFlagSet("direct-login")
	flagSet.StringVar(&accessToken, "access-token", "", "access token")
	flagSet.StringVar(&refreshToken, "refresh-token", "", "refresh token")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	if err := a.session.AdoptTokens(context.Background(), accessToken, refreshToken); err != nil {
		return userError(err)
	}
	fmt.Printf("Connecté en tant que %s\n", a.session.User().FullName())
	return nil
}

func runWhoami(a *app, _ []string) error {
	ctx := context.Background()
	if err := a.init(ctx); err != nil {
		return userError(err)
	}
	user := a.session.User()
	if user == nil {
		return errors.New("non connecté")
	}

	// the token source refreshes first if the access token is about to expire
	tok, err := a.coordinator.TokenSource(ctx).Token()
	if err != nil {
		return userError(err)
	}

	out := map[string]any{
		"id":        user.ID,
		"email":     user.Email,
		"name":      user.FullName(),
		"roles":     user.Roles,
		"expiresAt": tok.Expiry.Format(time.RFC3339),
	}
	// unverified, informational only
	if claims := jwt.DecodeClaims(tok.AccessToken); claims != nil {
		out["tokenSubject"] = claims.Sub
		out["tokenRoles"] = claims.AllRoles()
	}
	return printJSON(out)
}

func runLogout(a *app, _ []string) error {
	a.session.Logout(context.Background())
	fmt.Println("Déconnecté")
	return nil
}

func runStats(a *app, args []string) error {
	var global bool
	flagSet := newFlagSet("stats")
	flagSet.BoolVar(&global, "global", false, "syndicate management totals instead of the analytics KPIs")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	if err := requireSession(ctx, a); err != nil {
		return err
	}

	fetch := a.admin.DashboardStats
	if global {
		fetch = a.admin.GlobalStats
	}
	stats, err := fetch(ctx)
	if err != nil {
		return userError(err)
	}
	return printJSON(stats)
}

func runSyndicates(a *app, args []string) error {
	var page, size int
	flagSet := newFlagSet("syndicates")
	flagSet.IntVar(&page, "page", 0, "page number, from 0")
	flagSet.IntVar(&size, "size", 10, "page size")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	if err := requireSession(ctx, a); err != nil {
		return err
	}

	out, err := a.admin.ListSyndicates(ctx, page, size)
	if err != nil {
		return userError(err)
	}
	return printJSON(out)
}

func runForgotPassword(a *app, args []string) error {
	var email string
	flagSet := newFlagSet("forgot-password")
	flagSet.StringVar(&email, "email", "", "account email")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if email == "" {
		return errors.New("--email is required")
	}

	if err := a.identity.ForgotPassword(context.Background(), email); err != nil {
		return userError(err)
	}
	fmt.Println("Un code de réinitialisation a été envoyé")
	return nil
}

func runRegister(a *app, args []string) error {
	var req identity.RegisterRequest
	var role, passwordFile string
	flagSet := newFlagSet("register")
	flagSet.StringVar(&req.Username, "username", "", "username")
	flagSet.StringVar(&req.Email, "email", "", "account email")
	flagSet.StringVar(&req.FirstName, "first-name", "", "first name")
	flagSet.StringVar(&req.LastName, "last-name", "", "last name")
	flagSet.StringVar(&req.Phone, "phone", "", "phone number")
	flagSet.StringVar(&role, "role", string(users.RoleAdmin), "role granted to the account")
	flagSet.StringVar(&passwordFile, "password-file", "", "read the password from this file instead of prompting")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	password, err := readPassword(passwordFile, "Mot de passe: ")
	if err != nil {
		return err
	}
	req.Password = password
	req.Roles = []string{role}

	resp, err := a.identity.Register(context.Background(), req)
	if err != nil {
		return userError(err)
	}
	if resp.Message != "" {
		fmt.Println(resp.Message)
	} else {
		fmt.Printf("Compte %s créé\n", req.Email)
	}
	return nil
}

func runVerifyCode(a *app, args []string) error {
	var email, code string
	flagSet := newFlagSet("verify-code")
	flagSet.StringVar(&email, "email", "", "account email")
	flagSet.StringVar(&code, "code", "", "reset code received by email")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	if err := a.identity.VerifyResetCode(context.Background(), email, code); err != nil {
		return userError(err)
	}
	fmt.Println("Code valide")
	return nil
}

func runResetPassword(a *app, args []string) error {
	var email, code, passwordFile string
	flagSet := newFlagSet("reset-password")
	flagSet.StringVar(&email, "email", "", "account email")
	flagSet.StringVar(&code, "code", "", "verified reset code")
	flagSet.StringVar(&passwordFile, "password-file", "", "read the new password from this file instead of prompting")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	password, err := readPassword(passwordFile, "Nouveau mot de passe: ")
	if err != nil {
		return err
	}
	if err := a.identity.ResetPassword(context.Background(), email, code, password); err != nil {
		return userError(err)
	}
	fmt.Println("Mot de passe réinitialisé")
	return nil
}

// runRoles manages identity provider roles with the signed-in session's token
func runRoles(a *app, args []string) error {
	flagSet := newFlagSet("roles")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	rest := flagSet.Args()
	if len(rest) == 0 {
		rest = []string{"list"}
	}

	ctx := context.Background()
	if err := requireSession(ctx, a); err != nil {
		return err
	}
	tok, err := a.coordinator.TokenSource(ctx).Token()
	if err != nil {
		return userError(err)
	}

	switch {
	case rest[0] == "list":
		roles, err := a.identity.ListRoles(ctx, tok.AccessToken)
		if err != nil {
			return userError(err)
		}
		return printJSON(roles)
	case rest[0] == "create" && len(rest) == 2:
		role, err := a.identity.CreateRole(ctx, tok.AccessToken, rest[1])
		if err != nil {
			return userError(err)
		}
		return printJSON(role)
	case rest[0] == "assign" && len(rest) == 3:
		if err := a.identity.AssignRole(ctx, tok.AccessToken, rest[1], users.RoleType(rest[2])); err != nil {
			return userError(err)
		}
		fmt.Printf("Rôle %s attribué à %s\n", rest[2], rest[1])
		return nil
	}
	return fmt.Errorf("usage: %s roles [list | create <name> | assign <user-id> <role>]", appName)
}

func runVersion(_ *app, _ []string) error {
	fmt.Printf("%s %s\n", appName, version)
	return nil
}

// userError turns err into the message shown to the operator. Errors that end
// the session point at the login command.
func userError(err error) error {
	msg := apperrors.UserMessage(err)
	if apperrors.IsTerminal(err) {
		return fmt.Errorf("%s (%s login)", msg, appName)
	}
	return errors.New(msg)
}

// requireSession restores the stored session and fails when there is none
func requireSession(ctx context.Context, a *app) error {
	if err := a.init(ctx); err != nil {
		return userError(err)
	}
	if !a.session.IsAuthenticated() {
		return errors.New("non connecté, lancez d'abord: " + appName + " login")
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func prompt(label string) (string, error) {
	fmt.Fprint(os.Stderr, label)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// readPassword reads from passwordFile, or prompts on the terminal with echo
// disabled
func readPassword(passwordFile, label string) (string, error) {
	if passwordFile != "" && passwordFile != "-" {
		data, err := os.ReadFile(passwordFile)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", passwordFile, err)
		}
		return strings.TrimRight(string(data), "\r\n"), nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("no terminal available for the password prompt (use --password-file)")
	}
	fmt.Fprint(os.Stderr, label)
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(password), nil
}
