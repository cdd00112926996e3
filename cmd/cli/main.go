// Command accounts is a CLI client for the account management API.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"
)

func usage() {
	fmt.Fprintf(os.Stderr, `accounts CLI
Usage:
  accounts -addr URL [-cacert file | -insecure] [-u email -p password] <cmd> [args]

Without -u/-p the token saved by "login" is used.

Commands:
  version
  health
  signup     -name <n> -lastname <l> -email <e> -password <p>
  login                                           (saves token)
  changepass -new <password>
  payroll    [-period MM-YYYY]
  upload     -file <json array> ('-'=stdin)
  salary     -employee <email> -period MM-YYYY -salary <cents>
  users
  role       -user <email> -role <ROLE> -op GRANT|REMOVE
  access     -user <email> -op LOCK|UNLOCK
  delete     -user <email>
  events
`)
	os.Exit(2)
}

// ---- main ----

var (
	version   = "dev"
	buildDate = "unknown"
)

// main dispatches subcommands over HTTP.
func main() {
	addr := flag.String("addr", "http://localhost:28852", "server base URL")
	caPath := flag.String("cacert", "", "CA cert (PEM)")
	insecure := flag.Bool("insecure", false, "skip cert verify (dev)")
	user := flag.String("u", "", "email for basic auth")
	pass := flag.String("p", "", "password for basic auth")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	if flag.Arg(0) == "version" {
		fmt.Printf("accounts %s (%s)\n", version, buildDate)
		return
	}

	c, err := newClient(*addr, *caPath, *insecure)
	if err != nil {
		fail(err)
	}
	c.user, c.pass = *user, *pass

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	out, err := run(ctx, c, flag.Arg(0), flag.Args()[1:])
	if errors.Is(err, errUsage) {
		usage()
	}
	if err != nil {
		fail(err)
	}
	if out != nil {
		printJSON(out)
	}
}

var errUsage = errors.New("usage")

// needAuth fills the bearer token when no basic credentials were given.
func needAuth(c *client) error {
	if c.user != "" {
		return nil
	}
	tok, err := loadToken()
	if err != nil {
		return err
	}
	c.bearer = tok
	return nil
}

func run(ctx context.Context, c *client, cmd string, args []string) (any, error) {
	switch cmd {

	case "health":
		return c.call(ctx, http.MethodGet, "/healthz", nil)

	case "signup":
		fs := flag.NewFlagSet("signup", flag.ContinueOnError)
		name := fs.String("name", "", "first name")
		last := fs.String("lastname", "", "last name")
		email := fs.String("email", "", "email")
		pw := fs.String("password", "", "password")
		if err := fs.Parse(args); err != nil {
			return nil, errUsage
		}
		body := map[string]string{"name": *name, "lastname": *last, "email": *email, "password": *pw}
		return c.call(ctx, http.MethodPost, "/api/auth/signup", body)

	case "login":
		if c.user == "" {
			return nil, errors.New("login needs -u and -p")
		}
		var tok struct {
			AccessToken string    `json:"access_token"`
			ExpiresAt   time.Time `json:"expires_at"`
		}
		if err := c.do(ctx, http.MethodPost, "/api/auth/token", nil, &tok); err != nil {
			return nil, err
		}
		if err := saveToken(tok.AccessToken, tok.ExpiresAt); err != nil {
			return nil, err
		}
		return map[string]string{"status": "ok", "expires_at": tok.ExpiresAt.Format(time.RFC3339)}, nil

	case "changepass":
		fs := flag.NewFlagSet("changepass", flag.ContinueOnError)
		np := fs.String("new", "", "new password")
		if err := fs.Parse(args); err != nil || *np == "" {
			return nil, errUsage
		}
		if err := needAuth(c); err != nil {
			return nil, err
		}
		return c.call(ctx, http.MethodPost, "/api/auth/changepass", map[string]string{"new_password": *np})

	case "payroll":
		fs := flag.NewFlagSet("payroll", flag.ContinueOnError)
		period := fs.String("period", "", "MM-YYYY")
		if err := fs.Parse(args); err != nil {
			return nil, errUsage
		}
		if err := needAuth(c); err != nil {
			return nil, err
		}
		path := "/api/empl/payment"
		if *period != "" {
			path += "?period=" + url.QueryEscape(*period)
		}
		return c.call(ctx, http.MethodGet, path, nil)

	case "upload":
		fs := flag.NewFlagSet("upload", flag.ContinueOnError)
		file := fs.String("file", "", "JSON array of payments ('-'=stdin)")
		if err := fs.Parse(args); err != nil || *file == "" {
			return nil, errUsage
		}
		data, err := readAll(*file)
		if err != nil {
			return nil, err
		}
		var batch []map[string]any
		if err := json.Unmarshal(data, &batch); err != nil {
			return nil, fmt.Errorf("payments file: %w", err)
		}
		if err := needAuth(c); err != nil {
			return nil, err
		}
		return c.call(ctx, http.MethodPost, "/api/acct/payments", batch)

	case "salary":
		fs := flag.NewFlagSet("salary", flag.ContinueOnError)
		emp := fs.String("employee", "", "employee email")
		period := fs.String("period", "", "MM-YYYY")
		salary := fs.Int64("salary", -1, "salary in cents")
		if err := fs.Parse(args); err != nil || *emp == "" || *period == "" {
			return nil, errUsage
		}
		if err := needAuth(c); err != nil {
			return nil, err
		}
		body := map[string]any{"employee": *emp, "period": *period, "salary": *salary}
		return c.call(ctx, http.MethodPut, "/api/acct/payments", body)

	case "users":
		if err := needAuth(c); err != nil {
			return nil, err
		}
		return c.call(ctx, http.MethodGet, "/api/admin/user/", nil)

	case "role":
		fs := flag.NewFlagSet("role", flag.ContinueOnError)
		u := fs.String("user", "", "target email")
		role := fs.String("role", "", "role name")
		op := fs.String("op", "", "GRANT or REMOVE")
		if err := fs.Parse(args); err != nil || *u == "" {
			return nil, errUsage
		}
		if err := needAuth(c); err != nil {
			return nil, err
		}
		body := map[string]string{"user": *u, "role": *role, "operation": *op}
		return c.call(ctx, http.MethodPut, "/api/admin/user/role", body)

	case "access":
		fs := flag.NewFlagSet("access", flag.ContinueOnError)
		u := fs.String("user", "", "target email")
		op := fs.String("op", "", "LOCK or UNLOCK")
		if err := fs.Parse(args); err != nil || *u == "" {
			return nil, errUsage
		}
		if err := needAuth(c); err != nil {
			return nil, err
		}
		body := map[string]string{"user": *u, "operation": *op}
		return c.call(ctx, http.MethodPut, "/api/admin/user/access", body)

	case "delete":
		fs := flag.NewFlagSet("delete", flag.ContinueOnError)
		u := fs.String("user", "", "target email")
		if err := fs.Parse(args); err != nil || *u == "" {
			return nil, errUsage
		}
		if err := needAuth(c); err != nil {
			return nil, err
		}
		return c.call(ctx, http.MethodDelete, "/api/admin/user/"+url.PathEscape(*u), nil)

	case "events":
		if err := needAuth(c); err != nil {
			return nil, err
		}
		return c.call(ctx, http.MethodGet, "/api/security/events/", nil)
	}
	return nil, errUsage
}

// ---- helpers ----

func fail(err error) {
	var ae *apiError
	if errors.As(err, &ae) {
		fmt.Fprintf(os.Stderr, "api error: status=%d msg=%s\n", ae.Status, ae.Message)
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
