package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/target/lms-access/internal/adapters/passwordauth"
	"github.com/target/lms-access/internal/bootstrap"
	"github.com/target/lms-access/internal/data"
	"github.com/target/lms-access/internal/devseed"
	domainauth "github.com/target/lms-access/internal/domain/auth"
	"github.com/target/lms-access/internal/ports"
	"github.com/target/lms-access/internal/service"
	"github.com/target/lms-access/internal/util"
)

const defaultListLimit = 100

func runMigrate(ctx *commandContext, args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("migrate takes no arguments, got %q", strings.Join(args, " "))
	}
	db, err := bootstrap.ConnectDB(ctx.Ctx, ctx.Config.Postgres, ctx.Logger)
	if err != nil {
		return err
	}
	defer db.Close()
	return bootstrap.RunMigrations(ctx.Ctx, db, ctx.Logger)
}

func runMigrationStatus(ctx *commandContext, _ []string) error {
	db, err := bootstrap.ConnectDB(ctx.Ctx, ctx.Config.Postgres, ctx.Logger)
	if err != nil {
		return err
	}
	defer db.Close()

	status, err := data.MigrationStatus(ctx.Ctx, db)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(ctx.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tAPPLIED")
	for _, m := range status {
		applied := "pending"
		if m.AppliedAt != nil {
			applied = m.AppliedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\n", m.Version, applied)
	}
	return tw.Flush()
}

type createAdminFlags struct {
	email    string
	password string
	name     string
}

func parseCreateAdminFlags(args []string) (createAdminFlags, error) {
	var f createAdminFlags
	fs := flag.NewFlagSet("create-admin", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&f.email, "email", "", "admin email address")
	fs.StringVar(&f.password, "password", "", "initial password")
	fs.StringVar(&f.name, "name", "", "display name")
	if err := fs.Parse(args); err != nil {
		return f, err
	}
	if f.email == "" || f.password == "" {
		return f, errors.New("create-admin requires --email and --password")
	}
	return f, nil
}

// profileService builds the service with no feed: there are no open sessions to notify
// for a user that did not exist.
func profileService(ctx *commandContext, db *sql.DB) (*service.ProfileService, error) {
	identities, err := passwordauth.New(passwordauth.Options{
		DB:                db,
		MinPasswordLength: ctx.Config.Auth.PasswordMinLength,
	})
	if err != nil {
		return nil, err
	}
	return service.NewProfileService(service.ProfileServiceOptions{
		Backends: service.ProfileBackends{
			Store:      data.NewProfileRepo(db),
			Identities: identities,
		},
		Observer: service.Observer{Logger: ctx.Logger},
	}), nil
}

func runCreateAdmin(ctx *commandContext, args []string) error {
	f, err := parseCreateAdminFlags(args)
	if err != nil {
		return err
	}
	db, err := bootstrap.ConnectDB(ctx.Ctx, ctx.Config.Postgres, ctx.Logger)
	if err != nil {
		return err
	}
	defer db.Close()

	svc, err := profileService(ctx, db)
	if err != nil {
		return err
	}
	p, err := svc.BootstrapUser(ctx.Ctx, service.CreateUserInput{
		Email:       f.email,
		Password:    f.password,
		DisplayName: f.name,
		Role:        domainauth.RoleAdmin,
	})
	if err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	fmt.Fprintf(ctx.Out, "created admin %s (%s)\n", p.Email, p.ID)
	return nil
}

func runDBSeed(ctx *commandContext, _ []string) error {
	if !ctx.Config.IsDev {
		return errors.New("db-seed only runs with DEV=true")
	}
	db, err := bootstrap.ConnectDB(ctx.Ctx, ctx.Config.Postgres, ctx.Logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := bootstrap.RunMigrations(ctx.Ctx, db, ctx.Logger); err != nil {
		return err
	}
	svc, err := profileService(ctx, db)
	if err != nil {
		return err
	}
	res := devseed.Run(ctx.Ctx, svc, ctx.Logger)
	fmt.Fprintf(ctx.Out, "seeded %d users (%d already present, %d failed); password %q\n",
		res.Created, res.Existing, res.Failed, devseed.DefaultPassword)
	if res.Failed > 0 {
		return fmt.Errorf("%d seed users failed", res.Failed)
	}
	return nil
}

type listUsersFlags struct {
	opts   ports.ProfileListOptions
	asJSON bool
}

func parseListUsersFlags(args []string) (listUsersFlags, error) {
	var (
		f    listUsersFlags
		role string
	)
	fs := flag.NewFlagSet("list-users", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&role, "role", "", "filter by role (student, lecturer, admin)")
	fs.IntVar(&f.opts.Limit, "limit", defaultListLimit, "maximum rows")
	fs.IntVar(&f.opts.Offset, "offset", 0, "rows to skip")
	fs.BoolVar(&f.asJSON, "json", false, "print JSON")
	if err := fs.Parse(args); err != nil {
		return f, err
	}
	if role != "" {
		r, err := domainauth.ParseRole(role)
		if err != nil {
			return f, err
		}
		f.opts.Role = &r
	}
	if f.opts.Limit <= 0 {
		f.opts.Limit = defaultListLimit
	}
	if f.opts.Offset < 0 {
		f.opts.Offset = 0
	}
	return f, nil
}

func runListUsers(ctx *commandContext, args []string) error {
	f, err := parseListUsersFlags(args)
	if err != nil {
		return err
	}
	db, err := bootstrap.ConnectDB(ctx.Ctx, ctx.Config.Postgres, ctx.Logger)
	if err != nil {
		return err
	}
	defer db.Close()

	svc, err := profileService(ctx, db)
	if err != nil {
		return err
	}
	profiles, err := svc.ListAll(ctx.Ctx, f.opts)
	if err != nil {
		return err
	}
	if f.asJSON {
		enc := json.NewEncoder(ctx.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(profiles)
	}
	return printProfiles(ctx.Out, profiles, time.Now())
}

func printProfiles(w io.Writer, profiles []domainauth.Profile, now time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tEMAIL\tNAME\tROLE\tLAST LOGIN")
	for _, p := range profiles {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.ID, p.Email, p.DisplayName, p.Role, util.FormatLastLogin(p.LastLogin, now))
	}
	return tw.Flush()
}
