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
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/wolfman30/citas/internal/admin"
	"github.com/wolfman30/citas/internal/app/bootstrap"
	"github.com/wolfman30/citas/internal/citas"
	appconfig "github.com/wolfman30/citas/internal/config"
)

const usage = `usage: citas-admin <command> [flags]

commands:
  sites                                            list sites
  doctors [-specialty name]                        list doctors
  create-site -name N -address A
  create-doctor -name N -specialty S -site ID
  create-availability -doctor ID -date YYYY-MM-DD -start HH:MM -end HH:MM

credentials come from CITAS_ADMIN_DOC and CITAS_ADMIN_BIRTH`

var commands = map[string]struct{}{
	"sites":               {},
	"doctors":             {},
	"create-site":         {},
	"create-doctor":       {},
	"create-availability": {},
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := appconfig.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *appconfig.Config, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New(usage)
	}
	if _, ok := commands[args[0]]; !ok {
		return fmt.Errorf("unknown command %q\n%s", args[0], usage)
	}
	logger := bootstrap.BuildLogger(cfg)
	m, _ := bootstrap.BuildMetrics()
	panel := admin.NewPanel(bootstrap.BuildAPIClient(cfg, logger, m), logger)

	if _, err := panel.Login(ctx, admin.LoginForm{Document: cfg.AdminDocument, BirthDate: cfg.AdminBirthDate}); err != nil {
		return fmt.Errorf("admin login: %s", citas.UserMessage(err, err.Error()))
	}

	cmd, rest := args[0], args[1:]
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var result interface{}
	switch cmd {
	case "sites":
		if err := fs.Parse(rest); err != nil {
			return err
		}
		sites, err := panel.ListSites(ctx)
		if err != nil {
			return describe(err)
		}
		result = sites
	case "doctors":
		specialty := fs.String("specialty", "", "")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		doctors, err := panel.ListDoctors(ctx, *specialty)
		if err != nil {
			return describe(err)
		}
		result = doctors
	case "create-site":
		var form admin.SiteForm
		fs.StringVar(&form.Name, "name", "", "")
		fs.StringVar(&form.Address, "address", "", "")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		site, err := panel.CreateSite(ctx, form)
		if err != nil {
			return describe(err)
		}
		result = site
	case "create-doctor":
		var form admin.DoctorForm
		fs.StringVar(&form.Name, "name", "", "")
		fs.StringVar(&form.Specialty, "specialty", "", "")
		fs.StringVar(&form.SiteID, "site", "", "")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		doctor, err := panel.CreateDoctor(ctx, form)
		if err != nil {
			return describe(err)
		}
		result = doctor
	case "create-availability":
		var form admin.AvailabilityForm
		fs.StringVar(&form.DoctorID, "doctor", "", "")
		fs.StringVar(&form.Date, "date", "", "")
		fs.StringVar(&form.Start, "start", "", "")
		fs.StringVar(&form.End, "end", "", "")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		id, err := panel.CreateAvailability(ctx, form)
		if err != nil {
			return describe(err)
		}
		result = map[string]citas.ID{"id": id}
	default:
		return fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func describe(err error) error {
	msg := citas.UserMessage(err, "")
	if msg == "" {
		return err
	}
	return errors.New(strings.TrimSpace(msg))
}
