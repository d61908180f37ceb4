package main

import (
	"context"
	"fmt"
	"os"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/jrsteele09/go-telemed-client/app"
	"github.com/jrsteele09/go-telemed-client/config"
	"github.com/jrsteele09/go-telemed-client/internal/fakebackend"
	"github.com/jrsteele09/go-telemed-client/internal/logging"
	"github.com/jrsteele09/go-telemed-client/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// probe is the state shared by every command of one invocation.
type probe struct {
	configFile string
	demo       bool
	page       string

	registry *prometheus.Registry
	backend  *fakebackend.Server
	app      *app.App
}

func main() {
	p := &probe{}
	rootCmd := &cobra.Command{
		Use:               "telemed-probe",
		Short:             "Exercise the telemedicine API client from the command line",
		SilenceUsage:      true,
		PersistentPreRunE: p.setup,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return p.teardown()
		},
	}
	rootCmd.PersistentFlags().StringVar(&p.configFile, "config", "", "optional config file (env vars take precedence)")
	rootCmd.PersistentFlags().BoolVar(&p.demo, "demo", false, "run against an in-process demo backend")
	rootCmd.PersistentFlags().StringVar(&p.page, "page", "patient/dashboard.html", "page the requests are made from")

	rootCmd.AddCommand(p.loginCmd())
	rootCmd.AddCommand(p.getCmd())
	rootCmd.AddCommand(p.sendCmd())
	rootCmd.AddCommand(p.logoutCmd())
	rootCmd.AddCommand(p.watchCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func (p *probe) setup(cmd *cobra.Command, _ []string) error {
	// A missing .env is normal outside development
	_ = godotenv.Load()

	cfg, err := config.Load(p.configFile)
	if err != nil {
		return err
	}
	if p.demo {
		p.backend = fakebackend.New()
		cfg.BaseURL = p.backend.URL
	}

	logger := logging.New(cfg.GetEnv(), cfg.GetLogLevel())
	displayAppname(cfg.GetAppName())

	p.registry = prometheus.NewRegistry()
	p.app, err = app.New(cmd.Context(), cfg, app.Options{
		Navigator:  session.NewPageTracker(p.page),
		Registerer: p.registry,
		Logger:     &logger,
	})
	if err != nil {
		return err
	}
	return p.app.Start(context.WithoutCancel(cmd.Context()))
}

func (p *probe) teardown() error {
	var err error
	if p.app != nil {
		err = p.app.Close()
	}
	if p.backend != nil {
		p.backend.Close()
	}
	return err
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
