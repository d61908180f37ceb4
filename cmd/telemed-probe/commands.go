package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jrsteele09/go-telemed-client/client"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func (p *probe) loginCmd() *cobra.Command {
	var email, password string
	var remember bool
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in with email and password",
		RunE: func(cmd *cobra.Command, args []string) error {
			identity, err := p.app.Auth.Login(cmd.Context(), email, password, remember)
			if err != nil {
				return describe(err)
			}
			fmt.Printf("%sLogged in%s as %s (%s, %s)\n", Green, ResetColor, identity.DisplayName, identity.Email, identity.UserType)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	cmd.Flags().BoolVar(&remember, "remember", false, "keep the login across restarts")
	return cmd
}

func (p *probe) getCmd() *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "get <endpoint>",
		Short: "Send a GET request through the API client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return p.send(cmd.Context(), args[0], client.RequestOptions{Method: http.MethodGet, Refresh: refresh})
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "bypass the response cache")
	return cmd
}

func (p *probe) sendCmd() *cobra.Command {
	var method, body string
	cmd := &cobra.Command{
		Use:   "send <endpoint>",
		Short: "Send a request with an optional JSON body",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := client.RequestOptions{Method: strings.ToUpper(method)}
			if body != "" {
				if !json.Valid([]byte(body)) {
					return errors.New("--body must be valid JSON")
				}
				opts.Body = json.RawMessage(body)
			}
			return p.send(cmd.Context(), args[0], opts)
		},
	}
	cmd.Flags().StringVar(&method, "method", http.MethodPost, "HTTP method")
	cmd.Flags().StringVar(&body, "body", "", "JSON request body")
	return cmd
}

func (p *probe) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Log out and clear stored credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := p.app.Auth.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("Logged out")
			return nil
		},
	}
}

func (p *probe) watchCmd() *cobra.Command {
	var metricsAddr, email, password string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the session monitor running and serve metrics until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if email != "" {
				if _, err := p.app.Auth.Login(ctx, email, password, false); err != nil {
					return describe(err)
				}
			}
			if p.app.Monitor.Start(ctx) == nil {
				p.app.Logger.Warn().Msg("Session monitor not started (logged out or bypassed in this environment)")
			}

			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{}))
			server := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				p.app.Logger.Info().Str("addr", metricsAddr).Msg("Serving metrics")
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server.ListenAndServe %w", err)
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					return fmt.Errorf("server.Shutdown: %w", err)
				}
				return nil
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "listen address of the metrics endpoint")
	cmd.Flags().StringVar(&email, "email", "", "log in first with this email")
	cmd.Flags().StringVar(&password, "password", "", "password for --email")
	return cmd
}

func (p *probe) send(ctx context.Context, endpoint string, opts client.RequestOptions) error {
	start := time.Now()
	data, err := p.app.Client.Request(ctx, endpoint, opts)
	fmt.Printf("%s %s %s(%s)%s\n", colourMethod(opts.Method), endpoint, Gray, time.Since(start).Round(time.Millisecond), ResetColor)
	if err != nil {
		return describe(err)
	}

	var out bytes.Buffer
	if json.Indent(&out, data, "", "  ") != nil {
		out.Reset()
		out.Write(data)
	}
	fmt.Println(out.String())
	return nil
}

// describe turns the client's error taxonomy into a one line message.
func describe(err error) error {
	if client.IsSessionExpired(err) {
		return fmt.Errorf("%ssession expired%s: log in again", RedInverse, ResetColor)
	}
	if client.IsConnectivity(err) {
		return fmt.Errorf("%sconnectivity problem%s: %w", Yellow, ResetColor, err)
	}
	if apiErr, ok := client.AsAPIError(err); ok {
		if apiErr.HasField() {
			return fmt.Errorf("%s%s%s (field %s)", Red, apiErr.Message, ResetColor, apiErr.Field)
		}
		return fmt.Errorf("%s%s%s", Red, apiErr.Message, ResetColor)
	}
	return err
}
