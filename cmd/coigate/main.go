// Command coigate runs the cross-origin isolation proxy and the record
// ingestion API, or checks whether a page ends up isolated.
//
//	coigate serve -upstream https://user.github.io -proxy-addr :8443
//	coigate check -url https://user.github.io -via http://localhost:8443 -browser
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/raysh454/coigate/internal/app"
	"github.com/raysh454/coigate/internal/cli"
	"github.com/raysh454/coigate/internal/inspect"
	"github.com/raysh454/coigate/internal/logging"
	"github.com/raysh454/coigate/internal/webclient"
)

func main() {
	args, err := cli.ParseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, cli.ErrUsage)
		os.Exit(2)
	}

	cfg := app.DefaultConfig()
	if err := cfg.LoadEnv(os.LookupEnv); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch args.Command {
	case cli.CommandServe:
		err = serve(ctx, cfg, args.Serve)
	case cli.CommandCheck:
		err = check(ctx, cfg, args.Check)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg *app.Config, s *cli.ServeArgs) error {
	if s.Addr != "" {
		cfg.ServerCfg.ListenAddr = s.Addr
	}
	if s.ProxyAddr != "" {
		cfg.ProxyAddr = s.ProxyAddr
	}
	if s.Upstream != "" {
		cfg.Upstream = s.Upstream
	}
	if s.DataDir != "" {
		cfg.DataDir = s.DataDir
	}
	if s.LogFormat != "" {
		cfg.LogFormat = s.LogFormat
	}

	logger, err := logging.New(cfg.LogFormat, "coigate")
	if err != nil {
		return err
	}
	if z, ok := logger.(*logging.ZapLogger); ok {
		defer z.Sync()
	}

	a, err := app.NewApplication(cfg, logger)
	if err != nil {
		return err
	}
	logger.Info("application starting",
		logging.Field{Key: "api", Value: cfg.ServerCfg.ListenAddr},
		logging.Field{Key: "proxy", Value: cfg.ProxyAddr},
		logging.Field{Key: "upstream", Value: cfg.Upstream})
	return a.Run(ctx)
}

func check(ctx context.Context, cfg *app.Config, c *cli.CheckArgs) error {
	logger, err := logging.New(cfg.LogFormat, "coigate")
	if err != nil {
		return err
	}

	client, err := webclient.NewNetHTTPClient(cfg.WebClientCfg, logger, nil)
	if err != nil {
		return err
	}
	defer client.Close()

	var browser inspect.Prober
	if c.Browser {
		bcfg := cfg.WebClientCfg
		bcfg.Client = webclient.ClientChromedp
		bcfg.Headless = true
		wc, err := webclient.NewWebClient(bcfg, logger)
		if err != nil {
			return err
		}
		defer wc.Close()
		p, ok := wc.(inspect.Prober)
		if !ok {
			return fmt.Errorf("backend %q cannot probe pages", bcfg.Client)
		}
		browser = p
	}

	rep, err := inspect.NewChecker(client, browser, logger).Check(ctx, c.URL, inspect.Options{ProxiedURL: c.Via})
	if err != nil {
		return err
	}

	if c.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}

	fmt.Printf("url:              %s (%d)\n", rep.URL, rep.StatusCode)
	fmt.Printf("COOP:             %q\n", rep.COOP)
	fmt.Printf("COEP:             %q\n", rep.COEP)
	fmt.Printf("header isolated:  %v\n", rep.HeaderIsolated)
	fmt.Printf("registers worker: %v %v\n", rep.RegistersWorker, rep.WorkerScripts)
	if rep.BrowserIsolated != nil {
		fmt.Printf("browser isolated: %v\n", *rep.BrowserIsolated)
	}
	if rep.ProxiedURL != "" {
		fmt.Printf("\nheaders %s -> %s\n%s", rep.URL, rep.ProxiedURL, rep.HeaderDiff)
	}
	return nil
}
