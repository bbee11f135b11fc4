package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gaspardpetit/figbridge/internal/bridge"
	"github.com/gaspardpetit/figbridge/internal/config"
	"github.com/gaspardpetit/figbridge/internal/logx"
	"github.com/gaspardpetit/figbridge/internal/mcpserver"
	"github.com/gaspardpetit/figbridge/internal/metrics"
	"github.com/gaspardpetit/figbridge/internal/protocol"
	"github.com/gaspardpetit/figbridge/internal/ui"
)

var (
	version   = "dev"
	buildSHA  = "unknown"
	buildDate = "unknown"
)

const usage = `usage: figbridge-ui [flags] <command> [args]

commands:
  list [-selected]                       list visible nodes, last first
  export [-format F] [-constraint C] [-value V] [-o file] <id>
  notify [-timeout D] <message>
  resize <width> <height>                0 keeps the host default
  fit <content-height>                   resize to content plus extra height
  close                                  close the window
  mcp [-http addr]                       serve the bridge as MCP tools

flags:
`

func main() {
	fs := flag.NewFlagSet("figbridge-ui", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}
	showVersion := fs.Bool("version", false, "print version and exit")
	var cfg config.UIConfig
	if err := cfg.Resolve(fs, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if *showVersion {
		fmt.Printf("figbridge-ui version=%s sha=%s date=%s\n", version, buildSHA, buildDate)
		return
	}
	logx.Configure(cfg.LogLevel)
	metrics.SetBuildInfo("ui", version, buildSHA, buildDate)
	if fs.NArg() == 0 {
		fs.Usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd, args := fs.Arg(0), fs.Args()[1:]
	s := ui.NewSession(ui.Options{Timeout: cfg.RequestTimeout, Reconnect: cfg.Reconnect && cmd == "mcp"})
	runErr := make(chan error, 1)
	go func() { runErr <- s.Run(ctx, dialer(cfg)) }()

	select {
	case <-s.Initialized():
	case err := <-runErr:
		logx.Log.Fatal().Err(err).Msg("host connection")
	case <-ctx.Done():
		return
	}

	if err := run(ctx, s, cfg, cmd, args); err != nil {
		logx.Log.Fatal().Err(err).Str("command", cmd).Msg("command failed")
	}
	cancel()
	<-runErr
}

func run(ctx context.Context, s *ui.Session, cfg config.UIConfig, cmd string, args []string) error {
	switch cmd {
	case "list":
		sub := flag.NewFlagSet("list", flag.ExitOnError)
		selected := sub.Bool("selected", false, "only the current selection")
		_ = sub.Parse(args)
		nodes, err := s.ListNodes(ctx, *selected)
		if err != nil {
			return err
		}
		for _, n := range nodes {
			fmt.Printf("%s\t%s\t%gx%g\n", n.ID, n.Name, n.Width, n.Height)
		}
		return nil
	case "export":
		sub := flag.NewFlagSet("export", flag.ExitOnError)
		format := sub.String("format", "", "PNG, JPG, SVG or PDF")
		constraint := sub.String("constraint", "", "SCALE, WIDTH or HEIGHT")
		value := sub.Float64("value", 1, "constraint value")
		out := sub.String("o", "", "output file; defaults to <id>.<format>")
		_ = sub.Parse(args)
		if sub.NArg() != 1 {
			return errors.New("export needs a node id")
		}
		id := sub.Arg(0)
		o := protocol.ExportOverride{Format: *format}
		if *constraint != "" {
			o.Constraint = &protocol.Constraint{Type: *constraint, Value: *value}
		}
		img, err := s.ExportNode(ctx, id, o)
		if err != nil {
			return err
		}
		if img == nil {
			return fmt.Errorf("node %s could not be exported", id)
		}
		path := *out
		if path == "" {
			path = fmt.Sprintf("%s.%s", sanitize(id), extension(protocol.MergeExportSettings(o).Format))
		}
		if err := os.WriteFile(path, img, 0o644); err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	case "notify":
		sub := flag.NewFlagSet("notify", flag.ExitOnError)
		timeout := sub.Duration("timeout", cfg.NotifyTimeout, "display time")
		_ = sub.Parse(args)
		if sub.NArg() == 0 {
			return errors.New("notify needs a message")
		}
		return s.Notify(ctx, sub.Arg(0), *timeout)
	case "resize":
		if len(args) != 2 {
			return errors.New("resize needs width and height")
		}
		w, err := strconv.Atoi(args[0])
		if err != nil {
			return err
		}
		h, err := strconv.Atoi(args[1])
		if err != nil {
			return err
		}
		return s.Resize(ctx, w, h)
	case "fit":
		if len(args) != 1 {
			return errors.New("fit needs the content height")
		}
		h, err := strconv.Atoi(args[0])
		if err != nil {
			return err
		}
		return s.AutoResize(ctx, bridge.MeasurerFunc(func(context.Context) (int, bool) { return h, h > 0 }), cfg.ExtraHeight)
	case "close":
		return s.Close(ctx)
	case "mcp":
		sub := flag.NewFlagSet("mcp", flag.ExitOnError)
		addr := sub.String("http", "", "serve streamable HTTP on this address instead of stdio")
		_ = sub.Parse(args)
		srv := mcpserver.New(s, version)
		if *addr == "" {
			return srv.ServeStdio()
		}
		mux := http.NewServeMux()
		mux.Handle("/mcp", srv.Handler())
		httpSrv := &http.Server{Addr: *addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			<-ctx.Done()
			_ = httpSrv.Shutdown(context.Background())
		}()
		logx.Log.Info().Str("addr", *addr).Msg("mcp listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func extension(format string) string {
	switch format {
	case protocol.FormatJPG:
		return "jpg"
	case protocol.FormatSVG:
		return "svg"
	case protocol.FormatPDF:
		return "pdf"
	default:
		return "png"
	}
}

func sanitize(id string) string {
	b := []byte(id)
	for i, c := range b {
		if c == ':' || c == '/' || c == '\\' || c == ';' {
			b[i] = '_'
		}
	}
	return string(b)
}
