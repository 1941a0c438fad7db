package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"

	salesync "github.com/smartmart/salesync/components/salesync"
	"github.com/smartmart/salesync/components/salesync/commands"
	"github.com/smartmart/salesync/components/salesync/httpapi"
	"github.com/smartmart/salesync/pkg/backend"
	"github.com/smartmart/salesync/pkg/config"
)

type cli struct {
	Config string `type:"path" help:"Path to a salesync YAML config file."`

	Render renderCmd `cmd:"" help:"Fetch a snapshot and render the dashboard panels to an HTML file."`
	Edit   editCmd   `cmd:"" help:"Edit fields of a sale record and save them in one PUT."`
	Import importCmd `cmd:"" help:"Import a CSV file into the backend."`
	Export exportCmd `cmd:"" help:"Export a resource as CSV."`
	Serve  serveCmd  `cmd:"" help:"Run the preview server with live refresh events."`
}

type appContext struct {
	cfg      *config.Config
	log      zerolog.Logger
	recorder salesync.Recorder
	client   *backend.Client
}

func main() {
	root := &cli{}
	ctx := kong.Parse(root,
		kong.Description("Sales dashboard sync client for the SmartMart backend."),
		kong.UsageOnError(),
	)
	app, err := newAppContext(root.Config)
	ctx.FatalIfErrorf(err)
	ctx.FatalIfErrorf(ctx.Run(app))
}

func newAppContext(configPath string) (*appContext, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()
	recorder := salesync.NewZerologRecorder(log)

	client, err := backend.New(backend.Config{
		BaseURL:  cfg.BackendURL,
		APIKey:   cfg.APIKey,
		Timeout:  cfg.RequestTimeout,
		Recorder: recorder,
	})
	if err != nil {
		return nil, err
	}
	return &appContext{cfg: cfg, log: log, recorder: recorder, client: client}, nil
}

type renderCmd struct {
	Year     int    `help:"Sales year to load (defaults to the current year)."`
	Category string `help:"Category id filter; empty loads all categories."`
	Out      string `default:"dashboard.html" type:"path" help:"Output HTML file."`
	Profile  string `type:"path" help:"Dashboard profile YAML; defaults to the built-in panels."`
}

func (cmd *renderCmd) Run(app *appContext) error {
	profilePath := cmd.Profile
	if profilePath == "" {
		profilePath = app.cfg.ProfilePath
	}
	profile := salesync.DefaultProfile()
	if profilePath != "" {
		loaded, err := salesync.ReadProfile(profilePath)
		if err != nil {
			return err
		}
		profile = loaded
	}

	filter := salesync.Filter{Year: cmd.Year, CategoryID: cmd.Category}
	if filter.Year == 0 && profile.Filter.Year != 0 {
		filter.Year = profile.Filter.Year
	}
	if filter.CategoryID == "" {
		filter.CategoryID = profile.Filter.CategoryID
	}

	coordinator := salesync.NewCoordinator(salesync.CoordinatorOptions{
		Backend:  app.client,
		Recorder: app.recorder,
	})
	snap, err := loadSupervised(context.Background(), coordinator, filter, app.cfg.MaxRetries, app.recorder)
	if err != nil {
		if snap.Generation == 0 {
			return err
		}
		app.log.Warn().
			Err(err).
			Msg("snapshot still partial after retries, failed panels render empty")
	}

	html, err := renderPanels(app, profile, snap)
	if err != nil {
		return err
	}
	if err := os.WriteFile(cmd.Out, []byte(html), 0o644); err != nil {
		return fmt.Errorf("salesctl: write %s: %w", cmd.Out, err)
	}
	app.log.Info().Str("out", cmd.Out).Int("year", snap.Filter.Year).Msg("dashboard rendered")
	return nil
}

// loadSupervised reloads the snapshot until every slot settles cleanly or the
// retry budget is spent. Slot failures count against the budget; deterministic
// rejections stop retrying immediately. The last snapshot is returned even on
// failure so partial data can still render.
func loadSupervised(ctx context.Context, coordinator *salesync.Coordinator, filter salesync.Filter, maxRetries int, recorder salesync.Recorder) (salesync.Snapshot, error) {
	var snap salesync.Snapshot
	op := func(ctx context.Context) error {
		loaded, err := coordinator.Load(ctx, filter)
		if err != nil {
			return err
		}
		snap = loaded
		return loaded.Errors.First()
	}
	supervisor := salesync.NewSupervisor(op, salesync.SupervisorOptions{
		MaxRetries: maxRetries,
		Recorder:   recorder,
	})
	for {
		err := supervisor.Run(ctx)
		if err == nil {
			return snap, nil
		}
		if !salesync.Retryable(err) || supervisor.Terminal() {
			return snap, err
		}
	}
}

func renderPanels(app *appContext, profile *salesync.Profile, snap salesync.Snapshot) (string, error) {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head><meta charset=\"utf-8\"><title>")
	b.WriteString(profile.Name)
	b.WriteString("</title></head>\n<body>\n")

	cache := salesync.NewRenderCache(app.cfg.RenderCacheTTL)
	for _, panel := range profile.Panels {
		switch panel.Code {
		case "sales.summary":
			showEstimate, _ := panel.Config["show_profit_estimate"].(bool)
			writeSummary(&b, snap.Stats, showEstimate)
		case "sales.monthly_chart":
			chartType, _ := panel.Config["chart"].(string)
			if chartType == "" {
				chartType = "line"
			}
			theme := app.cfg.ChartTheme
			if t, ok := panel.Config["theme"].(string); ok && t != "" {
				theme = t
			}
			renderer := salesync.NewChartRenderer(chartType,
				salesync.WithRenderCache(cache),
				salesync.WithChartTheme(theme),
				salesync.WithChartAssetsHost(app.cfg.AssetsHost),
			)
			html, err := renderer.RenderMonthly(snap.Stats)
			if err != nil {
				return "", err
			}
			b.WriteString(html)
		case "catalog.category_share":
			renderer := salesync.NewChartRenderer("line",
				salesync.WithRenderCache(cache),
				salesync.WithChartTheme(app.cfg.ChartTheme),
				salesync.WithChartAssetsHost(app.cfg.AssetsHost),
			)
			html, err := renderer.RenderCategoryShare(snap.Products, snap.Categories)
			if err != nil {
				return "", err
			}
			b.WriteString(html)
		}
	}
	b.WriteString("</body>\n</html>\n")
	return b.String(), nil
}

func writeSummary(b *strings.Builder, stats salesync.Stats, showEstimate bool) {
	fmt.Fprintf(b, "<section><h2>Sales %d</h2><table>\n", stats.Filter.Year)
	fmt.Fprintf(b, "<tr><td>Total revenue</td><td>%s</td></tr>\n", stats.Total.StringFixed(2))
	fmt.Fprintf(b, "<tr><td>Orders</td><td>%d</td></tr>\n", stats.Orders)
	fmt.Fprintf(b, "<tr><td>Profit</td><td>%s</td></tr>\n", stats.TotalProfit.StringFixed(2))
	if showEstimate {
		fmt.Fprintf(b, "<tr><td>Profit (estimated)</td><td>%s</td></tr>\n", stats.ProfitEstimated.StringFixed(2))
	}
	b.WriteString("</table></section>\n")
}

type editCmd struct {
	Sale int      `required:"" help:"Sale id to edit."`
	Set  []string `required:"" help:"field=value pairs (product_id, quantity, total_price, date)."`
}

func (cmd *editCmd) Run(app *appContext) error {
	fields := make(map[string]any, len(cmd.Set))
	for _, pair := range cmd.Set {
		field, raw, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("salesctl: --set expects field=value, got %q", pair)
		}
		fields[strings.TrimSpace(field)] = coerceValue(strings.TrimSpace(raw))
	}

	editor := salesync.NewEditor(salesync.EditorOptions{
		Backend:  app.client,
		Recorder: app.recorder,
	})
	// The server owns the record; seeding the bare id is enough for a save,
	// the echo fills in the rest.
	editor.Seed([]salesync.Sale{{ID: cmd.Sale}})

	save := commands.NewSaveSaleCommand(editor, app.recorder)
	if err := save.Execute(context.Background(), commands.SaveSaleInput{
		SaleID: cmd.Sale,
		Fields: fields,
	}); err != nil {
		return err
	}
	echo, _ := editor.Display(cmd.Sale)
	app.log.Info().
		Int("sale_id", echo.ID).
		Str("date", echo.Date).
		Str("total_price", echo.TotalPrice.String()).
		Msg("sale saved")
	return nil
}

// coerceValue keeps numeric patch values numeric so the backend's JSON
// schema accepts them.
func coerceValue(raw string) any {
	if n, err := strconv.Atoi(raw); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}

type importCmd struct {
	Kind string `required:"" help:"Resource kind: products, categories, or sales."`
	File string `required:"" type:"path" help:"CSV file to upload."`
}

func (cmd *importCmd) Run(app *appContext) error {
	data, err := os.ReadFile(cmd.File)
	if err != nil {
		return fmt.Errorf("salesctl: read %s: %w", cmd.File, err)
	}
	importer := commands.NewImportCSVCommand(app.client, nil, app.recorder)
	if err := importer.Execute(context.Background(), commands.ImportCSVInput{
		Kind:     cmd.Kind,
		Filename: cmd.File,
		Data:     data,
	}); err != nil {
		return err
	}
	app.log.Info().Str("kind", cmd.Kind).Str("file", cmd.File).Msg("import accepted")
	return nil
}

type exportCmd struct {
	Resource string `required:"" help:"Resource to export: products, categories, or sales."`
	Out      string `type:"path" help:"Output file; defaults to <resource>.csv."`
}

func (cmd *exportCmd) Run(app *appContext) error {
	out := cmd.Out
	if out == "" {
		out = cmd.Resource + ".csv"
	}
	data, err := app.client.ExportCSV(context.Background(), cmd.Resource)
	if err != nil {
		return err
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("salesctl: write %s: %w", out, err)
	}
	app.log.Info().Str("resource", cmd.Resource).Str("out", out).Msg("export written")
	return nil
}

type serveCmd struct {
	Listen string `help:"Listen address; overrides the configured listen_addr."`
}

func (cmd *serveCmd) Run(app *appContext) error {
	addr := cmd.Listen
	if addr == "" {
		addr = app.cfg.ListenAddr
	}

	events := salesync.NewBroadcastHook()
	coordinator := salesync.NewCoordinator(salesync.CoordinatorOptions{
		Backend:  app.client,
		Recorder: app.recorder,
		Refresh:  events,
	})
	editor := salesync.NewEditor(salesync.EditorOptions{
		Backend:  app.client,
		Recorder: app.recorder,
		Refresh:  events,
	})

	handlers := &httpapi.Handlers{
		Refresh:   commands.NewRefreshSnapshotCommand(coordinator, app.recorder),
		Save:      commands.NewSaveSaleCommand(editor, app.recorder),
		Import:    commands.NewImportCSVCommand(app.client, events, app.recorder),
		Snapshots: coordinator,
		Transfer:  app.client,
		Events:    events,
	}

	mux := http.NewServeMux()
	handlers.Register(mux)

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	app.log.Info().Str("addr", addr).Msg("preview server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
