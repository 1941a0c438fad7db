package salesync

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
	"github.com/shopspring/decimal"
)

const defaultChartHeight = "360px"

var sharedRenderCache = NewRenderCache(5 * time.Minute)

// ChartRenderer turns aggregated stats into standalone echarts HTML.
type ChartRenderer struct {
	chartType  string
	cache      RenderCache
	theme      string
	assetsHost string
}

// ChartRendererOption customizes renderer behavior.
type ChartRendererOption func(*ChartRenderer)

// WithRenderCache injects a render cache; nil disables memoization.
func WithRenderCache(cache RenderCache) ChartRendererOption {
	return func(r *ChartRenderer) {
		r.cache = cache
	}
}

// WithChartTheme sets the echarts theme (defaults to Westeros).
func WithChartTheme(theme string) ChartRendererOption {
	return func(r *ChartRenderer) {
		r.theme = theme
	}
}

// WithChartAssetsHost rewrites the assets host so ECharts JS loads from a CDN.
func WithChartAssetsHost(host string) ChartRendererOption {
	return func(r *ChartRenderer) {
		r.assetsHost = host
	}
}

// NewChartRenderer builds a renderer for the given chart type (line or bar).
func NewChartRenderer(chartType string, options ...ChartRendererOption) *ChartRenderer {
	r := &ChartRenderer{
		chartType: strings.ToLower(chartType),
		cache:     sharedRenderCache,
		theme:     types.ThemeWesteros,
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// RenderMonthly renders the revenue/profit series of the stats, one point per
// month Jan..Dec. The output is memoized per filter when a cache is set.
func (r *ChartRenderer) RenderMonthly(stats Stats) (string, error) {
	title := fmt.Sprintf("Sales %d", stats.Filter.Year)
	subtitle := "All categories"
	if stats.Filter.CategoryID != "" {
		subtitle = "Category " + stats.Filter.CategoryID
	}

	labels := make([]string, 0, 12)
	revenue := make([]opts.LineData, 0, 12)
	profit := make([]opts.LineData, 0, 12)
	revenueBars := make([]opts.BarData, 0, 12)
	profitBars := make([]opts.BarData, 0, 12)
	for month := 1; month <= 12; month++ {
		bucket := stats.Month(month)
		labels = append(labels, time.Month(month).String()[:3])
		revenue = append(revenue, opts.LineData{Value: chartValue(bucket.TotalPrice)})
		profit = append(profit, opts.LineData{Value: chartValue(bucket.Profit)})
		revenueBars = append(revenueBars, opts.BarData{Value: chartValue(bucket.TotalPrice)})
		profitBars = append(profitBars, opts.BarData{Value: chartValue(bucket.Profit)})
	}

	renderFn := func() (string, error) {
		switch r.chartType {
		case "bar":
			bar := charts.NewBar()
			bar.SetGlobalOptions(r.globalChartOptions(title, subtitle)...)
			bar.SetXAxis(labels)
			bar.AddSeries("Revenue", revenueBars)
			bar.AddSeries("Profit", profitBars)
			return renderChart(bar)
		case "line":
			line := charts.NewLine()
			line.SetGlobalOptions(r.globalChartOptions(title, subtitle)...)
			line.SetXAxis(labels)
			line.AddSeries("Revenue", revenue)
			line.AddSeries("Profit", profit)
			line.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))
			return renderChart(line)
		default:
			return "", fmt.Errorf("salesync: unsupported chart type: %s", r.chartType)
		}
	}

	if r.cache == nil {
		return renderFn()
	}
	key := fmt.Sprintf("monthly:%s:%d:%s", r.chartType, stats.Filter.Year, stats.Filter.CategoryID)
	return r.cache.GetOrRender(key, renderFn)
}

// RenderCategoryShare renders a pie of catalog value per category from the
// cached products.
func (r *ChartRenderer) RenderCategoryShare(products []Product, categories []Category) (string, error) {
	names := make(map[int]string, len(categories))
	for _, category := range categories {
		names[category.ID] = category.Name
	}
	totals := make(map[int]decimal.Decimal)
	order := make([]int, 0, len(categories))
	for _, product := range products {
		if _, seen := totals[product.CategoryID]; !seen {
			order = append(order, product.CategoryID)
		}
		totals[product.CategoryID] = totals[product.CategoryID].Add(product.Price)
	}

	data := make([]opts.PieData, 0, len(order))
	for _, id := range order {
		name := names[id]
		if name == "" {
			name = "Category " + strconv.Itoa(id)
		}
		data = append(data, opts.PieData{Name: name, Value: chartValue(totals[id])})
	}

	pie := charts.NewPie()
	pie.SetGlobalOptions(r.globalChartOptions("Catalog value by category", "")...)
	pie.AddSeries("Categories", data)
	return renderChart(pie)
}

func (r *ChartRenderer) globalChartOptions(title, subtitle string) []charts.GlobalOpts {
	initOpts := opts.Initialization{
		Theme:  r.theme,
		Width:  "100%",
		Height: defaultChartHeight,
	}
	if r.assetsHost != "" {
		initOpts.AssetsHost = r.assetsHost
	}
	return []charts.GlobalOpts{
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithInitializationOpts(initOpts),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	}
}

func renderChart(renderable interface{ Render(io.Writer) error }) (string, error) {
	var buf bytes.Buffer
	if err := renderable.Render(&buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// chartValue converts decimal money into the float echarts expects. Rendering
// precision only; aggregation itself stays decimal.
func chartValue(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
