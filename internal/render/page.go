package render

import (
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"strings"

	chart "github.com/wcharczuk/go-chart/v2"

	"bist-tracker/internal/dashboard"
)

var pageTemplate = template.Must(template.New("page").Parse(pageHTML))

type pageView struct {
	Page        dashboard.Page
	Fields      []string
	PriceSVG    template.HTML
	VolumeSVG   template.HTML
	PriceError  string
	VolumeError string
}

// WritePage renders the dashboard page as HTML. A chart that fails to render
// is replaced by its error message; the rest of the page is unaffected.
func WritePage(w io.Writer, page dashboard.Page, size Size) error {
	view := pageView{Page: page, Fields: dashboard.TooltipFields}
	if page.Detail != nil {
		if s, err := svg(PriceChart(*page.Detail, size)); err != nil {
			view.PriceError = err.Error()
		} else {
			view.PriceSVG = template.HTML(s)
		}
		if s, err := svg(VolumeChart(*page.Detail, size)); err != nil {
			view.VolumeError = err.Error()
		} else {
			view.VolumeSVG = template.HTML(s)
		}
	}
	if err := pageTemplate.Execute(w, view); err != nil {
		return fmt.Errorf("render page: %w", err)
	}
	return nil
}

// WritePNGs writes <ticker>-price.png and <ticker>-volume.png into dir and
// returns the written paths.
func WritePNGs(dir string, d dashboard.Detail, size Size) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	price, err := PriceChart(d, size)
	if err != nil {
		return nil, err
	}
	volume, err := VolumeChart(d, size)
	if err != nil {
		return nil, err
	}

	base := strings.ReplaceAll(d.Ticker, string(filepath.Separator), "_")
	paths := []string{
		filepath.Join(dir, base+"-price.png"),
		filepath.Join(dir, base+"-volume.png"),
	}
	for i, graph := range []chart.Chart{price, volume} {
		if err := writePNG(paths[i], graph); err != nil {
			return nil, err
		}
	}
	return paths, nil
}

func writePNG(path string, graph chart.Chart) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(file, graph, FormatPNG); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

const pageHTML = `<!DOCTYPE html>
<html lang="tr">
<head>
<meta charset="utf-8">
<title>BIST Hisse Takip</title>
<style>
body { font-family: sans-serif; margin: 0; display: flex; }
nav { width: 16rem; padding: 1rem; border-right: 1px solid #ddd; }
main { flex: 1; padding: 1rem; }
nav a { display: block; padding: .4rem; color: inherit; text-decoration: none; border-radius: 4px; }
nav a.selected { background: #e8f0fe; font-weight: bold; }
.up { color: #2ca02c; } .down { color: #d62728; } .flat { color: #666; }
.notice { padding: .6rem; background: #fff4e5; border: 1px solid #f0c36d; margin-bottom: 1rem; }
.notice.blocking { background: #fdecea; border-color: #d62728; }
table { border-collapse: collapse; } td, th { padding: .2rem .6rem; text-align: right; border-bottom: 1px solid #eee; }
</style>
</head>
<body>
{{- if .Page.Blocked}}
<main>
{{- range .Page.Notices}}<div class="notice blocking">{{.Message}}</div>{{end}}
</main>
{{- else}}
<nav>
<h3>Hisseler</h3>
{{- range .Page.Summaries}}
<a href="/?ticker={{.Ticker}}"{{if $.Page.IsSelected .Ticker}} class="selected"{{end}}>
{{.Ticker}} <span>{{.PriceText}}</span>
{{- if .HasChange}} <span class="{{.Trend}}">{{.ChangeText}}</span>{{end}}
</a>
{{- end}}
</nav>
<main>
{{- range .Page.Notices}}<div class="notice">{{.Message}}</div>{{end}}
{{- with .Page.Detail}}
<h2>{{.Ticker}}</h2>
{{- if $.PriceError}}<div class="notice">{{$.PriceError}}</div>{{else}}{{$.PriceSVG}}{{end}}
{{- if $.VolumeError}}<div class="notice">{{$.VolumeError}}</div>{{else}}{{$.VolumeSVG}}{{end}}
<table>
<tr>{{range $.Fields}}<th>{{.}}</th>{{end}}</tr>
{{- range $.Page.Table}}
<tr><td>{{.Date}}</td><td>{{.Open.StringFixed 2}}</td><td>{{.High.StringFixed 2}}</td><td>{{.Low.StringFixed 2}}</td><td>{{.Close.StringFixed 2}}</td><td>{{.Volume}}</td></tr>
{{- end}}
</table>
{{- end}}
<footer><small>{{.Page.GeneratedAt.Format "2006-01-02 15:04:05"}} UTC</small></footer>
</main>
{{- end}}
</body>
</html>
`
