package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/ph-sensor/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"hz": func(v float64) string {
		return fmt.Sprintf("%.1f Hz", v)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>pH Sensor</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.ph { font-size: 1.6em; font-weight: bold; }
.none { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>pH Sensor</h1>

<h2>Last Reading</h2>
{{if .LastReading}}
<table>
<tr><th>pH</th><td class="ph">{{.LastReading.PH}}</td></tr>
<tr><th>Scale</th><td>{{.LastReading.Scale}}</td></tr>
<tr><th>Taken</th><td>{{.LastReading.Timestamp.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
{{range .LastReading.Sample.Channels}}<tr><th>{{.Channel}}</th><td>{{hz .Hertz}} ({{.Pulses}} pulses)</td></tr>
{{end}}</table>
{{else}}
<p class="none">no reading yet — press a button</p>
{{end}}

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
</table>

<h2>Cycle Counts</h2>
<table>
<tr><th>Readings</th><td>{{.Counts.Readings}}</td></tr>
<tr><th>Sensor stalls</th><td>{{.Counts.Stalls}}</td></tr>
<tr><th>No matches</th><td>{{.Counts.NoMatches}}</td></tr>
<tr><th>Dropped requests</th><td>{{.Counts.Dropped}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Noise filter</th><td>{{.Config.NoiseFilterMs}}ms</td></tr>
<tr><th>Refractory</th><td>{{.Config.RefractoryMs}}ms</td></tr>
<tr><th>Settle</th><td>{{.Config.SettleMs}}ms</td></tr>
<tr><th>Narrow dataset</th><td>{{.Config.DatasetNarrow}}</td></tr>
<tr><th>Wide dataset</th><td>{{.Config.DatasetWide}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
