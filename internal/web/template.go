package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/irrigation-controller/internal/status"
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
	"stamp": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return t.UTC().Format("2006-01-02T15:04:05Z")
	},
	"stepOrUnknown": func(s string) string {
		if s == "" {
			return "UNKNOWN"
		}
		return s
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="5">
<title>Irrigation Controller</title>
<style>
body { font-family: monospace; max-width: 640px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.wet { color: green; }
.dry { color: #b35900; font-weight: bold; }
.idle { color: #888; }
.busy { color: #0055aa; font-weight: bold; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Irrigation Controller</h1>

<h2>Scheduler</h2>
<table>
<tr><th>Step</th><td id="step" class="{{if eq (stepOrUnknown (printf "%s" .Scheduler.Step)) "IDLE"}}idle{{else}}busy{{end}}">{{stepOrUnknown (printf "%s" .Scheduler.Step)}}</td></tr>
<tr><th>Active</th><td>{{if .Scheduler.Active}}{{.Scheduler.ActiveChannel}} (run {{.Scheduler.RunID}}){{else}}none{{end}}</td></tr>
<tr><th>Queue</th><td>{{range $i, $id := .Scheduler.Queue}}{{if $i}}, {{end}}{{$id}}{{else}}empty{{end}}</td></tr>
</table>

<h2>Channels</h2>
<table>
{{range .Channels}}<tr><th>{{.ID}}</th><td class="{{if .InRange}}wet{{else}}dry{{end}}">{{if .Read}}{{.Value}}{{else}}-{{end}} {{if .InRange}}ok{{else}}dry{{end}}</td><td>last watered {{stamp .LastCorrection}}</td></tr>
{{end}}</table>

<h2>Counts</h2>
<table>
<tr><th>Readings</th><td>{{.Scheduler.Counts.Readings}}</td></tr>
<tr><th>Corrections</th><td>{{.Scheduler.Counts.Corrections}}</td></tr>
<tr><th>Skipped</th><td>{{.Scheduler.Counts.Skipped}}</td></tr>
<tr><th>Duplicates</th><td>{{.Scheduler.Counts.Duplicates}}</td></tr>
<tr><th>Queue errors</th><td>{{.Scheduler.Counts.QueueErrors}}</td></tr>
<tr><th>Trace dropped</th><td>{{.Trace.Dropped}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Trace backend</th><td>{{.Config.TraceBackend}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{stamp .StartTime}}</td></tr>
<tr><th>Sensor period</th><td>{{.Config.SensorPeriod}}</td></tr>
<tr><th>Block time</th><td>{{.Config.BlockTime}}</td></tr>
<tr><th>Flow time</th><td>{{.Config.FlowTime}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.Heartbeat 0}}disabled{{else}}{{.Config.Heartbeat}}{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/metrics">metrics</a></p>
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
