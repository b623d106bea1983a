package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/grdaneault/hydration-helper/internal/status"
)

func formatDuration(d time.Duration) string {
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
}

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": formatDuration,
	"clock": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return t.Local().Format("15:04:05")
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="10">
<title>Hydration Helper</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.ok { color: green; font-weight: bold; }
.warn { color: orange; font-weight: bold; }
.alert { color: red; font-weight: bold; }
.idle { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Hydration Helper</h1>

<h2>Hydration</h2>
<table>
<tr><th>On the scale</th><td>{{.Hydration.CurrentWeight}} g</td></tr>
<tr><th>Bottle</th><td>{{.Hydration.LastWaterWeight}} g</td></tr>
<tr><th>Drunk since boot</th><td class="ok">{{.Hydration.TotalConsumed}} g</td></tr>
<tr><th>Since last drink</th><td>{{uptime .SinceDrink}}</td></tr>
<tr><th>Reminder level</th><td class="{{if .Hydration.Idle}}idle{{else if ge .Hydration.ReminderLevel 5}}alert{{else if gt .Hydration.ReminderLevel 0}}warn{{else}}ok{{end}}">{{if .Hydration.Idle}}idle{{else}}{{.Hydration.ReminderLevel}}{{end}}</td></tr>
<tr><th>Last reminder</th><td>{{clock .Hydration.LastReminder}}</td></tr>
<tr><th>Last tare</th><td>{{clock .Hydration.LastTare}}{{if .Hydration.PendingTare}} (pending){{end}}</td></tr>
<tr><th>Ready</th><td>{{if .Ready}}yes{{else}}no{{end}}</td></tr>
</table>

<h2>Display</h2>
<table>
<tr><th>Animation</th><td>{{.Animation}}</td></tr>
<tr><th>Brightness</th><td>{{.Brightness}}/255</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Delivered</th><td>{{.Forward.Delivered}}</td></tr>
<tr><th>Queued</th><td>{{.Forward.Pending}}</td></tr>
<tr><th>Dropped</th><td>{{.Forward.Dropped}}</td></tr>
<tr><th>Held offline</th><td>{{.Forward.Buffered}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Session</th><td>{{.Session}}</td></tr>
<tr><th>First reminder</th><td>{{uptime .Config.Hydration.FirstReminderDelay}}</td></tr>
<tr><th>Reminder interval</th><td>{{uptime .Config.Hydration.ReminderInterval}}</td></tr>
<tr><th>Idle after</th><td>{{uptime .Config.Hydration.IdleAfter}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.Heartbeat 0}}disabled{{else}}{{uptime .Config.Heartbeat}}{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/history.json">History</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot has Uptime() and SinceDrink() methods but the template needs
	// Duration fields.
	data := struct {
		status.Snapshot
		Uptime     time.Duration
		SinceDrink time.Duration
	}{
		Snapshot:   snap,
		Uptime:     snap.Uptime(),
		SinceDrink: snap.SinceDrink(),
	}
	return indexTmpl.Execute(w, data)
}
