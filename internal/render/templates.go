package render

const layoutTemplate = `{{define "start"}}<!DOCTYPE html>
<html lang="{{.Lang}}" data-theme="{{.Theme}}">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>
:root { --bg: #ffffff; --fg: #1d1d1f; --muted: #6e6e73; --row: #f5f5f7; --accent: #0a5ad4; }
[data-theme="dark"] { --bg: #121212; --fg: #e8e8ea; --muted: #a1a1a6; --row: #1e1e20; --accent: #6ea8ff; }
body { background: var(--bg); color: var(--fg); font-family: system-ui, sans-serif; margin: 2rem; }
header { display: flex; align-items: center; gap: 1rem; }
header h1 { flex: 1; }
form.prefs { display: inline; }
table { border-collapse: collapse; width: 100%; }
th, td { padding: 0.4rem 0.6rem; text-align: left; }
th a, td a { color: var(--accent); }
th.sorted { text-decoration: underline; }
tbody tr:nth-child(even) { background: var(--row); }
tr.message td { color: var(--muted); font-style: italic; text-align: center; }
#record-count { color: var(--muted); }
</style>
</head>
<body>
{{end}}{{define "end"}}</body>
</html>
{{end}}`

const pageTemplate = `{{template "start" .}}<header>
<h1>{{.Title}}</h1>
{{- if not .Static}}
<form class="prefs" method="post" action="/preferences/theme"><input type="hidden" name="return" value="{{.Return}}"><button type="submit" id="theme-toggle">{{.ThemeLabel}}</button></form>
<form class="prefs" method="post" action="/preferences/language"><input type="hidden" name="return" value="{{.Return}}"><button type="submit" id="language-toggle">{{.LangLabel}}</button></form>
{{- end}}
</header>
{{- if not .Static}}
<form class="search" method="get" action="/">
<input type="search" id="search" name="q" value="{{.Filter}}" placeholder="{{.Search}}">
{{- if .SortField}}
<input type="hidden" name="sort" value="{{.SortField}}"><input type="hidden" name="order" value="{{.Order}}">
{{- end}}
<button type="submit">{{.SearchBtn}}</button>
</form>
{{- end}}
<p id="record-count">{{.CountLabel}}</p>
<table id="races" data-status="{{.Status}}">
<thead>
<tr>
{{- range .Headers}}
<th data-sort="{{.Field}}"{{if .Sorted}} class="sorted"{{end}} title="{{.Title}}">{{if .Href}}<a href="{{.Href}}">{{.Label}}</a>{{else}}{{.Label}}{{end}}{{if .Arrow}} <span class="arrow">{{.Arrow}}</span>{{end}}</th>
{{- end}}
</tr>
</thead>
<tbody>
{{- if .Message}}
<tr class="message"><td colspan="{{.Columns}}">{{.Message}}</td></tr>
{{- end}}
{{- range .Rows}}
<tr data-index="{{.Index}}">{{range .Cells}}<td>{{if .Link}}<a href="{{.Link}}">{{.Text}}</a>{{else}}{{.Text}}{{end}}</td>{{end}}</tr>
{{- end}}
</tbody>
</table>
{{template "end"}}`

const detailTemplate = `{{template "start" .}}<header>
<h1>{{.Heading}}</h1>
</header>
<p><a id="back" href="{{.BackURL}}">{{.Back}}</a></p>
<table id="record">
<thead><tr><th>{{.Field}}</th><th>{{.Value}}</th></tr></thead>
<tbody>
{{- range .Fields}}
<tr><th scope="row">{{.Label}}</th><td>{{.Value}}</td></tr>
{{- end}}
</tbody>
</table>
{{template "end"}}`
