package api

import (
	"errors"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"

	"carimages/internal/run"
)

var uiTemplates = template.Must(template.New("layout").Funcs(template.FuncMap{
	"kib": func(n int64) int64 { return n / 1024 },
}).Parse(`{{define "head"}}
<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8"/>
  <meta name="viewport" content="width=device-width, initial-scale=1"/>
  <title>carimages</title>
  {{if .Refresh}}<meta http-equiv="refresh" content="3"/>{{end}}
  <style>
    body{font-family:system-ui,-apple-system,Segoe UI,Roboto,Ubuntu,Cantarell,Noto Sans,sans-serif;max-width:880px;margin:32px auto;padding:0 16px;color:#0b0b0b;background:#fafafa}
    h1{font-size:22px;margin:0 0 8px}
    a{color:#0b63e5;text-decoration:none}
    .card{background:#fff;border:1px solid #e9e9e9;border-radius:10px;padding:16px;margin:12px 0}
    .btn{display:inline-block;background:#0b63e5;color:#fff;border:none;padding:10px 14px;border-radius:8px;cursor:pointer}
    .muted{color:#666}
    .mono{font-family:ui-monospace,SFMono-Regular,Menlo,Monaco,Consolas,monospace}
    .status{display:inline-block;padding:4px 8px;border-radius:6px;background:#efefef;font-size:12px}
    table{width:100%;border-collapse:collapse}
    td,th{text-align:left;padding:4px 6px;border-bottom:1px solid #f0f0f0}
  </style>
</head>
<body>
  <header>
    <h1><a href="/">carimages</a></h1>
    <div class="muted">Catalog image fetcher</div>
  </header>
  {{if .Error}}
  <div class="card" style="border-color:#f2b8b5;background:#fff6f6">
    <strong style="color:#b3261e">Error:</strong> <span class="muted">{{.Error}}</span>
  </div>
  {{end}}
{{end}}

{{define "foot"}}
  <footer class="muted"><span class="mono">/api/v1</span> · <a href="/metrics">metrics</a></footer>
</body>
</html>
{{end}}

{{define "home"}}
{{template "head" .}}
  <div class="card">
    <h2>Start a run</h2>
    {{if .Busy}}<div class="status">a run is in progress</div>{{end}}
    <form method="post" action="/ui/runs">
      <table>
        <tr><th></th><th>Catalog</th><th>Present</th><th></th></tr>
        {{range .Catalogs}}
        <tr>
          <td><input type="checkbox" name="catalogs" value="{{.Name}}"/></td>
          <td class="mono">{{.Name}}</td>
          <td>{{.Present}} / {{.Images}}</td>
          <td class="muted">{{.Description}}</td>
        </tr>
        {{else}}
        <tr><td colspan="4" class="muted">No catalogs found</td></tr>
        {{end}}
      </table>
      <p><label><input type="checkbox" name="archive" value="1"/> build zip archive</label></p>
      <button class="btn" type="submit">Start</button>
    </form>
  </div>

  <div class="card">
    <h2>Runs</h2>
    {{if .Runs}}
    <table>
      <tr><th>Run</th><th>Status</th><th>Catalogs</th><th>OK</th><th>Failed</th></tr>
      {{range .Runs}}
      <tr>
        <td class="mono"><a href="/ui/runs/{{.ID}}">{{.ID}}</a></td>
        <td><span class="status">{{.Status}}</span></td>
        <td>{{range $i, $c := .Catalogs}}{{if $i}}, {{end}}{{$c}}{{end}}</td>
        <td>{{.Succeeded}}</td>
        <td>{{.Failed}}</td>
      </tr>
      {{end}}
    </table>
    {{else}}
    <div class="muted">No runs yet</div>
    {{end}}
  </div>
{{template "foot" .}}
{{end}}

{{define "run"}}
{{template "head" .}}
  <div class="card">
    <h2>Run <span class="mono">{{.Run.ID}}</span></h2>
    <div>Status: <span class="status">{{.Run.Status}}</span></div>
    <div>Progress: {{len .Run.Outcomes}} / {{.Run.Total}} · succeeded {{.Run.Succeeded}} (skipped {{.Run.Skipped}}) · failed {{.Run.Failed}} · {{kib .Run.Bytes}} KiB</div>
    <div class="muted">Created at: {{.Run.CreatedAt}}</div>
    {{if .Run.Error}}<div class="muted">Error: {{.Run.Error}}</div>{{end}}
    {{if .Run.ArchivePath}}<p><a class="btn" href="/api/v1/runs/{{.Run.ID}}/archive">Download zip</a></p>{{end}}
  </div>
  <div class="card">
    <h3>Images</h3>
    <table>
      {{range .Run.Outcomes}}
      <tr>
        <td class="mono">{{.Target}}</td>
        <td><span class="status">{{.State}}</span></td>
        <td class="muted">{{if .Error}}{{.Error}}{{else if .Bytes}}{{.Bytes}} bytes{{end}}</td>
      </tr>
      {{else}}
      <tr><td class="muted">Nothing processed yet</td></tr>
      {{end}}
    </table>
  </div>
{{template "foot" .}}
{{end}}
`))

// RegisterUIRoutes registers minimal HTML UI without JS
func (a *API) RegisterUIRoutes(router *gin.Engine) {
	router.SetHTMLTemplate(uiTemplates)
	router.GET("/", a.UIHome)
	router.POST("/ui/runs", a.UICreateRun)
	router.GET("/ui/runs/:id", a.UIRun)
}

// UIHome renders catalogs and runs
func (a *API) UIHome(c *gin.Context) {
	a.renderHome(c, http.StatusOK, "")
}

func (a *API) renderHome(c *gin.Context, status int, errMsg string) {
	infos, err := a.runManager.Catalogs()
	if err != nil && errMsg == "" {
		errMsg = err.Error()
	}
	c.HTML(status, "home", gin.H{
		"Catalogs": infos,
		"Runs":     a.runManager.ListRuns(),
		"Busy":     a.runManager.IsBusy(),
		"Error":    errMsg,
	})
}

// UICreateRun starts a run from the form and redirects to its page
func (a *API) UICreateRun(c *gin.Context) {
	created, err := a.runManager.CreateRun(c.PostFormArray("catalogs"), c.PostForm("archive") != "")
	if err != nil {
		status := statusForError(err)
		if errors.Is(err, run.ErrBusy) {
			a.renderHome(c, status, "server busy: try again later")
			return
		}
		a.renderHome(c, status, err.Error())
		return
	}
	c.Redirect(http.StatusFound, "/ui/runs/"+created.ID)
}

// UIRun renders a run page; it refreshes itself until the run finishes
func (a *API) UIRun(c *gin.Context) {
	id := c.Param("id")
	if found, ok := a.runManager.GetRun(id); ok {
		c.HTML(http.StatusOK, "run", gin.H{"Run": found, "Refresh": !found.Status.Finished()})
		return
	}
	a.renderHome(c, http.StatusNotFound, "run not found")
}
