package duplexrpc

import (
	"html/template"
	"net/http"
	"sort"
)

const debugText = `<html>
	<body>
	<title>DuplexRPC Controller</title>
	<hr>
	Controller {{.ControllerID}}
	<hr>
		<table>
		<th align=center>Function</th><th align=center>Kind</th><th align=center>Calls</th>
		{{range .Functions}}
			<tr>
			<td align=left font=fixed>{{.ID}}</td>
			<td align=center>{{.Kind}}</td>
			<td align=center>{{.Calls}}</td>
			</tr>
		{{end}}
		</table>
	</body>
	</html>`

var debugTemplate = template.Must(template.New("RPC debug").Parse(debugText))

// DebugHTTP 把控制器当前的注册表渲染成网页
type DebugHTTP struct {
	Controller *Controller
}

type debugFunction struct {
	ID    string
	Kind  string
	Calls uint64
}

type debugPage struct {
	ControllerID string
	Functions    []debugFunction
}

func (d DebugHTTP) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	c := d.Controller
	page := debugPage{ControllerID: c.id}
	c.lock.Lock()
	for id, f := range c.registry {
		kind := "function"
		if f.token != nil {
			kind = "cancel adapter"
		}
		page.Functions = append(page.Functions, debugFunction{
			ID:    id,
			Kind:  kind,
			Calls: f.NumCalls(),
		})
	}
	c.lock.Unlock()
	sort.Slice(page.Functions, func(i, j int) bool {
		return page.Functions[i].ID < page.Functions[j].ID
	})
	err := debugTemplate.Execute(w, page)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}
