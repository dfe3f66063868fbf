package handlers

import (
	"html/template"
	"net/http"

	"github.com/wolfman30/turnos-ai/internal/auth"
)

// pageView feeds the single server-rendered layout.
type pageView struct {
	Clinic   string
	Title    string
	Heading  string
	Message  string
	Details  []detail
	Form     *cancelForm
	LoggedIn bool
	Chat     bool
}

type detail struct {
	Label string
	Value string
}

type cancelForm struct {
	Action string
	Reason string
	Error  string
}

var pageTemplate = template.Must(template.New("page").Parse(`<!doctype html>
<html lang="es">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}} - {{.Clinic}}</title>
<style>
body{font-family:system-ui,sans-serif;max-width:640px;margin:2rem auto;padding:0 1rem;color:#222}
dl{display:grid;grid-template-columns:max-content 1fr;gap:.25rem 1rem}
dt{font-weight:600}
.error{color:#b00020}
textarea{width:100%;min-height:5rem}
#log p{margin:.25rem 0}
</style>
</head>
<body>
<h1>{{.Heading}}</h1>
{{if .Message}}<p>{{.Message}}</p>{{end}}
{{if .Details}}<dl>{{range .Details}}<dt>{{.Label}}</dt><dd>{{.Value}}</dd>{{end}}</dl>{{end}}
{{with .Form}}
<form method="post" action="{{.Action}}">
<label for="reason">Motivo de la cancelación</label>
<textarea id="reason" name="reason" required>{{.Reason}}</textarea>
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
<button type="submit">Cancelar turno</button>
</form>
{{end}}
{{if .Chat}}
{{if .LoggedIn}}
<div id="log"></div>
<form id="chat"><textarea id="msg" placeholder="Escribí tu mensaje"></textarea><button type="submit">Enviar</button></form>
<form method="post" action="/auth/logout"><button type="submit">Salir</button></form>
<script>
const log=document.getElementById("log");
function add(who,text){const p=document.createElement("p");p.textContent=who+": "+text;log.appendChild(p);}
fetch("/api/chat/historial").then(r=>r.ok?r.json():{turns:[]}).then(d=>d.turns.forEach(t=>add(t.role==="user"?"Vos":"Recepción",t.message)));
document.getElementById("chat").addEventListener("submit",async e=>{e.preventDefault();const m=document.getElementById("msg");const text=m.value.trim();if(!text)return;m.value="";add("Vos",text);
const r=await fetch("/api/chat/mensaje",{method:"POST",headers:{"Content-Type":"application/json"},body:JSON.stringify({message:text})});
const d=await r.json();add("Recepción",d.text||d.error);});
</script>
{{else}}
<p><a href="/auth/login">Ingresá con Google</a> para sacar o cancelar turnos.</p>
{{end}}
{{end}}
</body>
</html>
`))

func renderPage(w http.ResponseWriter, status int, view pageView) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = pageTemplate.Execute(w, view)
}

// Home serves the minimal chat page at GET /.
func Home(clinic string, tokens *auth.Tokens) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view := pageView{Clinic: clinic, Title: "Turnos", Heading: "Turnos online", Chat: true}
		if c, err := r.Cookie(auth.SessionCookie); err == nil {
			if u, err := tokens.Verify(c.Value); err == nil {
				view.LoggedIn = true
				view.Message = "Hola " + firstNonEmpty(u.Name, u.Email) + ", ¿en qué te puedo ayudar?"
			}
		}
		renderPage(w, http.StatusOK, view)
	}
}
