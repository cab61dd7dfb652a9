package httpx

import (
	"html/template"
	"net/http"
)

// NoAccessPath is where browsers land after an authorization denial.
const NoAccessPath = "/no-access"

var noAccessPage = template.Must(template.New("no-access").Parse(`<!doctype html>
<html lang="en">
<head><meta charset="utf-8"><title>Access restricted</title></head>
<body>
<main>
<h1>Access restricted</h1>
<p>Your role does not include access to this area.{{if .}} Requested: <code>{{.}}</code>{{end}}</p>
<p><a href="/">Back to start</a></p>
</main>
</body>
</html>
`))

// DenyAccess answers an authorization denial: JSON clients receive a 403
// problem, browsers are redirected to the no-access page.
func DenyAccess(w http.ResponseWriter, r *http.Request) {
	if WantsJSON(r) {
		TypedProblem(w, http.StatusForbidden, TypeAccessRestricted, "Access Restricted", "")
		return
	}
	http.Redirect(w, r, NoAccessPath+"?from="+template.URLQueryEscaper(r.URL.Path), http.StatusSeeOther)
}

// NoAccessPage renders the dedicated access restricted presentation.
func NoAccessPage(w http.ResponseWriter, r *http.Request) {
	if WantsJSON(r) {
		TypedProblem(w, http.StatusForbidden, TypeAccessRestricted, "Access Restricted", "")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusForbidden)
	_ = noAccessPage.Execute(w, r.URL.Query().Get("from"))
}
