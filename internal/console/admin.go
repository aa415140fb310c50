package console

import (
	"errors"
	"net/http"

	"tailscale.com/tsweb"

	"github.com/banshee-data/stallsensor/internal/httputil"
)

// AttachAdminRoutes mounts the console: GET lists functions, POST
// fn=<name>&arg=<input> calls one.
func (c *Console) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.HandleFunc("console", "Console functions (POST fn=Initial_Timer&arg=e)", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			httputil.WriteJSONOK(w, map[string][]string{"functions": c.Names()})
		case http.MethodPost:
			if err := r.ParseForm(); err != nil {
				httputil.BadRequest(w, err.Error())
				return
			}
			name := r.FormValue("fn")
			result, err := c.Call(name, r.FormValue("arg"))
			if errors.Is(err, ErrUnknownFunction) {
				httputil.NotFound(w, err.Error())
				return
			}
			httputil.WriteJSONOK(w, map[string]interface{}{"fn": name, "result": result})
		default:
			httputil.MethodNotAllowed(w)
		}
	})
}
