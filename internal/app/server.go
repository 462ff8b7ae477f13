package app

import (
	"net/http"

	"github.com/gorilla/mux"

	httpclient "traffic-duplicator/internal/common/http"
	"traffic-duplicator/internal/handlers"
	"traffic-duplicator/internal/server"
)

// RunServer builds the HTTP host around the dispatcher
func (app *App) RunServer() (*server.Server, http.Handler) {
	var origin httpclient.Performer
	if app.Origin != nil {
		origin = app.Origin
	}
	h := handlers.New(app.Dispatcher, origin, app.Config.Origin)

	router := mux.NewRouter()
	SetupRoutes(router, h)

	return server.New(router, app.Config.ListenAddr()), router
}
