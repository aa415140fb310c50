package radar

import (
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/stallsensor/internal/httputil"
	"github.com/banshee-data/stallsensor/internal/monitoring"
	"github.com/banshee-data/stallsensor/internal/serialport"
	"github.com/banshee-data/stallsensor/internal/timeutil"
)

// restartDelay separates the Stop and Start commands of Start.
const restartDelay = 100 * time.Millisecond

// Controller writes command frames to the radar.
type Controller struct {
	mu    sync.Mutex
	port  io.Writer
	clock timeutil.Clock
}

// NewController returns a controller writing to port.
func NewController(port io.Writer, clock timeutil.Clock) *Controller {
	return &Controller{port: port, clock: clock}
}

// Send writes the command frame for fn.
func (c *Controller) Send(fn FunctionCode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := serialport.WriteFrame(c.port, CommandFrame(fn)); err != nil {
		return fmt.Errorf("send radar command %#02x: %w", byte(fn), err)
	}
	return nil
}

// Start stops the application, waits, then starts it, which brings the radar
// into a known streaming state whatever it was doing before.
func (c *Controller) Start() error {
	if err := c.Send(ApplicationStop); err != nil {
		return err
	}
	c.clock.Sleep(restartDelay)
	if err := c.Send(ApplicationStart); err != nil {
		return err
	}
	monitoring.Logf("radar application started")
	return nil
}

// Stop halts the radar application.
func (c *Controller) Stop() error {
	return c.Send(ApplicationStop)
}

// AttachAdminRoutes registers radar start/stop controls on the debug mux.
func (c *Controller) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.HandleFunc("radar-command", "Start or stop the radar application (POST cmd=start|stop)", func(w http.ResponseWriter, r *http.Request) {
		if !httputil.Allow(w, r, http.MethodPost) {
			return
		}
		var err error
		switch cmd := r.FormValue("cmd"); cmd {
		case "start":
			err = c.Start()
		case "stop":
			err = c.Stop()
		default:
			httputil.BadRequest(w, fmt.Sprintf("unknown command %q", cmd))
			return
		}
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, map[string]string{"status": "ok"})
	})
}
