// Command radiusd is a minimal demo RADIUS server wiring together the
// radiusconfig, radiuslog, radiusmetrics and radserver packages behind
// a trivial Access-Accept-everything handler.
package main

import (
	"context"
	"flag"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/npax/radius/radcodec"
	"github.com/npax/radius/radiusconfig"
	"github.com/npax/radius/radiuslog"
	"github.com/npax/radius/radiusmetrics"
	"github.com/npax/radius/radserver"
)

func main() {
	configPtr := flag.String("config", "", "Path to a JSON configuration file")
	metricsAddrPtr := flag.String("metrics", ":9090", "Bind address for the /metrics and /blacklist endpoints")
	flag.Parse()

	radiuslog.Init(nil)
	log := radiuslog.Get()

	cfg, err := radiusconfig.LoadConfig(*configPtr)
	if err != nil {
		log.Fatalw("failed to load configuration", "error", err)
	}

	instrumentation := radiusmetrics.NewInstrumentationServer(*metricsAddrPtr)
	defer instrumentation.Close()

	bindAddr := cfg.Server.BindAddress + ":" + strconv.Itoa(cfg.Server.AuthPort)
	srv, err := radserver.NewServer(bindAddr, secretSourceFor(cfg), echoHandler)
	if err != nil {
		log.Fatalw("failed to start radius server", "error", err, "address", bindAddr)
	}
	defer srv.Close()

	log.Infow("radiusd started", "authAddress", bindAddr, "metricsAddress", *metricsAddrPtr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Infow("radiusd shutting down")
}

// secretSourceFor adapts a loaded Config to radserver.SecretSource,
// resolving the shared secret for a client address exact-match-first
// then by CIDR containment, per specification §4.6.
func secretSourceFor(cfg *radiusconfig.Config) radserver.SecretSource {
	return func(remoteAddr string) (string, bool) {
		endpoint, ok := cfg.FindEndpoint(remoteAddr)
		if !ok {
			return "", false
		}
		return endpoint.Secret, true
	}
}

// echoHandler accepts every request, echoing back its attributes. It
// exists only to exercise the server front-end in this demo; real
// deployments supply their own Handler.
func echoHandler(request *radcodec.Packet) (*radcodec.Packet, error) {
	code := radcodec.AccessAccept
	if request.Code == radcodec.AccountingRequest {
		code = radcodec.AccountingResponse
	}
	response := radcodec.NewResponse(request, code)
	response.Attributes = append(response.Attributes, request.Attributes...)
	return response, nil
}
