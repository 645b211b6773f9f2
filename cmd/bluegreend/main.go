/*
This command runs the blue/green traffic router as a sidecar daemon in
front of a local application origin.

For the list of command line flags, run:

	bluegreend -help

For details about the routing behavior, see the documentation of the
root bluegreen package.
*/
package main

import (
	log "github.com/sirupsen/logrus"

	bluegreen "github.com/vercel-solutions/blue-green-deployments-vercel-3"
	"github.com/vercel-solutions/blue-green-deployments-vercel-3/config"
)

func main() {
	cfg := config.NewConfig()
	if err := cfg.Parse(); err != nil {
		log.Fatalf("error processing config: %v", err)
	}

	log.Fatal(bluegreen.Run(cfg.ToOptions()))
}
