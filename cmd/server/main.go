// Command server starts the Thaiyyal flow engine HTTP API server.
//
// Usage:
//
//	server [flags]
//
// Flags:
//
//	-addr string
//	    Server address (default ":8080")
//	-read-timeout duration
//	    HTTP read timeout (default 30s)
//	-write-timeout duration
//	    HTTP write timeout (default 30s)
//	-max-node-execution-time duration
//	    Maximum time a single node may run (default 30s)
//	-max-node-executions int
//	    Maximum node executions per run, 0 = unlimited (default 0)
//	-max-loop-iterations int
//	    Maximum for_each iterations per call (default 10000)
//	-allow-http
//	    Allow the "http" module to request plain http:// URLs (https only otherwise)
//
// Example:
//
//	# Start server on default port
//	server
//
//	# Start server on custom port with stricter limits
//	server -addr :9090 -max-node-executions 1000 -allow-http
//
// The server exposes the following endpoints:
//
//	GET    /api/flow             - List stored flows
//	POST   /api/flow             - Save a new flow
//	GET    /api/flow/{id}        - Load a flow by ID
//	PUT    /api/flow/{id}        - Update a flow by ID
//	DELETE /api/flow/{id}        - Delete a flow by ID
//	POST   /api/run              - Start a run in the background
//	GET    /ws/run               - Interactive run with stop/replace control
//	GET    /health                - Health check
//	GET    /health/live           - Liveness probe
//	GET    /health/ready          - Readiness probe
//	GET    /metrics               - Prometheus metrics
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yesoreyeram/thaiyyal/backend/pkg/config"
	"github.com/yesoreyeram/thaiyyal/backend/pkg/server"
)

func main() {
	addr := flag.String("addr", ":8080", "Server address")
	readTimeout := flag.Duration("read-timeout", 30*time.Second, "HTTP read timeout")
	writeTimeout := flag.Duration("write-timeout", 30*time.Second, "HTTP write timeout")
	maxNodeExecutionTime := flag.Duration("max-node-execution-time", 30*time.Second, "Maximum time a single node may run")
	maxNodeExecutions := flag.Int("max-node-executions", 0, "Maximum node executions per run, 0 = unlimited")
	maxLoopIterations := flag.Int("max-loop-iterations", 10000, "Maximum for_each iterations per call")
	allowHTTP := flag.Bool("allow-http", false, "Allow the http module to request plain http:// URLs (https only otherwise)")

	flag.Parse()

	serverConfig := server.Config{
		Address:            *addr,
		ReadTimeout:        *readTimeout,
		WriteTimeout:       *writeTimeout,
		ShutdownTimeout:    10 * time.Second,
		MaxRequestBodySize: 10 * 1024 * 1024, // 10MB
		EnableCORS:         true,
	}

	engineConfig := config.Default()
	engineConfig.AllowHTTP = *allowHTTP
	engineConfig.MaxNodeExecutionTime = *maxNodeExecutionTime
	engineConfig.MaxNodeExecutions = *maxNodeExecutions
	engineConfig.MaxIterations = *maxLoopIterations

	srv, err := server.New(serverConfig, engineConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create server: %v\n", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		fmt.Printf("Starting Thaiyyal Flow Engine Server on %s\n", *addr)
		fmt.Printf("Health check:     http://localhost%s/health\n", *addr)
		fmt.Printf("Liveness probe:   http://localhost%s/health/live\n", *addr)
		fmt.Printf("Readiness probe:  http://localhost%s/health/ready\n", *addr)
		fmt.Printf("Metrics:          http://localhost%s/metrics\n", *addr)
		fmt.Printf("Flow store:       http://localhost%s/api/flow\n", *addr)
		fmt.Printf("Websocket run:    ws://localhost%s/ws/run\n", *addr)
		fmt.Println("\nPress Ctrl+C to shutdown")

		if err := srv.Start(); err != nil {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	case sig := <-sigChan:
		fmt.Printf("\nReceived signal: %v\n", sig)
		fmt.Println("Shutting down gracefully...")

		ctx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Shutdown error: %v\n", err)
			os.Exit(1)
		}

		fmt.Println("Server stopped")
	}
}
