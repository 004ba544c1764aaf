// Command healthcheck probes the server's health endpoint and exits 0
// when it answers. Container runtimes use it as a HEALTHCHECK binary so
// the image does not need curl.
package main

import (
	"fmt"
	"net/http"
	"os"
	"time"
)

func main() {
	port := os.Getenv("QGENIE_SERVER_PORT")
	if port == "" {
		port = "35816"
	}

	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%s/health", port))
	if err != nil {
		fmt.Fprintf(os.Stderr, "health probe failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "health probe returned %d\n", resp.StatusCode)
		os.Exit(1)
	}
	os.Exit(0)
}
