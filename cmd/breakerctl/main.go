// Command breakerctl inspects a running breakerdemo instance over HTTP,
// following the same flag-driven, single-shot command style as the
// teacher's autonomyctl (cmd/autonomyctl/main.go).
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

var (
	addr    = flag.String("addr", "http://127.0.0.1:9091", "breakerdemo HTTP base address")
	status  = flag.Bool("status", false, "Show breaker admission state and live config")
	perf    = flag.Bool("performance", false, "Show C11 accuracy/effectiveness report")
	decide  = flag.Bool("decisions", false, "Show the recent decision audit trail")
	pattern = flag.Bool("patterns", false, "Show detected flapping/drift/anomaly-cluster patterns")
	timeout = flag.Duration("timeout", 5*time.Second, "Request timeout")
	version = flag.Bool("version", false, "Show version information")
)

const (
	appName    = "breakerctl"
	appVersion = "1.0.0"
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("%s version %s\n", appName, appVersion)
		os.Exit(0)
	}

	if !*status && !*perf && !*decide && !*pattern {
		*status = true
	}

	client := &http.Client{Timeout: *timeout}

	if *status {
		fetchAndPrint(client, "/status")
	}
	if *perf {
		fetchAndPrint(client, "/performance")
	}
	if *decide {
		fetchAndPrint(client, "/decisions")
	}
	if *pattern {
		fetchAndPrint(client, "/patterns")
	}
}

func fetchAndPrint(client *http.Client, path string) {
	resp, err := client.Get(*addr + path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: request failed: %v\n", path, err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: read failed: %v\n", path, err)
		os.Exit(1)
	}

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "%s: unexpected status %d: %s\n", path, resp.StatusCode, string(body))
		os.Exit(1)
	}

	var pretty interface{}
	if err := json.Unmarshal(body, &pretty); err != nil {
		fmt.Println(string(body))
		return
	}
	out, _ := json.MarshalIndent(pretty, "", "  ")
	fmt.Printf("== %s ==\n%s\n", path, out)
}
