// Command netcheck runs one diagnostic job locally, without a coordinator.
//
//	netcheck <ping|dns|tcp|udp|http|check> [flags] <host|url>
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"ozzus/netcheck-agent/internal/checks"
	"ozzus/netcheck-agent/internal/domain"
	"ozzus/netcheck-agent/internal/jobs"
	"ozzus/netcheck-agent/internal/lib/logger"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/pflag"
)

const (
	exitOK     = 0
	exitFailed = 1
	exitUsage  = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	jsonOut    bool
	verbose    bool
	unpriv     bool
	timeout    time.Duration
	count      int
	recordType string
	port       int
	data       string
	expect     bool
	method     string
	status     int

	skipPing  bool
	skipDNS   bool
	dnsHost   string
	tcpPorts  []int
	udpPorts  []int
	httpURLs  []string
	httpPorts []int
	httpPath  string
	https     bool
	http      bool
}

func newFlagSet(o *options, stderr io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet("netcheck", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.SortFlags = false

	fs.BoolVar(&o.jsonOut, "json", false, "print the job result as JSON")
	fs.BoolVarP(&o.verbose, "verbose", "v", false, "log probe activity to stderr")
	fs.BoolVar(&o.unpriv, "unprivileged", false, "use unprivileged UDP ping instead of raw ICMP")
	fs.DurationVarP(&o.timeout, "timeout", "t", 0, "job timeout")

	fs.IntVarP(&o.count, "count", "c", 0, "ping: echo requests to send")
	fs.StringVar(&o.recordType, "type", "", "dns: record type (A, AAAA, CNAME, MX, NS, TXT)")
	fs.IntVarP(&o.port, "port", "p", 0, "tcp/udp: port")
	fs.StringVar(&o.data, "data", "", "udp: datagram payload")
	fs.BoolVar(&o.expect, "expect-response", false, "udp: require a reply")
	fs.StringVarP(&o.method, "method", "X", "", "http: request method")
	fs.IntVar(&o.status, "expect-status", 0, "http: required status code")

	fs.BoolVar(&o.skipPing, "skip-ping", false, "check: skip ICMP")
	fs.BoolVar(&o.skipDNS, "skip-dns", false, "check: skip DNS")
	fs.StringVar(&o.dnsHost, "dns-host", "", "check: name to resolve instead of the host")
	fs.IntSliceVar(&o.tcpPorts, "tcp", nil, "check: TCP ports")
	fs.IntSliceVar(&o.udpPorts, "udp", nil, "check: UDP ports")
	fs.StringSliceVar(&o.httpURLs, "url", nil, "check: HTTP URLs")
	fs.IntSliceVar(&o.httpPorts, "http-ports", nil, "check: HTTP ports on the host")
	fs.StringVar(&o.httpPath, "http-path", "", "check: HTTP path on the host")
	fs.BoolVar(&o.https, "https", false, "check: use https for host URLs")
	fs.BoolVar(&o.http, "http", false, "check: probe http on the host")

	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: netcheck <ping|dns|tcp|udp|http|check> [flags] <host|url>")
		fs.PrintDefaults()
	}
	return fs
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var o options
	fs := newFlagSet(&o, stderr)

	if len(args) == 0 {
		fs.Usage()
		return exitUsage
	}

	kind := domain.JobType(strings.ToLower(args[0]))
	if !kind.Valid() {
		fmt.Fprintf(stderr, "unknown job type %q\n", args[0])
		fs.Usage()
		return exitUsage
	}

	if err := fs.Parse(args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	job := domain.Job{
		ID:         "cli-" + uuid.NewString()[:8],
		Type:       kind,
		Payload:    buildPayload(kind, fs, o),
		ReceivedAt: time.Now(),
	}

	log := logger.Discard()
	if o.verbose {
		log, _ = logger.Setup(logger.EnvLocal, logger.FileConfig{})
	}

	defaults := checks.DefaultSettings()
	defaults.PingPrivileged = !o.unpriv

	executor := jobs.NewExecutor(log, checks.NewChecker(log, defaults), defaults)

	result, err := executor.Execute(ctx, job)
	if err != nil {
		result = domain.CancelledJobResult(job.ID)
	}

	if o.jsonOut {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			fmt.Fprintln(stderr, err)
			return exitFailed
		}
	} else {
		printResult(stdout, job, result)
	}

	if !result.Success {
		return exitFailed
	}
	return exitOK
}

// buildPayload maps the flags that were set onto job payload fields.
func buildPayload(kind domain.JobType, fs *pflag.FlagSet, o options) map[string]any {
	p := map[string]any{}

	if target := fs.Arg(0); target != "" {
		if kind == domain.JobTypeHTTP {
			p["url"] = target
		} else {
			p["host"] = target
		}
	}
	if fs.Changed("timeout") {
		p["timeoutMs"] = o.timeout.Milliseconds()
	}

	set := func(flag, key string, v any) {
		if fs.Changed(flag) {
			p[key] = v
		}
	}

	switch kind {
	case domain.JobTypePing:
		set("count", "count", o.count)
	case domain.JobTypeDNS:
		set("type", "recordType", o.recordType)
	case domain.JobTypeTCP:
		set("port", "port", o.port)
	case domain.JobTypeUDP:
		set("port", "port", o.port)
		set("data", "payload", o.data)
		set("expect-response", "expectResponse", o.expect)
	case domain.JobTypeHTTP:
		set("method", "method", o.method)
		set("expect-status", "expectStatus", o.status)
	case domain.JobTypeCheck:
		set("count", "count", o.count)
		set("skip-ping", "skipPing", o.skipPing)
		set("skip-dns", "skipDns", o.skipDNS)
		set("dns-host", "dnsHost", o.dnsHost)
		set("tcp", "tcpPorts", o.tcpPorts)
		set("udp", "udpPorts", o.udpPorts)
		set("data", "udpPayload", o.data)
		set("expect-response", "udpExpectResponse", o.expect)
		set("url", "httpUrls", o.httpURLs)
		set("http-ports", "httpPorts", o.httpPorts)
		set("http-path", "httpPath", o.httpPath)
		set("https", "https", o.https)
		set("http", "http", o.http)
		set("method", "httpMethod", o.method)
		set("expect-status", "expectStatus", o.status)
	}

	return p
}

var (
	okColor   = color.New(color.FgGreen, color.Bold)
	failColor = color.New(color.FgRed, color.Bold)
	dimColor  = color.New(color.FgHiBlack)
)

func printResult(w io.Writer, job domain.Job, result domain.JobResult) {
	status := okColor.Sprint("OK")
	if !result.Success {
		status = failColor.Sprint("FAILED")
	}
	if result.Cancelled {
		status = failColor.Sprint("CANCELLED")
	}
	fmt.Fprintf(w, "%s %s %s\n", job.Type, dimColor.Sprint(job.ID), status)

	if result.Error != "" {
		fmt.Fprintf(w, "  error: %s\n", result.Error)
	}

	for _, c := range result.Checks {
		mark := okColor.Sprint("✓")
		if !c.Success {
			mark = failColor.Sprint("✗")
		}

		line := fmt.Sprintf("  %s %-24s %s", mark, c.Check, c.Message)
		if c.DurationMs != nil {
			line += dimColor.Sprintf(" (%dms)", *c.DurationMs)
		}
		fmt.Fprintln(w, line)

		keys := make([]string, 0, len(c.Data))
		for k := range c.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "      %s %s\n", dimColor.Sprint(k+":"), c.Data[k])
		}
	}
}
