package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"turnstiled/internal/adapters/page/static"
	"turnstiled/internal/adapters/provider/capsolver"
	"turnstiled/internal/adapters/relay"
	"turnstiled/internal/core/detector"
	"turnstiled/internal/core/rulepack"
	"turnstiled/internal/core/sitekey"
	"turnstiled/internal/modkit"
	"turnstiled/internal/platform/config"
	perr "turnstiled/internal/platform/errors"
	"turnstiled/internal/platform/logger"
	solverdom "turnstiled/internal/services/solver/domain"
	solvermod "turnstiled/internal/services/solver/module"
)

// targets collects repeated -url flags
type targets []string

func (t *targets) String() string     { return strings.Join(*t, ",") }
func (t *targets) Set(v string) error { *t = append(*t, v); return nil }

// report is one line of output
type report struct {
	URL       string            `json:"url"`
	Detection *detector.Result  `json:"detection,omitempty"`
	Verdicts  []sitekey.Verdict `json:"verdicts,omitempty"`
	Solve     *solverdom.Result `json:"solve,omitempty"`
	Error     string            `json:"error,omitempty"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		logger.Get().Error().Err(err).Msg("scan failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("turnstiled-scan", flag.ContinueOnError)
	var urls targets
	fs.Var(&urls, "url", "page to fetch and scan (repeatable)")
	var (
		file      = fs.String("file", "", "local HTML file to scan")
		base      = fs.String("base", "about:blank", "URL the -file content is treated as served from")
		solve     = fs.Bool("solve", false, "run the solve orchestrator after detection")
		useRelay  = fs.Bool("relay", false, "escalate to the session relay (TURNSTILE_RELAY_*)")
		out       = fs.String("out", "", "write the token-injected HTML here (single target only)")
		rules     = fs.String("rules", "", "external rule file (.json, .yaml)")
		timeout   = fs.Duration("timeout", 0, "overall deadline, 0 for none")
		pretty    = fs.Bool("pretty", false, "indent JSON output")
		fetchWait = fs.Duration("fetch-timeout", 30*time.Second, "per request HTTP timeout")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	urls = append(urls, fs.Args()...)
	if len(urls) == 0 && *file == "" {
		return perr.InvalidArgf("one of -url or -file is required")
	}
	n := len(urls)
	if *file != "" {
		n++
	}
	if *out != "" && n != 1 {
		return perr.InvalidArgf("-out needs exactly one target, got %d", n)
	}
	if *rules != "" {
		if _, err := rulepack.LoadFile(*rules); err != nil {
			return err
		}
	}
	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	root := config.New()
	client := &http.Client{Timeout: *fetchWait}
	log := logger.Named("scan")

	pages, reports := load(ctx, urls, *file, *base, client)

	b := solvermod.Backends{Opener: static.Opener{Client: client}}
	if *solve {
		if pc := capsolver.NewClient(capsolver.FromConfig(root)); pc.Configured() {
			b.Provider = pc
		} else {
			log.Warn().Msg("TURNSTILE_PROVIDER_API_KEY unset, provider strategy disabled")
		}
		if *useRelay {
			b.Relay = relay.NewClient(relay.FromConfig(root))
		}
	}
	sm := solvermod.New(modkit.Deps{Cfg: root, Log: *log}, solvermod.Options{RulesFile: *rules}, b)
	ports := sm.Solver()

	live := make([]solverdom.Page, 0, len(pages))
	idx := make([]int, 0, len(pages))
	for i, p := range pages {
		if p == nil {
			continue
		}
		content, _ := p.Content(ctx)
		det, err := ports.Detector.Detect(ctx, content, func(context.Context) (string, error) { return p.HTML() })
		if err != nil {
			reports[i].Error = err.Error()
			continue
		}
		reports[i].Detection = &det
		reports[i].Verdicts = sitekey.ValidateAll(det.Sitekeys)
		live = append(live, p)
		idx = append(idx, i)
	}

	if *solve && len(live) > 0 {
		results, err := ports.Pool.SolveAll(ctx, live)
		if err != nil {
			return err
		}
		for j := range results {
			reports[idx[j]].Solve = &results[j]
		}
		if *out != "" && len(live) == 1 {
			if err := writeHTML(*out, live[0].(*static.Page)); err != nil {
				return err
			}
		}
	}

	enc := json.NewEncoder(stdout)
	if *pretty {
		enc.SetIndent("", "  ")
	}
	for _, r := range reports {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

// load fetches every url and reads file. Failed targets keep a report with the error
// and a nil page
func load(ctx context.Context, urls []string, file, base string, client *http.Client) ([]*static.Page, []report) {
	var (
		pages   []*static.Page
		reports []report
	)
	for _, u := range urls {
		p, err := static.Fetch(ctx, u, client)
		r := report{URL: u}
		if err != nil {
			r.Error = err.Error()
			p = nil
		}
		pages = append(pages, p)
		reports = append(reports, r)
	}
	if file != "" {
		r := report{URL: base}
		var p *static.Page
		b, err := os.ReadFile(filepath.Clean(file))
		if err == nil {
			p, err = static.New(base, string(b), client)
		}
		if err != nil {
			r.Error = fmt.Sprintf("%s: %v", file, err)
			p = nil
		}
		pages = append(pages, p)
		reports = append(reports, r)
	}
	return pages, reports
}

func writeHTML(path string, p *static.Page) error {
	html, err := p.HTML()
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(html), 0o644)
}
