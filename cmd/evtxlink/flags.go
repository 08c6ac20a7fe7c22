package main

import (
	"flag"
	"fmt"
	"os"

	"evtxlink/config"
)

// cliFlags holds parsed command-line flags that either select the config
// file or override values loaded from it.
type cliFlags struct {
	configPath  string
	threads     int
	format      string
	validate    bool
	noIndent    bool
	noTUI       bool
	httpBind    string
	logDebug    string
	showVersion bool

	threadsSet  bool
	formatSet   bool
	extraInputs []string
}

func parseFlags() *cliFlags {
	preprocessLogDebugFlag()

	c := &cliFlags{}

	flag.StringVar(&c.configPath, "config", config.DefaultPath(), "path to config YAML file")
	flag.IntVar(&c.threads, "threads", 0, "number of chunk worker goroutines (default: from config; 0 = one per CPU, 1 = sequential)")
	flag.StringVar(&c.format, "format", "", "output format: xml, json, or jsonl (default: from config)")
	flag.BoolVar(&c.validate, "validate-checksums", false, "hard-fail on chunk CRC mismatch instead of warning")
	flag.BoolVar(&c.noIndent, "no-indent", false, "disable pretty-printed indentation on the primary sink")
	flag.BoolVar(&c.noTUI, "no-tui", false, "run headless, without the terminal UI")
	flag.StringVar(&c.httpBind, "http", "", "override the query API bind address, e.g. 0.0.0.0:8080")
	flag.StringVar(&c.logDebug, "log-debug", "", "comma-separated debug log components to enable, or \"all\"")
	flag.BoolVar(&c.showVersion, "version", false, "print version and exit")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: evtxlink [flags] [input-files...]\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "threads":
			c.threadsSet = true
		case "format":
			c.formatSet = true
		}
	})

	if args := flag.Args(); len(args) > 0 {
		c.extraInputs = args
	}

	return c
}

// applyOverrides layers flag values on top of a loaded config. Positional
// input file arguments, when given, replace the config file's inputs list
// entirely.
func (c *cliFlags) applyOverrides(cfg *config.Config) {
	if len(c.extraInputs) > 0 {
		cfg.Inputs = c.extraInputs
	}
	if c.threadsSet {
		cfg.Threads = c.threads
	}
	if c.formatSet {
		switch c.format {
		case "json", "jsonl":
			cfg.Output = config.FormatJSON
			if c.format == "jsonl" {
				cfg.Indent = false
			}
		case "xml":
			cfg.Output = config.FormatXML
		}
	}
	if c.validate {
		cfg.ValidateChecksums = true
	}
	if c.noIndent {
		cfg.Indent = false
	}
	if c.httpBind != "" {
		cfg.Web.Enabled = true
		host, port := splitHostPort(c.httpBind)
		cfg.Web.Host = host
		cfg.Web.Port = port
	}
}

func splitHostPort(addr string) (string, int) {
	host := addr
	port := 0
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			host = addr[:i]
			fmt.Sscanf(addr[i+1:], "%d", &port)
			break
		}
	}
	if host == "" {
		host = "0.0.0.0"
	}
	return host, port
}
