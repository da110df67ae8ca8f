package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"histflow/models"
)

type options struct {
	Symbol     string
	StartDate  string
	EndDate    string
	Exchanges  []string
	DataTypes  []string
	Interval   string
	OutputDir  string
	MaxWorkers int
	Verbose    bool
	Config     string
}

// usageError is a command line mistake; the process exits with status 2.
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

// listValue collects repeated, comma separated or space separated values.
type listValue struct{ dst *[]string }

func (l listValue) String() string {
	if l.dst == nil {
		return ""
	}
	return strings.Join(*l.dst, ",")
}

func (l listValue) Set(s string) error {
	*l.dst = append(*l.dst, splitList(s)...)
	return nil
}

func splitList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
}

// choices lists the words a list flag keeps consuming after its first value.
var choices = map[string]map[string]bool{
	"exchanges":  {"binance": true, "bybit": true},
	"data-types": dataTypeChoices(),
}

func dataTypeChoices() map[string]bool {
	m := map[string]bool{}
	for _, dt := range models.AllDataTypes() {
		m[string(dt)] = true
	}
	return m
}

var boolFlags = map[string]bool{"verbose": true, "v": true, "h": true, "help": true}

func newFlagSet(o *options, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("single", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.Var(listValue{&o.Exchanges}, "exchanges", "Exchanges to query: binance bybit (default both)")
	fs.Var(listValue{&o.DataTypes}, "data-types", "Data types: price price_index funding_rate premium_index (default all)")
	fs.StringVar(&o.Interval, "interval", string(models.DefaultInterval), "Candle interval")
	fs.StringVar(&o.OutputDir, "output-dir", "", "Directory for CSV artifacts (default fetch.output_dir)")
	fs.IntVar(&o.MaxWorkers, "max-workers", 0, "Concurrent requests (default fetch.max_workers)")
	fs.BoolVar(&o.Verbose, "verbose", false, "Debug logging")
	fs.BoolVar(&o.Verbose, "v", false, "Shorthand for -verbose")
	fs.StringVar(&o.Config, "config", "", "Path to configuration file")
	fs.Usage = func() {
		fmt.Fprintln(out, "usage: single [options] SYMBOL START_DATE END_DATE")
		fmt.Fprintln(out, "\nDates are YYYY-MM-DD; the end date is exclusive.")
		fs.PrintDefaults()
	}
	return fs
}

// parseArgs accepts options before, between or after the three positionals.
// List options take every following word that is one of their choices, so
// "--exchanges binance bybit BTCUSDT ..." leaves BTCUSDT positional.
func parseArgs(args []string, out io.Writer) (*options, error) {
	o := &options{}
	fs := newFlagSet(o, out)

	var flagArgs, positional []string
	for i := 0; i < len(args); i++ {
		tok := args[i]
		if tok == "--" {
			positional = append(positional, args[i+1:]...)
			break
		}
		if !strings.HasPrefix(tok, "-") || tok == "-" {
			positional = append(positional, tok)
			continue
		}

		name, val, hasVal := strings.Cut(strings.TrimLeft(tok, "-"), "=")
		switch {
		case choices[name] != nil:
			if !hasVal {
				if i+1 >= len(args) {
					return nil, &usageError{fmt.Sprintf("option --%s needs at least one value", name)}
				}
				i++
				val = args[i]
			}
			flagArgs = append(flagArgs, "-"+name+"="+val)
			for i+1 < len(args) && allChoices(choices[name], args[i+1]) {
				i++
				flagArgs = append(flagArgs, "-"+name+"="+args[i])
			}
		case boolFlags[name] || hasVal:
			flagArgs = append(flagArgs, tok)
		default:
			flagArgs = append(flagArgs, tok)
			if i+1 < len(args) {
				i++
				flagArgs = append(flagArgs, args[i])
			}
		}
	}

	if err := fs.Parse(flagArgs); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, err
		}
		return nil, &usageError{err.Error()}
	}
	if len(positional) != 3 {
		fs.Usage()
		return nil, &usageError{fmt.Sprintf("expected SYMBOL START_DATE END_DATE, got %d positional arguments", len(positional))}
	}
	o.Symbol, o.StartDate, o.EndDate = positional[0], positional[1], positional[2]
	return o, nil
}

func allChoices(set map[string]bool, tok string) bool {
	if strings.HasPrefix(tok, "-") {
		return false
	}
	found := false
	for _, part := range splitList(tok) {
		if !set[strings.ToLower(part)] {
			return false
		}
		found = true
	}
	return found
}
