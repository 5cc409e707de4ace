// Copyright 2021 Jonathan Amsterdam.

package cmdopts

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/hashicorp/go-multierror"
)

type testOpts struct {
	Name    string  `opt:"short=n, long=name, the name"`
	Count   int     `opt:"short=c, long=count, default=2, how many"`
	Ratio   float64 `opt:"long=ratio, default=0.5, a ratio"`
	Verbose bool    `opt:"short=v, long=verbose, more output"`
	Level   int     `opt:"long=level, valueopt, default=1, level"`
	Other   bool    `opt:"long=other, something else"`
}

func parseTest(t *testing.T, args ...string) (testOpts, *Result, string) {
	t.Helper()
	var buf bytes.Buffer
	p := &Parser{Program: "test", Out: &buf}
	var opts testOpts
	res, err := p.Parse(args, &opts)
	if err != nil {
		t.Fatal(err)
	}
	return opts, res, buf.String()
}

func diagKinds(res *Result) []DiagnosticKind {
	var ks []DiagnosticKind
	for _, d := range res.Diagnostics {
		ks = append(ks, d.Kind)
	}
	return ks
}

func TestParse(t *testing.T) {
	defaults := testOpts{Count: 2, Ratio: 0.5, Level: 1}
	with := func(f func(*testOpts)) testOpts {
		o := defaults
		f(&o)
		return o
	}

	for _, test := range []struct {
		name      string
		args      []string
		want      testOpts
		wantDiags []DiagnosticKind
	}{
		{
			name: "empty",
			want: defaults,
		},
		{
			name: "inline value",
			args: []string{"--count=5"},
			want: with(func(o *testOpts) { o.Count = 5 }),
		},
		{
			name: "separate value",
			args: []string{"--count", "5"},
			want: with(func(o *testOpts) { o.Count = 5 }),
		},
		{
			name: "short separate value",
			args: []string{"-c", "7", "-n", "bob"},
			want: with(func(o *testOpts) { o.Count = 7; o.Name = "bob" }),
		},
		{
			name: "slash",
			args: []string{"/c", "7", "/verbose"},
			want: with(func(o *testOpts) { o.Count = 7; o.Verbose = true }),
		},
		{
			name:      "lookahead does not consume options",
			args:      []string{"--count", "--other"},
			want:      with(func(o *testOpts) { o.Count = 0; o.Other = true }),
			wantDiags: []DiagnosticKind{MissingValue},
		},
		{
			name:      "lookahead does not consume slash tokens",
			args:      []string{"--name", "/tmp"},
			want:      defaults,
			wantDiags: []DiagnosticKind{MissingValue, UnknownOption},
		},
		{
			name:      "missing value at end",
			args:      []string{"-n"},
			want:      defaults,
			wantDiags: []DiagnosticKind{MissingValue},
		},
		{
			name: "toggle once",
			args: []string{"-v"},
			want: with(func(o *testOpts) { o.Verbose = true }),
		},
		{
			name: "toggle twice",
			args: []string{"-v", "-v"},
			want: defaults,
		},
		{
			name: "bool ignores inline value",
			args: []string{"--verbose=false"},
			want: with(func(o *testOpts) { o.Verbose = true }),
		},
		{
			name: "bool does not consume",
			args: []string{"-v", "x"},
			want: with(func(o *testOpts) { o.Verbose = true }),
		},
		{
			name:      "unknown",
			args:      []string{"--bogus"},
			want:      defaults,
			wantDiags: []DiagnosticKind{UnknownOption},
		},
		{
			name:      "unknown with value",
			args:      []string{"--bogus=3", "-c", "4"},
			want:      with(func(o *testOpts) { o.Count = 4 }),
			wantDiags: []DiagnosticKind{UnknownOption},
		},
		{
			name: "positional ignored",
			args: []string{"file", "-c", "4", "other"},
			want: with(func(o *testOpts) { o.Count = 4 }),
		},
		{
			name:      "no grouping",
			args:      []string{"-vc"},
			want:      defaults,
			wantDiags: []DiagnosticKind{UnknownOption},
		},
		{
			name: "quotes stripped",
			args: []string{`--name="abc"`},
			want: with(func(o *testOpts) { o.Name = "abc" }),
		},
		{
			name: "value with equals",
			args: []string{"--name=a=b"},
			want: with(func(o *testOpts) { o.Name = "a=b" }),
		},
		{
			name:      "bad int leaves field unmodified",
			args:      []string{"--count=many"},
			want:      with(func(o *testOpts) { o.Count = 0 }),
			wantDiags: []DiagnosticKind{TypeCoercion},
		},
		{
			name: "double",
			args: []string{"--ratio", "0.25"},
			want: with(func(o *testOpts) { o.Ratio = 0.25 }),
		},
		{
			name: "value optional bare",
			args: []string{"--level", "5"},
			want: with(func(o *testOpts) { o.Level = 0 }),
		},
		{
			name: "value optional inline",
			args: []string{"--level=5"},
			want: with(func(o *testOpts) { o.Level = 5 }),
		},
		{
			name: "last value wins",
			args: []string{"-c", "1", "--count=9"},
			want: with(func(o *testOpts) { o.Count = 9 }),
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			got, res, _ := parseTest(t, test.args...)
			if diff := cmp.Diff(test.want, got); diff != "" {
				t.Errorf("mismatch (-want, +got):\n%s", diff)
			}
			if diff := cmp.Diff(test.wantDiags, diagKinds(res)); diff != "" {
				t.Errorf("diagnostics mismatch (-want, +got):\n%s", diff)
			}
			if res.Status != OK {
				t.Errorf("status: got %s, want %s", res.Status, OK)
			}
		})
	}
}

func TestParseUnknownLeavesFields(t *testing.T) {
	var buf bytes.Buffer
	opts := testOpts{Name: "keep", Count: 11}
	res, err := (&Parser{Out: &buf}).Parse([]string{"--bogus"}, &opts)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Diagnostics) != 1 {
		t.Fatalf("got %d diagnostics, want 1", len(res.Diagnostics))
	}
	// Count was not provided, so its default applies.
	want := testOpts{Name: "keep", Count: 2, Ratio: 0.5, Level: 1}
	if diff := cmp.Diff(want, opts); diff != "" {
		t.Errorf("mismatch (-want, +got):\n%s", diff)
	}
	if got, want := buf.String(), "WARNING! unknown option --bogus\n"; got != want {
		t.Errorf("output: got %q, want %q", got, want)
	}
}

func TestBadValueLeavesField(t *testing.T) {
	var buf bytes.Buffer
	opts := testOpts{Count: 7, Ratio: 3}
	res, err := (&Parser{Out: &buf}).Parse([]string{"--count=abc", "--ratio"}, &opts)
	if err != nil {
		t.Fatal(err)
	}
	want := testOpts{Count: 7, Ratio: 3, Level: 1}
	if diff := cmp.Diff(want, opts); diff != "" {
		t.Errorf("mismatch (-want, +got):\n%s", diff)
	}
	if !res.Provided("count") || !res.Provided("ratio") {
		t.Error("options with bad values not marked provided")
	}
	if diff := cmp.Diff([]DiagnosticKind{TypeCoercion, MissingValue}, diagKinds(res)); diff != "" {
		t.Errorf("diagnostics mismatch (-want, +got):\n%s", diff)
	}
}

func TestDiagnosticMessages(t *testing.T) {
	_, res, out := parseTest(t, "--count", "x", "-q", "--ratio")
	want := []string{
		`WARNING! cannot set option --count to "x": want int`,
		"WARNING! unknown option -q",
		"WARNING! no value provided for option --ratio",
	}
	if diff := cmp.Diff(want, strings.Split(strings.TrimSpace(out), "\n")); diff != "" {
		t.Errorf("mismatch (-want, +got):\n%s", diff)
	}
	d := res.Diagnostics[0]
	if d.Option != "--count" || d.Value != "x" || d.Want != Int {
		t.Errorf("got %+v", d)
	}
}

func TestProvided(t *testing.T) {
	_, res, _ := parseTest(t, "-c", "3", "--level", "--count=x")
	for name, want := range map[string]bool{
		"c":     true,
		"count": true,
		"-c":    true,
		"level": true,
		"name":  false,
		"ratio": false,
	} {
		if got := res.Provided(name); got != want {
			t.Errorf("Provided(%q) = %t, want %t", name, got, want)
		}
	}
}

type required struct {
	Name   string `opt:"short=n, long=name, required, who"`
	Prefix string `opt:"short=p, long=prefix, default=<no prefix>, prefix"`
	Port   int    `opt:"required, port"`
}

func TestRequired(t *testing.T) {
	for _, test := range []struct {
		name        string
		args        []string
		wantStatus  Status
		wantMissing []string
		wantPrefix  string
	}{
		{
			name:        "all missing",
			wantStatus:  RequiredMissing,
			wantMissing: []string{"-n/--name", "--port"},
			wantPrefix:  "<no prefix>",
		},
		{
			name:        "one missing",
			args:        []string{"--port=80"},
			wantStatus:  RequiredMissing,
			wantMissing: []string{"-n/--name"},
			wantPrefix:  "<no prefix>",
		},
		{
			name:       "bad value still counts",
			args:       []string{"--port=x", "-n", "a"},
			wantStatus: OK,
			wantPrefix: "<no prefix>",
		},
		{
			name:       "missing value still counts",
			args:       []string{"--port=80", "-n"},
			wantStatus: OK,
			wantPrefix: "<no prefix>",
		},
		{
			name:       "all present",
			args:       []string{"-n", "a", "--port", "80", "-p", "X_"},
			wantStatus: OK,
			wantPrefix: "X_",
		},
		{
			name:       "help suppresses",
			args:       []string{"-h"},
			wantStatus: HelpRequested,
			wantPrefix: "<no prefix>",
		},
		{
			name:       "long help suppresses",
			args:       []string{"--port", "1", "--help"},
			wantStatus: HelpRequested,
			wantPrefix: "<no prefix>",
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			var buf bytes.Buffer
			var opts required
			res, err := (&Parser{Out: &buf}).Parse(test.args, &opts)
			if err != nil {
				t.Fatal(err)
			}
			if res.Status != test.wantStatus {
				t.Errorf("status: got %s, want %s", res.Status, test.wantStatus)
			}
			if diff := cmp.Diff(test.wantMissing, res.Missing); diff != "" {
				t.Errorf("missing mismatch (-want, +got):\n%s", diff)
			}
			if opts.Prefix != test.wantPrefix {
				t.Errorf("prefix: got %q, want %q", opts.Prefix, test.wantPrefix)
			}
			for _, m := range test.wantMissing {
				if want := "ERROR! option " + m + " is required\n"; !strings.Contains(buf.String(), want) {
					t.Errorf("output %q does not contain %q", buf.String(), want)
				}
			}
		})
	}
}

func TestResultErr(t *testing.T) {
	_, res, _ := parseTest(t)
	if err := res.Err(); err != nil {
		t.Errorf("got %v, want nil", err)
	}

	var buf bytes.Buffer
	var opts required
	res, err := (&Parser{Out: &buf}).Parse([]string{"--bogus", "--port=x"}, &opts)
	if err != nil {
		t.Fatal(err)
	}
	err = res.Err()
	var merr *multierror.Error
	if !errors.As(err, &merr) {
		t.Fatalf("got %T, want *multierror.Error", err)
	}
	if got, want := len(merr.Errors), 3; got != want {
		t.Fatalf("got %d errors, want %d: %v", got, want, err)
	}
	var d *Diagnostic
	if !errors.As(merr.Errors[2], &d) || d.Kind != RequiredOption || d.Option != "-n/--name" {
		t.Errorf("last error: got %v", merr.Errors[2])
	}
}

func TestHelp(t *testing.T) {
	var buf bytes.Buffer
	calls := 0
	p := &Parser{Program: "test", Out: &buf, AfterHelp: func() { calls++ }}
	var opts testOpts
	res, err := p.Parse([]string{"-h", "--count", "4", "--bogus"}, &opts)
	if err != nil {
		t.Fatal(err)
	}
	if !res.HelpShown || res.Status != HelpRequested {
		t.Errorf("got HelpShown=%t, Status=%s", res.HelpShown, res.Status)
	}
	if calls != 1 {
		t.Errorf("AfterHelp called %d times, want 1", calls)
	}
	// Parsing continues after help.
	if opts.Count != 4 {
		t.Errorf("count: got %d, want 4", opts.Count)
	}
	out := buf.String()
	if !strings.Contains(out, "Usage: test [options]") {
		t.Errorf("no usage line in %q", out)
	}
	if !strings.HasSuffix(out, "WARNING! unknown option --bogus\n") {
		t.Errorf("warning not printed after help: %q", out)
	}
}

func TestHelpOnEmpty(t *testing.T) {
	for _, test := range []struct {
		helpOnEmpty bool
		args        []string
		wantShown   bool
	}{
		{true, nil, true},
		{true, []string{"-v"}, false},
		{false, nil, false},
	} {
		var buf bytes.Buffer
		var opts testOpts
		res, err := (&Parser{HelpOnEmpty: test.helpOnEmpty, Out: &buf}).Parse(test.args, &opts)
		if err != nil {
			t.Fatal(err)
		}
		if res.HelpShown != test.wantShown {
			t.Errorf("%t %v: HelpShown = %t, want %t", test.helpOnEmpty, test.args, res.HelpShown, test.wantShown)
		}
		if res.Status != OK || len(res.Diagnostics) != 0 {
			t.Errorf("%t %v: got status %s, diagnostics %v", test.helpOnEmpty, test.args, res.Status, res.Diagnostics)
		}
	}

	// Empty-invocation help does not excuse required options.
	var buf bytes.Buffer
	var opts required
	res, err := (&Parser{HelpOnEmpty: true, Out: &buf}).Parse(nil, &opts)
	if err != nil {
		t.Fatal(err)
	}
	if !res.HelpShown || res.Status != RequiredMissing {
		t.Errorf("got HelpShown=%t, Status=%s", res.HelpShown, res.Status)
	}
}

func TestParseTargetErrors(t *testing.T) {
	p := &Parser{Out: &bytes.Buffer{}}
	var serr *SchemaError
	for _, target := range []any{nil, testOpts{}, new(int), (*testOpts)(nil)} {
		if _, err := p.Parse(nil, target); !errors.As(err, &serr) {
			t.Errorf("%#v: got %v, want *SchemaError", target, err)
		}
	}
	type bad struct{ U uint }
	if _, err := p.Parse([]string{"-h"}, &bad{}); !errors.As(err, &serr) {
		t.Errorf("got %v, want *SchemaError", err)
	}
}

func TestMustParse(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustParse did not panic")
		}
	}()
	type bad struct{ U []string }
	(&Parser{}).MustParse(nil, &bad{})
}
