// Package report renders conformance run results as a table or JSON.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/example/go-nnconform/internal/conformance"
)

// Format selects the output encoding.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
)

// ParseFormat validates a --format value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatTable:
		return FormatTable, nil
	case FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown format %q (want table|json)", s)
	}
}

// Write renders rep in the given format.
func Write(w io.Writer, f Format, rep *conformance.Report) error {
	if f == FormatJSON {
		return WriteJSON(w, rep)
	}

	return WriteTable(w, rep)
}

// Counts tallies results by failure kind; passing cases count under
// conformance.KindNone.
func Counts(rep *conformance.Report) map[conformance.FailureKind]int {
	out := make(map[conformance.FailureKind]int)
	for _, res := range rep.Results {
		out[res.Kind]++
	}

	return out
}

// WriteTable writes one row per case followed by a summary.
func WriteTable(w io.Writer, rep *conformance.Report) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintln(tw, "STATUS\tCASE\tTOLERANCE\tTIME\tDETAIL")

	for _, res := range rep.Results {
		status, detail := "PASS", ""
		if !res.Passed() {
			status, detail = "FAIL", res.Kind.String()+": "+res.Err.Error()
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			status, caseID(res), toleranceText(res), res.Duration.Round(time.Microsecond), detail)
	}

	if err := tw.Flush(); err != nil {
		return err
	}

	p := message.NewPrinter(language.English)
	title := cases.Title(language.English)

	device := rep.Device
	if device == "" {
		device = "default"
	}

	if _, err := p.Fprintf(w, "\n%s: %d of %d cases passed\n", title.String(device), rep.Passed(), len(rep.Results)); err != nil {
		return err
	}

	counts := Counts(rep)

	for k := conformance.KindMismatch; k <= conformance.KindRuntime; k++ {
		if n := counts[k]; n > 0 {
			if _, err := p.Fprintf(w, "  %s: %d\n", title.String(strings.ReplaceAll(k.String(), "-", " ")), n); err != nil {
				return err
			}
		}
	}

	return nil
}

type jsonReport struct {
	Device  string       `json:"device,omitempty"`
	Passed  int          `json:"passed"`
	Failed  int          `json:"failed"`
	Results []jsonResult `json:"results"`
}

type jsonResult struct {
	Suite      string                  `json:"suite,omitempty"`
	Case       string                  `json:"case"`
	Passed     bool                    `json:"passed"`
	Kind       conformance.FailureKind `json:"kind"`
	Tolerance  string                  `json:"tolerance,omitempty"`
	DurationMS float64                 `json:"duration_ms"`
	Error      string                  `json:"error,omitempty"`
}

// WriteJSON writes the report as an indented JSON document.
func WriteJSON(w io.Writer, rep *conformance.Report) error {
	out := jsonReport{
		Device:  rep.Device,
		Passed:  rep.Passed(),
		Failed:  rep.Failed(),
		Results: make([]jsonResult, len(rep.Results)),
	}

	for i, res := range rep.Results {
		r := jsonResult{
			Suite:      res.Suite,
			Case:       res.Case,
			Passed:     res.Passed(),
			Kind:       res.Kind,
			Tolerance:  toleranceText(res),
			DurationMS: float64(res.Duration) / float64(time.Millisecond),
		}

		if res.Err != nil {
			r.Error = res.Err.Error()
		}

		out.Results[i] = r
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(out)
}

func caseID(res conformance.Result) string {
	if res.Suite == "" {
		return res.Case
	}

	return res.Suite + "/" + res.Case
}

// toleranceText is empty when the case failed before a tolerance was known.
func toleranceText(res conformance.Result) string {
	if !res.Passed() && res.Tolerance.Value == 0 && res.Kind != conformance.KindMismatch {
		return ""
	}

	return res.Tolerance.String()
}
