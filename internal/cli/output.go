package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"

	"shiptrack/internal/carriers"
	"shiptrack/internal/timezone"
)

// expectedLayout renders delivery estimates
const expectedLayout = "Mon Jan 2 3:04 PM"

// OutputFormatter handles different output formats
type OutputFormatter struct {
	format  string
	quiet   bool
	noColor bool

	out    io.Writer
	errOut io.Writer
	now    func() time.Time

	// packages printed so far, for spacing between tables
	printed int

	title lipgloss.Style
	label lipgloss.Style
	dim   lipgloss.Style
}

// NewOutputFormatter creates a new output formatter writing to stdout and
// stderr
func NewOutputFormatter(format string, quiet, noColor bool) *OutputFormatter {
	f := &OutputFormatter{
		format:  format,
		quiet:   quiet,
		noColor: noColor,
		out:     os.Stdout,
		errOut:  os.Stderr,
		now:     time.Now,
		title:   lipgloss.NewStyle(),
		label:   lipgloss.NewStyle(),
		dim:     lipgloss.NewStyle(),
	}
	if !noColor {
		f.title = f.title.Bold(true).Foreground(lipgloss.Color("12"))
		f.label = f.label.Bold(true)
		f.dim = f.dim.Foreground(lipgloss.Color("8"))
	}
	return f
}

// SetOutput redirects regular output to out and errors to errOut
func (f *OutputFormatter) SetOutput(out, errOut io.Writer) {
	f.out = out
	f.errOut = errOut
}

// PrintPackage prints one tracking result
func (f *OutputFormatter) PrintPackage(pkg *carriers.Package) error {
	if f.quiet {
		fmt.Fprintf(f.out, "%s\t%s\n", pkg.TrackingNumber, pkg.LastStatus)
		return nil
	}

	switch f.format {
	case "json":
		return json.NewEncoder(f.out).Encode(pkg)
	case "table":
		return f.printPackageTable(pkg)
	default:
		return fmt.Errorf("unsupported format: %s", f.format)
	}
}

// PrintTrackingNumbers prints the saved tracking list
func (f *OutputFormatter) PrintTrackingNumbers(numbers []string) error {
	if f.quiet {
		for _, n := range numbers {
			fmt.Fprintln(f.out, n)
		}
		return nil
	}

	switch f.format {
	case "json":
		if numbers == nil {
			numbers = []string{}
		}
		return json.NewEncoder(f.out).Encode(numbers)
	case "table":
		if len(numbers) == 0 {
			fmt.Fprintln(f.out, "No saved tracking numbers.")
			return nil
		}
		w := tabwriter.NewWriter(f.out, 0, 0, 2, ' ', 0)
		defer w.Flush()
		fmt.Fprintln(w, "#\tTRACKING\tCARRIER")
		for i, n := range numbers {
			fmt.Fprintf(w, "%d\t%s\t%s\n", i+1, n, strings.ToUpper(carriers.SelectCarrier(n).String()))
		}
		return nil
	default:
		return fmt.Errorf("unsupported format: %s", f.format)
	}
}

// PrintSuccess prints a success message
func (f *OutputFormatter) PrintSuccess(message string) {
	if !f.quiet {
		fmt.Fprintf(f.out, "✓ %s\n", message)
	}
}

// PrintError prints an error message. Errors are printed even in quiet mode.
func (f *OutputFormatter) PrintError(err error) {
	fmt.Fprintf(f.errOut, "✗ Error: %v\n", err)
}

// PrintInfo prints an informational message
func (f *OutputFormatter) PrintInfo(message string) {
	if !f.quiet {
		fmt.Fprintf(f.out, "ℹ %s\n", message)
	}
}

func (f *OutputFormatter) printPackageTable(pkg *carriers.Package) error {
	if f.printed > 0 {
		fmt.Fprintln(f.out)
	}
	f.printed++

	fmt.Fprintln(f.out, f.title.Render(fmt.Sprintf("%s %s", strings.ToUpper(pkg.Carrier), pkg.TrackingNumber)))
	fmt.Fprintf(f.out, "%s %s\n", f.label.Render("Status:"), pkg.LastStatus)
	if pkg.State != "" {
		fmt.Fprintf(f.out, "%s %s\n", f.label.Render("State:"), pkg.State)
	}
	fmt.Fprintf(f.out, "%s %s\n", f.label.Render("Expected:"), FormatExpected(pkg.Expected))

	if len(pkg.Steps) == 0 {
		fmt.Fprintln(f.out, f.dim.Render("No tracking events found."))
		return nil
	}

	fmt.Fprintln(f.out)
	w := tabwriter.NewWriter(f.out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "WHEN\tLOCATION\tDETAILS")
	now := f.now()
	for _, step := range pkg.Steps {
		location := step.Location
		if location == "" {
			location = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n",
			timezone.FormatDelta(now, step.Time),
			truncate(location, 30),
			step.Details)
	}
	return nil
}

// FormatExpected renders zero, one or two delivery estimates
func FormatExpected(expected []time.Time) string {
	switch len(expected) {
	case 0:
		return "Unknown"
	case 1:
		return expected[0].Format(expectedLayout)
	default:
		return fmt.Sprintf("between %s and %s",
			expected[0].Format(expectedLayout),
			expected[1].Format(expectedLayout))
	}
}

// truncate shortens s to at most maxLen runes
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}
