package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shiptrack/internal/carriers"
)

func newTestFormatter(format string, quiet bool) (*OutputFormatter, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	f := NewOutputFormatter(format, quiet, true)
	f.out = &out
	f.errOut = &errOut
	f.now = func() time.Time { return time.Date(2024, 1, 15, 12, 30, 0, 0, time.UTC) }
	return f, &out, &errOut
}

func samplePackage() *carriers.Package {
	return &carriers.Package{
		TrackingNumber: "9400111899223817576451",
		Carrier:        "usps",
		Expected: []time.Time{
			time.Date(2024, 1, 16, 9, 0, 0, 0, time.UTC),
			time.Date(2024, 1, 16, 21, 0, 0, 0, time.UTC),
		},
		LastStatus: "Delivering",
		State:      "In Transit",
		Steps: []carriers.Step{
			{Details: "Delivering", Location: "AUSTIN, TX 78701", Time: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)},
			{Details: "At Facility", Location: "", Time: time.Date(2024, 1, 13, 12, 30, 0, 0, time.UTC)},
		},
	}
}

func TestPrintPackageTable(t *testing.T) {
	f, out, _ := newTestFormatter("table", false)

	require.NoError(t, f.PrintPackage(samplePackage()))
	output := out.String()

	for _, want := range []string{
		"USPS 9400111899223817576451",
		"Status: Delivering",
		"State: In Transit",
		"Expected: between Tue Jan 16 9:00 AM and Tue Jan 16 9:00 PM",
		"WHEN",
		"2 hours ago (2024-01-15 10:30:00+00:00)",
		"AUSTIN, TX 78701",
		"2 days ago (2024-01-13 12:30:00+00:00)",
	} {
		assert.Contains(t, output, want)
	}

	// empty locations render as a dash
	lines := strings.Split(strings.TrimSpace(output), "\n")
	assert.Contains(t, lines[len(lines)-1], " - ")
}

func TestPrintPackageTableWithoutSteps(t *testing.T) {
	f, out, _ := newTestFormatter("table", false)

	pkg := &carriers.Package{TrackingNumber: "1Z999AA10123456784", Carrier: "ups", LastStatus: "Label Created"}
	require.NoError(t, f.PrintPackage(pkg))

	assert.Contains(t, out.String(), "Expected: Unknown")
	assert.Contains(t, out.String(), "No tracking events found.")
	assert.NotContains(t, out.String(), "State:")
}

func TestPrintPackageJSON(t *testing.T) {
	f, out, _ := newTestFormatter("json", false)

	require.NoError(t, f.PrintPackage(samplePackage()))

	var decoded carriers.Package
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, "9400111899223817576451", decoded.TrackingNumber)
	assert.Len(t, decoded.Expected, 2)
	assert.Len(t, decoded.Steps, 2)
}

func TestPrintPackageQuiet(t *testing.T) {
	f, out, _ := newTestFormatter("table", true)

	require.NoError(t, f.PrintPackage(samplePackage()))
	assert.Equal(t, "9400111899223817576451\tDelivering\n", out.String())
}

func TestPrintPackageUnsupportedFormat(t *testing.T) {
	f, _, _ := newTestFormatter("xml", false)
	assert.Error(t, f.PrintPackage(samplePackage()))
}

func TestPrintTrackingNumbers(t *testing.T) {
	numbers := []string{"9400111899223817576451", "1Z999AA10123456784"}

	t.Run("table", func(t *testing.T) {
		f, out, _ := newTestFormatter("table", false)
		require.NoError(t, f.PrintTrackingNumbers(numbers))
		assert.Contains(t, out.String(), "TRACKING")
		assert.Regexp(t, `1\s+9400111899223817576451\s+USPS`, out.String())
		assert.Regexp(t, `2\s+1Z999AA10123456784\s+UPS`, out.String())
	})

	t.Run("empty table", func(t *testing.T) {
		f, out, _ := newTestFormatter("table", false)
		require.NoError(t, f.PrintTrackingNumbers(nil))
		assert.Equal(t, "No saved tracking numbers.\n", out.String())
	})

	t.Run("json", func(t *testing.T) {
		f, out, _ := newTestFormatter("json", false)
		require.NoError(t, f.PrintTrackingNumbers(nil))
		assert.Equal(t, "[]\n", out.String())
	})

	t.Run("quiet", func(t *testing.T) {
		f, out, _ := newTestFormatter("json", true)
		require.NoError(t, f.PrintTrackingNumbers(numbers))
		assert.Equal(t, "9400111899223817576451\n1Z999AA10123456784\n", out.String())
	})
}

func TestMessages(t *testing.T) {
	f, out, errOut := newTestFormatter("table", false)
	f.PrintSuccess("Added 1Z999AA10123456784")
	f.PrintInfo("Tracking 2 packages")
	f.PrintError(errors.New("boom"))

	assert.Equal(t, "✓ Added 1Z999AA10123456784\nℹ Tracking 2 packages\n", out.String())
	assert.Equal(t, "✗ Error: boom\n", errOut.String())

	quiet, out, errOut := newTestFormatter("table", true)
	quiet.PrintSuccess("hidden")
	quiet.PrintInfo("hidden")
	quiet.PrintError(errors.New("shown"))

	assert.Empty(t, out.String())
	assert.Equal(t, "✗ Error: shown\n", errOut.String())
}

func TestFormatExpected(t *testing.T) {
	at := time.Date(2024, 3, 5, 14, 0, 0, 0, time.UTC)

	assert.Equal(t, "Unknown", FormatExpected(nil))
	assert.Equal(t, "Tue Mar 5 2:00 PM", FormatExpected([]time.Time{at}))
	assert.Equal(t, "between Tue Mar 5 2:00 PM and Tue Mar 5 4:00 PM",
		FormatExpected([]time.Time{at, at.Add(2 * time.Hour)}))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "SÃO PAULO", truncate("SÃO PAULO", 9))
	assert.Equal(t, "MÜNCHEN...", truncate("MÜNCHENÜÜÜÜÜ", 10))
	assert.True(t, utf8.ValidString(truncate("ÖÖÖÖÖÖÖÖÖÖÖÖ", 10)))
}

func TestProgressSpinnerWithoutTerminal(t *testing.T) {
	var out bytes.Buffer
	s := NewProgressSpinner("Generating cookies...", true)
	s.out = &out

	s.Start()
	s.Stop()
	s.Stop()

	assert.Equal(t, "Generating cookies...\n", out.String())
}

func TestAcquireHook(t *testing.T) {
	assert.Nil(t, AcquireHook(true, true))

	hook := AcquireHook(true, false)
	require.NotNil(t, hook)
	done := hook("ups")
	require.NotNil(t, done)
	done()
}
