package calibration

import (
	"fmt"
	"os"
	"strings"
)

// Report is an ordered list of key-value entries describing a
// calibration run: inputs, intermediate regression values and final
// coefficients. Entries are written in insertion order so reports stay
// comparable across runs.
type Report struct {
	entries []reportEntry
}

type reportEntry struct {
	key   string
	value string
}

// Add appends an entry, formatting the value with %v.
func (r *Report) Add(key string, value interface{}) {
	r.entries = append(r.entries, reportEntry{key: key, value: fmt.Sprintf("%v", value)})
}

// AddFloats appends a float slice entry formatted as a bracketed list.
func (r *Report) AddFloats(key string, values []float64) {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%g", v)
	}
	r.entries = append(r.entries, reportEntry{key: key, value: "[" + strings.Join(parts, " ") + "]"})
}

// AddFit appends all fit values, raw regression through final
// coefficients, in audit order.
func (r *Report) AddFit(fit *Fit) {
	r.AddFloats("Y Values", fit.YValues)
	r.AddFloats("X Values", fit.XValues)
	r.Add("Sigma_CT", fit.SigmaCT)
	r.Add("Beta_CT", fit.BetaCT)
	r.Add("Regression Slope", fit.RegressionSlope)
	r.Add("Regression Y-Intercept", fit.RegressionIntercept)
	r.Add("Calibration Slope", fit.Slope)
	r.Add("Calibration Y-Intercept", fit.Intercept)
}

// String renders the report as tab-separated key-value lines.
func (r *Report) String() string {
	var b strings.Builder
	for _, e := range r.entries {
		b.WriteString(e.key)
		b.WriteByte('\t')
		b.WriteString(e.value)
		b.WriteByte('\n')
	}
	return b.String()
}

// WriteFile writes the report to path as a text file.
func (r *Report) WriteFile(path string) error {
	if err := os.WriteFile(path, []byte(r.String()), 0644); err != nil {
		return fmt.Errorf("error writing report file: %w", err)
	}
	return nil
}
