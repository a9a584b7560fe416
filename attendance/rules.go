package attendance

import "time"

// Rules holds the thresholds used by the aggregators and the scanner.
// The payroll lateness tolerance and the absence alert tolerance are
// independent settings.
type Rules struct {
	// PayrollLateTolerance is subtracted from entry lateness in period totals.
	PayrollLateTolerance time.Duration

	// AbsenceTolerance is how long after the expected start the scanner
	// waits before raising an absence alert.
	AbsenceTolerance time.Duration

	// FatigueMargin is added to the expected daily hours before an open
	// shift raises an excess-hours alert.
	FatigueMargin time.Duration

	// ForgottenExitAfter is the age at which an unclosed ENTRY is reported.
	ForgottenExitAfter time.Duration

	// ForgottenExitLookback bounds how far back the sweep looks.
	ForgottenExitLookback time.Duration
}

// DefaultRules returns the standard thresholds. A zero tolerance is a valid
// setting, so callers start from these and override.
func DefaultRules() Rules {
	return Rules{
		PayrollLateTolerance:  10 * time.Minute,
		AbsenceTolerance:      45 * time.Minute,
		FatigueMargin:         2 * time.Hour,
		ForgottenExitAfter:    10 * time.Hour,
		ForgottenExitLookback: 24 * time.Hour,
	}
}
