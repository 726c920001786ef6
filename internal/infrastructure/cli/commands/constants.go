package commands

// Error messages
const (
	ErrDoctorServiceUnavailable = "doctor service unavailable"
	ErrInvalidRetainDays        = "--days must be > 0"
	ErrEmptyAnswer              = "answer text is empty"
)

// Success messages
const (
	MsgConfigurationValid       = "Configuration valid"
	MsgNoDifferencesFromDefault = "No differences from default configuration."
	MsgNoHistoryRecorded        = "No history recorded yet."
	MsgNoCycles                 = "No cycles recorded yet."
)

// Display limits
const (
	// DescriptionColumnWidth truncates long descriptions in tables.
	DescriptionColumnWidth = 60
)
