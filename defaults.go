package zoraprofiles

// DefaultOptions returns the recommended set of options for production use.
// Currently this includes panic recovery.
func DefaultOptions() []Option {
	return []Option{
		WithRecovery(),
	}
}
