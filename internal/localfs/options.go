package localfs

// WalkOptions configures the behavior of Walk.
type WalkOptions struct {
	// IncludeHidden includes hidden files and directories in the walk.
	// Default is false: hidden files are skipped and hidden directories
	// are not descended into.
	IncludeHidden bool

	// Filter restricts which files are visited. Directories are always
	// descended into; patterns apply to files only.
	Filter Filter

	// OnSkip is called for entries that could not be read. The walk
	// continues either way. Nil ignores them.
	OnSkip func(path string, err error)
}
