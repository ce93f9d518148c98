package repoident

import "errors"

// ErrNotInRepo is returned when the current working directory is not
// inside a git repository.
var ErrNotInRepo = errors.New("not inside a git repository")

// ErrNoHome is returned when $HOME cannot be determined.
var ErrNoHome = errors.New("unable to determine home directory")
