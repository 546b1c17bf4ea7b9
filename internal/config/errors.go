package config

import "errors"

// ErrInvalidConfiguration is wrapped by every rejected setting: nonpositive
// rates, unknown interpolation methods, malformed config files. It is fatal
// before any processing starts.
var ErrInvalidConfiguration = errors.New("invalid configuration")
