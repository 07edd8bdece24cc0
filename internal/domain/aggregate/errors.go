package aggregate

import "errors"

// ErrDataUnavailable reports that the achievement store could not produce a
// complete and well-formed result. No partial aggregate is ever returned
// alongside it.
var ErrDataUnavailable = errors.New("achievement data unavailable")
