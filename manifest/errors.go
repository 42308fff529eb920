package manifest

import "errors"

// ErrInvalidManifest wraps every structural validation failure; use
// errors.Is(err, manifest.ErrInvalidManifest) to distinguish validation
// failures from encode/hash errors bubbled up from dv.
var ErrInvalidManifest = errors.New("manifest: invalid manifest")
