package plugin

/*

	The Adapter sits aside /batteria/
	Contains core interfaces for Plugin

*/

import (
	Bt "github.com/maroda/batteria/types"
)

// HitOutput is a place for resolved hits to go, one by one as the
// sensor fires. Velocity rides along separately: it belongs to the
// impact, not to the localization result.
type HitOutput interface {
	WriteHit(hit *Bt.HitResult, velocity float64) error // Trigger one hit
	Flush() error                                       // Silence anything still sounding
	Close() error                                       // Close the adapter and release resources
	Type() string                                       // ID for output
}
