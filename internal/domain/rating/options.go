package rating

// Default K-factor bounds.
const (
	DefaultBaseK = 32.0
	DefaultMinK  = 8.0
	DefaultMaxK  = 64.0
)

// Option configures an Updater.
type Option func(*Updater)

// WithScale sets the logistic spread used for expectations.
func WithScale(scale float64) Option {
	return func(u *Updater) {
		if scale > 0 {
			u.scale = scale
		}
	}
}

// WithKFactor sets the base K and its clamp bounds. Invalid bounds are ignored.
func WithKFactor(base, minK, maxK float64) Option {
	return func(u *Updater) {
		if base > 0 && minK > 0 && minK <= maxK {
			u.baseK, u.minK, u.maxK = base, minK, maxK
		}
	}
}
