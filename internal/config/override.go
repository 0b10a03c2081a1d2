package config

import "slices"

// Override adjusts a copy of a [Config], typically from a command-line flag.
type Override func(*Config)

// WithLogLevel overrides server.log_level.
func WithLogLevel(l LogLevel) Override {
	return func(c *Config) { c.Server.LogLevel = l }
}

// WithListenAddr overrides server.listen_addr.
func WithListenAddr(addr string) Override {
	return func(c *Config) { c.Server.ListenAddr = addr }
}

// WithFavorites appends phrases to matcher.favorites.
func WithFavorites(phrases ...string) Override {
	return func(c *Config) { c.Matcher.Favorites = append(c.Matcher.Favorites, phrases...) }
}

// WithOverrides returns a deep copy of c with overrides applied in order.
// c itself is left untouched.
func (c *Config) WithOverrides(overrides ...Override) *Config {
	out := c.Clone()
	for _, o := range overrides {
		o(out)
	}
	return out
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	out := *c
	out.Matcher.Favorites = slices.Clone(c.Matcher.Favorites)
	out.Wake.Custom = slices.Clone(c.Wake.Custom)
	out.Wake.Stop = slices.Clone(c.Wake.Stop)
	out.Wake.Help = slices.Clone(c.Wake.Help)
	out.Compound.KnownApps = slices.Clone(c.Compound.KnownApps)
	return &out
}
