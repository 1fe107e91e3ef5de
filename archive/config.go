package archive

// Config holds archive initialization parameters.
type Config struct {
	// Path is the backing file location. Empty selects a fresh temporary
	// file that is removed on Close.
	Path string `json:"path,omitempty"`

	// MaxBufferSize caps the number of bytes held resident across all
	// entries. Zero forces the minimum of 1 byte, matching the behavior
	// this module's buffer sizing is grounded on.
	MaxBufferSize int64 `json:"max_buffer_size,omitempty"`

	// MaxBufferSizeString, if set, overrides MaxBufferSize and is parsed
	// with ParseSize (accepts suffixes like "1.5G").
	MaxBufferSizeString string `json:"max_buffer_size_string,omitempty"`
}

// DefaultConfig returns the default archive configuration: a temporary
// backing file with a 64MB buffer.
func DefaultConfig() Config {
	return Config{MaxBufferSize: 64 * 1e6}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Path != "" {
		c.Path = source.Path
	}
	if source.MaxBufferSize != 0 {
		c.MaxBufferSize = source.MaxBufferSize
	}
	if source.MaxBufferSizeString != "" {
		c.MaxBufferSizeString = source.MaxBufferSizeString
	}
}

// resolvedBufferSize returns the effective byte budget, preferring the
// string form when present.
func (c *Config) resolvedBufferSize() (int64, error) {
	if c.MaxBufferSizeString != "" {
		return ParseSize(c.MaxBufferSizeString)
	}
	return c.MaxBufferSize, nil
}
