package cache

// PixelFormat identifies the in-memory pixel layout used to compute exact
// byte sizes for programmatically created values.
type PixelFormat int

const (
	// FormatARGB8888 uses 4 bytes per pixel.
	FormatARGB8888 PixelFormat = iota
	// FormatRGB565 uses 2 bytes per pixel.
	FormatRGB565
	// FormatARGB4444 uses 2 bytes per pixel.
	FormatARGB4444
	// FormatAlpha8 uses 1 byte per pixel.
	FormatAlpha8
)

// bytesPerPixel returns the per-pixel byte width, or 0 for unknown formats.
func (f PixelFormat) bytesPerPixel() int64 {
	switch f {
	case FormatARGB8888:
		return 4
	case FormatRGB565, FormatARGB4444:
		return 2
	case FormatAlpha8:
		return 1
	default:
		return 0
	}
}
