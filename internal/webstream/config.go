package webstream

// PageRenderer produces the HTML for the index page.
type PageRenderer func(width, height int) []byte

// Config defines the runtime configuration for the streaming server.
type Config struct {
	Addr         string
	StreamWidth  int // <img> tag width on the index page, cosmetic only
	StreamHeight int // <img> tag height on the index page, cosmetic only
	RenderPage   PageRenderer
}

// DefaultConfig returns the standard 640x480 configuration.
func DefaultConfig() Config {
	return Config{
		Addr:         ":8080",
		StreamWidth:  640,
		StreamHeight: 480,
	}
}
