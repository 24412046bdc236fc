package webstream

import "fmt"

const pageTemplate = `<html>
<head>
<title>MJPEG streaming</title>
</head>
<body>
<h1>MJPEG Streaming</h1>
<img src="stream.mjpg" width="%d" height="%d" />
</body>
</html>
`

// RenderIndex renders the default index page. Width and height only size
// the <img> tag; they do not constrain the actual frame dimensions.
func RenderIndex(width, height int) []byte {
	return []byte(fmt.Sprintf(pageTemplate, width, height))
}
