package events

import "bytes"

func jsonReader(body []byte) *bytes.Reader {
	return bytes.NewReader(body)
}
