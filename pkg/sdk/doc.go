// Package sdk is the Go client for a loadpulse collector. Producers embed
// it to report per-request observations or aggregate rollups; envelopes
// are batched and shipped over HTTP or the push websocket.
//
// Typical use:
//
//	client, err := sdk.New(sdk.Config{Endpoint: "http://collector:8080", Run: "nightly"})
//	if err != nil { ... }
//	client.Start(ctx)
//	defer client.Close()
//
//	client.Observe(123.4, 200, true)
package sdk
