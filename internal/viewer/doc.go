// Package viewer serves the browser tour viewer as an embedded asset.
//
// The viewer is a thin shell: it opens a session over the REST API, forwards
// pointer, wheel and keyboard input, and draws whatever view the engine
// returns. Unknown paths fall back to index.html so deep links such as
// /viewer/harbour-view load the shell, which reads the tour slug from the URL.
//
// Cache-control headers are set to no-cache; the shell is small and the
// panoramas it loads come from the tour's own CDN.
package viewer
