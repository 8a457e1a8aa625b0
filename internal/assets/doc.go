// Package assets checks that panorama images are reachable before the
// viewer shows them.
//
// A failed check is an asset error: the viewer shows a retry action for
// that scene and nothing else changes.
package assets
