// Package staging manages virtually staged images for tour scenes.
//
// A staged variant is a furnished rendering of a scene's panorama produced
// by an external image generation service. Variants live here, keyed by
// scene id, so scenes themselves stay immutable. The manager answers one
// question for the viewer: which image should this scene show right now.
//
// Requests are independent of navigation. A result always lands on the
// scene it was requested for, and when two requests for the same scene
// overlap the one that resolves last wins. Generation failures leave the
// displayed image unchanged and are reported as ErrGenerationFailed.
package staging
