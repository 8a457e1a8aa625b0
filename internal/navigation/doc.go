// Package navigation moves a viewer through a tour's scenes.
//
// Scenes are ordered; Next and Previous wrap around, JumpTo selects a scene
// by id, and ActivateHotspot turns a navigation hotspot into a jump. A
// navigation hotspot whose target is not part of the tour is a
// configuration problem: it is logged and the viewer stays where it is.
package navigation
