// Package orientation tracks where a panorama viewer is looking.
//
// A Controller holds pitch, yaw and zoom for one view and updates them from
// drag, wheel and timer input:
//
//	c := orientation.New(orientation.DefaultConfig())
//	c.DragStart(orientation.Point{X: 400, Y: 300})
//	c.DragMove(orientation.Point{X: 410, Y: 300}) // yaw -3°
//	c.DragEnd()
//	c.Tick(50 * time.Millisecond)                 // auto-rotate +0.15°
//
// Pitch is clamped to [-60, 60] and zoom to [1, 2.5]. Out-of-range or
// non-finite input is clamped or ignored; nothing in this package returns an
// error.
package orientation
