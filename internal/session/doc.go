// Package session composes the tour engine's components into live viewer
// sessions.
//
// A Session binds one tour to a navigator, an orientation controller, one
// measurement engine per scene, a staging manager, the neighbourhood world
// scene, a display mode and per-scene asset states. Every operation takes
// the session mutex, so input is applied strictly in arrival order.
//
// Side effects are collected while the mutex is held and run after it is
// released:
//
//   - WebSocket broadcasts on channel "session.{id}" (Broadcaster)
//   - bus events such as scene.changed and staging.completed (EventPublisher)
//   - analytics points for dwell time, measurements and staging (Metrics)
//
// All three are optional.
//
// Staging and image checks run in the background under the Manager's
// context. Their results are applied to the scene they were started for.
package session
