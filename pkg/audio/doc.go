// Package audio decides when background audio should change and forwards the
// resulting commands to an AudioPlayer without blocking the narrative session.
package audio
