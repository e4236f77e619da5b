//go:build cgo

package audio

const cgoEnabled = true
