//go:build !linux

package timer

// NewVirtual falls back to the wall-clock driver where ITIMER_VIRTUAL is not
// wired up.
func NewVirtual() Driver {
	return NewWall()
}
