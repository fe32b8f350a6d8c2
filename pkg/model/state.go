package model

// ThreadState is the scheduling state of a green thread. It is derived from
// queue membership and never stored on the thread itself.
type ThreadState string

const (
	ThreadStateRunning             ThreadState = "RUNNING"
	ThreadStateReady               ThreadState = "READY"
	ThreadStateBlocked             ThreadState = "BLOCKED"
	ThreadStateMutexWaiting        ThreadState = "MUTEX_WAITING"
	ThreadStateBlockedMutexWaiting ThreadState = "BLOCKED_MUTEX_WAITING"
)

// String returns the string representation of the thread state.
func (s ThreadState) String() string {
	return string(s)
}

// IsRunnable returns true if a thread in this state may be given the CPU.
func (s ThreadState) IsRunnable() bool {
	switch s {
	case ThreadStateRunning, ThreadStateReady:
		return true
	}
	return false
}

// IsBlocked returns true if the thread was blocked with Block, whether or
// not it is also waiting for the mutex.
func (s ThreadState) IsBlocked() bool {
	return s == ThreadStateBlocked || s == ThreadStateBlockedMutexWaiting
}

// IsMutexWaiting returns true if the thread is queued for the mutex.
func (s ThreadState) IsMutexWaiting() bool {
	return s == ThreadStateMutexWaiting || s == ThreadStateBlockedMutexWaiting
}

// StateOf combines the independent blocked and mutex-waiting conditions of a
// non-running thread into one state.
func StateOf(blocked, waiting bool) ThreadState {
	switch {
	case blocked && waiting:
		return ThreadStateBlockedMutexWaiting
	case blocked:
		return ThreadStateBlocked
	case waiting:
		return ThreadStateMutexWaiting
	}
	return ThreadStateReady
}
